package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

func sampleTasks() []*schema.Task {
	at := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	return []*schema.Task{
		{ID: schema.NewID(), Title: "write report", Description: "q2", UserID: "alice", CreatedAt: at, UpdatedAt: at, Synced: true},
		{ID: schema.NewID(), Title: "call bob", IsCompleted: true, UserID: "alice", CreatedAt: at, UpdatedAt: at.Add(time.Hour)},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"json": FormatJSON, "YAML": FormatYAML, "yml": FormatYAML, " jsonl ": FormatJSONL, "ndjson": FormatJSONL}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("ParseFormat(csv) succeeded")
	}
}

func TestWrite_YAML(t *testing.T) {
	snap := NewSnapshot("alice", sampleTasks(), time.Now())

	var buf bytes.Buffer
	if err := Write(&buf, FormatYAML, snap); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "isCompleted: true") {
		t.Errorf("YAML missing camelCase field names:\n%s", buf.String())
	}

	var got Snapshot
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if got.UserID != "alice" || got.SchemaVersion != schema.Version || len(got.Tasks) != 2 {
		t.Errorf("decoded snapshot = %+v", got)
	}
	if got.Tasks[0].Title != "write report" || !got.Tasks[0].CreatedAt.Equal(snap.Tasks[0].CreatedAt) {
		t.Errorf("task 0 = %+v", got.Tasks[0])
	}
}

func TestWrite_JSON(t *testing.T) {
	snap := NewSnapshot("alice", nil, time.Now())

	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, snap); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if tasks, ok := raw["tasks"].([]any); !ok || len(tasks) != 0 {
		t.Errorf("tasks = %#v, want empty array", raw["tasks"])
	}
}

func TestWrite_JSONL(t *testing.T) {
	tasks := sampleTasks()

	var buf bytes.Buffer
	if err := Write(&buf, FormatJSONL, NewSnapshot("alice", tasks, time.Now())); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var n int
	for scanner.Scan() {
		var task schema.Task
		if err := json.Unmarshal(scanner.Bytes(), &task); err != nil {
			t.Fatalf("line %d is not a task: %v", n+1, err)
		}
		if task.ID != tasks[n].ID {
			t.Errorf("line %d id = %s, want %s", n+1, task.ID, tasks[n].ID)
		}
		n++
	}
	if n != len(tasks) {
		t.Errorf("got %d lines, want %d", n, len(tasks))
	}
}
