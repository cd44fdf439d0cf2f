// Package export writes a user's tasks as JSON, JSON Lines or YAML.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts json, jsonl and yaml (or yml), case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json, jsonl or yaml)", s)
	}
}

// Snapshot is the exported document.
type Snapshot struct {
	UserID        string         `json:"userId" yaml:"userId"`
	SchemaVersion int            `json:"schemaVersion" yaml:"schemaVersion"`
	ExportedAt    time.Time      `json:"exportedAt" yaml:"exportedAt"`
	Tasks         []*schema.Task `json:"tasks" yaml:"tasks"`
}

// NewSnapshot wraps tasks for userID at the current schema version.
func NewSnapshot(userID string, tasks []*schema.Task, at time.Time) Snapshot {
	if tasks == nil {
		tasks = []*schema.Task{}
	}
	return Snapshot{
		UserID:        userID,
		SchemaVersion: schema.Version,
		ExportedAt:    at.UTC(),
		Tasks:         tasks,
	}
}

// Write encodes snap to w. JSON Lines writes one task per line and omits
// the envelope.
func Write(w io.Writer, format Format, snap Snapshot) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	case FormatJSONL:
		encoder := json.NewEncoder(w)
		for _, task := range snap.Tasks {
			if err := encoder.Encode(task); err != nil {
				return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
			}
		}
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("failed to flush YAML: %w", err)
		}
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	return nil
}
