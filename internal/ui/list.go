package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// ShortID is the id suffix shown in lists. Commands accept it back as long
// as it is unambiguous.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// RenderTaskList formats tasks one per line, truncating titles to width.
func RenderTaskList(tasks []*schema.Task, width int) string {
	if len(tasks) == 0 {
		return RenderMuted("No tasks.") + "\n"
	}
	if width <= 0 {
		width = 80
	}

	// check + space + id + 2 spaces + title + 2 spaces + date + 2 spaces + marker
	const fixed = 1 + 1 + 8 + 2 + 2 + 10 + 2 + 1
	titleWidth := width - fixed
	if titleWidth < 10 {
		titleWidth = 10
	}

	var b strings.Builder
	for _, task := range tasks {
		check := RenderMuted("○")
		title := truncate(task.Title, titleWidth)
		if task.IsCompleted {
			check = RenderPass("✓")
			title = doneStyle.Render(title)
		}

		marker := " "
		if !task.Synced {
			marker = RenderWarn("↑")
		}

		title = renderer.NewStyle().Width(titleWidth).Render(title)
		fmt.Fprintf(&b, "%s %s  %s  %s  %s\n",
			check,
			RenderMuted(ShortID(task.ID)),
			title,
			task.CreatedAt.Local().Format("2006-01-02"),
			marker,
		)
	}
	return b.String()
}

// RenderTask formats one task in detail.
func RenderTask(task *schema.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", headerStyle.Render(task.Title))
	if task.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", task.Description)
	}

	state := "open"
	if task.IsCompleted {
		state = RenderPass("completed")
	}
	sync := RenderPass("synced")
	if !task.Synced {
		sync = RenderWarn("pending push")
	}

	fmt.Fprintf(&b, "ID:       %s\n", task.ID)
	fmt.Fprintf(&b, "Status:   %s\n", state)
	fmt.Fprintf(&b, "Sync:     %s\n", sync)
	fmt.Fprintf(&b, "Created:  %s\n", task.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "Updated:  %s\n", task.UpdatedAt.Local().Format(time.DateTime))
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
