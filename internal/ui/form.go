package ui

import (
	"errors"

	"github.com/charmbracelet/huh"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// TaskForm builds the add/edit form. title and description are read as
// initial values and receive the result.
func TaskForm(title, description *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				CharLimit(schema.MaxTitleLength).
				Validate(validateTitle).
				Value(title),
			huh.NewText().
				Title("Description").
				Value(description),
		),
	)
}

func validateTitle(s string) error {
	if schema.TitleEmpty(s) {
		return errors.New("title is required")
	}
	return nil
}

// EditTask runs TaskForm in the terminal.
func EditTask(title, description *string) error {
	return TaskForm(title, description).Run()
}

// Confirm asks a yes/no question.
func Confirm(prompt string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(prompt).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	return ok, err
}
