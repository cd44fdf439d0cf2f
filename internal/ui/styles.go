// Package ui renders CLI output: status glyphs, the task list and the
// interactive task form.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var renderer = lipgloss.NewRenderer(os.Stdout)

var (
	accentStyle = renderer.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = renderer.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = renderer.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = renderer.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	mutedStyle  = renderer.NewStyle().Foreground(lipgloss.Color("8"))
	doneStyle   = renderer.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true)
	headerStyle = renderer.NewStyle().Bold(true).Underline(true)
)

func init() {
	if os.Getenv("NO_COLOR") != "" || !IsTerminal(os.Stdout) {
		DisableColor()
	}
}

// DisableColor switches all styles to plain text.
func DisableColor() {
	renderer.SetColorProfile(termenv.Ascii)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of stdout, or 80.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
