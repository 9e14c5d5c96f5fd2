package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/onestep/pkg/domain"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer. With no options the style follows the
// terminal background.
func NewRenderer(opts ...glamour.TermRendererOption) (Renderer, error) {
	if len(opts) == 0 {
		opts = []glamour.TermRendererOption{glamour.WithAutoStyle()}
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

// Plain renders markdown as is.
func Plain(markdown string) (string, error) {
	return markdown, nil
}

// Transcript formats a checkpointed state and its step record as markdown.
func Transcript(runKey string, state *domain.State, rec domain.StepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Run `%s`\n\n", runKey)
	if state != nil && state.TaskID != "" {
		fmt.Fprintf(&b, "Task: `%s`\n\n", state.TaskID)
	}
	if rec.Step != "" {
		fmt.Fprintf(&b, "Step **%s** %s", rec.Step, rec.Status)
		if d := rec.Duration(); d > 0 {
			fmt.Fprintf(&b, " in %s", d.Round(time.Millisecond))
		}
		b.WriteString("\n\n")
		if rec.Error != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", rec.Error)
		}
	}
	if state == nil || len(state.Messages) == 0 {
		b.WriteString("_no messages_\n")
		return b.String()
	}
	for _, m := range state.Messages {
		fmt.Fprintf(&b, "- **%s**: %s\n", m.Role, m.Content)
	}
	return b.String()
}
