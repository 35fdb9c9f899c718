// Package tui renders execution records and workflows for a terminal.
package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/relay/pkg/domain"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// Status colors a status for terminal output.
func Status(p termenv.Profile, s domain.ExecutionStatus) string {
	style := termenv.String(string(s))
	switch s {
	case domain.StatusSuccess:
		style = style.Foreground(p.Color("#22c55e"))
	case domain.StatusError:
		style = style.Foreground(p.Color("#ef4444")).Bold()
	case domain.StatusRunning:
		style = style.Foreground(p.Color("#eab308"))
	}
	return style.String()
}

// PrintExecutions writes one aligned row per record. With the Ascii profile no
// escape codes are written.
func PrintExecutions(w io.Writer, p termenv.Profile, recs []*domain.ExecutionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tUSER\tCREATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.WorkflowID, Status(p, r.Status), r.UserID, r.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// RecordMarkdown describes a record as Markdown for NewRenderer.
func RecordMarkdown(rec *domain.ExecutionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Execution %s\n\n", rec.ID)
	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Workflow | %s |\n", rec.WorkflowID)
	fmt.Fprintf(&b, "| Status | **%s** |\n", rec.Status)
	fmt.Fprintf(&b, "| User | %s |\n", rec.UserID)
	fmt.Fprintf(&b, "| Created | %s |\n", rec.CreatedAt.Format(time.RFC3339))
	if rec.CompletedAt != nil {
		fmt.Fprintf(&b, "| Completed | %s |\n", rec.CompletedAt.Format(time.RFC3339))
	}
	if meta, ok := domain.MetaFromInput(rec.Input); ok {
		fmt.Fprintf(&b, "| Path | %s |\n", strings.Join(meta.Path.IDs(), " → "))
	}

	if rec.Error != "" {
		fmt.Fprintf(&b, "\n## Error\n\n```\n%s\n```\n", rec.Error)
	}
	if len(rec.Input) > 0 {
		fmt.Fprintf(&b, "\n## Input\n\n```json\n%s\n```\n", indent(rec.Input))
	}
	if rec.Output != nil {
		fmt.Fprintf(&b, "\n## Output\n\n```json\n%s\n```\n", indent(rec.Output))
	}
	return b.String()
}

func indent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
