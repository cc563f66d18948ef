package render

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// TermStyler colors text output with lipgloss.
type TermStyler struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	spinner lipgloss.Style
}

// NewTermStyler binds styles to w. When force is set the ANSI palette is used
// even if w does not look like a terminal.
func NewTermStyler(w io.Writer, force bool) TermStyler {
	r := lipgloss.NewRenderer(w)
	if force {
		r.SetColorProfile(termenv.ANSI256)
	}
	return TermStyler{
		title:   r.NewStyle().Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		spinner: r.NewStyle().Foreground(lipgloss.Color("39")),
	}
}

func (s TermStyler) Title(v string) string   { return s.title.Render(v) }
func (s TermStyler) Dim(v string) string     { return s.dim.Render(v) }
func (s TermStyler) Spinner(v string) string { return s.spinner.Render(v) }
