package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
)

const (
	MarkerOpen   = "▾"
	MarkerClosed = "▸"
	indentUnit   = "  "
)

type Styler interface {
	Title(s string) string
	Dim(s string) string
	Spinner(s string) string
}

type PlainStyler struct{}

func (PlainStyler) Title(s string) string   { return s }
func (PlainStyler) Dim(s string) string     { return s }
func (PlainStyler) Spinner(s string) string { return s }

// WriteText prints the visible rows of doc. Closed groups print only their
// header line.
func WriteText(w io.Writer, doc Document, view View, style Styler) error {
	if style == nil {
		style = PlainStyler{}
	}
	bw := bufio.NewWriter(w)
	if doc.Empty() {
		placeholder := doc.Placeholder
		if placeholder == "" {
			placeholder = WaitingPlaceholder
		}
		if _, err := fmt.Fprintln(bw, style.Dim(placeholder)); err != nil {
			return err
		}
		return bw.Flush()
	}
	for _, row := range view.Rows(doc) {
		indent := strings.Repeat(indentUnit, row.Level)
		if row.Node.Leaf {
			for _, line := range strings.Split(row.Node.Text, "\n") {
				if _, err := fmt.Fprintln(bw, strings.TrimRight(indent+line, " ")); err != nil {
					return err
				}
			}
			continue
		}
		marker := MarkerClosed
		if row.Open {
			marker = MarkerOpen
		}
		if _, err := fmt.Fprintln(bw, indent+marker+" "+HeaderText(row.Node, style, callframe.LoadingGlyph)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// HeaderText is the styled header of a group; call groups get the dimmed
// timing block and, while running, the given spinner glyph.
func HeaderText(n *Node, style Styler, glyph string) string {
	if n.Summary == nil {
		return n.Text
	}
	s := n.Summary
	out := style.Title(fmt.Sprintf("[ID: %s] %s", s.ID, s.Message)) + " " + style.Dim("("+s.TimeInfo+")")
	if s.Loading && glyph != "" {
		out += " " + style.Spinner(glyph)
	}
	return out
}
