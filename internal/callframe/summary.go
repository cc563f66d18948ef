package callframe

import (
	"fmt"
	"strings"
)

const clockLayout = "15:04:05"

// Summary is the one-line description of a frame.
type Summary struct {
	ID       string
	Message  string
	TimeInfo string
	Loading  bool
}

func Summarize(frame CallFrame) Summary {
	return Summary{
		ID:       frame.ID,
		Message:  SummaryMessage(frame),
		TimeInfo: TimeInfo(frame),
		Loading:  !frame.Finished(),
	}
}

// Label is the summary without the trailing loading glyph.
func (s Summary) Label() string {
	return fmt.Sprintf("[ID: %s] %s (%s)", s.ID, s.Message, s.TimeInfo)
}

func (s Summary) String() string {
	if s.Loading {
		return s.Label() + " " + LoadingGlyph
	}
	return s.Label()
}

// LoadingGlyph marks frames that have not finished yet in static output.
const LoadingGlyph = "⟳"

func SummaryMessage(frame CallFrame) string {
	name := frame.DisplayName()
	category := strings.TrimSpace(frame.ToolCategory)
	finished := frame.Finished()

	if frame.IsChat() {
		if finished {
			return "Chatted with " + name
		}
		return "Chat open with " + name
	}
	switch {
	case !finished && category != "":
		return fmt.Sprintf("Loading %s from %s...", category, name)
	case !finished:
		return "Running " + name
	case category != "":
		return fmt.Sprintf("Loaded %s from %s", category, name)
	default:
		return "Ran " + name
	}
}

// TimeInfo shows start and end as local wall-clock times.
func TimeInfo(frame CallFrame) string {
	start := "N/A"
	if !frame.Start.IsZero() {
		start = frame.Start.Local().Format(clockLayout)
	}
	end := "In progress"
	if !frame.End.IsZero() {
		end = frame.End.Local().Format(clockLayout)
	}
	return fmt.Sprintf("%s - %s, %s", start, end, FormatDuration(frame))
}

func FormatDuration(frame CallFrame) string {
	d, ok := frame.Duration()
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
