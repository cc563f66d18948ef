package tui

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
	"github.com/baaaaaaaka/calltrace/internal/render"
)

func TestMain(m *testing.M) {
	// Summaries print local clock times; pin the zone for stable output.
	time.Local = time.UTC
	os.Exit(m.Run())
}

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestScreen(t *testing.T, w, h int) tcell.Screen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	screen.SetSize(w, h)
	t.Cleanup(func() { screen.Fini() })
	return screen
}

func sampleFrames() callframe.Frames {
	return callframe.Frames{
		"1": {
			ID: "1", Start: t0, End: t0.Add(1500 * time.Millisecond), Type: callframe.EventCallFinish,
			Tool:  &callframe.Tool{Name: "main"},
			Input: json.RawMessage(`"hello"`),
		},
		"2": {
			ID: "2", ParentID: "1", Start: t0.Add(time.Second), Type: "callStart",
			Tool: &callframe.Tool{Name: "sub"},
		},
	}
}

func loadedState(t *testing.T, frames callframe.Frames) (*uiState, Options) {
	t.Helper()
	opts := Options{
		Load: func(context.Context) (callframe.LoadResult, error) {
			return callframe.LoadResult{Frames: frames}, nil
		},
	}
	state := newState(opts)
	reload(context.Background(), state, opts)
	return state, opts
}

func key(ch rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, ch, 0)
}

func lineTexts(lines []line) []string {
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		out = append(out, ln.text)
	}
	return out
}

func TestDrawShowsPlaceholderWhenEmpty(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	state, opts := loadedState(t, callframe.Frames{})
	draw(screen, state, opts)

	if got := readScreenLine(screen, 1); !strings.Contains(got, render.WaitingPlaceholder) {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := readScreenLine(screen, 9); !strings.Contains(got, "0 frames") {
		t.Fatalf("expected frame count in status, got %q", got)
	}
}

func TestDrawShowsLoadError(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	opts := Options{Load: func(context.Context) (callframe.LoadResult, error) {
		return callframe.LoadResult{}, errors.New("boom")
	}}
	state := newState(opts)
	reload(context.Background(), state, opts)
	draw(screen, state, opts)

	if got := readScreenLine(screen, 1); !strings.Contains(got, "Load error: boom") {
		t.Fatalf("expected load error, got %q", got)
	}
}

func TestBuildLinesCollapsedByDefault(t *testing.T) {
	state, _ := loadedState(t, sampleFrames())
	got := lineTexts(buildLines(state, 78))
	want := []string{
		"▾ [ID: 1] Ran main (10:00:00 - 10:00:01, 1.50s)",
		"  ▸ Message to LLM: hello",
		"  ▸ Messages",
		"  ▸ Subcalls",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("lines:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestExpandAllKeyFlipsEveryGroup(t *testing.T) {
	screen := newTestScreen(t, 80, 20)
	state, opts := loadedState(t, sampleFrames())
	collapsed := len(buildLines(state, 78))

	if err := handleKey(context.Background(), screen, state, opts, key('e')); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	expanded := buildLines(state, 78)
	if len(expanded) <= collapsed {
		t.Fatalf("expected more lines after expand, got %d vs %d", len(expanded), collapsed)
	}
	for _, ln := range expanded {
		if ln.header && !ln.open {
			t.Fatalf("group %q still closed", ln.text)
		}
	}

	if err := handleKey(context.Background(), screen, state, opts, key('e')); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if got := len(buildLines(state, 78)); got != collapsed {
		t.Fatalf("expected %d lines after collapse, got %d", collapsed, got)
	}
}

func TestEnterTogglesGroupAtCursor(t *testing.T) {
	screen := newTestScreen(t, 80, 20)
	state, opts := loadedState(t, sampleFrames())
	state.list.selected = 1

	ev := tcell.NewEventKey(tcell.KeyEnter, 0, 0)
	if err := handleKey(context.Background(), screen, state, opts, ev); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	lines := buildLines(state, 78)
	if !lines[1].open || lines[2].text != "    hello" {
		t.Fatalf("input group not opened: %q", lineTexts(lines))
	}
	if lines[3].open {
		t.Fatalf("sibling group must stay closed")
	}

	if err := handleKey(context.Background(), screen, state, opts, key(' ')); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if buildLines(state, 78)[1].open {
		t.Fatalf("space did not close the group")
	}
}

func TestLeftRightSetGroupState(t *testing.T) {
	screen := newTestScreen(t, 80, 20)
	state, opts := loadedState(t, sampleFrames())

	left := tcell.NewEventKey(tcell.KeyLeft, 0, 0)
	if err := handleKey(context.Background(), screen, state, opts, left); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if lines := buildLines(state, 78); len(lines) != 1 || lines[0].open {
		t.Fatalf("root should collapse: %q", lineTexts(lines))
	}
	if err := handleKey(context.Background(), screen, state, opts, left); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if lines := buildLines(state, 78); len(lines) != 1 {
		t.Fatalf("second left must be a no-op")
	}
	right := tcell.NewEventKey(tcell.KeyRight, 0, 0)
	if err := handleKey(context.Background(), screen, state, opts, right); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if lines := buildLines(state, 78); len(lines) != 4 {
		t.Fatalf("root should reopen: %q", lineTexts(lines))
	}
}

func TestNavigationKeys(t *testing.T) {
	screen := newTestScreen(t, 80, 20)
	state, opts := loadedState(t, sampleFrames())

	steps := []struct {
		ev   *tcell.EventKey
		want int
	}{
		{key('j'), 1},
		{tcell.NewEventKey(tcell.KeyDown, 0, 0), 2},
		{key('G'), 3},
		{key('j'), 3},
		{key('k'), 2},
		{key('g'), 0},
		{tcell.NewEventKey(tcell.KeyEnd, 0, 0), 3},
		{tcell.NewEventKey(tcell.KeyHome, 0, 0), 0},
	}
	for i, step := range steps {
		if err := handleKey(context.Background(), screen, state, opts, step.ev); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if state.list.selected != step.want {
			t.Fatalf("step %d: selected=%d want %d", i, state.list.selected, step.want)
		}
	}
}

func TestCursorFollowsNodeAcrossToggle(t *testing.T) {
	screen := newTestScreen(t, 80, 20)
	state, opts := loadedState(t, sampleFrames())

	if err := handleKey(context.Background(), screen, state, opts, key('G')); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if state.cursorKey != "call:1/subcalls" {
		t.Fatalf("cursorKey=%q", state.cursorKey)
	}
	state.view = state.view.Toggled()
	draw(screen, state, opts)
	lines := buildLines(state, 78)
	if keyAt(lines, state.list.selected) != "call:1/subcalls" {
		t.Fatalf("cursor moved to %q", keyAt(lines, state.list.selected))
	}
}

func TestQuitKeys(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	state, opts := loadedState(t, sampleFrames())
	for _, ev := range []*tcell.EventKey{
		key('q'),
		tcell.NewEventKey(tcell.KeyESC, 0, 0),
		tcell.NewEventKey(tcell.KeyCtrlC, 0, 0),
	} {
		if err := handleKey(context.Background(), screen, state, opts, ev); !errors.Is(err, errQuit) {
			t.Fatalf("expected errQuit, got %v", err)
		}
	}
}

func TestSearchFindsMatchesAndCycles(t *testing.T) {
	screen := newTestScreen(t, 80, 20)
	state, opts := loadedState(t, sampleFrames())
	state.view = state.view.Toggled()

	ctx := context.Background()
	for _, ev := range []*tcell.EventKey{key('/'), key('I'), key('D'), key(':')} {
		if err := handleKey(ctx, screen, state, opts, ev); err != nil {
			t.Fatalf("handleKey: %v", err)
		}
	}
	if !state.inputMode || state.searchBuf != "ID:" {
		t.Fatalf("search input not captured: %q", state.searchBuf)
	}
	if err := handleKey(ctx, screen, state, opts, tcell.NewEventKey(tcell.KeyEnter, 0, 0)); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	draw(screen, state, opts)
	if len(state.matches) != 2 {
		t.Fatalf("matches=%v", state.matches)
	}
	if err := handleKey(ctx, screen, state, opts, key('n')); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if state.list.selected != state.matches[1] {
		t.Fatalf("n did not jump: selected=%d matches=%v", state.list.selected, state.matches)
	}
	if err := handleKey(ctx, screen, state, opts, key('N')); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if state.list.selected != state.matches[0] {
		t.Fatalf("N did not jump back")
	}
	if got := statusText(state, opts); !strings.Contains(got, "(1/2)") {
		t.Fatalf("status missing match hint: %q", got)
	}
}

func TestSearchEscapeKeepsPreviousQuery(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	state, opts := loadedState(t, sampleFrames())
	state.search = "main"

	ctx := context.Background()
	for _, ev := range []*tcell.EventKey{key('/'), key('x'), tcell.NewEventKey(tcell.KeyESC, 0, 0)} {
		if err := handleKey(ctx, screen, state, opts, ev); err != nil {
			t.Fatalf("handleKey: %v", err)
		}
	}
	if state.inputMode || state.search != "main" {
		t.Fatalf("escape changed search: %q", state.search)
	}
}

func TestReloadKeepsTreeOnError(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	fail := false
	opts := Options{Load: func(context.Context) (callframe.LoadResult, error) {
		if fail {
			return callframe.LoadResult{}, errors.New("truncated")
		}
		return callframe.LoadResult{Frames: sampleFrames()}, nil
	}}
	state := newState(opts)
	reload(context.Background(), state, opts)

	fail = true
	if err := handleKey(context.Background(), screen, state, opts, key('r')); err != nil {
		t.Fatalf("handleKey: %v", err)
	}
	if state.loadError == nil || state.doc.Empty() {
		t.Fatalf("expected error with previous tree kept")
	}
	draw(screen, state, opts)
	if got := readScreenLine(screen, 1); !strings.Contains(got, "[ID: 1]") {
		t.Fatalf("tree not kept: %q", got)
	}
	if got := readScreenLine(screen, 9); !strings.Contains(got, "Load error: truncated") {
		t.Fatalf("status missing error: %q", got)
	}
}

func TestRightLabelCounts(t *testing.T) {
	frames := sampleFrames()
	frames["lost"] = callframe.CallFrame{ID: "lost", ParentID: "gone", Start: t0}
	opts := Options{
		Follow:  true,
		Version: "1.2.0",
		Load: func(context.Context) (callframe.LoadResult, error) {
			return callframe.LoadResult{Frames: frames, Skipped: 2}, nil
		},
	}
	state := newState(opts)
	reload(context.Background(), state, opts)

	got := rightLabel(state, opts)
	for _, want := range []string{"3 frames", "1 unreachable", "2 skipped", "following", "v1.2.0"} {
		if !strings.Contains(got, want) {
			t.Fatalf("label %q missing %q", got, want)
		}
	}
}

func TestSpinnerOnlyWhileLoading(t *testing.T) {
	state, _ := loadedState(t, sampleFrames())
	if !hasLoading(state.doc) {
		t.Fatalf("running call should report loading")
	}
	done := sampleFrames()
	f := done["2"]
	f.Type = callframe.EventCallFinish
	f.End = t0.Add(2 * time.Second)
	done["2"] = f
	state, _ = loadedState(t, done)
	if hasLoading(state.doc) {
		t.Fatalf("finished trace must not spin")
	}
}

func TestRunOnScreenQuitsOnKey(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	state, opts := loadedState(t, sampleFrames())
	if err := screen.PostEvent(key('q')); err != nil {
		t.Fatalf("post: %v", err)
	}
	stats, err := runOnScreen(context.Background(), screen, state, opts)
	if err != nil {
		t.Fatalf("runOnScreen: %v", err)
	}
	if stats.Frames != 2 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestRunOnScreenFollowReloads(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	loads := make(chan struct{}, 8)
	var mod time.Time
	opts := Options{
		Follow:   true,
		Interval: 5 * time.Millisecond,
		Changed: func() (time.Time, error) {
			mod = mod.Add(time.Second)
			return mod, nil
		},
		Load: func(context.Context) (callframe.LoadResult, error) {
			select {
			case loads <- struct{}{}:
			default:
			}
			return callframe.LoadResult{Frames: sampleFrames()}, nil
		},
	}
	state := newState(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-loads
		cancel()
	}()
	if _, err := runOnScreen(ctx, screen, state, opts); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFollowIntervalFloor(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, time.Second},
		{-time.Second, time.Second},
		{time.Microsecond, MinInterval},
		{MinInterval, MinInterval},
		{2 * time.Second, 2 * time.Second},
	}
	for _, tc := range cases {
		if got := followInterval(tc.in); got != tc.want {
			t.Fatalf("followInterval(%v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestRunOnScreenTinyIntervalStillCancels(t *testing.T) {
	screen := newTestScreen(t, 80, 10)
	var mod time.Time
	opts := Options{
		Follow:   true,
		Interval: time.Nanosecond,
		Changed: func() (time.Time, error) {
			mod = mod.Add(time.Second)
			return mod, nil
		},
		Load: func(context.Context) (callframe.LoadResult, error) {
			return callframe.LoadResult{Frames: sampleFrames()}, nil
		},
	}
	state := newState(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := runOnScreen(ctx, screen, state, opts)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("viewer did not stop after cancellation")
	}
}

func TestWrapAndTruncateHelpers(t *testing.T) {
	if got := wrapText("abcdef", 4); strings.Join(got, "|") != "abcd|ef" {
		t.Fatalf("wrapText=%q", got)
	}
	if got := wrapText("a\n\nb", 10); len(got) != 3 || got[1] != "" {
		t.Fatalf("wrapText newlines=%q", got)
	}
	if got := truncate("你好世界", 5); displayWidth(got) > 5 {
		t.Fatalf("truncate width=%d", displayWidth(got))
	}
	if got := padRight("ab", 4); got != "ab  " {
		t.Fatalf("padRight=%q", got)
	}
	if versionLabel("") != "dev" || versionLabel("v2") != "v2" || versionLabel("2") != "v2" {
		t.Fatalf("versionLabel mismatch")
	}
}

func readScreenLine(screen tcell.Screen, y int) string {
	w, _ := screen.Size()
	var buf strings.Builder
	for x := 0; x < w; x++ {
		ch, _, _, _ := screen.GetContent(x, y)
		if ch == 0 {
			ch = ' '
		}
		buf.WriteRune(ch)
	}
	return buf.String()
}
