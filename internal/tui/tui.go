package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/baaaaaaaka/calltrace/internal/callframe"
	"github.com/baaaaaaaka/calltrace/internal/render"
)

var errQuit = errors.New("quit")

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const (
	spinnerInterval = 120 * time.Millisecond
	// MinInterval bounds follow polling so reload events cannot flood the
	// screen's event queue.
	MinInterval = 100 * time.Millisecond
)

type Options struct {
	// Source labels the box title, usually the trace path.
	Source string
	Load   func(context.Context) (callframe.LoadResult, error)
	// Changed reports the source modification time; when set together with
	// Follow the trace is reloaded whenever it moves.
	Changed      func() (time.Time, error)
	Follow       bool
	Interval     time.Duration
	Policy       callframe.SentinelPolicy
	ExpandAll    bool
	PreviewChars int
	Version      string
}

// Stats summarizes the last successful load, returned when the viewer exits.
type Stats struct {
	Frames int
}

type uiEvent struct {
	when time.Time
	kind string
}

func (e *uiEvent) When() time.Time { return e.when }

type reloadEvent struct {
	result callframe.LoadResult
	err    error
}

type rect struct {
	y int
	x int
	h int
	w int
}

type listState struct {
	selected int
	scroll   int
}

// line is one screen line; group headers toggle, leaf text does not.
type line struct {
	text   string
	node   *render.Node
	level  int
	header bool
	open   bool
}

type uiState struct {
	frames      callframe.Frames
	doc         render.Document
	view        render.View
	loadError   error
	skipped     int
	unreachable int
	loadedAt    time.Time
	lastChange  time.Time

	list      listState
	cursorKey string

	inputMode   bool
	searchBuf   string
	search      string
	matches     []int
	matchIdx    int
	matchKey    string
	spinnerTick int
}

// Run shows the call tree until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) (Stats, error) {
	if opts.Load == nil {
		return Stats{}, errors.New("Load is required")
	}
	state := newState(opts)
	reload(ctx, state, opts)

	screen, err := tcell.NewScreen()
	if err != nil {
		return Stats{}, err
	}
	if err := screen.Init(); err != nil {
		return Stats{}, err
	}
	defer screen.Fini()
	return runOnScreen(ctx, screen, state, opts)
}

func followInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return max(d, MinInterval)
}

func runOnScreen(ctx context.Context, screen tcell.Screen, state *uiState, opts Options) (Stats, error) {
	opts.Interval = followInterval(opts.Interval)
	done := make(chan struct{})
	defer close(done)

	reloadCh := make(chan reloadEvent, 1)
	go func() {
		spin := time.NewTicker(spinnerInterval)
		defer spin.Stop()
		var follow <-chan time.Time
		if opts.Follow && opts.Changed != nil {
			t := time.NewTicker(opts.Interval)
			defer t.Stop()
			follow = t.C
		}
		last := state.lastChange
		for {
			select {
			case <-spin.C:
				screen.PostEvent(&uiEvent{when: time.Now(), kind: "tick"})
			case <-follow:
				mod, err := opts.Changed()
				if err != nil || mod.Equal(last) {
					continue
				}
				last = mod
				res, err := opts.Load(ctx)
				// Keep only the newest result; the main loop may drain the
				// slot concurrently.
				select {
				case <-reloadCh:
				default:
				}
				select {
				case reloadCh <- reloadEvent{result: res, err: err}:
				default:
				}
				screen.PostEvent(&uiEvent{when: time.Now(), kind: "reload"})
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			screen.PostEvent(&uiEvent{when: time.Now(), kind: "quit"})
		case <-done:
		}
	}()

	for {
		draw(screen, state, opts)
		ev := screen.PollEvent()

		switch tev := ev.(type) {
		case *uiEvent:
			switch tev.kind {
			case "quit":
				return state.stats(), ctx.Err()
			case "tick":
				if hasLoading(state.doc) {
					state.spinnerTick++
				}
			case "reload":
				select {
				case ev := <-reloadCh:
					applyLoad(state, opts, ev.result, ev.err)
				default:
				}
			}
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			if err := handleKey(ctx, screen, state, opts, tev); err != nil {
				if errors.Is(err, errQuit) {
					return state.stats(), nil
				}
				return state.stats(), err
			}
		}
	}
}

func newState(opts Options) *uiState {
	return &uiState{
		frames: callframe.Frames{},
		view:   render.View{ExpandAll: opts.ExpandAll},
	}
}

func (s *uiState) stats() Stats {
	return Stats{Frames: len(s.frames)}
}

func reload(ctx context.Context, state *uiState, opts Options) {
	if opts.Changed != nil {
		if mod, err := opts.Changed(); err == nil {
			state.lastChange = mod
		}
	}
	res, err := opts.Load(ctx)
	applyLoad(state, opts, res, err)
}

// applyLoad rebuilds the forest and document from scratch. On error the
// previous tree stays on screen.
func applyLoad(state *uiState, opts Options, res callframe.LoadResult, err error) {
	if err != nil {
		state.loadError = err
		return
	}
	state.loadError = nil
	state.frames = res.Frames
	state.skipped = res.Skipped + res.MissingIDs
	forest := callframe.BuildForest(res.Frames, opts.Policy)
	state.unreachable = len(forest.Unreachable(res.Frames, opts.Policy))
	state.doc = render.Build(res.Frames, forest, render.Options{PreviewChars: opts.PreviewChars})
	state.loadedAt = time.Now()
	state.matchKey = ""
}

func hasLoading(doc render.Document) bool {
	for _, g := range render.Groups(doc) {
		if g.Loading() {
			return true
		}
	}
	return false
}

func handleKey(
	ctx context.Context,
	screen tcell.Screen,
	state *uiState,
	opts Options,
	ev *tcell.EventKey,
) error {
	if state.inputMode {
		switch ev.Key() {
		case tcell.KeyESC:
			state.searchBuf = state.search
			state.inputMode = false
		case tcell.KeyEnter:
			state.search = strings.TrimSpace(state.searchBuf)
			state.searchBuf = state.search
			state.matchIdx = 0
			state.matchKey = ""
			state.inputMode = false
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if len(state.searchBuf) > 0 {
				state.searchBuf = state.searchBuf[:len(state.searchBuf)-1]
			}
		case tcell.KeyRune:
			ch := ev.Rune()
			if ch >= 32 && ch <= 126 {
				state.searchBuf += string(ch)
			}
		}
		return nil
	}

	w, h := screen.Size()
	box := treeRect(w, h)
	lines := buildLines(state, max(0, box.w-2))
	state.list.clamp(len(lines))
	viewH := max(0, box.h-2)

	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyESC:
		return errQuit
	case tcell.KeyCtrlR:
		reload(ctx, state, opts)
		return nil
	case tcell.KeyEnter:
		toggleAtCursor(state, lines)
		return nil
	case tcell.KeyLeft:
		setAtCursor(state, lines, false)
		return nil
	case tcell.KeyRight:
		setAtCursor(state, lines, true)
		return nil
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return errQuit
		case 'r', 'R':
			reload(ctx, state, opts)
			return nil
		case ' ':
			toggleAtCursor(state, lines)
			return nil
		case 'e', 'E':
			state.view = state.view.Toggled()
			return nil
		case 'h':
			setAtCursor(state, lines, false)
			return nil
		case 'l':
			setAtCursor(state, lines, true)
			return nil
		case '/':
			state.inputMode = true
			state.searchBuf = state.search
			return nil
		case 'n', 'N':
			if len(state.matches) > 0 {
				if ev.Rune() == 'n' {
					state.matchIdx = (state.matchIdx + 1) % len(state.matches)
				} else {
					state.matchIdx = (state.matchIdx - 1 + len(state.matches)) % len(state.matches)
				}
				state.list.selected = state.matches[state.matchIdx]
				state.list.ensureVisible(viewH, len(lines))
				state.cursorKey = keyAt(lines, state.list.selected)
			}
			return nil
		}
	}

	applyListNavigation(&state.list, len(lines), viewH, ev)
	state.cursorKey = keyAt(lines, state.list.selected)
	return nil
}

func toggleAtCursor(state *uiState, lines []line) {
	ln, ok := lineAt(lines, state.list.selected)
	if !ok || !ln.header {
		return
	}
	state.view = state.view.WithToggle(ln.node)
	state.cursorKey = ln.node.Key
}

func setAtCursor(state *uiState, lines []line, open bool) {
	ln, ok := lineAt(lines, state.list.selected)
	if !ok || !ln.header || ln.open == open {
		return
	}
	state.view = state.view.WithToggle(ln.node)
	state.cursorKey = ln.node.Key
}

func lineAt(lines []line, idx int) (line, bool) {
	if idx < 0 || idx >= len(lines) {
		return line{}, false
	}
	return lines[idx], true
}

func keyAt(lines []line, idx int) string {
	ln, ok := lineAt(lines, idx)
	if !ok || ln.node == nil {
		return ""
	}
	return ln.node.Key
}

// buildLines lays out the visible rows at the given width. Leaf text is
// split and wrapped; headers are truncated at draw time.
func buildLines(state *uiState, width int) []line {
	if state.doc.Empty() {
		return nil
	}
	glyph := spinnerFrames[state.spinnerTick%len(spinnerFrames)]
	var out []line
	for _, row := range state.view.Rows(state.doc) {
		indent := strings.Repeat("  ", row.Level)
		if row.Node.Leaf {
			for _, wrapped := range wrapText(row.Node.Text, max(1, width-displayWidth(indent))) {
				out = append(out, line{text: indent + wrapped, node: row.Node, level: row.Level})
			}
			continue
		}
		marker := render.MarkerClosed
		if row.Open {
			marker = render.MarkerOpen
		}
		text := indent + marker + " " + render.HeaderText(row.Node, render.PlainStyler{}, glyph)
		out = append(out, line{text: text, node: row.Node, level: row.Level, header: true, open: row.Open})
	}
	return out
}

func treeRect(w, h int) rect {
	return rect{y: 0, x: 0, h: max(1, h-1), w: w}
}

func draw(screen tcell.Screen, state *uiState, opts Options) {
	screen.Clear()
	w, h := screen.Size()
	box := treeRect(w, h)
	innerW := max(0, box.w-2)
	viewH := max(0, box.h-2)

	lines := buildLines(state, innerW)
	restoreCursor(state, lines)
	state.list.clamp(len(lines))
	state.list.ensureVisible(viewH, len(lines))

	filter := state.search
	if state.inputMode {
		filter = state.searchBuf
	}
	title := "Call frames"
	if opts.Source != "" {
		title = title + ": " + opts.Source
	}
	drawBox(screen, box, title, true, filter)

	matchKey := fmt.Sprintf("%d|%s|%d", len(lines), state.search, innerW)
	if matchKey != state.matchKey {
		state.matchKey = matchKey
		state.matches = findMatches(lines, state.search)
		state.matchIdx = clamp(state.matchIdx, 0, max(0, len(state.matches)-1))
	}

	if state.doc.Empty() {
		placeholder := state.doc.Placeholder
		if placeholder == "" {
			placeholder = render.WaitingPlaceholder
		}
		if state.loadError != nil && len(state.frames) == 0 {
			placeholder = fmt.Sprintf("Load error: %v", state.loadError)
		}
		drawTree(screen, box, []line{{text: placeholder}}, listState{selected: -1}, nil)
	} else {
		drawTree(screen, box, lines, state.list, matchSet(state.matches))
	}

	drawStatus(screen, statusText(state, opts), rightLabel(state, opts), state.loadError != nil)
	screen.Show()
}

// restoreCursor keeps the cursor on the same node across reloads and toggles.
func restoreCursor(state *uiState, lines []line) {
	if state.cursorKey == "" {
		return
	}
	if keyAt(lines, state.list.selected) == state.cursorKey {
		return
	}
	for i, ln := range lines {
		if ln.node != nil && ln.node.Key == state.cursorKey {
			state.list.selected = i
			return
		}
	}
}

func statusText(state *uiState, opts Options) string {
	if state.inputMode {
		return "Type to search. Enter: apply  Esc: cancel"
	}
	if state.loadError != nil {
		return fmt.Sprintf("Load error: %v", state.loadError)
	}
	toggle := "e: expand all"
	if state.view.ExpandAll {
		toggle = "e: collapse all"
	}
	status := "Up/Down: move  Enter/Space: toggle  " + toggle + "  /: search  r: reload  q: quit"
	if state.search != "" && len(state.matches) > 0 {
		status = status + fmt.Sprintf("  n/N: next/prev (%d/%d)", state.matchIdx+1, len(state.matches))
	}
	return status
}

func rightLabel(state *uiState, opts Options) string {
	parts := []string{fmt.Sprintf("%d frames", len(state.frames))}
	if state.unreachable > 0 {
		parts = append(parts, fmt.Sprintf("%d unreachable", state.unreachable))
	}
	if state.skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", state.skipped))
	}
	if opts.Follow {
		parts = append(parts, "following")
	}
	parts = append(parts, versionLabel(opts.Version))
	return " " + strings.Join(parts, "  ") + " "
}

func findMatches(lines []line, needle string) []int {
	n := strings.ToLower(strings.TrimSpace(needle))
	if n == "" {
		return nil
	}
	out := make([]int, 0, len(lines))
	for i, ln := range lines {
		if strings.Contains(strings.ToLower(ln.text), n) {
			out = append(out, i)
		}
	}
	return out
}

func matchSet(matches []int) map[int]bool {
	if len(matches) == 0 {
		return nil
	}
	out := make(map[int]bool, len(matches))
	for _, idx := range matches {
		out[idx] = true
	}
	return out
}

func applyListNavigation(state *listState, nItems int, viewH int, ev *tcell.EventKey) {
	if nItems <= 0 {
		state.selected = 0
		state.scroll = 0
		return
	}
	switch ev.Key() {
	case tcell.KeyUp:
		state.selected = clamp(state.selected-1, 0, nItems-1)
	case tcell.KeyDown:
		state.selected = clamp(state.selected+1, 0, nItems-1)
	case tcell.KeyPgUp:
		state.selected = clamp(state.selected-max(1, viewH), 0, nItems-1)
	case tcell.KeyPgDn:
		state.selected = clamp(state.selected+max(1, viewH), 0, nItems-1)
	case tcell.KeyHome:
		state.selected = 0
	case tcell.KeyEnd:
		state.selected = nItems - 1
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'k', 'K':
			state.selected = clamp(state.selected-1, 0, nItems-1)
		case 'j', 'J':
			state.selected = clamp(state.selected+1, 0, nItems-1)
		case 'g':
			state.selected = 0
		case 'G':
			state.selected = nItems - 1
		default:
			return
		}
	default:
		return
	}
	state.ensureVisible(viewH, nItems)
}

func (s *listState) clamp(nItems int) {
	if nItems <= 0 {
		s.selected = 0
		s.scroll = 0
		return
	}
	s.selected = clamp(s.selected, 0, nItems-1)
	s.scroll = clamp(s.scroll, 0, max(0, nItems-1))
}

func (s *listState) ensureVisible(viewH int, nItems int) {
	if nItems <= 0 || viewH <= 0 {
		s.scroll = 0
		return
	}
	maxScroll := max(0, nItems-viewH)
	if s.selected < s.scroll {
		s.scroll = s.selected
	} else if s.selected >= s.scroll+viewH {
		s.scroll = s.selected - viewH + 1
	}
	s.scroll = clamp(s.scroll, 0, maxScroll)
}

func drawBox(screen tcell.Screen, r rect, title string, focused bool, filter string) {
	if r.w <= 0 || r.h <= 0 {
		return
	}
	borderStyle := tcell.StyleDefault
	if focused {
		borderStyle = borderStyle.Bold(true)
	} else {
		borderStyle = borderStyle.Dim(true)
	}
	for x := r.x + 1; x < r.x+r.w-1; x++ {
		screen.SetContent(x, r.y, tcell.RuneHLine, nil, borderStyle)
		screen.SetContent(x, r.y+r.h-1, tcell.RuneHLine, nil, borderStyle)
	}
	for y := r.y + 1; y < r.y+r.h-1; y++ {
		screen.SetContent(r.x, y, tcell.RuneVLine, nil, borderStyle)
		screen.SetContent(r.x+r.w-1, y, tcell.RuneVLine, nil, borderStyle)
	}
	screen.SetContent(r.x, r.y, tcell.RuneULCorner, nil, borderStyle)
	screen.SetContent(r.x+r.w-1, r.y, tcell.RuneURCorner, nil, borderStyle)
	screen.SetContent(r.x, r.y+r.h-1, tcell.RuneLLCorner, nil, borderStyle)
	screen.SetContent(r.x+r.w-1, r.y+r.h-1, tcell.RuneLRCorner, nil, borderStyle)

	titleStyle := tcell.StyleDefault.Reverse(true).Bold(true)
	title = " " + title + " "
	maxTitleWidth := max(0, r.w-2)
	title = truncate(title, maxTitleWidth)
	titleX := r.x + 1 + max(0, (maxTitleWidth-displayWidth(title))/2)
	writeText(screen, titleX, r.y, title, titleStyle)

	if filter != "" && r.h >= 2 {
		hint := "/" + filter
		writeText(screen, r.x+1, r.y+r.h-1, truncate(hint, r.w-2), borderStyle.Dim(true))
	}
}

func drawTree(screen tcell.Screen, r rect, lines []line, state listState, matches map[int]bool) {
	if r.h < 3 || r.w < 4 {
		return
	}
	innerH := r.h - 2
	innerW := r.w - 2
	for i := 0; i < innerH; i++ {
		y := r.y + 1 + i
		idx := state.scroll + i
		if idx >= len(lines) {
			writeText(screen, r.x+1, y, padRight("", innerW), tcell.StyleDefault)
			continue
		}
		ln := lines[idx]
		style := tcell.StyleDefault
		switch {
		case ln.node != nil && ln.node.Summary != nil:
			style = style.Bold(true)
			if ln.node.Loading() {
				style = style.Foreground(tcell.ColorDodgerBlue)
			}
		case ln.header:
		default:
			style = style.Dim(true)
		}
		if matches[idx] {
			style = style.Underline(true)
		}
		if idx == state.selected {
			style = style.Reverse(true)
		}
		writeText(screen, r.x+1, y, padRight(truncate(ln.text, innerW), innerW), style)
	}
}

func drawStatus(screen tcell.Screen, left string, right string, rightBold bool) {
	w, h := screen.Size()
	if h <= 0 {
		return
	}
	y := h - 1
	bar := padRight(truncate(left, w), w)
	writeText(screen, 0, y, bar, tcell.StyleDefault.Reverse(true))
	if right == "" {
		return
	}
	r := truncate(right, w)
	x := max(0, w-displayWidth(r))
	style := tcell.StyleDefault.Reverse(true)
	if rightBold {
		style = style.Bold(true)
	}
	writeText(screen, x, y, r, style)
}

func writeText(screen tcell.Screen, x, y int, text string, style tcell.Style) {
	offset := 0
	for _, ch := range text {
		width := runewidth.RuneWidth(ch)
		if width == 0 {
			continue
		}
		screen.SetContent(x+offset, y, ch, nil, style)
		offset += width
	}
}

func wrapText(s string, width int) []string {
	if width <= 0 {
		return nil
	}
	if s == "" {
		return []string{""}
	}
	out := []string{}
	for _, ln := range strings.Split(s, "\n") {
		if ln == "" {
			out = append(out, "")
			continue
		}
		var buf strings.Builder
		curWidth := 0
		for _, ch := range ln {
			chWidth := runewidth.RuneWidth(ch)
			if chWidth == 0 {
				buf.WriteRune(ch)
				continue
			}
			if curWidth+chWidth > width && curWidth > 0 {
				out = append(out, buf.String())
				buf.Reset()
				curWidth = 0
			}
			buf.WriteRune(ch)
			curWidth += chWidth
		}
		out = append(out, buf.String())
	}
	return out
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if displayWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "")
}

func padRight(s string, width int) string {
	if displayWidth(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-displayWidth(s))
}

func displayWidth(s string) int {
	return runewidth.StringWidth(s)
}

func versionLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "dev") {
		return "dev"
	}
	if strings.HasPrefix(strings.ToLower(v), "v") {
		return v
	}
	return "v" + v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
