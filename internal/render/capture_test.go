package render

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
)

func cell(s string, style uv.Style) *uv.Cell {
	return &uv.Cell{Content: s, Width: 1, Style: style}
}

func row(y int, text string, style uv.Style) []CellWrite {
	var out []CellWrite
	for x, r := range []rune(text) {
		out = append(out, CellWrite{X: x, Y: y, Cell: cell(string(r), style)})
	}
	return out
}

func TestSizeTracksDimensions(t *testing.T) {
	c := NewCapture(80, 24)
	if cols, rows := c.Size(); cols != 80 || rows != 24 {
		t.Fatalf("Size() = %dx%d, want 80x24", cols, rows)
	}
	c.Resize(120, 40)
	if cols, rows := c.Size(); cols != 120 || rows != 40 {
		t.Fatalf("Size() = %dx%d, want 120x40", cols, rows)
	}
	if len(c.Buffer()) != 0 {
		t.Fatalf("Resize emitted bytes: %q", c.Buffer())
	}
	_, _, w, h := c.WindowSize()
	if w != 120*8 || h != 40*16 {
		t.Fatalf("WindowSize pixels = %dx%d", w, h)
	}
}

func TestDrawPlainText(t *testing.T) {
	c := NewCapture(80, 24)
	c.Draw(row(0, "Hello", uv.Style{}))
	if got, want := string(c.TakeBuffer()), "\x1b[HHello"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDrawAdjacentCellsPositionOnce(t *testing.T) {
	c := NewCapture(80, 24)
	cells := row(3, "adjacent cells", uv.Style{})
	for i := range cells {
		cells[i].X += 10
	}
	c.Draw(cells)
	out := string(c.TakeBuffer())
	if n := strings.Count(out, "H"); n != 1 {
		t.Fatalf("expected exactly one CUP, got %d in %q", n, out)
	}
	if !strings.HasPrefix(out, "\x1b[4;11H") {
		t.Fatalf("expected initial CUP to row 4 col 11, got %q", out)
	}
}

func TestDrawGapRepositions(t *testing.T) {
	c := NewCapture(80, 24)
	c.Draw([]CellWrite{
		{X: 0, Y: 0, Cell: cell("a", uv.Style{})},
		{X: 5, Y: 2, Cell: cell("b", uv.Style{})},
		{X: 6, Y: 2, Cell: cell("c", uv.Style{})},
		{X: 0, Y: 3, Cell: cell("d", uv.Style{})},
	})
	want := "\x1b[Ha\x1b[3;6Hbc\x1b[4;1Hd"
	if got := string(c.TakeBuffer()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if pos := c.CursorPosition(); pos != uv.Pos(0, 3) {
		t.Fatalf("cursor = %v, want (0,3)", pos)
	}
}

func TestDrawWideCellSkipsContinuation(t *testing.T) {
	c := NewCapture(80, 24)
	c.Draw([]CellWrite{
		{X: 0, Y: 0, Cell: &uv.Cell{Content: "世", Width: 2}},
		{X: 1, Y: 0, Cell: &uv.Cell{}},
		{X: 2, Y: 0, Cell: cell("x", uv.Style{})},
	})
	if got, want := string(c.TakeBuffer()), "\x1b[H世x"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStyleOnlyEmittedOnChange(t *testing.T) {
	c := NewCapture(80, 24)
	bold := uv.Style{Attrs: uv.AttrBold}
	c.Draw(row(0, "ab", bold))
	if got, want := string(c.TakeBuffer()), "\x1b[H\x1b[1mab"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAttributeRemovalResets(t *testing.T) {
	tests := []struct {
		name     string
		from, to uv.Style
		wantSGR  string
	}{
		{"bold removed", uv.Style{Attrs: uv.AttrBold}, uv.Style{}, "\x1b[0m"},
		{"bold removed italic kept",
			uv.Style{Attrs: uv.AttrBold | uv.AttrItalic},
			uv.Style{Attrs: uv.AttrItalic}, "\x1b[0;3m"},
		{"underline removed colors kept",
			uv.Style{Underline: uv.UnderlineSingle, Fg: ansi.Red},
			uv.Style{Fg: ansi.Red}, "\x1b[0;31m"},
		{"reverse removed strike kept bg kept",
			uv.Style{Attrs: uv.AttrReverse | uv.AttrStrikethrough, Bg: ansi.Blue},
			uv.Style{Attrs: uv.AttrStrikethrough, Bg: ansi.Blue}, "\x1b[0;9;44m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCapture(80, 24)
			c.Draw([]CellWrite{{X: 0, Y: 0, Cell: cell("a", tt.from)}})
			c.ClearBuffer()
			c.Draw([]CellWrite{{X: 1, Y: 0, Cell: cell("b", tt.to)}})
			got := string(c.TakeBuffer())
			// Positioning is fresh per Draw call.
			want := "\x1b[1;2H" + tt.wantSGR + "b"
			if got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}

func TestAttributeOrder(t *testing.T) {
	all := uv.Style{
		Attrs: uv.AttrBold | uv.AttrFaint | uv.AttrItalic | uv.AttrBlink |
			uv.AttrRapidBlink | uv.AttrReverse | uv.AttrConceal | uv.AttrStrikethrough,
		Underline: uv.UnderlineSingle,
		Fg:        ansi.Green,
		Bg:        ansi.BrightWhite,
	}
	c := NewCapture(80, 24)
	c.Draw([]CellWrite{{X: 0, Y: 0, Cell: cell("z", all)}})
	want := "\x1b[H\x1b[1;2;3;4;5;6;7;8;9;32;107mz"
	if got := string(c.TakeBuffer()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestColorEncodings(t *testing.T) {
	tests := []struct {
		name  string
		style uv.Style
		want  string
	}{
		{"basic fg", uv.Style{Fg: ansi.Red}, "31"},
		{"bright fg", uv.Style{Fg: ansi.BrightRed}, "91"},
		{"basic bg", uv.Style{Bg: ansi.Cyan}, "46"},
		{"bright bg", uv.Style{Bg: ansi.BrightBlack}, "100"},
		{"indexed fg", uv.Style{Fg: ansi.IndexedColor(200)}, "38;5;200"},
		{"indexed bg", uv.Style{Bg: ansi.IndexedColor(17)}, "48;5;17"},
		{"rgb fg", uv.Style{Fg: color.RGBA{R: 1, G: 2, B: 3, A: 255}}, "38;2;1;2;3"},
		{"rgb bg", uv.Style{Bg: color.RGBA{R: 255, G: 128, B: 0, A: 255}}, "48;2;255;128;0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCapture(80, 24)
			c.Draw([]CellWrite{{X: 0, Y: 0, Cell: cell("c", tt.style)}})
			want := "\x1b[H\x1b[" + tt.want + "mc"
			if got := string(c.TakeBuffer()); got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		})
	}
}

func TestColorBackToDefault(t *testing.T) {
	c := NewCapture(80, 24)
	c.Draw([]CellWrite{
		{X: 0, Y: 0, Cell: cell("a", uv.Style{Fg: ansi.Red, Bg: ansi.Blue})},
		{X: 1, Y: 0, Cell: cell("b", uv.Style{})},
	})
	want := "\x1b[H\x1b[31;44ma\x1b[39;49mb"
	if got := string(c.TakeBuffer()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResetStyleStateReemits(t *testing.T) {
	c := NewCapture(80, 24)
	red := uv.Style{Fg: ansi.Red, Attrs: uv.AttrBold}
	c.Draw(row(0, "a", red))
	c.ClearBuffer()

	c.Draw(row(0, "a", red))
	if got := string(c.TakeBuffer()); got != "\x1b[Ha" {
		t.Fatalf("style should not be re-emitted before reset, got %q", got)
	}

	c.ResetStyleState()
	c.Draw(row(0, "a", red))
	if got, want := string(c.TakeBuffer()), "\x1b[H\x1b[0;1;31ma"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResetStyleStateResetsBeforeDefaultCell(t *testing.T) {
	c := NewCapture(80, 24)
	c.Draw(row(5, "status", uv.Style{Attrs: uv.AttrReverse}))
	c.ClearBuffer()

	// The terminal still has reverse video active; a default cell drawn
	// after the reset must turn it off.
	c.ResetStyleState()
	c.Draw(row(0, "text", uv.Style{}))
	if got, want := string(c.TakeBuffer()), "\x1b[H\x1b[0mtext"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	// Once emitted, the state is known again.
	c.Draw(row(1, "more", uv.Style{}))
	if got, want := string(c.TakeBuffer()), "\x1b[2;1Hmore"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCursorVisibilityEmitsSequences(t *testing.T) {
	c := NewCapture(80, 24)
	c.HideCursor()
	if got := string(c.TakeBuffer()); got != "\x1b[?25l" {
		t.Fatalf("hide: got %q", got)
	}
	if c.CursorVisible() {
		t.Fatal("cursor should be hidden")
	}
	c.ShowCursor()
	if got := string(c.TakeBuffer()); got != "\x1b[?25h" {
		t.Fatalf("show: got %q", got)
	}
}

func TestCursorVisibilityNeverSuppressed(t *testing.T) {
	c := NewCapture(80, 24)
	c.HideCursor()
	c.ClearBuffer()
	c.HideCursor()
	if got := string(c.TakeBuffer()); got != "\x1b[?25l" {
		t.Fatalf("second hide was suppressed: %q", got)
	}

	c.HideCursor()
	c.HideCursor()
	if got := string(c.TakeBuffer()); got != "\x1b[?25l\x1b[?25l" {
		t.Fatalf("expected two hide sequences, got %q", got)
	}
}

func TestSetCursorPosition(t *testing.T) {
	c := NewCapture(80, 24)
	c.SetCursorPosition(9, 4)
	if got := string(c.TakeBuffer()); got != "\x1b[5;10H" {
		t.Fatalf("got %q", got)
	}
	if pos := c.CursorPosition(); pos != uv.Pos(9, 4) {
		t.Fatalf("cursor = %v", pos)
	}
}

func TestClear(t *testing.T) {
	c := NewCapture(80, 24)
	c.SetCursorPosition(3, 3)
	c.ClearBuffer()
	c.Clear()
	if got := string(c.TakeBuffer()); got != "\x1b[2J\x1b[H" {
		t.Fatalf("got %q", got)
	}
	if pos := c.CursorPosition(); pos != uv.Pos(0, 0) {
		t.Fatalf("cursor not homed: %v", pos)
	}
}

func TestClearRegion(t *testing.T) {
	tests := []struct {
		kind ClearType
		want string
	}{
		{ClearAll, "\x1b[2J"},
		{ClearAfterCursor, "\x1b[J"},
		{ClearBeforeCursor, "\x1b[1J"},
		{ClearCurrentLine, "\x1b[2K"},
		{ClearUntilNewLine, "\x1b[K"},
	}
	for _, tt := range tests {
		c := NewCapture(80, 24)
		c.ClearRegion(tt.kind)
		if got := string(c.TakeBuffer()); got != tt.want {
			t.Fatalf("ClearRegion(%d) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestAppendLines(t *testing.T) {
	c := NewCapture(80, 24)
	c.AppendLines(3)
	if got := string(c.TakeBuffer()); got != "\x1b[S\x1b[S\x1b[S" {
		t.Fatalf("got %q", got)
	}
	c.AppendLines(0)
	if len(c.Buffer()) != 0 {
		t.Fatal("AppendLines(0) emitted bytes")
	}
}

func TestTakeBufferEmpties(t *testing.T) {
	c := NewCapture(80, 24)
	c.Clear()
	first := c.TakeBuffer()
	if len(first) == 0 {
		t.Fatal("first TakeBuffer should return data")
	}
	if second := c.TakeBuffer(); len(second) != 0 {
		t.Fatalf("second TakeBuffer should be empty, got %q", second)
	}
	// The first slice must not be clobbered by later writes.
	c.AppendLines(5)
	if string(first) != "\x1b[2J\x1b[H" {
		t.Fatalf("taken buffer was modified: %q", first)
	}
}

func TestBufferPeekDoesNotConsume(t *testing.T) {
	c := NewCapture(80, 24)
	c.ShowCursor()
	if !bytes.Equal(c.Buffer(), c.Buffer()) || len(c.Buffer()) == 0 {
		t.Fatal("Buffer should peek")
	}
	c.ClearBuffer()
	if len(c.TakeBuffer()) != 0 {
		t.Fatal("ClearBuffer should discard")
	}
}

func TestSetupTeardownSequences(t *testing.T) {
	setup := string(SetupSequences())
	wantSetup := "\x1b[?1049h\x1b[?1000h\x1b[?1002h\x1b[?1003h\x1b[?1006h\x1b[?1004h\x1b[?2004h\x1b[?25l"
	if setup != wantSetup {
		t.Fatalf("setup = %q, want %q", setup, wantSetup)
	}

	teardown := string(TeardownSequences())
	wantTeardown := "\x1b[?25h\x1b[?2004l\x1b[?1004l\x1b[?1006l\x1b[?1003l\x1b[?1002l\x1b[?1000l\x1b[0m\x1b[?1049l"
	if teardown != wantTeardown {
		t.Fatalf("teardown = %q, want %q", teardown, wantTeardown)
	}
	if !strings.HasSuffix(teardown, "\x1b[0m\x1b[?1049l") {
		t.Fatal("teardown must end with SGR reset then alt-screen exit")
	}
}
