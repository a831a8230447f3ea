// Package render turns drawn frames into ANSI byte streams for attached
// clients.
//
// A Capture stands in for a real terminal: the server draws into it and
// ships whatever bytes it accumulated over the client's data stream.
package render

import (
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
)

// Pixel dimensions reported per cell by WindowSize.
const (
	cellWidthPx  = 8
	cellHeightPx = 16
)

const initialBufferSize = 16 * 1024

// ClearType selects the region erased by ClearRegion.
type ClearType int

const (
	ClearAll ClearType = iota
	ClearAfterCursor
	ClearBeforeCursor
	ClearCurrentLine
	ClearUntilNewLine
)

// CellWrite is one cell of a frame at a zero-based column and row.
type CellWrite struct {
	X, Y int
	Cell *uv.Cell
}

// modifier is the renderer's view of text attributes. Underline is folded in
// with the uv.Style attribute bits so that removal of any of them is detected
// the same way.
type modifier uint16

const (
	modBold modifier = 1 << iota
	modFaint
	modItalic
	modUnderline
	modBlink
	modRapidBlink
	modReverse
	modConceal
	modStrikethrough
)

// Capture accumulates the escape sequences that reproduce drawn frames.
// It is not safe for concurrent use.
type Capture struct {
	buf []byte

	cols, rows    int
	cursor        uv.Position
	cursorVisible bool

	fg, bg, ulColor color.Color
	mods            modifier
	underline       uv.Underline
	// styleKnown is false when the receiving terminal's SGR state cannot be
	// inferred from what this Capture emitted.
	styleKnown bool
}

// NewCapture returns a Capture reporting the given dimensions.
func NewCapture(cols, rows int) *Capture {
	return &Capture{
		buf:           make([]byte, 0, initialBufferSize),
		cols:          cols,
		rows:          rows,
		cursorVisible: true,
		styleKnown:    true,
	}
}

// Draw appends the bytes for cells, which are expected in screen order.
// A cursor move is emitted only when a cell does not directly follow the
// previous one on the same row.
func (c *Capture) Draw(cells []CellWrite) {
	first := true
	var lastX, lastY int

	for _, w := range cells {
		if w.Cell == nil || w.Cell.Width == 0 {
			// Continuation of a wide grapheme: the terminal already
			// advanced past it.
			continue
		}
		if first || w.Y != lastY || w.X != lastX+1 {
			c.moveTo(w.X, w.Y)
		}
		c.writeStyle(&w.Cell.Style)

		content := w.Cell.Content
		if content == "" {
			content = " "
		}
		c.buf = append(c.buf, content...)

		// A wide grapheme occupies Width columns; the next adjacent cell
		// starts after it.
		lastX, lastY = w.X+w.Cell.Width-1, w.Y
		first = false
	}
}

func (c *Capture) moveTo(x, y int) {
	c.buf = append(c.buf, ansi.CursorPosition(x+1, y+1)...)
	c.cursor = uv.Pos(x, y)
}

func (c *Capture) writeStyle(s *uv.Style) {
	want := modifiersOf(s)
	var sgr ansi.Style

	if !c.styleKnown || c.mods&^want != 0 {
		sgr = sgr.Reset()
		c.fg, c.bg, c.ulColor = nil, nil, nil
		c.mods = 0
		c.underline = uv.UnderlineNone
	}

	added := want &^ c.mods
	if added&modBold != 0 {
		sgr = sgr.Bold()
	}
	if added&modFaint != 0 {
		sgr = sgr.Faint()
	}
	if added&modItalic != 0 {
		sgr = sgr.Italic(true)
	}
	if want&modUnderline != 0 && s.Underline != c.underline {
		if s.Underline == uv.UnderlineSingle {
			sgr = sgr.Underline(true)
		} else {
			sgr = sgr.UnderlineStyle(s.Underline)
		}
	}
	if added&modBlink != 0 {
		sgr = sgr.Blink(true)
	}
	if added&modRapidBlink != 0 {
		sgr = sgr.RapidBlink(true)
	}
	if added&modReverse != 0 {
		sgr = sgr.Reverse(true)
	}
	if added&modConceal != 0 {
		sgr = sgr.Conceal(true)
	}
	if added&modStrikethrough != 0 {
		sgr = sgr.Strikethrough(true)
	}

	if s.Fg != c.fg {
		sgr = sgr.ForegroundColor(s.Fg)
	}
	if s.Bg != c.bg {
		sgr = sgr.BackgroundColor(s.Bg)
	}
	if s.UnderlineColor != c.ulColor {
		sgr = sgr.UnderlineColor(s.UnderlineColor)
	}

	// An empty ansi.Style renders as a reset, so only write when something
	// actually changed.
	if len(sgr) > 0 {
		c.buf = append(c.buf, sgr.String()...)
	}

	c.fg, c.bg, c.ulColor = s.Fg, s.Bg, s.UnderlineColor
	c.mods = want
	c.underline = s.Underline
	c.styleKnown = true
}

func modifiersOf(s *uv.Style) modifier {
	var m modifier
	for _, p := range [...]struct {
		attr uint8
		mod  modifier
	}{
		{uv.AttrBold, modBold},
		{uv.AttrFaint, modFaint},
		{uv.AttrItalic, modItalic},
		{uv.AttrBlink, modBlink},
		{uv.AttrRapidBlink, modRapidBlink},
		{uv.AttrReverse, modReverse},
		{uv.AttrConceal, modConceal},
		{uv.AttrStrikethrough, modStrikethrough},
	} {
		if s.Attrs&p.attr != 0 {
			m |= p.mod
		}
	}
	if s.Underline != uv.UnderlineNone {
		m |= modUnderline
	}
	return m
}

// HideCursor always emits the hide sequence, even if the cursor is already
// hidden: a client that attached since the last call has never seen it.
func (c *Capture) HideCursor() {
	c.buf = append(c.buf, ansi.HideCursor...)
	c.cursorVisible = false
}

// ShowCursor always emits the show sequence. See HideCursor.
func (c *Capture) ShowCursor() {
	c.buf = append(c.buf, ansi.ShowCursor...)
	c.cursorVisible = true
}

func (c *Capture) CursorVisible() bool { return c.cursorVisible }

// CursorPosition returns the last position the Capture moved the cursor to.
func (c *Capture) CursorPosition() uv.Position { return c.cursor }

// SetCursorPosition emits an absolute cursor move to the zero-based (x, y).
func (c *Capture) SetCursorPosition(x, y int) {
	c.moveTo(x, y)
}

// Clear erases the whole screen and homes the cursor.
func (c *Capture) Clear() {
	c.buf = append(c.buf, ansi.EraseEntireScreen...)
	c.buf = append(c.buf, ansi.CursorHomePosition...)
	c.cursor = uv.Pos(0, 0)
}

func (c *Capture) ClearRegion(kind ClearType) {
	switch kind {
	case ClearAll:
		c.buf = append(c.buf, ansi.EraseEntireScreen...)
	case ClearAfterCursor:
		c.buf = append(c.buf, ansi.EraseScreenBelow...)
	case ClearBeforeCursor:
		c.buf = append(c.buf, ansi.EraseScreenAbove...)
	case ClearCurrentLine:
		c.buf = append(c.buf, ansi.EraseEntireLine...)
	case ClearUntilNewLine:
		c.buf = append(c.buf, ansi.EraseLineRight...)
	}
}

// AppendLines scrolls the screen up by n lines, one SU per line.
func (c *Capture) AppendLines(n int) {
	for range n {
		c.buf = append(c.buf, ansi.ScrollUp(1)...)
	}
}

// Resize changes the reported dimensions. No escapes are emitted.
func (c *Capture) Resize(cols, rows int) {
	c.cols, c.rows = cols, rows
}

func (c *Capture) Size() (cols, rows int) {
	return c.cols, c.rows
}

// WindowSize reports the dimensions in cells and a nominal pixel size.
func (c *Capture) WindowSize() (cols, rows, widthPx, heightPx int) {
	return c.cols, c.rows, c.cols * cellWidthPx, c.rows * cellHeightPx
}

// TakeBuffer returns the accumulated bytes and empties the Capture. The
// returned slice is owned by the caller.
func (c *Capture) TakeBuffer() []byte {
	out := c.buf
	c.buf = make([]byte, 0, initialBufferSize)
	return out
}

// Buffer returns the accumulated bytes without consuming them.
func (c *Capture) Buffer() []byte { return c.buf }

// ClearBuffer discards the accumulated bytes.
func (c *Capture) ClearBuffer() { c.buf = c.buf[:0] }

// ResetStyleState forgets the last emitted style so the next Draw starts
// with an SGR reset and writes complete styling, even for a default cell.
// Call it whenever the receiving terminal's state is unknown, e.g. on
// attach or after a clear.
func (c *Capture) ResetStyleState() {
	c.fg, c.bg, c.ulColor = nil, nil, nil
	c.mods = 0
	c.underline = uv.UnderlineNone
	c.styleKnown = false
}
