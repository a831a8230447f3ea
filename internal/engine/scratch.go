package engine

import (
	"fmt"
	"strings"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
)

// Scratch is a line-oriented scratch pad. Text is kept in memory only and
// is lost when the session ends.
type Scratch struct {
	session    string
	lines      [][]rune
	row, col   int // cursor, in runes
	top        int // first visible line
	cols, rows int
}

var _ Engine = (*Scratch)(nil)

func NewScratch(session string) *Scratch {
	return &Scratch{
		session: session,
		lines:   [][]rune{{}},
		cols:    80,
		rows:    24,
	}
}

func (s *Scratch) Resize(cols, rows int) {
	s.cols, s.rows = max(cols, 1), max(rows, 1)
	s.scroll()
}

// Text returns the buffer contents, lines joined by "\n".
func (s *Scratch) Text() string {
	parts := make([]string, len(s.lines))
	for i, l := range s.lines {
		parts[i] = string(l)
	}
	return strings.Join(parts, "\n")
}

// Cursor returns the cursor line and column in runes.
func (s *Scratch) Cursor() (row, col int) {
	return s.row, s.col
}

func (s *Scratch) HandleEvent(ev uv.Event) Action {
	switch e := ev.(type) {
	case uv.KeyPressEvent:
		return s.key(uv.Key(e))
	case uv.PasteEvent:
		s.insert(sanitize(e.Content))
		return Redraw
	case uv.MouseClickEvent:
		if e.Button != uv.MouseLeft || e.Y >= s.textRows() {
			return None
		}
		s.row = min(s.top+e.Y, len(s.lines)-1)
		s.col = min(columnToRune(s.lines[s.row], e.X), len(s.lines[s.row]))
		return Redraw
	case uv.MouseWheelEvent:
		switch e.Button {
		case uv.MouseWheelUp:
			s.move(-3, 0)
		case uv.MouseWheelDown:
			s.move(3, 0)
		default:
			return None
		}
		return Redraw
	}
	return None
}

func (s *Scratch) key(k uv.Key) Action {
	switch {
	case k.MatchString("ctrl+q"):
		return Quit
	case k.Code == uv.KeyEnter:
		s.insert("\n")
	case k.Code == uv.KeyBackspace:
		s.backspace()
	case k.Code == uv.KeyDelete:
		s.deleteForward()
	case k.Code == uv.KeyUp:
		s.move(-1, 0)
	case k.Code == uv.KeyDown:
		s.move(1, 0)
	case k.Code == uv.KeyLeft:
		s.move(0, -1)
	case k.Code == uv.KeyRight:
		s.move(0, 1)
	case k.Code == uv.KeyHome || k.MatchString("ctrl+a"):
		s.col = 0
	case k.Code == uv.KeyEnd || k.MatchString("ctrl+e"):
		s.col = len(s.lines[s.row])
	case k.Code == uv.KeyPgUp:
		s.move(-s.textRows(), 0)
	case k.Code == uv.KeyPgDown:
		s.move(s.textRows(), 0)
	case k.Code == uv.KeyTab && k.Mod == 0:
		s.insert("\t")
	case k.Text != "" && !k.Mod.Contains(uv.ModCtrl) && !k.Mod.Contains(uv.ModAlt):
		s.insert(k.Text)
	default:
		return None
	}
	s.scroll()
	return Redraw
}

// insert places text at the cursor; "\n" splits lines.
func (s *Scratch) insert(text string) {
	for i, part := range strings.Split(text, "\n") {
		if i > 0 {
			line := s.lines[s.row]
			rest := append([]rune(nil), line[s.col:]...)
			s.lines[s.row] = line[:s.col]
			s.lines = append(s.lines[:s.row+1], append([][]rune{rest}, s.lines[s.row+1:]...)...)
			s.row++
			s.col = 0
		}
		if part == "" {
			continue
		}
		r := []rune(part)
		line := s.lines[s.row]
		out := make([]rune, 0, len(line)+len(r))
		out = append(out, line[:s.col]...)
		out = append(out, r...)
		out = append(out, line[s.col:]...)
		s.lines[s.row] = out
		s.col += len(r)
	}
	s.scroll()
}

func (s *Scratch) backspace() {
	switch {
	case s.col > 0:
		line := s.lines[s.row]
		s.lines[s.row] = append(line[:s.col-1], line[s.col:]...)
		s.col--
	case s.row > 0:
		prev := s.lines[s.row-1]
		s.col = len(prev)
		s.lines[s.row-1] = append(prev, s.lines[s.row]...)
		s.lines = append(s.lines[:s.row], s.lines[s.row+1:]...)
		s.row--
	}
}

func (s *Scratch) deleteForward() {
	line := s.lines[s.row]
	switch {
	case s.col < len(line):
		s.lines[s.row] = append(line[:s.col], line[s.col+1:]...)
	case s.row < len(s.lines)-1:
		s.lines[s.row] = append(line, s.lines[s.row+1]...)
		s.lines = append(s.lines[:s.row+1], s.lines[s.row+2:]...)
	}
}

func (s *Scratch) move(drow, dcol int) {
	if dcol < 0 && s.col == 0 && s.row > 0 {
		s.row--
		s.col = len(s.lines[s.row])
		return
	}
	if dcol > 0 && s.col == len(s.lines[s.row]) && s.row < len(s.lines)-1 {
		s.row++
		s.col = 0
		return
	}
	s.row = min(max(s.row+drow, 0), len(s.lines)-1)
	s.col = min(max(s.col+dcol, 0), len(s.lines[s.row]))
	s.scroll()
}

// textRows is the height of the text area; the last row is the status line.
func (s *Scratch) textRows() int {
	return max(s.rows-1, 1)
}

func (s *Scratch) scroll() {
	h := s.textRows()
	if s.row < s.top {
		s.top = s.row
	}
	if s.row >= s.top+h {
		s.top = s.row - h + 1
	}
}

func (s *Scratch) Draw(buf *uv.Buffer) (uv.Position, bool) {
	scr := uv.ScreenBuffer{Buffer: buf, Method: ansi.WcWidth}
	w, h := buf.Width(), buf.Height()
	text := min(s.textRows(), h)

	for y := range text {
		i := s.top + y
		area := uv.Rect(0, y, w, 1)
		if i >= len(s.lines) {
			uv.NewStyledString("~").Draw(scr, area)
			continue
		}
		uv.NewStyledString(expandTabs(string(s.lines[i]))).Draw(scr, area)
	}

	if h > 1 {
		status := fmt.Sprintf(" %s  %dx%d  %d lines  ^Q quit", s.session, s.cols, s.rows, len(s.lines))
		status = ansi.Truncate(status, w, "")
		status += strings.Repeat(" ", max(w-ansi.StringWidth(status), 0))
		uv.NewStyledString(ansi.NewStyle().Reverse(true).Styled(status)).Draw(scr, uv.Rect(0, h-1, w, 1))
	}

	x := ansi.StringWidth(expandTabs(string(s.lines[s.row][:s.col])))
	y := s.row - s.top
	if x >= w || y >= text {
		return uv.Pos(min(x, w-1), min(y, text-1)), false
	}
	return uv.Pos(x, y), true
}

const tabWidth = 4

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col += ansi.StringWidth(string(r))
	}
	return b.String()
}

// columnToRune maps a screen column to a rune index in line.
func columnToRune(line []rune, x int) int {
	col := 0
	for i, r := range line {
		w := ansi.StringWidth(string(r))
		if r == '\t' {
			w = tabWidth - col%tabWidth
		}
		if col+w > x {
			return i
		}
		col += w
	}
	return len(line)
}

// sanitize keeps printable text, tabs and newlines from pasted content.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r >= 0x20 && r != 0x7f {
			return r
		}
		return -1
	}, s)
}
