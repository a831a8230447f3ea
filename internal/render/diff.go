package render

import uv "github.com/charmbracelet/ultraviolet"

// Diff returns the cells of next that differ from prev, in row-major order.
// Every cell of next is returned when prev is nil or the dimensions differ,
// which is how a newly attached client gets a complete frame.
func Diff(prev, next *uv.Buffer) []CellWrite {
	w, h := next.Width(), next.Height()
	full := prev == nil || prev.Width() != w || prev.Height() != h

	var out []CellWrite
	for y := range h {
		for x := range w {
			cell := next.CellAt(x, y)
			if cell == nil {
				continue
			}
			if !full && cell.Equal(prev.CellAt(x, y)) {
				continue
			}
			out = append(out, CellWrite{X: x, Y: y, Cell: cell})
		}
	}
	return out
}

// Frame renders a full draw cycle into c: the cells that changed since prev,
// then the cursor. The cursor is hidden while drawing and shown afterwards
// only if visible is set.
func Frame(c *Capture, prev, next *uv.Buffer, cursor uv.Position, visible bool) {
	c.HideCursor()
	c.Draw(Diff(prev, next))
	if visible {
		c.SetCursorPosition(cursor.X, cursor.Y)
		c.ShowCursor()
	}
}
