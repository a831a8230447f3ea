package relay

import (
	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
)

// EncodeMouse returns the SGR (mode 1006) report for ev, or nil if the
// button has no encoding.
func EncodeMouse(ev uv.MouseEvent) []byte {
	m := ev.Mouse()
	var motion, release bool
	switch ev.(type) {
	case uv.MouseMotionEvent:
		motion = true
	case uv.MouseReleaseEvent:
		release = true
	}
	b := ansi.EncodeMouseButton(m.Button, motion,
		m.Mod.Contains(uv.ModShift),
		m.Mod.Contains(uv.ModAlt),
		m.Mod.Contains(uv.ModCtrl))
	if b == 0xff {
		return nil
	}
	return []byte(ansi.MouseSgr(b, m.X, m.Y, release))
}
