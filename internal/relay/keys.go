package relay

import (
	"strconv"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/ansi"
)

// csiFinal maps keys encoded as CSI <final> (or CSI 1;<m> <final> when
// modified).
var csiFinal = map[rune]byte{
	uv.KeyUp:    'A',
	uv.KeyDown:  'B',
	uv.KeyRight: 'C',
	uv.KeyLeft:  'D',
	uv.KeyBegin: 'E',
	uv.KeyEnd:   'F',
	uv.KeyHome:  'H',
}

// csiTilde maps keys encoded as CSI <n> ~ (or CSI <n>;<m> ~).
var csiTilde = map[rune]int{
	uv.KeyInsert: 2,
	uv.KeyDelete: 3,
	uv.KeyPgUp:   5,
	uv.KeyPgDown: 6,
	uv.KeyF5:     15,
	uv.KeyF6:     17,
	uv.KeyF7:     18,
	uv.KeyF8:     19,
	uv.KeyF9:     20,
	uv.KeyF10:    21,
	uv.KeyF11:    23,
	uv.KeyF12:    24,
}

// ss3Final maps F1-F4 to SS3 P..S.
var ss3Final = map[rune]byte{
	uv.KeyF1: 'P',
	uv.KeyF2: 'Q',
	uv.KeyF3: 'R',
	uv.KeyF4: 'S',
}

// EncodeKey returns the byte sequence an xterm-compatible terminal would
// send for k, or nil for keys with no legacy encoding.
func EncodeKey(k uv.Key) []byte {
	shift := k.Mod.Contains(uv.ModShift)
	alt := k.Mod.Contains(uv.ModAlt)
	ctrl := k.Mod.Contains(uv.ModCtrl)

	if final, ok := csiFinal[k.Code]; ok {
		if m := modParam(k.Mod); m > 1 {
			return []byte("\x1b[1;" + strconv.Itoa(m) + string(final))
		}
		return []byte{ansi.ESC, '[', final}
	}
	if n, ok := csiTilde[k.Code]; ok {
		s := "\x1b[" + strconv.Itoa(n)
		if m := modParam(k.Mod); m > 1 {
			s += ";" + strconv.Itoa(m)
		}
		return []byte(s + "~")
	}
	if final, ok := ss3Final[k.Code]; ok {
		if m := modParam(k.Mod); m > 1 {
			return []byte("\x1b[1;" + strconv.Itoa(m) + string(final))
		}
		return []byte{ansi.ESC, 'O', final}
	}

	var b []byte
	switch {
	case k.Code == uv.KeyTab && shift:
		return []byte("\x1b[Z")
	case k.Code == uv.KeyEnter:
		b = []byte{ansi.CR}
	case k.Code == uv.KeyTab:
		b = []byte{ansi.HT}
	case k.Code == uv.KeyBackspace:
		b = []byte{ansi.DEL}
	case k.Code == uv.KeyEscape:
		b = []byte{ansi.ESC}
	case ctrl:
		c, ok := ctrlByte(k.Code)
		if !ok {
			return nil
		}
		b = []byte{c}
	case k.Text != "":
		b = []byte(k.Text)
	case k.Code == uv.KeySpace:
		b = []byte{' '}
	case k.Code > 0 && k.Code < uv.KeyExtended:
		b = []byte(string(k.Code))
	default:
		return nil
	}
	if alt {
		b = append([]byte{ansi.ESC}, b...)
	}
	return b
}

// ctrlByte is the C0 control for Ctrl+r.
func ctrlByte(r rune) (byte, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return byte(r-'a') + 0x01, true
	case r >= 'A' && r <= 'Z':
		return byte(r-'A') + 0x01, true
	case r == uv.KeySpace, r == '@', r == '2':
		return ansi.NUL, true
	case r >= '[' && r <= '_':
		return byte(r-'[') + ansi.ESC, true
	}
	return 0, false
}

// modParam is the xterm modifier parameter: 1 + shift + alt*2 + ctrl*4.
func modParam(mod uv.KeyMod) int {
	m := 1
	if mod.Contains(uv.ModShift) {
		m += 1
	}
	if mod.Contains(uv.ModAlt) {
		m += 2
	}
	if mod.Contains(uv.ModCtrl) {
		m += 4
	}
	return m
}
