package relay

import (
	"testing"

	uv "github.com/charmbracelet/ultraviolet"
)

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		name string
		key  uv.Key
		want string
	}{
		{"text", uv.Key{Code: 'a', Text: "a"}, "a"},
		{"shifted text", uv.Key{Code: 'a', Text: "A", Mod: uv.ModShift}, "A"},
		{"grapheme", uv.Key{Code: uv.KeyExtended, Text: "é"}, "é"},
		{"space", uv.Key{Code: uv.KeySpace, Text: " "}, " "},
		{"ctrl a", uv.Key{Code: 'a', Mod: uv.ModCtrl}, "\x01"},
		{"ctrl z", uv.Key{Code: 'z', Mod: uv.ModCtrl}, "\x1a"},
		{"ctrl space", uv.Key{Code: uv.KeySpace, Mod: uv.ModCtrl}, "\x00"},
		{"ctrl @", uv.Key{Code: '@', Mod: uv.ModCtrl}, "\x00"},
		{"ctrl backslash", uv.Key{Code: '\\', Mod: uv.ModCtrl}, "\x1c"},
		{"alt x", uv.Key{Code: 'x', Text: "x", Mod: uv.ModAlt}, "\x1bx"},
		{"alt ctrl a", uv.Key{Code: 'a', Mod: uv.ModAlt | uv.ModCtrl}, "\x1b\x01"},
		{"enter", uv.Key{Code: uv.KeyEnter}, "\r"},
		{"tab", uv.Key{Code: uv.KeyTab}, "\t"},
		{"backtab", uv.Key{Code: uv.KeyTab, Mod: uv.ModShift}, "\x1b[Z"},
		{"backspace", uv.Key{Code: uv.KeyBackspace}, "\x7f"},
		{"escape", uv.Key{Code: uv.KeyEscape}, "\x1b"},
		{"alt enter", uv.Key{Code: uv.KeyEnter, Mod: uv.ModAlt}, "\x1b\r"},
		{"up", uv.Key{Code: uv.KeyUp}, "\x1b[A"},
		{"down", uv.Key{Code: uv.KeyDown}, "\x1b[B"},
		{"right", uv.Key{Code: uv.KeyRight}, "\x1b[C"},
		{"left", uv.Key{Code: uv.KeyLeft}, "\x1b[D"},
		{"shift up", uv.Key{Code: uv.KeyUp, Mod: uv.ModShift}, "\x1b[1;2A"},
		{"ctrl left", uv.Key{Code: uv.KeyLeft, Mod: uv.ModCtrl}, "\x1b[1;5D"},
		{"ctrl alt shift right", uv.Key{Code: uv.KeyRight, Mod: uv.ModCtrl | uv.ModAlt | uv.ModShift}, "\x1b[1;8C"},
		{"home", uv.Key{Code: uv.KeyHome}, "\x1b[H"},
		{"end", uv.Key{Code: uv.KeyEnd}, "\x1b[F"},
		{"insert", uv.Key{Code: uv.KeyInsert}, "\x1b[2~"},
		{"delete", uv.Key{Code: uv.KeyDelete}, "\x1b[3~"},
		{"pgup", uv.Key{Code: uv.KeyPgUp}, "\x1b[5~"},
		{"pgdown", uv.Key{Code: uv.KeyPgDown}, "\x1b[6~"},
		{"ctrl delete", uv.Key{Code: uv.KeyDelete, Mod: uv.ModCtrl}, "\x1b[3;5~"},
		{"f1", uv.Key{Code: uv.KeyF1}, "\x1bOP"},
		{"f4", uv.Key{Code: uv.KeyF4}, "\x1bOS"},
		{"shift f1", uv.Key{Code: uv.KeyF1, Mod: uv.ModShift}, "\x1b[1;2P"},
		{"f5", uv.Key{Code: uv.KeyF5}, "\x1b[15~"},
		{"f6", uv.Key{Code: uv.KeyF6}, "\x1b[17~"},
		{"f10", uv.Key{Code: uv.KeyF10}, "\x1b[21~"},
		{"f11", uv.Key{Code: uv.KeyF11}, "\x1b[23~"},
		{"f12", uv.Key{Code: uv.KeyF12}, "\x1b[24~"},
		{"unencodable", uv.Key{Code: uv.KeyF20}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(EncodeKey(tt.key)); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// Encoded legacy keys must decode back to the same key.
func TestEncodeKeyDecodes(t *testing.T) {
	keys := []uv.Key{
		{Code: uv.KeyUp},
		{Code: uv.KeyLeft, Mod: uv.ModCtrl},
		{Code: uv.KeyHome},
		{Code: uv.KeyDelete},
		{Code: uv.KeyF1},
		{Code: uv.KeyF12},
		{Code: uv.KeyEnter},
		{Code: 'c', Mod: uv.ModCtrl},
		{Code: uv.KeyTab, Mod: uv.ModShift},
	}
	var dec uv.EventDecoder
	for _, k := range keys {
		b := EncodeKey(k)
		n, ev := dec.Decode(b)
		if n != len(b) {
			t.Fatalf("%v: decoded %d of %d bytes", k, n, len(b))
		}
		got, ok := ev.(uv.KeyPressEvent)
		if !ok {
			t.Fatalf("%q decoded as %T", b, ev)
		}
		if got.Code != k.Code || got.Mod != k.Mod {
			t.Fatalf("%q decoded as %+v, want %+v", b, got, k)
		}
	}
}
