package relay

import (
	"testing"

	uv "github.com/charmbracelet/ultraviolet"
)

func TestEncodeMouse(t *testing.T) {
	tests := []struct {
		name string
		ev   uv.MouseEvent
		want string
	}{
		{"left press", uv.MouseClickEvent{X: 5, Y: 3, Button: uv.MouseLeft}, "\x1b[<0;6;4M"},
		{"middle press", uv.MouseClickEvent{Button: uv.MouseMiddle}, "\x1b[<1;1;1M"},
		{"right press", uv.MouseClickEvent{Button: uv.MouseRight}, "\x1b[<2;1;1M"},
		{"left release", uv.MouseReleaseEvent{X: 5, Y: 3, Button: uv.MouseLeft}, "\x1b[<0;6;4m"},
		{"left drag", uv.MouseMotionEvent{X: 1, Y: 1, Button: uv.MouseLeft}, "\x1b[<32;2;2M"},
		{"plain motion", uv.MouseMotionEvent{X: 9, Y: 9, Button: uv.MouseNone}, "\x1b[<35;10;10M"},
		{"wheel up", uv.MouseWheelEvent{Button: uv.MouseWheelUp}, "\x1b[<64;1;1M"},
		{"wheel down", uv.MouseWheelEvent{Button: uv.MouseWheelDown}, "\x1b[<65;1;1M"},
		{"wheel left", uv.MouseWheelEvent{Button: uv.MouseWheelLeft}, "\x1b[<66;1;1M"},
		{"wheel right", uv.MouseWheelEvent{Button: uv.MouseWheelRight}, "\x1b[<67;1;1M"},
		{"shift", uv.MouseClickEvent{Button: uv.MouseLeft, Mod: uv.ModShift}, "\x1b[<4;1;1M"},
		{"alt", uv.MouseClickEvent{Button: uv.MouseLeft, Mod: uv.ModAlt}, "\x1b[<8;1;1M"},
		{"ctrl", uv.MouseClickEvent{Button: uv.MouseLeft, Mod: uv.ModCtrl}, "\x1b[<16;1;1M"},
		{"ctrl wheel", uv.MouseWheelEvent{Button: uv.MouseWheelUp, Mod: uv.ModCtrl}, "\x1b[<80;1;1M"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(EncodeMouse(tt.ev)); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// Reports must decode back to the same event on the server side.
func TestEncodeMouseDecodes(t *testing.T) {
	events := []uv.MouseEvent{
		uv.MouseClickEvent{X: 5, Y: 3, Button: uv.MouseLeft},
		uv.MouseReleaseEvent{X: 0, Y: 7, Button: uv.MouseRight},
		uv.MouseWheelEvent{X: 12, Y: 2, Button: uv.MouseWheelDown},
		uv.MouseMotionEvent{X: 3, Y: 4, Button: uv.MouseLeft},
	}
	var dec uv.EventDecoder
	for _, ev := range events {
		b := EncodeMouse(ev)
		n, got := dec.Decode(b)
		if n != len(b) {
			t.Fatalf("%v: decoded %d of %d bytes", ev, n, len(b))
		}
		me, ok := got.(uv.MouseEvent)
		if !ok {
			t.Fatalf("%v: decoded %T", ev, got)
		}
		if me.Mouse() != ev.Mouse() {
			t.Fatalf("decoded %+v, want %+v", me.Mouse(), ev.Mouse())
		}
	}
}

func TestEncodeMouseInvalidButton(t *testing.T) {
	if got := EncodeMouse(uv.MouseClickEvent{Button: uv.MouseButton(200)}); got != nil {
		t.Fatalf("got %q, want nil", got)
	}
}
