// Package engine defines what the server drives: something that consumes
// input events and draws frames. Editors plug in here; the package ships a
// small scratch pad so the server can run on its own.
package engine

import (
	uv "github.com/charmbracelet/ultraviolet"
)

// Action tells the server what to do after an event.
type Action int

const (
	None Action = iota
	// Redraw: the next frame differs from the last.
	Redraw
	// Quit: the session is over; the server tells every client and exits.
	Quit
)

func (a Action) String() string {
	switch a {
	case None:
		return "none"
	case Redraw:
		return "redraw"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Engine is the editor side of a session. All methods are called from the
// server's event loop goroutine.
type Engine interface {
	// Resize sets the frame size for subsequent draws.
	Resize(cols, rows int)
	HandleEvent(ev uv.Event) Action
	// Draw renders the current frame into buf, which is already sized, and
	// returns where the cursor should be.
	Draw(buf *uv.Buffer) (cursor uv.Position, visible bool)
}
