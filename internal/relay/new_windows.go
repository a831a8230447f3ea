//go:build windows

package relay

// New returns the event-poll loop over the console input queue.
func New(t Terminal, flag *ResizeFlag) Loop {
	return NewEventLoop(t, flag, nil)
}
