//go:build unix

package relay

// New returns the readiness-poll loop.
func New(t Terminal, flag *ResizeFlag) Loop {
	return NewPollLoop(t, flag)
}
