package relay

// escapeState tracks progress through the ~. detach sequence.
type escapeState int

const (
	escMidLine   escapeState = iota
	escLineStart             // after \r, \n or at attach
	escTilde                 // saw ~ at line start, holding it back
)

// EscapeFilter recognizes the ~. detach sequence in local input, the way
// ssh does. A ~ at the start of a line is held back until the next byte
// shows whether it starts an escape: ~. detaches, ~~ sends one ~, anything
// else sends the held ~ followed by that byte.
type EscapeFilter struct {
	state escapeState
}

// NewEscapeFilter returns a filter at line start so ~. works right after
// attaching.
func NewEscapeFilter() *EscapeFilter {
	return &EscapeFilter{state: escLineStart}
}

// Filter appends the bytes of src that should be forwarded to dst and
// returns the extended slice. When detach is true the user typed ~.; bytes
// before the sequence are in the result, the rest of src is dropped.
func (e *EscapeFilter) Filter(dst, src []byte) (out []byte, detach bool) {
	for _, b := range src {
		newline := b == '\r' || b == '\n'

		switch e.state {
		case escMidLine:
			if newline {
				e.state = escLineStart
			}
			dst = append(dst, b)

		case escLineStart:
			switch {
			case b == '~':
				e.state = escTilde
			case newline:
				dst = append(dst, b)
			default:
				e.state = escMidLine
				dst = append(dst, b)
			}

		case escTilde:
			switch {
			case b == '.':
				e.state = escLineStart
				return dst, true
			case b == '~':
				e.state = escMidLine
				dst = append(dst, '~')
			case newline:
				e.state = escLineStart
				dst = append(dst, '~', b)
			default:
				e.state = escMidLine
				dst = append(dst, '~', b)
			}
		}
	}
	return dst, false
}

// Reset returns the filter to line start.
func (e *EscapeFilter) Reset() {
	e.state = escLineStart
}
