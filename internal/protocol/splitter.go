package protocol

// LineSplitter reassembles control records from a byte stream that is read
// piecemeal (a byte at a time, or in arbitrary chunks). It is not safe for
// concurrent use.
type LineSplitter struct {
	buf      []byte
	overflow bool // current record exceeded MaxLineSize and is being skipped
}

// Feed appends b. When b completes a record, the record (without the
// delimiter) is returned with ok set. The returned slice is only valid until
// the next call.
func (s *LineSplitter) Feed(b byte) (line []byte, ok bool) {
	if b == Delimiter {
		if s.overflow {
			s.overflow = false
			s.buf = s.buf[:0]
			return nil, false
		}
		line = s.buf
		s.buf = s.buf[:0]
		return line, true
	}
	if s.overflow {
		return nil, false
	}
	if len(s.buf) >= MaxLineSize {
		s.overflow = true
		return nil, false
	}
	s.buf = append(s.buf, b)
	return nil, false
}

// Write appends p and returns every record it completed, in order. Returned
// records are copies owned by the caller.
func (s *LineSplitter) Write(p []byte) [][]byte {
	var lines [][]byte
	for _, b := range p {
		if line, ok := s.Feed(b); ok {
			lines = append(lines, append([]byte(nil), line...))
		}
	}
	return lines
}

// Pending returns the number of buffered bytes of an incomplete record.
func (s *LineSplitter) Pending() int {
	return len(s.buf)
}

// Reset discards any partial record.
func (s *LineSplitter) Reset() {
	s.buf = s.buf[:0]
	s.overflow = false
}
