package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrMalformed      = errors.New("malformed control message")
	ErrLineTooLong    = errors.New("control line exceeds maximum size")
)

// --- Message types ---

// Resize reports the client terminal's new dimensions.
type Resize struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// Detach tells the server the client is leaving. The server keeps running.
type Detach struct{}

// Ping asks the server for a Pong.
type Ping struct{}

// Quit tells the client the server is terminating. The client must exit.
type Quit struct {
	Reason string `json:"reason"`
}

type Pong struct{}

// Hello is informational and sent once per attach. Clients are free to
// ignore it.
type Hello struct {
	Session string `json:"session"`
	Version string `json:"version"`
}

// --- Encoding ---

// Encode returns the wire form of msg including the trailing newline.
// Unit variants encode as {"Tag":null}.
func Encode(msg any) ([]byte, error) {
	var tag Tag
	var body any

	switch m := msg.(type) {
	case *Resize:
		tag, body = TagResize, m
	case *Detach:
		tag = TagDetach
	case *Ping:
		tag = TagPing
	case *Quit:
		tag, body = TagQuit, m
	case *Pong:
		tag = TagPong
	case *Hello:
		tag, body = TagHello, m
	default:
		return nil, fmt.Errorf("unsupported message type: %T", msg)
	}

	line, err := json.Marshal(map[Tag]any{tag: body})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}
	if len(line)+1 > MaxLineSize {
		return nil, ErrLineTooLong
	}
	return append(line, Delimiter), nil
}

// WriteControl encodes msg and writes it to w as a single Write call, so
// concurrent writers on a stream-oriented socket never interleave records.
func WriteControl(w io.Writer, msg any) error {
	line, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}

// --- Decoding ---

// ReadControl reads one newline-terminated record from r and decodes it.
//
// Decode failures are returned wrapped in ErrMalformed or ErrUnknownMessage
// and leave r positioned at the next record, so callers can log and
// continue. I/O errors (including io.EOF) are returned unwrapped.
func ReadControl(r *bufio.Reader) (any, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > MaxLineSize {
			// Drain the remainder of the oversized record.
			for isPrefix {
				if _, isPrefix, err = r.ReadLine(); err != nil {
					return nil, err
				}
			}
			return nil, ErrLineTooLong
		}
		if !isPrefix {
			break
		}
	}
	return Decode(line)
}

// Decode parses a single control record. Trailing whitespace (including the
// delimiter) is ignored. Both {"Tag":null} and the bare string "Tag" are
// accepted for unit variants.
func Decode(line []byte) (any, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrMalformed)
	}

	if line[0] == '"' {
		var tag Tag
		if err := json.Unmarshal(line, &tag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return decodeUnit(tag)
	}

	var envelope map[Tag]json.RawMessage
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("%w: expected one tag, got %d", ErrMalformed, len(envelope))
	}

	var tag Tag
	var body json.RawMessage
	for tag, body = range envelope {
	}
	return decodeBody(tag, body)
}

func decodeUnit(tag Tag) (any, error) {
	switch tag {
	case TagDetach:
		return &Detach{}, nil
	case TagPing:
		return &Ping{}, nil
	case TagPong:
		return &Pong{}, nil
	case TagResize, TagQuit, TagHello:
		return nil, fmt.Errorf("%w: %s requires a body", ErrMalformed, tag)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
}

func decodeBody(tag Tag, body json.RawMessage) (any, error) {
	var msg any
	switch tag {
	case TagDetach, TagPing, TagPong:
		return decodeUnit(tag)
	case TagResize:
		msg = &Resize{}
	case TagQuit:
		msg = &Quit{}
	case TagHello:
		msg = &Hello{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}

	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, fmt.Errorf("%w: %s requires a body", ErrMalformed, tag)
	}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return msg, nil
}
