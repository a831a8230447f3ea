package protocol

// Control stream framing: one JSON object per line, newline-terminated.
const Delimiter = '\n'

// MaxLineSize bounds a single control record (64 KB). Longer lines are
// rejected by ReadControl and discarded by LineSplitter.
const MaxLineSize = 64 * 1024

// Tag is the externally-tagged variant name that keys every control record.
type Tag string

const (
	// Client -> server
	TagResize Tag = "Resize"
	TagDetach Tag = "Detach"
	TagPing   Tag = "Ping"

	// Server -> client
	TagQuit  Tag = "Quit"
	TagPong  Tag = "Pong"
	TagHello Tag = "Hello"
)
