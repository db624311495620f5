// Package record defines the data types that flow through the pipeline:
// Command, Bulk, and the tagged Record variant emitted by a Reader and
// consumed by the Mixer.
package record

// ProducerID identifies the Reader that produced a Record. It is assigned
// once per connection and stays stable for the lifetime of that Reader; it
// has no meaning outside the pipeline.
type ProducerID string

// Command is a single parsed input line: the wall-clock second at which it
// was parsed, and its raw payload (never including the trailing newline).
type Command struct {
	Timestamp int64
	Payload   []byte
}

// Bulk is an ordered, non-empty group of commands published as one unit to
// the distributor's subscribers.
type Bulk struct {
	Commands []Command
}

// Kind discriminates the variants of Record.
type Kind int

const (
	// KindCommand carries a single singleton command.
	KindCommand Kind = iota
	// KindBlock carries a complete bracketed block as a Bulk.
	KindBlock
	// KindEof signals that its Producer's Reader has drained and will emit
	// nothing further.
	KindEof
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindBlock:
		return "block"
	case KindEof:
		return "eof"
	default:
		return "unknown"
	}
}

// Record is the tagged variant a Reader emits and the Mixer consumes. Only
// the field matching Kind is meaningful; this is a sum type expressed as a
// struct with a discriminant, not a target for dynamic downcasting.
type Record struct {
	Kind     Kind
	Producer ProducerID

	Command Command // valid when Kind == KindCommand
	Block   Bulk    // valid when Kind == KindBlock
}

// NewCommand builds a KindCommand record.
func NewCommand(p ProducerID, c Command) Record {
	return Record{Kind: KindCommand, Producer: p, Command: c}
}

// NewBlock builds a KindBlock record. Panics if b has no commands; callers
// must never construct an empty block.
func NewBlock(p ProducerID, b Bulk) Record {
	if len(b.Commands) == 0 {
		panic("record: NewBlock called with an empty bulk")
	}
	return Record{Kind: KindBlock, Producer: p, Block: b}
}

// NewEof builds a KindEof record.
func NewEof(p ProducerID) Record {
	return Record{Kind: KindEof, Producer: p}
}
