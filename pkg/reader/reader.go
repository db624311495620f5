// Package reader implements the per-connection line framer and bracket
// depth state machine described in §4.3: it turns raw byte chunks from one
// TCP connection into Record values for the Mixer.
package reader

import (
	"bytes"
	"context"
	"time"

	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/madmazoku/bulkmixer/pkg/metrics"
	"github.com/madmazoku/bulkmixer/pkg/queue"
	"github.com/madmazoku/bulkmixer/pkg/record"
	"github.com/madmazoku/bulkmixer/pkg/stage"
)

// openBracket and closeBracket are the only two line shapes that change
// Reader state instead of producing a Command; the comparison is
// byte-exact, no whitespace tolerated, per §4.3.
const (
	openBracket  = "{"
	closeBracket = "}"
)

// Reader owns one connection's framer state: residual bytes not yet
// newline-terminated, the bracket nesting depth, and the block of commands
// accumulated while depth > 0. All of it is only ever touched by the
// Reader's single worker, so none of it needs its own lock.
type Reader struct {
	stage    *stage.Stage[[]byte]
	producer record.ProducerID
	out      *queue.Queue[record.Record]
	reg      metrics.Registry
	log      log.CtxLogger
	ctx      context.Context

	residual []byte
	depth    int
	pending  []record.Command
}

// New constructs a Reader for one connection, identified by producer, that
// reads byte chunks from a queue.Queue of the given capacity and writes
// Records to out (the Mixer's input). ctx is used only for logging (e.g.
// carrying the producer id via ctxutil.ContextWithProducerID so every log
// line this Reader emits is attributable to its connection); it is not
// threaded into any blocking call.
func New(capacity int, producer record.ProducerID, out *queue.Queue[record.Record], reg metrics.Registry, logger log.CtxLogger, ctx context.Context) *Reader {
	r := &Reader{producer: producer, out: out, reg: reg, log: logger, ctx: ctx}
	r.stage = stage.New(queue.New[[]byte](capacity), r.process, r.onEnd)
	return r
}

// Input returns the Reader's byte-chunk input queue: the attach point the
// connection's socket-reading loop pushes to.
func (r *Reader) Input() *queue.Queue[[]byte] {
	return r.stage.Input()
}

// Run always spawns exactly one worker: the framer state machine is
// inherently sequential, one chunk at a time, for a single connection.
func (r *Reader) Run() {
	r.stage.Run(1)
}

// Put forwards to the input queue's Put.
func (r *Reader) Put(chunk []byte) error { return r.stage.Put(chunk) }

// Join closes the input queue and waits for the worker to finish, emitting
// the connection's Eof record along the way (see onEnd).
func (r *Reader) Join() error { return r.stage.Join() }

// process appends chunk to residual, then classifies every newline-
// terminated line it can extract.
func (r *Reader) process(_ int, chunk []byte) {
	r.residual = append(r.residual, chunk...)

	for {
		i := bytes.IndexByte(r.residual, '\n')
		if i < 0 {
			return
		}
		line := r.residual[:i]
		r.residual = r.residual[i+1:]
		r.processLine(line)
	}
}

func (r *Reader) processLine(line []byte) {
	r.reg.Update("reader.line.count", 1)
	r.reg.Update("reader.line.size", int64(len(line)))

	switch {
	case string(line) == openBracket:
		r.depth++
	case string(line) == closeBracket:
		if r.depth == 0 {
			return // a '}' at depth 0 is ignored
		}
		r.depth--
		if r.depth == 0 && len(r.pending) > 0 {
			r.emitBlock()
		}
	case r.depth > 0:
		r.pending = append(r.pending, record.Command{Timestamp: now(), Payload: append([]byte(nil), line...)})
	default:
		r.emit(record.NewCommand(r.producer, record.Command{Timestamp: now(), Payload: append([]byte(nil), line...)}))
	}
}

// onEnd runs once, when the Reader's input has drained and closed: any
// unterminated block is dropped (never flushed), and an Eof record is
// emitted so the Mixer knows to flush this producer's pending commands.
func (r *Reader) onEnd(int) {
	r.pending = nil
	r.emit(record.NewEof(r.producer))
}

func (r *Reader) emitBlock() {
	commands := r.pending
	r.pending = nil
	r.emit(record.NewBlock(r.producer, record.Bulk{Commands: commands}))
}

func (r *Reader) emit(rec record.Record) {
	if err := r.out.Put(rec); err != nil {
		r.log.Warn(r.ctx).Err(err).Msg("dropped record, mixer input closed")
	}
}

// now returns the wall-clock second at which a line is parsed, per §4.3
// ("timestamps are seconds of wall-clock at the moment the line is parsed").
func now() int64 {
	return time.Now().Unix()
}
