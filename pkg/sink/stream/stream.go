// Package stream implements the console (or any io.Writer) sink: each Bulk
// is formatted as one "bulk: c1, c2, ..., cK" line, per §4.8.
package stream

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/madmazoku/bulkmixer/pkg/queue"
	"github.com/madmazoku/bulkmixer/pkg/record"
	"github.com/madmazoku/bulkmixer/pkg/stage"
)

// Sink formats every Bulk it receives onto a single configured io.Writer.
// It always writes to w, never silently substituting some other stream
// regardless of what w is.
type Sink struct {
	stage *stage.Stage[record.Bulk]
	w     io.Writer
	mu    sync.Mutex
	log   log.CtxLogger
}

// New constructs a Sink writing formatted bulks to w, reading from a queue
// of the given capacity.
func New(capacity int, w io.Writer, logger log.CtxLogger) *Sink {
	s := &Sink{w: w, log: logger}
	s.stage = stage.New(queue.New[record.Bulk](capacity), s.write, nil)
	return s
}

// Input returns the Sink's Bulk input queue, the attach point a
// Distributor subscription is wired to.
func (s *Sink) Input() *queue.Queue[record.Bulk] { return s.stage.Input() }

// Run starts n worker goroutines (0 = runtime.NumCPU).
func (s *Sink) Run(n int) { s.stage.Run(n) }

// Put forwards to the input queue's Put.
func (s *Sink) Put(b record.Bulk) error { return s.stage.Put(b) }

// Join closes the input queue and waits for every worker to drain it.
func (s *Sink) Join() error { return s.stage.Join() }

func (s *Sink) write(_ int, b record.Bulk) {
	if len(b.Commands) == 0 {
		return
	}

	var buf bytes.Buffer
	buf.WriteString("bulk: ")
	for i, c := range b.Commands {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.Write(c.Payload)
	}
	buf.WriteByte('\n')

	s.mu.Lock()
	_, err := s.w.Write(buf.Bytes())
	s.mu.Unlock()
	if err != nil {
		s.log.Warn(context.Background()).Err(err).Msg("stream sink write failed")
	}
}
