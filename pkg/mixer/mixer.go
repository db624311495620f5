// Package mixer implements the single-consumer stage that coalesces
// singleton commands from many Readers into size-N bulks, forwards explicit
// blocks verbatim, and flushes a producer's pending commands when that
// producer disconnects.
package mixer

import (
	"context"

	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/madmazoku/bulkmixer/pkg/metrics"
	"github.com/madmazoku/bulkmixer/pkg/queue"
	"github.com/madmazoku/bulkmixer/pkg/record"
	"github.com/madmazoku/bulkmixer/pkg/stage"
)

// pendingEntry pairs a command with the producer that emitted it, so a
// Block or Eof record can tell whether its producer has any unflushed
// commands outstanding.
type pendingEntry struct {
	command  record.Command
	producer record.ProducerID
}

// Mixer coalesces Record values from every Reader into record.Bulk values
// for the Distributor. There is exactly one Mixer per server, and its input
// queue has many producers (all Readers) but a single consumer: the Mixer
// worker. That single-consumer discipline is what lets pending be mutated
// without its own lock.
type Mixer struct {
	stage *stage.Stage[record.Record]

	n       int // target bulk size; 0 means no size cap
	pending []pendingEntry

	out *queue.Queue[record.Bulk]
	reg metrics.Registry
	log log.CtxLogger
}

// New constructs a Mixer with bulk size n (0 = no size cap) that reads
// Records from capacity-bounded in and writes Bulks to out.
func New(capacity, n int, out *queue.Queue[record.Bulk], reg metrics.Registry, logger log.CtxLogger) *Mixer {
	m := &Mixer{n: n, out: out, reg: reg, log: logger}
	m.stage = stage.New(queue.New[record.Record](capacity), m.process, m.onEnd)
	return m
}

// Input returns the Mixer's Record input queue, the attach point every
// Reader's output is wired to.
func (m *Mixer) Input() *queue.Queue[record.Record] {
	return m.stage.Input()
}

// Run and Put delegate to the underlying Stage.
func (m *Mixer) Run(workers int)           { m.stage.Run(workers) }
func (m *Mixer) Put(r record.Record) error { return m.stage.Put(r) }

// Join closes the input queue, waits for the worker to drain it (flushing
// any still-pending commands from onEnd along the way), and then closes out
// so the Distributor observes end-of-input in turn.
func (m *Mixer) Join() error {
	err := m.stage.Join()
	m.out.Close()
	return err
}

// process implements the transition table of §4.4: one call per dequeued
// Record, always on the Mixer's single worker.
func (m *Mixer) process(_ int, r record.Record) {
	switch r.Kind {
	case record.KindCommand:
		m.reg.Update("reader.mix.commands", 1)
		m.pending = append(m.pending, pendingEntry{command: r.Command, producer: r.Producer})
		if m.n > 0 && len(m.pending) == m.n {
			m.flushPending()
		}
	case record.KindBlock:
		m.reg.Update("reader.mix.block.count", 1)
		m.reg.Update("reader.mix.block.size", int64(len(r.Block.Commands)))
		if m.hasPendingFrom(r.Producer) {
			m.flushPending()
		}
		m.sendBulk(r.Block)
	case record.KindEof:
		m.reg.Update("reader.mix.eof", 1)
		if m.hasPendingFrom(r.Producer) {
			m.flushPending()
		}
	}
}

// onEnd runs once, when the Mixer's input has drained and closed: any
// commands still pending from any producer are flushed in one last Bulk.
func (m *Mixer) onEnd(int) {
	if len(m.pending) > 0 {
		m.flushPending()
	}
}

func (m *Mixer) hasPendingFrom(p record.ProducerID) bool {
	for _, e := range m.pending {
		if e.producer == p {
			return true
		}
	}
	return false
}

// flushPending drains the entire pending list into one Bulk, regardless of
// how many distinct producers contributed to it. Per-producer FIFO order is
// preserved because pending is append-only in arrival order.
func (m *Mixer) flushPending() {
	commands := make([]record.Command, len(m.pending))
	for i, e := range m.pending {
		commands[i] = e.command
	}
	m.pending = m.pending[:0]
	m.sendBulk(record.Bulk{Commands: commands})
}

func (m *Mixer) sendBulk(b record.Bulk) {
	if len(b.Commands) == 0 {
		return
	}
	m.reg.Update("mixer.send.blocks", 1)
	m.reg.Update("mixer.send.commands", int64(len(b.Commands)))
	if err := m.out.Put(b); err != nil {
		m.log.Warn(context.Background()).Err(err).Msg("dropped bulk, distributor input closed")
	}
}
