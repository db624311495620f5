// Package distributor implements the fan-out stage that broadcasts every
// Bulk it receives from the Mixer to every attached sink queue, in attach
// order, per §4.5.
package distributor

import (
	"sync"

	"github.com/madmazoku/bulkmixer/pkg/foundation/cerrors"
	"github.com/madmazoku/bulkmixer/pkg/metrics"
	"github.com/madmazoku/bulkmixer/pkg/queue"
	"github.com/madmazoku/bulkmixer/pkg/record"
	"github.com/madmazoku/bulkmixer/pkg/stage"
)

// Distributor fans a single Bulk input out to N subscriber queues. Its
// subscriber set is append-only and must be built entirely before Run is
// called: attach/detach while running is not supported, and Subscribe
// panics if called on a running Distributor.
type Distributor struct {
	stage *stage.Stage[record.Bulk]

	mu      sync.Mutex
	running bool
	subs    []*queue.Queue[record.Bulk]

	reg metrics.Registry
}

// New constructs a Distributor reading Bulks from a queue of the given
// capacity.
func New(capacity int, reg metrics.Registry) *Distributor {
	d := &Distributor{reg: reg}
	d.stage = stage.New(queue.New[record.Bulk](capacity), d.broadcast, nil)
	return d
}

// Input returns the Distributor's Bulk input queue, the attach point the
// Mixer's output is wired to.
func (d *Distributor) Input() *queue.Queue[record.Bulk] {
	return d.stage.Input()
}

// Subscribe appends q, typically a sink's own Input() queue, to the
// broadcast list. Subscribe panics if called after Run.
func (d *Distributor) Subscribe(q *queue.Queue[record.Bulk]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		panic(cerrors.New("distributor: Subscribe called after Run"))
	}
	d.subs = append(d.subs, q)
}

// Run starts the distributor worker. n follows Stage.Run's convention
// (0 = runtime.NumCPU).
func (d *Distributor) Run(n int) {
	d.mu.Lock()
	d.running = true
	subs := append([]*queue.Queue[record.Bulk]{}, d.subs...)
	d.mu.Unlock()

	d.subs = subs
	d.stage.Run(n)
}

// Put forwards to the input queue's Put.
func (d *Distributor) Put(b record.Bulk) error { return d.stage.Put(b) }

// Join closes the input queue, waits for the worker to drain it, and closes
// every subscriber queue so downstream sinks observe end-of-input in turn.
func (d *Distributor) Join() error {
	err := d.stage.Join()
	for _, sub := range d.subs {
		sub.Close()
	}
	return err
}

// broadcast implements §4.5's action: a non-empty Bulk is put into every
// subscriber queue, in attach order. A slow subscriber's Put blocks this
// worker, which is the intended backpressure path back to the Mixer and
// Readers.
func (d *Distributor) broadcast(_ int, b record.Bulk) {
	if len(b.Commands) == 0 {
		return
	}

	d.reg.Update("distributor.blocks", 1)
	d.reg.Update("distributor.commands", int64(len(b.Commands)))

	for _, sub := range d.subs {
		_ = sub.Put(b)
	}
}
