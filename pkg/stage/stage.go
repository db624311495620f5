// Package stage implements the generic worker harness every node in the
// pipeline (Reader, Mixer, Distributor, sinks) is built from: a Stage owns
// one bounded input queue.Queue and runs a user-supplied action on N worker
// goroutines until that queue drains and closes.
package stage

import (
	"runtime"
	"sync"

	"github.com/madmazoku/bulkmixer/pkg/foundation/cerrors"
	"github.com/madmazoku/bulkmixer/pkg/foundation/multierror"
	"github.com/madmazoku/bulkmixer/pkg/queue"
)

// Action processes one item dequeued from the stage's input. workerIndex
// identifies which of the stage's N workers is calling it, in [0, n).
type Action[T any] func(workerIndex int, item T)

// EndFunc runs once per worker, after that worker's final Get returns "end"
// and before the worker exits. It is where a worker settles any state it
// was accumulating (e.g. the Mixer flushes its pending list; a Reader drops
// its unterminated block and emits Eof).
type EndFunc func(workerIndex int)

// Stage is the worker harness described in §4.2: it owns an input queue and
// spawns Run's workers to drain it, calling Action per item and EndFunc once
// per worker on drain-and-close.
type Stage[T any] struct {
	input *queue.Queue[T]
	act   Action[T]
	onEnd EndFunc

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	joinOnce sync.Once
	joinErr  error
}

// New constructs a Stage around input. onEnd may be nil if the action has no
// per-worker flush.
func New[T any](input *queue.Queue[T], act Action[T], onEnd EndFunc) *Stage[T] {
	return &Stage[T]{input: input, act: act, onEnd: onEnd}
}

// Input returns the stage's input queue, so other stages can be attached to
// it as a downstream target.
func (s *Stage[T]) Input() *queue.Queue[T] {
	return s.input
}

// Run spawns n worker goroutines. If n == 0 it substitutes runtime.NumCPU(),
// falling back to 1 if that is also 0. Run panics if called twice on the
// same Stage.
func (s *Stage[T]) Run(n int) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		panic(cerrors.New("stage: Run called twice"))
	}
	s.running = true
	s.mu.Unlock()

	if n == 0 {
		n = runtime.NumCPU()
	}
	if n == 0 {
		n = 1
	}

	s.wg.Add(n)
	for i := 0; i < n; i++ {
		go s.worker(i)
	}
}

func (s *Stage[T]) worker(idx int) {
	defer s.wg.Done()
	defer s.recoverPanic(idx)

	for {
		v, ok := s.input.Get()
		if !ok {
			if s.onEnd != nil {
				s.onEnd(idx)
			}
			return
		}
		s.act(idx, v)
	}
}

func (s *Stage[T]) recoverPanic(idx int) {
	r := recover()
	if r == nil {
		return
	}
	err := cerrors.Errorf("stage: worker %d panicked: %v", idx, r)
	s.mu.Lock()
	s.joinErr = multierror.Append(s.joinErr, err)
	s.mu.Unlock()
}

// Put forwards to the input queue's Put.
func (s *Stage[T]) Put(v T) error {
	return s.input.Put(v)
}

// Join closes the input queue and waits for every worker to exit. Join is
// idempotent: a second call is a no-op and returns the same error as the
// first. Join's returned error aggregates any worker panics recovered along
// the way; a nil error means every worker exited cleanly.
func (s *Stage[T]) Join() error {
	s.joinOnce.Do(func() {
		s.input.Close()
		s.wg.Wait()
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinErr
}
