// Package file implements the file sink: each Bulk is written to a new
// file bulk<T>-<S>.log, one command payload per line, where T is the
// timestamp of the Bulk's first command and S is a per-T serial counter
// shared by every worker, per §4.8.
package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/madmazoku/bulkmixer/pkg/queue"
	"github.com/madmazoku/bulkmixer/pkg/record"
	"github.com/madmazoku/bulkmixer/pkg/stage"
)

// Sink writes every Bulk it receives to its own file under dir. Multiple
// workers share one serial counter per timestamp, guarded by mu.
type Sink struct {
	stage *stage.Stage[record.Bulk]
	dir   string
	log   log.CtxLogger

	mu      sync.Mutex
	serials map[int64]int
}

// New constructs a Sink writing one file per Bulk under dir, reading from a
// queue of the given capacity.
func New(capacity int, dir string, logger log.CtxLogger) *Sink {
	s := &Sink{dir: dir, log: logger, serials: make(map[int64]int)}
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

	t := b.Commands[0].Timestamp
	serial := s.nextSerial(t)
	name := filepath.Join(s.dir, fmt.Sprintf("bulk%d-%d.log", t, serial))

	if err := s.writeFile(name, b); err != nil {
		s.log.Warn(context.Background()).Err(err).Str("file", name).Msg("file sink write failed")
	}
}

// nextSerial returns the serial to use for timestamp t: 0 on first
// occurrence, 1 on the second, and so on. The counter is read then
// incremented: the value returned is the one stored before this call
// bumped it.
func (s *Sink) nextSerial(t int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	serial := s.serials[t]
	s.serials[t] = serial + 1
	return serial
}

func (s *Sink) writeFile(name string, b record.Bulk) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, c := range b.Commands {
		if _, err := w.Write(c.Payload); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}
