// Package listener implements the TCP accept loop and per-connection read
// loop described in §4.7: the byte feeder the core treats as opaque,
// promoted here to a concrete, shippable component.
package listener

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/madmazoku/bulkmixer/pkg/foundation/ctxutil"
	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/madmazoku/bulkmixer/pkg/foundation/semaphore"
	"github.com/madmazoku/bulkmixer/pkg/metrics"
	"github.com/madmazoku/bulkmixer/pkg/queue"
	"github.com/madmazoku/bulkmixer/pkg/reader"
	"github.com/madmazoku/bulkmixer/pkg/record"
)

const readBufferSize = 4096

// Listener accepts TCP connections on one address, constructing one Reader
// per connection and feeding it the raw bytes read off the socket. Readers
// are the pipeline's leaves: every Reader started here must be joined
// before the Listener considers itself stopped.
type Listener struct {
	ln net.Listener

	mixerInput     *queue.Queue[record.Record]
	readerCapacity int

	sem *semaphore.Weighted
	reg metrics.Registry
	log log.CtxLogger
}

// New binds addr and returns a Listener ready to Serve. maxConnections
// bounds how many connections are read from concurrently; a connection
// accepted beyond that bound is closed immediately rather than queued.
func New(addr string, maxConnections int, readerCapacity int, mixerInput *queue.Queue[record.Record], reg metrics.Registry, logger log.CtxLogger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		ln:             ln,
		mixerInput:     mixerInput,
		readerCapacity: readerCapacity,
		sem:            semaphore.NewWeighted(int64(maxConnections)),
		reg:            reg,
		log:            logger.CtxHook(ctxutil.ProducerIDLogCtxHook{}),
	}, nil
}

// Addr returns the address the Listener is bound to.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until ctx is cancelled or Accept fails for any
// other reason. On ctx cancellation it closes the underlying net.Listener
// (which unblocks the pending Accept with an error) and waits for every
// in-flight connection's Reader to join before returning, per §4.7's
// "stop accepting, then wait for in-flight connections" shutdown rule.
func (l *Listener) Serve(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-done:
		}
	}()
	defer close(done)

	var wg sync.WaitGroup
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			wg.Wait()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handle(conn)
		}()
	}
}

// handle bounds the connection with the semaphore, constructs and runs a
// Reader for it, and drives the read loop until the socket closes or
// errors.
func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	tkn, ok := l.sem.TryAcquire(1)
	if !ok {
		return
	}
	defer l.sem.Release(tkn)

	l.reg.Update("server.connect.count", 1)

	producer := record.ProducerID(uuid.NewString())
	ctx := ctxutil.ContextWithProducerID(context.Background(), string(producer))

	r := reader.New(l.readerCapacity, producer, l.mixerInput, l.reg, l.log, ctx)
	r.Run()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			l.reg.Update("connection.buffer.count", 1)
			l.reg.Update("connection.buffer.size", int64(n))
			if putErr := r.Put(chunk); putErr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}

	if err := r.Join(); err != nil {
		l.log.Warn(ctx).Err(err).Msg("reader join returned an error")
	}
}
