package bulkmixer_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/madmazoku/bulkmixer/pkg/bulkmixer"
)

const delay = 200 * time.Millisecond

func TestRuntime_AcceptsConnectionsAndShutsDownOnCancel(t *testing.T) {
	is := is.New(t)

	cfg := bulkmixer.DefaultConfig()
	cfg.Server.Port = 19173
	cfg.Server.BulkSize = 2
	cfg.Metrics.Enabled = false
	cfg.Sinks.Stream.Enabled = true
	cfg.Sinks.File.Enabled = false

	rt, err := bulkmixer.NewRuntime(cfg)
	is.NoErr(err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(ctx) }()

	// give the Listener a moment to bind before dialing it.
	time.Sleep(delay)

	conn, err := net.Dial("tcp", rt.Addr())
	is.NoErr(err)
	_, err = conn.Write([]byte("a\nb\n"))
	is.NoErr(err)
	is.NoErr(conn.Close())

	time.Sleep(delay)
	cancel()

	select {
	case err := <-runDone:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("Runtime.Run did not return after cancel")
	}
}
