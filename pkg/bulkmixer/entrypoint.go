package bulkmixer

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffyaml"

	"github.com/madmazoku/bulkmixer/pkg/foundation/cerrors"
)

const (
	exitCodeErr       = 1
	exitCodeInterrupt = 2
)

// Serve is bulkmixer's process entrypoint. It parses flags and an optional
// config file on top of cfg, starts a Runtime, and blocks until the
// process receives an interrupt or the Runtime fails.
func Serve(cfg Config) {
	cfg = parseConfig(cfg)

	rt, err := NewRuntime(cfg)
	if err != nil {
		// A bad config or an unbindable port won't fix itself on retry.
		exitWithError(cerrors.FatalError(cerrors.Errorf("failed to set up bulkmixer runtime: %w", err)))
	}

	ctx := cancelOnInterrupt(context.Background())
	if err := rt.Run(ctx); err != nil && !cerrors.Is(err, context.Canceled) {
		exitWithError(cerrors.Errorf("bulkmixer runtime error: %w", err))
	}
}

// parseConfig overlays flags, environment variables (prefixed BULKMIXER_)
// and an optional YAML config file onto cfg, in that priority order, plus
// two required positional arguments: <port> <bulk-size>.
func parseConfig(cfg Config) Config {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	flags.IntVar(&cfg.Server.MaxConnections, "server.max-connections", cfg.Server.MaxConnections, "maximum number of concurrent connections")
	flags.IntVar(&cfg.Queue.ReaderCapacity, "queue.reader-capacity", cfg.Queue.ReaderCapacity, "capacity of each reader's input queue (0 = unbounded)")
	flags.IntVar(&cfg.Queue.MixerCapacity, "queue.mixer-capacity", cfg.Queue.MixerCapacity, "capacity of the mixer's input queue (0 = unbounded)")
	flags.IntVar(&cfg.Queue.DistributorCapacity, "queue.distributor-capacity", cfg.Queue.DistributorCapacity, "capacity of the distributor's input queue (0 = unbounded)")
	flags.IntVar(&cfg.Queue.SinkCapacity, "queue.sink-capacity", cfg.Queue.SinkCapacity, "capacity of each sink's input queue (0 = unbounded)")

	flags.BoolVar(&cfg.Sinks.Stream.Enabled, "sinks.stream.enabled", cfg.Sinks.Stream.Enabled, "enable the console stream sink")
	flags.BoolVar(&cfg.Sinks.File.Enabled, "sinks.file.enabled", cfg.Sinks.File.Enabled, "enable the per-bulk file sink")
	flags.StringVar(&cfg.Sinks.File.Directory, "sinks.file.directory", cfg.Sinks.File.Directory, "directory the file sink writes bulk<T>-<S>.log files to")

	flags.StringVar(&cfg.Log.Level, "log.level", cfg.Log.Level, "sets logging level; accepts debug, info, warn, error, trace")
	flags.StringVar(&cfg.Log.Format, "log.format", cfg.Log.Format, "sets the format of the logging; accepts json, cli")

	flags.BoolVar(&cfg.Metrics.Enabled, "metrics.enabled", cfg.Metrics.Enabled, "serve Prometheus metrics over HTTP")
	flags.StringVar(&cfg.Metrics.Address, "metrics.address", cfg.Metrics.Address, "address to serve /metrics on")

	_ = flags.String("config", "", "optional YAML config file overlaying these flags' defaults")

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("BULKMIXER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithAllowMissingConfigFile(true),
	); err != nil {
		exitWithError(cerrors.FatalError(err))
	}

	args := flags.Args()
	if len(args) < 2 {
		exitWithError(cerrors.FatalError(cerrors.New("usage: bulkmixer [flags] <port> <bulk-size>")))
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		exitWithError(cerrors.FatalError(cerrors.Errorf("invalid port %q: %w", args[0], err)))
	}
	bulkSize, err := strconv.Atoi(args[1])
	if err != nil {
		exitWithError(cerrors.FatalError(cerrors.Errorf("invalid bulk size %q: %w", args[1], err)))
	}
	cfg.Server.Port = port
	cfg.Server.BulkSize = bulkSize

	return cfg
}

// cancelOnInterrupt returns a context cancelled on the first SIGINT. A
// second SIGINT hard-exits without waiting for a graceful shutdown.
func cancelOnInterrupt(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		select {
		case <-signalChan:
			cancel()
		case <-ctx.Done():
		}
		<-signalChan
		os.Exit(exitCodeInterrupt)
	}()
	return ctx
}

func exitWithError(err error) {
	tag := "error"
	if cerrors.IsFatalError(err) {
		tag = "fatal"
	}
	_, _ = fmt.Fprintf(os.Stderr, "%s: %+v\n", tag, err)
	os.Exit(exitCodeErr)
}
