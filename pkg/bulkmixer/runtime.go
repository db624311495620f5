package bulkmixer

import (
	"context"
	"fmt"
	"net/http"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"github.com/madmazoku/bulkmixer/pkg/distributor"
	"github.com/madmazoku/bulkmixer/pkg/foundation/cerrors"
	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/madmazoku/bulkmixer/pkg/listener"
	"github.com/madmazoku/bulkmixer/pkg/metrics"
	"github.com/madmazoku/bulkmixer/pkg/mixer"
	"github.com/madmazoku/bulkmixer/pkg/sink/file"
	"github.com/madmazoku/bulkmixer/pkg/sink/stream"
)

// sinkStage is the shape every consumer at the end of the pipeline
// (a Distributor subscriber) satisfies: a running Stage that can be
// joined once its input is closed.
type sinkStage interface {
	Run(workers int)
	Join() error
}

// Runtime wires together one server instance's Sinks, Distributor, Mixer
// and Listener, in that dependency order, and coordinates their startup
// and shutdown with a tomb.Tomb supervising the Listener's accept loop.
type Runtime struct {
	Config Config
	Log    log.CtxLogger
	Reg    metrics.Registry

	listener    *listener.Listener
	mixer       *mixer.Mixer
	distributor *distributor.Distributor
	sinks       []sinkStage
	metricsSrv  *http.Server
}

// NewRuntime validates cfg and constructs every stage, wiring each Sink's
// own Input queue as a Distributor subscriber and the Mixer's and
// Distributor's Input queues as the upstream stage's output target, per
// §4.6/§4.7. NewRuntime starts nothing; call Run to start accepting
// connections.
func NewRuntime(cfg Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, cerrors.Errorf("invalid config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, cerrors.Errorf("invalid log level: %w", err)
	}
	format, err := log.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, cerrors.Errorf("invalid log format: %w", err)
	}
	logger := log.InitLogger(level, format)

	var reg metrics.Registry
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		promReg := promclient.NewRegistry()
		reg = metrics.NewPrometheusRegistry(promReg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
	} else {
		reg = metrics.NoopRegistry{}
	}

	dist := distributor.New(cfg.Queue.DistributorCapacity, reg)

	var sinks []sinkStage
	if cfg.Sinks.Stream.Enabled {
		s := stream.New(cfg.Queue.SinkCapacity, os.Stdout, logger.WithComponent("sink.stream"))
		dist.Subscribe(s.Input())
		sinks = append(sinks, s)
	}
	if cfg.Sinks.File.Enabled {
		s := file.New(cfg.Queue.SinkCapacity, cfg.Sinks.File.Directory, logger.WithComponent("sink.file"))
		dist.Subscribe(s.Input())
		sinks = append(sinks, s)
	}

	mx := mixer.New(cfg.Queue.MixerCapacity, cfg.Server.BulkSize, dist.Input(), reg, logger.WithComponent("mixer"))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := listener.New(addr, cfg.Server.MaxConnections, cfg.Queue.ReaderCapacity, mx.Input(), reg, logger.WithComponent("listener"))
	if err != nil {
		return nil, cerrors.Errorf("failed to bind listener: %w", err)
	}

	return &Runtime{
		Config:      cfg,
		Log:         logger,
		Reg:         reg,
		listener:    ln,
		mixer:       mx,
		distributor: dist,
		sinks:       sinks,
		metricsSrv:  metricsSrv,
	}, nil
}

// Addr returns the address the Runtime's Listener is bound to.
func (r *Runtime) Addr() string { return r.listener.Addr().String() }

// Run starts every stage root-first (sinks, then Distributor, then Mixer)
// so nothing is ever started with a Put target that isn't accepting yet,
// then blocks until ctx is cancelled. On cancellation it stops accepting
// connections and joins every stage leaves-first: the Listener (and with
// it every in-flight Reader), then the Mixer, then the Distributor, then
// every Sink.
func (r *Runtime) Run(ctx context.Context) error {
	if r.metricsSrv != nil {
		go func() {
			if err := r.metricsSrv.ListenAndServe(); err != nil && !cerrors.Is(err, http.ErrServerClosed) {
				r.Log.Warn(context.Background()).Err(err).Msg("metrics server stopped unexpectedly")
			}
		}()
	}

	for _, s := range r.sinks {
		s.Run(1)
	}
	r.distributor.Run(1)
	r.mixer.Run(1)

	t, tombCtx := tomb.WithContext(ctx)
	t.Go(func() error {
		return r.listener.Serve(tombCtx)
	})

	<-t.Dying()
	r.Log.Info(context.Background()).Msg("shutting down")

	listenErr := t.Wait()
	if cerrors.Is(listenErr, context.Canceled) {
		listenErr = nil
	}

	joinErr := r.joinAll()
	if listenErr != nil {
		return listenErr
	}
	return joinErr
}

// joinAll closes and joins every stage in shutdown order, collecting the
// first error encountered without skipping the joins after it.
func (r *Runtime) joinAll() error {
	var err error

	if r.metricsSrv != nil {
		if shutErr := r.metricsSrv.Shutdown(context.Background()); shutErr != nil {
			err = cerrors.Errorf("metrics server shutdown failed: %w", shutErr)
		}
	}
	if joinErr := r.mixer.Join(); joinErr != nil && err == nil {
		err = cerrors.Errorf("mixer join failed: %w", joinErr)
	}
	if joinErr := r.distributor.Join(); joinErr != nil && err == nil {
		err = cerrors.Errorf("distributor join failed: %w", joinErr)
	}
	for _, s := range r.sinks {
		if joinErr := s.Join(); joinErr != nil && err == nil {
			err = cerrors.Errorf("sink join failed: %w", joinErr)
		}
	}
	return err
}
