// Package bulkmixer wires up a complete server instance: configuration,
// logging, the metrics registry, and the Listener/Mixer/Distributor/Sink
// stage graph.
package bulkmixer

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/madmazoku/bulkmixer/pkg/foundation/cerrors"
	"github.com/madmazoku/bulkmixer/pkg/foundation/log"
	"github.com/madmazoku/bulkmixer/pkg/foundation/multierror"
)

// Config holds every configurable value for a bulkmixer instance.
type Config struct {
	Server struct {
		Port           int
		BulkSize       int
		MaxConnections int
	}

	Queue struct {
		ReaderCapacity      int
		MixerCapacity       int
		DistributorCapacity int
		SinkCapacity        int
	}

	Sinks struct {
		Stream struct {
			Enabled bool
		}
		File struct {
			Enabled   bool
			Directory string
		}
	}

	Log struct {
		Level  string
		Format string
	}

	Metrics struct {
		Enabled bool
		Address string
	}
}

// DefaultConfig returns a Config with sane defaults for every field.
func DefaultConfig() Config {
	var cfg Config
	cfg.Server.Port = 9090
	cfg.Server.BulkSize = 10
	cfg.Server.MaxConnections = 256

	cfg.Queue.ReaderCapacity = 64
	cfg.Queue.MixerCapacity = 256
	cfg.Queue.DistributorCapacity = 64
	cfg.Queue.SinkCapacity = 64

	cfg.Sinks.Stream.Enabled = true
	cfg.Sinks.File.Enabled = false
	cfg.Sinks.File.Directory = "./bulks"

	cfg.Log.Level = "info"
	cfg.Log.Format = "cli"

	cfg.Metrics.Enabled = true
	cfg.Metrics.Address = ":2112"
	return cfg
}

// Validate rejects a non-positive port, a negative bulk size (0 means no
// size cap) and an unwritable file sink directory before any goroutine
// starts. Every violation is collected,
// not just the first, via multierror.
func (c Config) Validate() error {
	var err error

	if c.Server.Port <= 0 {
		err = multierror.Append(err, requiredConfigFieldErr("server.port"))
	}
	if c.Server.BulkSize < 0 {
		err = multierror.Append(err, invalidConfigFieldErr("server.bulk-size"))
	}
	if c.Server.MaxConnections <= 0 {
		err = multierror.Append(err, invalidConfigFieldErr("server.max-connections"))
	}

	if c.Log.Level == "" {
		err = multierror.Append(err, requiredConfigFieldErr("log.level"))
	} else if _, zerr := zerolog.ParseLevel(c.Log.Level); zerr != nil {
		err = multierror.Append(err, invalidConfigFieldErr("log.level"))
	}
	if c.Log.Format == "" {
		err = multierror.Append(err, requiredConfigFieldErr("log.format"))
	} else if _, ferr := log.ParseFormat(c.Log.Format); ferr != nil {
		err = multierror.Append(err, invalidConfigFieldErr("log.format"))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		err = multierror.Append(err, requiredConfigFieldErr("metrics.address"))
	}

	if !c.Sinks.Stream.Enabled && !c.Sinks.File.Enabled {
		err = multierror.Append(err, cerrors.New("at least one sink must be enabled"))
	}

	if c.Sinks.File.Enabled {
		if c.Sinks.File.Directory == "" {
			err = multierror.Append(err, requiredConfigFieldErr("sinks.file.directory"))
		} else if statErr := checkWritableDir(c.Sinks.File.Directory); statErr != nil {
			err = multierror.Append(err, invalidConfigFieldErr("sinks.file.directory"))
		}
	}

	return err
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return cerrors.Errorf("%q is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".bulkmixer-write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func invalidConfigFieldErr(name string) error {
	return cerrors.Errorf("%q config value is invalid", name)
}

func requiredConfigFieldErr(name string) error {
	return cerrors.Errorf("%q config value is required", name)
}
