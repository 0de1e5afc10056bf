package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/nexusnwb/compressors"
	"github.com/INLOpen/nexusnwb/config"
	"github.com/INLOpen/nexusnwb/metrics"
	"github.com/INLOpen/nexusnwb/storage"
	"github.com/INLOpen/nexusnwb/storage/badgerstore"
	"github.com/INLOpen/nexusnwb/storage/container"
	"github.com/INLOpen/nexusnwb/storage/memory"
)

// openBackend creates the storage backend selected by cfg.
func openBackend(cfg config.StorageConfig, logger *slog.Logger, tracer trace.Tracer, rec *metrics.Recorder) (storage.Backend, error) {
	compressor, err := compressors.ForName(cfg.Compression)
	if err != nil {
		return nil, err
	}
	logger.Info("Opening storage backend", "backend", cfg.Backend, "path", cfg.Path, "compression", cfg.Compression)

	switch cfg.Backend {
	case "container":
		w, err := container.Create(container.Options{
			Path:         cfg.Path,
			Compressor:   compressor,
			Overwrite:    cfg.Overwrite,
			Preallocate:  cfg.PreallocateBytes,
			MinFreeBytes: cfg.MinFreeBytes,
			Logger:       logger,
			Tracer:       tracer,
			Metrics:      rec,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create container: %w", err)
		}
		return w, nil
	case "badger":
		s, err := badgerstore.Open(badgerstore.Options{
			Dir:        cfg.Path,
			InMemory:   cfg.BadgerInMemory,
			Compressor: compressor,
			Logger:     logger,
			Tracer:     tracer,
			Metrics:    rec,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil
	case "memory":
		return memory.New("memory:" + cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// diskPath is the directory whose filesystem holds the recording.
func diskPath(cfg config.StorageConfig) string {
	if cfg.Backend == "badger" {
		return cfg.Path
	}
	return filepath.Dir(cfg.Path)
}
