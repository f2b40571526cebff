package filesystem

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/objectfs/bucketfs/internal/buffer"
	"github.com/objectfs/bucketfs/internal/config"
	"github.com/objectfs/bucketfs/internal/metrics"
	"github.com/objectfs/bucketfs/internal/storage/memory"
	s3backend "github.com/objectfs/bucketfs/internal/storage/s3"
	"github.com/objectfs/bucketfs/pkg/types"
	"github.com/objectfs/bucketfs/pkg/utils"
)

// NewFromConfig validates cfg and builds the logger, metrics collector,
// storage backend and FileSystem it describes. The metrics endpoint is not
// started; call Metrics().Start to serve it.
func NewFromConfig(ctx context.Context, cfg *config.Configuration) (*FileSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	output, err := utils.OpenLogOutput(cfg.Global.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Global.LogLevel, cfg.Global.LogFormat, output)
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(cfg.MetricsConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	backend, err := newBackend(ctx, cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.StreamOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger
	opts.Pool = buffer.NewBytePool(min(opts.BlockSize, opts.PartSize), max(opts.BlockSize, opts.PartSize))

	fs, err := New(backend, Config{Namespace: cfg.NamespaceConfig(), Stream: opts}, logger, collector)
	if err != nil {
		return nil, err
	}

	logger.Info("Filesystem ready",
		"backend", cfg.Storage.Backend,
		"bucket", cfg.Storage.Bucket,
		"root_prefix", cfg.Namespace.RootPrefix)
	return fs, nil
}

func newBackend(ctx context.Context, cfg *config.Configuration, logger *slog.Logger, collector *metrics.Collector) (types.ObjectBackend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.New(), nil
	case "s3":
		s3cfg := cfg.S3Config()
		client, err := s3backend.NewClient(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		backend, err := s3backend.New(client, s3cfg, logger)
		if err != nil {
			return nil, err
		}
		backend.SetRecorder(collector)
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
