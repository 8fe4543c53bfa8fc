package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/pkg/adapters/badger"
	"github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/adapters/sqlite"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/registry"
)

// NewRuntime builds a Runtime following cfg: the configured store wrapped by
// the PII and encryption middlewares, the core library extended with the
// process components and, when enabled, prometheus metrics.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*weft.Runtime, error) {
	opts := []weft.Option{weft.WithLogger(logger)}

	store, closer, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, weft.WithStore(store), weft.WithCloser(closer))

	mws, err := storeMiddleware(cfg)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}
	opts = append(opts, weft.WithStoreMiddleware(mws...))

	if cfg.Store.Redis.Lock {
		client := lockClient(cfg.Store, store)
		if client == nil {
			client = backend.NewClient(&backend.Options{
				Addr:     cfg.Store.Redis.Addr,
				Password: cfg.Store.Redis.Password,
				DB:       cfg.Store.Redis.DB,
			})
			opts = append(opts, weft.WithCloser(client))
		}
		opts = append(opts, weft.WithLocker(redis.NewLocker(client, cfg.Store.Redis.Prefix), cfg.Store.Redis.LockTTL))
	}

	lib, err := NewLibrary(cfg, logger)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}
	opts = append(opts, weft.WithLibrary(lib))

	if cfg.Server.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, weft.WithMetrics(reg))
	}

	rt, err := weft.New(opts...)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}
	return rt, nil
}

// NewLibrary returns the core components plus the process components listed
// in cfg.Components. Processes run from the directory of that file.
func NewLibrary(cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	lib := registry.NewCore()
	if cfg.Components == "" {
		return lib, nil
	}
	components, err := process.LoadComponents(cfg.Components)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return lib, nil
	}
	runner := process.NewRunner(
		process.WithComponents(components),
		process.WithBaseDir(filepath.Dir(cfg.Components)),
		process.WithLogger(logger),
	)
	lib.Mount(runner, runner)
	logger.Debug("process components loaded", "count", len(components), "file", cfg.Components)
	return lib, nil
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (ports.FlowStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memory.NewStore(), nil, nil
	case config.BackendFile:
		return file.New(cfg.Path), nil, nil
	case config.BackendRedis:
		s := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithTTL(cfg.TTL), redis.WithPrefix(cfg.Redis.Prefix))
		return s, s, nil
	case config.BackendSQLite:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendBadger:
		s, err := badger.New(badger.Config{
			Dir:        cfg.Path,
			InMemory:   cfg.Path == "",
			GCInterval: cfg.GCInterval,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// lockClient reuses the store connection when the store is redis.
func lockClient(cfg config.StoreConfig, store ports.FlowStore) *backend.Client {
	if s, ok := store.(*redis.Store); ok && cfg.Backend == config.BackendRedis {
		return s.Client()
	}
	return nil
}

func storeMiddleware(cfg *config.Config) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	active, fallback, err := cfg.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	// Masking runs first so secrets never reach the ciphertext.
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return mws, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
