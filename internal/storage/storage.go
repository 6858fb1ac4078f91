// Package storage selects the record store and archive backends named in
// configuration.
package storage

import (
	"context"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"

	"github.com/JakeFAU/tiktok-monitor/internal/config"
	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/storage/gcs"
	"github.com/JakeFAU/tiktok-monitor/internal/storage/local"
	"github.com/JakeFAU/tiktok-monitor/internal/storage/memory"
	"github.com/JakeFAU/tiktok-monitor/internal/storage/postgres"
	"github.com/JakeFAU/tiktok-monitor/internal/storage/sqlite"
)

// Open returns the record store for cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, clock crawler.Clock) (crawler.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Path, clock)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: int32(cfg.MaxConns), //nolint:gosec // validated config value
		}, clock)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		return memory.NewStore(clock), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Archive bundles the configured blob store with its key prefix and a
// release hook. Store is nil when archiving is off.
type Archive struct {
	Store  crawler.BlobStore
	Prefix string
	close  func() error
}

// Enabled reports whether raw payloads should be archived.
func (a Archive) Enabled() bool {
	return a.Store != nil
}

// Close releases backend clients.
func (a Archive) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// OpenArchive returns the blob store for cfg.Provider.
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig) (Archive, error) {
	archive := Archive{Prefix: cfg.Prefix}
	switch cfg.Provider {
	case config.ProviderNone, "":
		return Archive{}, nil
	case config.ProviderMemory:
		archive.Store = memory.NewBlobStore()
	case config.ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return Archive{}, fmt.Errorf("open local archive: %w", err)
		}
		archive.Store = store
	case config.ProviderGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return Archive{}, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			_ = client.Close()
			return Archive{}, fmt.Errorf("open gcs archive: %w", err)
		}
		archive.Store = store
		archive.close = client.Close
	default:
		return Archive{}, fmt.Errorf("unsupported archive provider %q", cfg.Provider)
	}
	return archive, nil
}
