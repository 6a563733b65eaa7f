package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/strandapp/strand-service/internal/config"
	"github.com/strandapp/strand-service/internal/services/objectstore"
	"github.com/strandapp/strand-service/internal/storage/postgres"
	"github.com/strandapp/strand-service/internal/upload"
)

// orphanAge is how old an object must be before it counts as orphaned.
// Interrupted direct uploads may confirm late; a generous cutoff avoids
// deleting objects whose metadata call is still coming.
const orphanAge = 24 * time.Hour

// assetChecker answers whether a metadata row references an object key.
type assetChecker interface {
	AssetExistsByObjectKey(ctx context.Context, objectKey string) (bool, error)
}

// bucketStore is the slice of the object store the sweeper walks.
type bucketStore interface {
	List(ctx context.Context) <-chan minio.ObjectInfo
	Remove(ctx context.Context, objectKey string) error
}

type OrphanSweeper struct {
	storage  assetChecker
	store    bucketStore
	interval time.Duration
	logger   *slog.Logger
}

func NewOrphanSweeper(storage assetChecker, store bucketStore, interval time.Duration) *OrphanSweeper {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &OrphanSweeper{
		storage:  storage,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

func (sw *OrphanSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("Orphan sweeper started",
		"interval", sw.interval.String(),
		"orphan_age", orphanAge.String())

	// Run once immediately on startup
	sw.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("Orphan sweeper shutting down")
			return
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

// sweep walks the bucket and removes objects old enough to be orphans that
// have no metadata row. Uploads whose metadata persist failed leave exactly
// this state behind.
func (sw *OrphanSweeper) sweep(ctx context.Context) {
	startTime := time.Now()
	cutoff := startTime.Add(-orphanAge)

	sw.logger.Info("Starting orphaned object sweep")

	var scanned, removed, failed int

	for obj := range sw.store.List(ctx) {
		if ctx.Err() != nil {
			return
		}
		if obj.Err != nil {
			sw.logger.Error("Object listing failed", "error", obj.Err.Error())
			return
		}

		scanned++
		if obj.LastModified.After(cutoff) {
			continue
		}

		// Thumbnails carry no row of their own; they are referenced through
		// the base object's asset row, so the base key decides their fate.
		lookupKey := strings.TrimSuffix(obj.Key, upload.ThumbnailSuffix)

		exists, err := sw.storage.AssetExistsByObjectKey(ctx, lookupKey)
		if err != nil {
			sw.logger.Error("Failed to check metadata for object",
				"object_key", obj.Key,
				"error", err.Error())
			failed++
			continue
		}
		if exists {
			continue
		}

		if err := sw.store.Remove(ctx, obj.Key); err != nil {
			sw.logger.Error("Failed to remove orphaned object",
				"object_key", obj.Key,
				"error", err.Error())
			failed++
			continue
		}

		sw.logger.Info("Removed orphaned object", "object_key", obj.Key)
		removed++
	}

	duration := time.Since(startTime)

	sw.logger.Info("Completed orphaned object sweep",
		"objects_scanned", scanned,
		"objects_removed", removed,
		"failures", failed,
		"duration_ms", duration.Milliseconds(),
		"duration", duration.String())
}

func main() {
	// Load config
	cfg := config.MustLoad()

	// Initialize database connection
	storage, err := postgres.NewPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	slog.Info("Connected to Postgres database")

	// Initialize object storage
	store, err := objectstore.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}
	slog.Info("Connected to object storage", slog.String("bucket", cfg.MinIO.BucketName))

	// Create sweeper with 1-hour interval
	sweeper := NewOrphanSweeper(storage, store, time.Hour)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	// Start the sweeper
	sweeper.Start(ctx)

	slog.Info("Orphan sweeper stopped")
}
