// The hub process executes indexing and snapshot commands. It owns the
// job pool; the API process only enqueues.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/index"
	"github.com/newgene/biohub/internal/job"
	"github.com/newgene/biohub/internal/queue"
	"github.com/newgene/biohub/internal/snapshot"
	"github.com/newgene/biohub/internal/storage"
	"github.com/newgene/biohub/internal/store/postgres"
	vk "github.com/newgene/biohub/internal/store/valkey"
)

func main() {
	_ = godotenv.Load(".env") // ignore error if .env missing

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	envs, err := config.LoadEnvironments(cfg.Hub.EnvironmentsFile)
	if err != nil {
		logger.Error("failed to load environments", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	store := build.NewStore(pool)

	// Valkey
	vkClient, err := vk.NewClient(cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	// Managers
	dispatcher := job.NewPool(logger)
	indexManager := index.NewManager(store, store, dispatcher, index.DefaultClientFactory, logger)
	snapshotManager := snapshot.NewManager(indexManager, store, dispatcher, index.DefaultClientFactory, storage.New, logger)

	if err := indexManager.CleanStaleStatus(ctx); err != nil {
		logger.Warn("pruning stale status failed", slog.String("error", err.Error()))
	}
	if err := indexManager.Configure(envs); err != nil {
		logger.Error("configuring indexing environments failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := snapshotManager.Configure(envs); err != nil {
		logger.Error("configuring snapshot environments failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Command consumer
	consumer := queue.NewConsumer(vkClient, cfg.Hub.ConsumerID, logger)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to create consumer group", slog.String("error", err.Error()))
		os.Exit(1)
	}

	handler := func(ctx context.Context, cmd queue.CommandMessage) error {
		switch cmd.Kind {
		case queue.KindIndex:
			opts := index.Options{
				Steps:     cmd.Steps,
				BatchSize: cmd.BatchSize,
				Mode:      index.Mode(cmd.Mode),
			}
			_, err := indexManager.Index(ctx, cmd.Env, cmd.Target, cmd.IndexName, cmd.IDs, opts)
			return err
		case queue.KindSnapshot:
			_, err := snapshotManager.Snapshot(ctx, cmd.Env, cmd.IndexName, cmd.Snapshot)
			return err
		case queue.KindSnapshotBuild:
			rec, err := store.FindOne(ctx, cmd.Target)
			if err != nil {
				return err
			}
			_, err = snapshotManager.SnapshotBuild(ctx, rec)
			return err
		default:
			return fmt.Errorf("unknown command kind %q", cmd.Kind)
		}
	}

	logger.Info("hub started", slog.String("consumer_id", cfg.Hub.ConsumerID))
	if err := consumer.Consume(ctx, handler); err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("hub stopped")
}
