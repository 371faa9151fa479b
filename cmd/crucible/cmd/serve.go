package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/chunkworker"
	"github.com/crucible-dev/crucible/internal/watcher"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the change watcher and chunk/vector worker until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe wires the watcher and the chunk worker to the project at
// projectRoot and runs both on their own polling intervals until ctx is
// cancelled (Ctrl-C or SIGTERM).
func runServe(ctx context.Context) error {
	a, err := openApp(projectRoot)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchInterval, err := time.ParseDuration(a.Config.Performance.WatchInterval)
	if err != nil {
		watchInterval = 0
	}
	scanner := watcher.NewScanner(a.DB, a.Locks, a.Root, a.ProjectID, watcher.Options{
		Interval:       watchInterval,
		IgnorePatterns: a.Config.Paths.Exclude,
	})

	worker := chunkworker.New(a.DB, a.Embedder, a.Indexes, a.Log, chunkworker.Options{
		ProjectConcurrency: a.Config.Performance.ChunkWorkers,
		FileBatchSize:      a.Config.Performance.ChunkBatchSize,
	})

	// A project may have drifted (files added, changed, or removed)
	// while no server instance was running; run one cycle synchronously
	// before entering the periodic loop so serve self-heals on boot
	// rather than waiting for the first tick.
	if err := scanner.RunCycle(ctx); err != nil {
		a.Log.Warn("startup reconciliation failed", slog.String("error", err.Error()))
	}

	done := make(chan struct{}, 2)
	go runLoop(ctx, "watcher", scanner.RunCycle, watchInterval, a.Log, done)
	go runLoop(ctx, "chunkworker", worker.RunOnce, watchInterval, a.Log, done)

	<-ctx.Done()
	<-done
	<-done
	return nil
}

// runLoop invokes step on a fixed interval until ctx is cancelled,
// logging (never aborting on) individual failures.
func runLoop(ctx context.Context, name string, step func(context.Context) error, interval time.Duration, log *slog.Logger, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := step(ctx); err != nil {
			log.Error("cycle failed", slog.String("component", name), slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
