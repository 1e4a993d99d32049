package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wkmp/wkmp-ap/internal/playerconf"
)

// playCommand is the only long-running foreground process in this CLI: it
// builds the full pipeline, rehydrates the persisted queue, optionally
// enqueues files given as arguments, and blocks running the engine's
// command loop until a signal arrives.
//
// enqueue/dequeue/skip/status deliberately do NOT talk to a running play
// process: spec.md's Non-goals exclude any HTTP/SSE server or other
// network I/O on the audio path, and the domain stack names no IPC/RPC
// library for cmd/wkmpap. So those subcommands are one-shot processes that
// mutate the shared sqlite store directly (internal/pstore), the same store
// play reads at startup — there is no live control channel between them.
func playCommand(settings *playerconf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [file...]",
		Short: "Run the playback engine, optionally enqueuing files at startup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down\n", sig)
				cancel()
			}()

			pl, err := buildPipeline(settings)
			if err != nil {
				return fmt.Errorf("building pipeline: %w", err)
			}
			defer pl.Close()

			if err := rehydrateQueue(ctx, pl); err != nil {
				return fmt.Errorf("rehydrating queue: %w", err)
			}

			for _, path := range args {
				if _, err := importFile(ctx, pl.store, settings, path); err != nil {
					return fmt.Errorf("enqueuing %s: %w", path, err)
				}
			}

			if err := pl.device.Start(ctx); err != nil {
				return fmt.Errorf("starting audio device: %w", err)
			}

			go pl.checker.Run(ctx)

			pl.engine.Play()

			if err := pl.engine.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("engine run: %w", err)
			}
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}

// rehydrateQueue resubmits every persisted queue entry to the decoder at
// startup (spec.md §4.12's queue-survives-restart requirement). It calls
// queue.Enqueue directly rather than engine.EnqueueFile to avoid
// re-persisting rows the store already has.
func rehydrateQueue(ctx context.Context, pl *pipeline) error {
	rows, err := pl.store.LoadQueueForRehydration(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		pl.queue.Enqueue(row.Entry, row.Path, row.Passage, false)
	}
	return nil
}
