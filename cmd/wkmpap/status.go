package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wkmp/wkmp-ap/internal/playerconf"
	"github.com/wkmp/wkmp-ap/internal/pstore"
)

// statusCommand prints the persisted queue. It reads storage directly
// rather than a live engine's in-memory state (see playCommand's doc comment in play.go),
// so it reflects what a restarted "play" process would rehydrate, not
// necessarily the exact playback position of one already running.
func statusCommand(settings *playerconf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the persisted playback queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := pstore.Open(settings.StoreConfig())
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()

			entries, err := store.LoadQueue(ctx)
			if err != nil {
				return fmt.Errorf("loading queue: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}

			fmt.Printf("%-4s %-36s %-36s %s\n", "#", "ENTRY", "PASSAGE", "ENQUEUED AT")
			for i, e := range entries {
				fmt.Printf("%-4d %-36s %-36s %s\n", i, e.ID, e.PassageID, e.EnqueuedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
