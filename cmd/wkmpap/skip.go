package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wkmp/wkmp-ap/internal/playerconf"
	"github.com/wkmp/wkmp-ap/internal/pstore"
)

// skipCommand dequeues whichever entry currently has the lowest PlayOrder.
// Like dequeue, this only takes effect in a running "play" process the next
// time it restarts and rehydrates from the store.
func skipCommand(settings *playerconf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Remove the current (first) entry from the playback queue",
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

			current := entries[0]
			if err := store.PersistDequeue(current.ID); err != nil {
				return fmt.Errorf("skip: %w", err)
			}
			fmt.Printf("skipped %s\n", current.ID)
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
