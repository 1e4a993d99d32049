package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wkmp/wkmp-ap/internal/playerconf"
	"github.com/wkmp/wkmp-ap/internal/pstore"
)

// dequeueCommand removes one queue entry by id directly from the store.
// A running "play" process only learns of the change the next time it
// restarts and rehydrates (see playCommand's doc comment in play.go).
func dequeueCommand(settings *playerconf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dequeue <queue-entry-id>",
		Short: "Remove an entry from the playback queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid queue entry id %q: %w", args[0], err)
			}

			store, err := pstore.Open(settings.StoreConfig())
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()

			if err := store.PersistDequeue(id); err != nil {
				return fmt.Errorf("dequeue: %w", err)
			}
			fmt.Printf("dequeued %s\n", id)
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
