package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wkmp/wkmp-ap/internal/playerconf"
	"github.com/wkmp/wkmp-ap/internal/pstore"
)

// enqueueCommand imports and persists a file into the shared queue store
// without starting an engine: see playCommand's doc comment in play.go for why this talks
// to the store directly instead of a running "play" process.
func enqueueCommand(settings *playerconf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Analyze and add a file to the playback queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := pstore.Open(settings.StoreConfig())
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer store.Close()

			id, err := importFile(ctx, store, settings, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("enqueued %s as %s\n", args[0], id)
			return nil
		},
	}
	cmd.SilenceUsage = true
	return cmd
}
