package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one agenda sync and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.orchestrator.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			if res.Unchanged {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "meeting %s unchanged since version %d\n", res.MeetingNumber, res.Version)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"meeting %s synced: %d blocks (%d shared), %d sessions, %d tracks, %d rooms in %s\n",
				res.MeetingNumber, res.Stats.Blocks, res.Stats.Duplicate, res.Stats.Sessions,
				res.Stats.Tracks, res.Stats.Rooms, res.Elapsed.Round(time.Millisecond))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run result as JSON")
	return cmd
}
