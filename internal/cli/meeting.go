package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/confsync/internal/syncer"
)

func newMeetingCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Detect and print the current meeting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			m := a.selector.Detect(cmd.Context())
			if m == nil {
				return syncer.ErrNoMeeting
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderMeeting(*m, a.now(), newStyles()))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the meeting as JSON")
	return cmd
}
