package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStarCmd(configPath *string) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "star <session-id>",
		Short: "Star or unstar a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.SetStarred(cmd.Context(), args[0], !remove); err != nil {
				return fmt.Errorf("star %s: %w", args[0], err)
			}
			verb := "starred"
			if remove {
				verb = "unstarred"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, args[0])
			return err
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "clear the star instead of setting it")
	return cmd
}
