package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/confsync/internal/model"
)

func newAgendaCmd(configPath *string) *cobra.Command {
	var (
		day          string
		withSessions bool
		starredOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Print the stored agenda grouped by day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			loc := time.UTC
			if tz, err := a.store.GetMeta(ctx, model.MetaTimezone); err == nil && tz != "" {
				loc = model.MeetingMetadata{Timezone: tz}.Location()
			}
			name, _ := a.store.GetMeta(ctx, model.MetaMeetingName)

			blocks, err := a.store.Blocks(ctx)
			if err != nil {
				return fmt.Errorf("load blocks: %w", err)
			}
			if day != "" {
				blocks = filterDay(blocks, day, loc)
			}

			var sessions []model.SessionView
			switch {
			case starredOnly:
				sessions, err = a.store.StarredSessions(ctx)
			case withSessions:
				sessions, err = a.store.Sessions(ctx)
			}
			if err != nil {
				return fmt.Errorf("load sessions: %w", err)
			}
			if starredOnly {
				blocks = blocksWithSessions(blocks, sessions)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderAgenda(name, blocks, sessions, loc, newStyles()))
			return err
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "only show this day (YYYY-MM-DD, meeting timezone)")
	cmd.Flags().BoolVar(&withSessions, "sessions", false, "list sessions under each block")
	cmd.Flags().BoolVar(&starredOnly, "starred", false, "only show starred sessions")
	return cmd
}

func filterDay(blocks []model.Block, day string, loc *time.Location) []model.Block {
	var out []model.Block
	for _, b := range blocks {
		if b.Start.In(loc).Format("2006-01-02") == day {
			out = append(out, b)
		}
	}
	return out
}

func blocksWithSessions(blocks []model.Block, sessions []model.SessionView) []model.Block {
	keep := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		keep[s.BlockID] = true
	}
	var out []model.Block
	for _, b := range blocks {
		if keep[b.ID] {
			out = append(out, b)
		}
	}
	return out
}
