package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/store"
)

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change a user's schedule",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user's schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(repo *store.SQLiteStore) error {
				settings, err := repo.GetUserSettings(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if settings == nil {
					return fmt.Errorf("no settings for user %s", args[0])
				}
				fmt.Fprintf(a.out, "user:     %s\ntimezone: %s\nwindow:   %02d:00-%02d:00\ninterval: %dh\n",
					settings.UserID, settings.Timezone, settings.StartHour, settings.EndHour, settings.IntervalHours)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "set <user-id> <timezone, start, end, interval>",
		Short:   "Replace a user's schedule",
		Example: `  checkinctl settings set 42 "Europe/Berlin, 8, 22, 3"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := domain.ParseSettings(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return a.withStore(func(repo *store.SQLiteStore) error {
				if err := repo.UpsertUserSettings(cmd.Context(), settings); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Saved settings for %s\n", settings.UserID)
				return nil
			})
		},
	})

	return cmd
}
