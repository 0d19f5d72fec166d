package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/store"
)

func (a *app) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect check-in sessions",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:     "ls <user-id>",
		Aliases: []string{"list"},
		Short:   "List a user's newest sessions",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(repo *store.SQLiteStore) error {
				sessions, err := repo.ListSessions(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintf(a.out, "No sessions for user %s\n", args[0])
					return nil
				}

				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tDURATION")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.StartTime.UTC().Format(time.RFC3339), s.Status, sessionDuration(s))
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session with its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			return a.withStore(func(repo *store.SQLiteStore) error {
				return a.showSession(cmd, repo, id)
			})
		},
	})

	return cmd
}

func (a *app) showSession(cmd *cobra.Command, repo *store.SQLiteStore, id int64) error {
	session, err := repo.GetSession(cmd.Context(), id)
	if err != nil {
		return err
	}
	responses, err := repo.ListResponses(cmd.Context(), id)
	if err != nil {
		return err
	}
	questions, err := repo.ListQuestions(cmd.Context())
	if err != nil {
		return err
	}
	text := make(map[int64]string, len(questions))
	for _, q := range questions {
		text[q.ID] = q.Text
	}

	fmt.Fprintf(a.out, "Session %d for %s: %s, started %s, duration %s\n\n",
		session.ID, session.UserID, session.Status, session.StartTime.UTC().Format(time.RFC3339), sessionDuration(session))
	for _, r := range responses {
		fmt.Fprintf(a.out, "Q: %s\nA: %s (%ds)\n\n", text[r.QuestionID], r.Answer, r.DurationSeconds)
	}
	return nil
}

func sessionDuration(s *domain.Session) string {
	if s.IsOpen() {
		return "-"
	}
	return (time.Duration(s.DurationSeconds) * time.Second).String()
}
