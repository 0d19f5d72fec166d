package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/checkin/internal/seed"
	"github.com/ashureev/checkin/internal/store"
)

func (a *app) questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "questions",
		Aliases: []string{"q"},
		Short:   "Manage the question catalogue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List questions in order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(repo *store.SQLiteStore) error {
				questions, err := repo.ListQuestions(cmd.Context())
				if err != nil {
					return err
				}
				if len(questions) == 0 {
					fmt.Fprintln(a.out, "No questions. Use 'checkinctl questions seed' to load the catalogue.")
					return nil
				}

				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ORDER\tID\tACTIVE\tTEXT")
				for _, q := range questions {
					fmt.Fprintf(tw, "%d\t%d\t%t\t%s\n", q.OrderNum, q.ID, q.Active, q.Text)
				}
				return tw.Flush()
			})
		},
	})

	var file string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert catalogue questions that are not in the database yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := seed.Load(file)
			if err != nil {
				return err
			}
			return a.withStore(func(repo *store.SQLiteStore) error {
				n, err := repo.SeedQuestions(cmd.Context(), questions)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Inserted %d of %d questions\n", n, len(questions))
				return nil
			})
		},
	}
	seedCmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalogue (defaults to the built-in one)")
	cmd.AddCommand(seedCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Print the stored questions as a YAML catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(repo *store.SQLiteStore) error {
				questions, err := repo.ListQuestions(cmd.Context())
				if err != nil {
					return err
				}
				data, err := seed.Encode(questions)
				if err != nil {
					return err
				}
				_, err = a.out.Write(data)
				return err
			})
		},
	})

	return cmd
}
