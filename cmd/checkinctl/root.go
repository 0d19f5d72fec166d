package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/checkin/internal/store"
)

type app struct {
	dbPath string
	out    io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "checkinctl",
		Short:         "Inspect and seed the check-in database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	defaultDB := os.Getenv("DB_PATH")
	if defaultDB == "" {
		defaultDB = "./data/checkin.db"
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDB, "path to the SQLite database")

	root.AddCommand(a.questionsCmd())
	root.AddCommand(a.settingsCmd())
	root.AddCommand(a.sessionsCmd())
	return root
}

// withStore opens the database for the duration of fn.
func (a *app) withStore(fn func(*store.SQLiteStore) error) error {
	repo, err := store.NewSQLite(a.dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	return fn(repo)
}
