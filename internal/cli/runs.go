package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/synaptecltd/evbattery/detect"
	"github.com/synaptecltd/evbattery/store"
)

var errNoStore = errors.New("no archive configured: set store.path or pass --db")

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived detection runs",
	}
	cmd.PersistentFlags().String("db", "", "SQLite archive path (default from store.path)")

	cmd.AddCommand(
		newRunsListCmd(a),
		newRunsShowCmd(a),
		newRunsDeleteCmd(a),
	)
	return cmd
}

func newRunsListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tPOINTS\tRULE\tML")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					r.Source, r.Summary.TotalPoints, r.Summary.RuleAnomalies, r.Summary.MLAnomalies)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list, 0 for all")
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run and its anomalous rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}
			rows, err := s.RunAnomalies(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Run %s (%s)\n", run.ID, run.Source)
			fmt.Fprintf(a.stdout, "Total points:   %d\n", run.Summary.TotalPoints)
			fmt.Fprintf(a.stdout, "Rule anomalies: %d\n", run.Summary.RuleAnomalies)
			fmt.Fprintf(a.stdout, "ML anomalies:   %d\n", run.Summary.MLAnomalies)
			if len(rows) > 0 {
				fmt.Fprintln(a.stdout)
				printRows(a.stdout, rows)
			}
			return nil
		},
	}
}

func newRunsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.DeleteRun(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted run %s\n", id)
			return nil
		},
	}
}

func (a *app) openStore() (*store.SQLiteStore, error) {
	if a.cfg.Store.Path == "" {
		return nil, errNoStore
	}
	return store.New(a.cfg.Store.Path)
}

func (a *app) archive(cmd *cobra.Command, annotated *detect.AnnotatedSeries, rec store.RunRecord) (uuid.UUID, error) {
	s, err := a.openStore()
	if err != nil {
		return uuid.Nil, err
	}
	defer s.Close()
	return s.SaveRun(cmd.Context(), rec, annotated)
}
