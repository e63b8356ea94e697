package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/knolrep/internal/storage"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile all sources and introduce new cards to the learner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runner := current.runner()
		runner.Progress = cmd.ErrOrStderr()
		reports, err := runner.Run(cmd.Context())
		out := cmd.OutOrStdout()
		for _, rep := range reports {
			fmt.Fprintf(out, "%s: %d cards, %d new, %d introduced, %d moved, %d removed, %d errors\n",
				rep.Path, rep.Parsed, rep.Inserted, rep.Introduced, rep.Moved, rep.Orphaned, len(rep.Errors))
			for _, e := range rep.Errors {
				fmt.Fprintf(out, "  - %s\n", e)
			}
		}
		return err
	},
}

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage card sources",
}

var sourceNameFlag string

var sourceAddCmd = &cobra.Command{
	Use:   "add <path|url.git>",
	Short: "Add a local directory or git repository as a card source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		name := sourceNameFlag
		if name == "" {
			name = storage.CollectionName(path)
		}
		sourceType := storage.SourceType(path)

		id, err := current.db.InsertSource(cmd.Context(), path, sourceType, name)
		if errors.Is(err, storage.ErrExists) {
			fmt.Fprintf(cmd.OutOrStdout(), "Source already exists: %s\n", path)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d (%s): %s\n", sourceType, id, name, path)
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List card sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := current.db.GetAllSources(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tNAME\tLAST SCANNED\tPATH")
		for _, s := range sources {
			scanned := "never"
			if s.LastScanned.Valid {
				scanned = s.LastScanned.Time.In(current.clock.Location).Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Type, s.Name, scanned, s.Path)
		}
		return w.Flush()
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a source together with its cards and their review history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source id %q", args[0])
		}
		if err := current.db.DeleteSource(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed source %d\n", id)
		return nil
	},
}

var learnerCmd = &cobra.Command{
	Use:   "learner",
	Short: "Manage learners",
}

var learnerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a learner under a new id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := current.db.CreateLearner(cmd.Context(), args[0], current.clock.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added learner %s (%s)\n", l.Name, l.ID)
		return nil
	},
}

var learnerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered learners",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		learners, err := current.db.GetAllLearners(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, l := range learners {
			fmt.Fprintf(w, "%s\t%s\n", l.ID, l.Name)
		}
		return w.Flush()
	},
}

func init() {
	sourceAddCmd.Flags().StringVar(&sourceNameFlag, "name", "", "Collection name (default: last path element)")
	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd, sourceRemoveCmd)
	learnerCmd.AddCommand(learnerAddCmd, learnerListCmd)
}
