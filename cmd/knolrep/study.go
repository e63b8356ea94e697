package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/knol"
	"github.com/conorfennell/knolrep/internal/review"
	"github.com/conorfennell/knolrep/internal/sm2"
)

var (
	dueCollection   string
	dueLimit        int
	statsCollection string
)

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List the cards due for review, most overdue first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		due, err := current.reviews.DueCards(ctx, current.learnerID, dueCollection, dueLimit)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing due.")
			return nil
		}
		hashes := make([]string, len(due))
		for i, c := range due {
			hashes[i] = c.ID
		}
		cards, err := current.db.FindCards(ctx, hashes)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CARD\tCOLLECTION\tQUESTION")
		for _, c := range due {
			card, ok := cards[c.ID]
			if !ok {
				continue
			}
			question, _, _ := strings.Cut(card.Question, "\n")
			fmt.Fprintf(w, "%s\t%s\t%s\n", knol.ShortHash(card.Hash), card.Collection, question)
		}
		return w.Flush()
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <card-hash> <quality>",
	Short: "Record a review of a card",
	Long: `Record a review of a card. The hash may be abbreviated to any unique prefix.
Quality is 0-5 or one of: again, incorrect, familiar, hard, good, easy.
Qualities below 3 reset the card.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := sm2.ParseQuality(args[1])
		if err != nil {
			return err
		}
		hash, err := current.db.ResolveCardHash(ctx, args[0])
		if err != nil {
			return err
		}

		st, err := current.reviews.Submit(ctx, domain.StateKey{LearnerID: current.learnerID, CardHash: hash}, q)
		if errors.Is(err, review.ErrStateNotFound) {
			return fmt.Errorf("%w (run sync to introduce new cards)", err)
		}
		if err != nil {
			return err
		}

		next := st.NextReviewAt.In(current.clock.Location)
		fmt.Fprintf(cmd.OutOrStdout(), "Next review of %s in %d day(s), on %s (ease %.2f)\n",
			knol.ShortHash(hash), st.Interval, next.Format("Mon 2006-01-02"), st.EaseFactor)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show review counts and the study streak",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := current.reviews.Stats(ctx, current.learnerID, statsCollection)
		if err != nil {
			return err
		}
		rec, streak, err := current.reviews.Streak(ctx, current.learnerID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Cards\t%d\n", st.Total)
		fmt.Fprintf(w, "New\t%d\n", st.New)
		fmt.Fprintf(w, "Learning\t%d\n", st.Learning)
		fmt.Fprintf(w, "Mature\t%d\n", st.Mature)
		fmt.Fprintf(w, "Due now\t%d\n", st.Due)
		fmt.Fprintf(w, "Streak\t%d day(s), longest %d\n", streak, rec.Longest)
		if !rec.LastStudyDate.IsZero() {
			fmt.Fprintf(w, "Last studied\t%s\n", rec.LastStudyDate)
		}
		return w.Flush()
	},
}

func init() {
	dueCmd.Flags().StringVar(&dueCollection, "collection", "", "Only cards from this collection")
	dueCmd.Flags().IntVar(&dueLimit, "limit", 0, "Maximum number of cards (0 for all)")
	statsCmd.Flags().StringVar(&statsCollection, "collection", "", "Only cards from this collection")
}
