package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/knolrep/internal/clock"
	"github.com/conorfennell/knolrep/internal/config"
	"github.com/conorfennell/knolrep/internal/logging"
	"github.com/conorfennell/knolrep/internal/review"
	"github.com/conorfennell/knolrep/internal/storage"
	cardsync "github.com/conorfennell/knolrep/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "knolrep",
	Short: "Spaced repetition for markdown flashcards",
	Long: `knolrep schedules Q:/A:/C: flashcards kept in local directories or git
repositories with the SM-2 algorithm.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(learnerCmd)
	rootCmd.AddCommand(dueCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// app holds what every command needs. It is built once per invocation
// from the merged configuration.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *storage.DB
	clock     clock.System
	reviews   *review.Service
	learnerID string
}

// current is the app of the running command; main closes it.
var current *app

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	c, err := clock.NewSystem(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Debug("database opened", "path", cfg.DB)

	learnerID, err := db.LearnerID(cmd.Context(), cfg.Learner)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		clock:     c,
		reviews:   review.NewService(db, c, log),
		learnerID: learnerID,
	}, nil
}

func (a *app) runner() *cardsync.Runner {
	return &cardsync.Runner{
		DB:          a.db,
		Reviews:     a.reviews,
		LearnerID:   a.learnerID,
		ReposDir:    a.cfg.ReposDir,
		Concurrency: a.cfg.SyncConcurrency,
		Clock:       a.clock,
		Log:         a.log,
	}
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", "error", err)
	}
}
