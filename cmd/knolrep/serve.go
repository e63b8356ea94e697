package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/knolrep/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		server := &http.Server{
			Addr:              a.cfg.Addr,
			Handler:           web.NewServer(a.db, a.reviews, a.runner(), a.learnerID, a.log),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      5 * time.Minute, // POST /api/sync may clone repositories
			IdleTimeout:       60 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			a.log.Info("starting server", "address", a.cfg.Addr)
			errc <- server.ListenAndServe()
		}()

		select {
		case err := <-errc:
			return err
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		a.log.Info("shutting down server")
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}
