package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/logging"
	"github.com/Sternrassler/swapi-ingest/pkg/metrics"
	"github.com/Sternrassler/swapi-ingest/pkg/storage/postgres"
	"github.com/urfave/cli/v2"
)

// pinger is the readiness dependency. *postgres.Store implements it.
type pinger interface {
	Ping(ctx context.Context) error
}

func newMux(db pinger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(db))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "database not configured", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			http.Error(w, fmt.Sprintf("database not ready: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func serveCommand(c *cli.Context) error {
	cfg := configFrom(c)
	addr := cfg.ListenAddr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	logger := logging.NewLogger("server")

	ctx, stop := signalContext(c)
	defer stop()

	var db pinger
	if cfg.DatabaseDSN != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseDSN, postgres.WithLogger(logging.NewLogger("postgres")))
		if err != nil {
			// /ready reports it until the database comes up
			logger.Warn().Err(err).Msg("Database unavailable at startup")
		} else {
			defer store.Close()
			db = store
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(db),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting ops server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return cli.Exit(fmt.Sprintf("server failed: %v", err), 1)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down ops server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
