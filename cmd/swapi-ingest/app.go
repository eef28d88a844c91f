package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/swapi-ingest/internal/config"
	"github.com/Sternrassler/swapi-ingest/pkg/logging"
	"github.com/Sternrassler/swapi-ingest/pkg/pipeline"
	"github.com/Sternrassler/swapi-ingest/pkg/planet"
	"github.com/Sternrassler/swapi-ingest/pkg/snapshot"
	"github.com/urfave/cli/v2"
)

const configKey = "config"

// errNoStore backs the snapshot command, which never opens a store session.
var errNoStore = errors.New("no store configured for this command")

func newApp() *cli.App {
	return &cli.App{
		Name:    "swapi-ingest",
		Usage:   "Ingest SWAPI planets into PostgreSQL and snapshot the raw listing",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (trace, debug, info, warn, error); overrides LOG_LEVEL",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Run one ingestion: snapshot the index, paginate, normalize and upsert",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max-items",
						Usage: "Cap on items attempted (0 = unlimited); overrides INGEST_MAX_ITEMS",
					},
				},
			},
			{
				Name:   "snapshot",
				Usage:  "Fetch one document and store it as a snapshot",
				Action: snapshotCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "URL to fetch (defaults to SWAPI_BASE_URL)",
					},
				},
			},
			{
				Name:   "snapshots",
				Usage:  "List stored snapshots",
				Action: snapshotsCommand,
			},
			{
				Name:   "planets",
				Usage:  "List stored planets ordered by name",
				Action: planetsCommand,
			},
			{
				Name:   "version",
				Usage:  "Print the version",
				Action: versionCommand,
			},
			{
				Name:   "serve",
				Usage:  "Serve /health, /ready and /metrics",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address; overrides HTTP_LISTEN_ADDR",
					},
				},
			},
		},
	}
}

// setup loads configuration and configures logging before any command runs.
func setup(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = logging.LogLevel(lvl)
		if err := cfg.LogLevel.Validate(); err != nil {
			return cli.Exit(fmt.Sprintf("invalid --log-level: %v", err), 1)
		}
	}
	logging.Setup(cfg.Logging())

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) config.Config {
	cfg, _ := c.App.Metadata[configKey].(config.Config)
	return cfg
}

func userAgent() string {
	return "swapi-ingest/" + Version
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("max-items") {
		cfg.MaxItems = c.Int("max-items")
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if cfg.DatabaseDSN == "" {
		return cli.Exit("DB_DSN is required for ingest", 1)
	}

	ctx, stop := signalContext(c)
	defer stop()

	deps, err := openDeps(ctx, cfg, true)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer deps.Close()

	orch, err := deps.orchestrator(cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	summary, runErr := orch.Run(ctx)
	if err := writeJSON(c.App.Writer, summary); err != nil {
		return err
	}
	switch {
	case runErr != nil:
		return cli.Exit(fmt.Sprintf("run failed: %v", runErr), 1)
	case summary.Status == pipeline.StatusPartial:
		return cli.Exit(fmt.Sprintf("run finished with %d failed items", summary.FailedCount), 2)
	}
	return nil
}

func snapshotCommand(c *cli.Context) error {
	cfg := configFrom(c)

	ctx, stop := signalContext(c)
	defer stop()

	deps, err := openDeps(ctx, cfg, false)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer deps.Close()

	orch, err := deps.orchestrator(cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	snap, err := orch.Snapshot(ctx, c.String("url"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("snapshot failed: %v", err), 1)
	}
	return writeJSON(c.App.Writer, map[string]any{
		"status":    "success",
		"message":   fmt.Sprintf("Data downloaded and stored as %s", snap.Filename),
		"filename":  snap.Filename,
		"timestamp": snap.Timestamp(),
	})
}

func snapshotsCommand(c *cli.Context) error {
	cfg := configFrom(c)

	blobs, err := openBlobStore(c.Context, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer blobs.Close()

	snaps, err := snapshot.NewWriter(blobs, snapshot.WithPrefix(cfg.SnapshotPrefix)).List(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list snapshots: %v", err), 1)
	}
	if snaps == nil {
		snaps = []snapshot.Snapshot{}
	}
	return writeJSON(c.App.Writer, snaps)
}

func planetsCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.DatabaseDSN == "" {
		return cli.Exit("DB_DSN is required for planets", 1)
	}

	db, err := openStore(c.Context, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer db.Close()

	planets, err := db.List(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list planets: %v", err), 1)
	}
	if planets == nil {
		planets = []*planet.Planet{}
	}
	return writeJSON(c.App.Writer, planets)
}

func versionCommand(c *cli.Context) error {
	_, err := fmt.Fprintln(c.App.Writer, Version)
	return err
}
