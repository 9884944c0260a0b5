package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/eventsift/eventsift/pkg/api"
	"github.com/eventsift/eventsift/pkg/clickhouse"
	"github.com/eventsift/eventsift/pkg/config"
	"github.com/urfave/cli/v3"
)

// NB: These are set by GoReleaser during a build.
var (
	version string
	commit  string
	date    string
)

func main() {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", version)
		fmt.Fprintln(cmd.Writer, "Commit:", commit)
		fmt.Fprintln(cmd.Writer, "Date:", date)
	}

	app := &cli.Command{
		Name:  "eventsift",
		Usage: "A query service for event data stored in ClickHouse",
		Description: `eventsift accepts structured query requests over HTTP, compiles them
into ClickHouse SQL and executes them against the configured cluster.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "the eventsift config file",
				Sources: cli.EnvVars("EVENTSIFT_CONFIG"),
				Value:   "eventsift.yaml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the query API server",
				Action: serve,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadFile(cmd.String("config"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	client, err := clickhouse.NewClient(ctx, clickhouse.Options{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	server := api.NewServer(client, cfg.ClickHouse.Table, logger)

	logger.Info("listening",
		"addr", cfg.ListenAddr,
		"clickhouse", cfg.ClickHouse.Addr,
		"table", cfg.ClickHouse.Table,
	)
	return http.ListenAndServe(cfg.ListenAddr, server)
}
