package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kitbuilder587/tavily-go/hybrid"
	"github.com/kitbuilder587/tavily-go/hybrid/openaiembed"
	"github.com/kitbuilder587/tavily-go/hybrid/postgres"
	"github.com/kitbuilder587/tavily-go/hybrid/sqlite"
	"github.com/kitbuilder587/tavily-go/tavily"
)

func cmdHybrid() *cli.Command {
	return &cli.Command{
		Name:      "hybrid",
		Usage:     "search the local vector store and the web together",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Usage: "override the store driver: sqlite or postgres"},
			&cli.IntFlag{Name: "max-results", Aliases: []string{"n"}, Usage: "documents to return (default 10)"},
			&cli.IntFlag{Name: "max-local", Usage: "local candidates; 0 skips the store"},
			&cli.IntFlag{Name: "max-foreign", Usage: "web candidates; 0 skips the web"},
			&cli.BoolFlag{Name: "save-foreign", Usage: "write web results back to the store"},
			&cli.StringFlag{Name: "depth", Usage: "web search depth: basic or advanced"},
			&cli.StringFlag{Name: "topic", Usage: "web search topic"},
			&cli.BoolFlag{Name: "migrate", Usage: "create the postgres table if it is missing"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			driver := a.cfg.Store.Driver
			if d := cmd.String("store"); d != "" {
				driver = d
			}
			store, err := a.openStore(ctx, driver, cmd.Bool("migrate"))
			if err != nil {
				return err
			}

			embedder, err := openaiembed.New(openaiembed.Config{
				APIKey:  a.cfg.OpenAI.APIKey,
				BaseURL: a.cfg.OpenAI.BaseURL,
				Model:   a.cfg.OpenAI.EmbeddingModel,
			})
			if err != nil {
				return err
			}

			hc, err := hybrid.New(ctx, a.client, store, embedder, hybrid.WithLogger(a.logger))
			if err != nil {
				return err
			}

			opts := hybrid.SearchOptions{
				MaxResults:  cmd.Int("max-results"),
				SaveForeign: cmd.Bool("save-foreign"),
				Request: tavily.SearchRequest{
					SearchDepth: tavily.SearchDepth(cmd.String("depth")),
					Topic:       tavily.Topic(cmd.String("topic")),
				},
			}
			if cmd.IsSet("max-local") {
				opts.MaxLocal = hybrid.Limit(cmd.Int("max-local"))
			}
			if cmd.IsSet("max-foreign") {
				opts.MaxForeign = hybrid.Limit(cmd.Int("max-foreign"))
			}

			docs, err := hc.Search(ctx, strings.Join(cmd.Args().Slice(), " "), opts)
			if err != nil {
				return err
			}
			return a.printJSON(docs)
		}),
	}
}

// openStore opens the configured store and registers its cleanup on a.
func (a *app) openStore(ctx context.Context, driver string, migrate bool) (hybrid.Store, error) {
	switch driver {
	case "sqlite":
		s, err := sqlite.Open(a.cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		a.logger.Debug("using sqlite store", zap.String("path", a.cfg.Store.SQLitePath))
		return s, nil

	case "postgres":
		db, err := postgres.New(ctx, a.cfg.Store.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		s := postgres.NewStore(db, postgres.WithTable(a.cfg.Store.Table))
		if migrate {
			if err := s.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		a.logger.Debug("using postgres store", zap.String("table", a.cfg.Store.Table))
		return s, nil

	default:
		return nil, cli.Exit(fmt.Sprintf("unknown store driver %q", driver), 2)
	}
}
