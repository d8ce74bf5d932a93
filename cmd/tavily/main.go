package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newRootCmd().Run(context.Background(), os.Args); err != nil {
		cli.HandleExitCoder(err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:    "tavily",
		Usage:   "Tavily search, extract, crawl and research from the command line",
		Version: resolveVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML config file", Sources: cli.EnvVars("TAVILY_CONFIG")},
			&cli.StringFlag{Name: "log-level", Usage: "override log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address while the command runs"},
		},
		Commands: []*cli.Command{
			cmdVersion(),
			cmdSearch(),
			cmdContext(),
			cmdQnA(),
			cmdCompany(),
			cmdExtract(),
			cmdCrawl(),
			cmdMap(),
			cmdResearch(),
			cmdResearchGet(),
			cmdHybrid(),
			cmdTokens(),
		},
	}
}
