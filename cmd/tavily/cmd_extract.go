package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/kitbuilder587/tavily-go/tavily"
)

func cmdExtract() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "extract page content from one or more URLs",
		ArgsUsage: "<url> [url...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "depth", Usage: "extract depth: basic or advanced"},
			&cli.StringFlag{Name: "format", Usage: "markdown or text"},
			&cli.BoolFlag{Name: "images", Usage: "include images"},
			&cli.BoolFlag{Name: "favicon", Usage: "include favicons"},
			&cli.BoolFlag{Name: "usage", Usage: "include credit usage"},
			&cli.DurationFlag{Name: "timeout", Usage: "request timeout (capped at 120s)"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			resp, err := a.client.Extract(ctx, tavily.ExtractRequest{
				URLs:           cmd.Args().Slice(),
				ExtractDepth:   tavily.ExtractDepth(cmd.String("depth")),
				Format:         tavily.Format(cmd.String("format")),
				IncludeImages:  cmd.Bool("images"),
				IncludeFavicon: cmd.Bool("favicon"),
				IncludeUsage:   cmd.Bool("usage"),
				Timeout:        cmd.Duration("timeout"),
			})
			if err != nil {
				return err
			}
			return a.printJSON(resp)
		}),
	}
}

// siteFlags are shared by crawl and map.
func siteFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "max-depth", Usage: "how many links deep to go"},
		&cli.IntFlag{Name: "max-breadth", Usage: "links to follow per page"},
		&cli.IntFlag{Name: "limit", Usage: "total pages to visit"},
		&cli.StringFlag{Name: "instructions", Usage: "natural language guidance for the crawler"},
		&cli.StringSliceFlag{Name: "select-path", Usage: "regex of paths to include"},
		&cli.StringSliceFlag{Name: "select-domain", Usage: "regex of domains to include"},
		&cli.StringSliceFlag{Name: "exclude-path", Usage: "regex of paths to skip"},
		&cli.StringSliceFlag{Name: "exclude-domain", Usage: "regex of domains to skip"},
		&cli.BoolFlag{Name: "allow-external", Usage: "follow links to other domains"},
		&cli.StringSliceFlag{Name: "category", Usage: "page category filter, e.g. Documentation"},
		&cli.DurationFlag{Name: "timeout", Usage: "request timeout (capped at 120s)"},
	}
}

func categories(cmd *cli.Command) []tavily.Category {
	raw := cmd.StringSlice("category")
	if len(raw) == 0 {
		return nil
	}
	out := make([]tavily.Category, len(raw))
	for i, c := range raw {
		out[i] = tavily.Category(c)
	}
	return out
}

func cmdCrawl() *cli.Command {
	return &cli.Command{
		Name:      "crawl",
		Usage:     "crawl a site and extract the pages",
		ArgsUsage: "<url>",
		Flags: append(siteFlags(),
			&cli.StringFlag{Name: "depth", Usage: "extract depth: basic or advanced"},
			&cli.StringFlag{Name: "format", Usage: "markdown or text"},
			&cli.BoolFlag{Name: "images", Usage: "include images"},
			&cli.BoolFlag{Name: "favicon", Usage: "include favicons"},
		),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			resp, err := a.client.Crawl(ctx, tavily.CrawlRequest{
				URL:            cmd.Args().First(),
				MaxDepth:       cmd.Int("max-depth"),
				MaxBreadth:     cmd.Int("max-breadth"),
				Limit:          cmd.Int("limit"),
				Instructions:   cmd.String("instructions"),
				SelectPaths:    cmd.StringSlice("select-path"),
				SelectDomains:  cmd.StringSlice("select-domain"),
				ExcludePaths:   cmd.StringSlice("exclude-path"),
				ExcludeDomains: cmd.StringSlice("exclude-domain"),
				AllowExternal:  optionalBool(cmd, "allow-external"),
				IncludeImages:  optionalBool(cmd, "images"),
				Categories:     categories(cmd),
				ExtractDepth:   tavily.ExtractDepth(cmd.String("depth")),
				Format:         tavily.Format(cmd.String("format")),
				IncludeFavicon: optionalBool(cmd, "favicon"),
				Timeout:        cmd.Duration("timeout"),
			})
			if err != nil {
				return err
			}
			return a.printJSON(resp)
		}),
	}
}

func cmdMap() *cli.Command {
	return &cli.Command{
		Name:      "map",
		Usage:     "list the URLs reachable from a site",
		ArgsUsage: "<url>",
		Flags:     siteFlags(),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			resp, err := a.client.Map(ctx, tavily.MapRequest{
				URL:            cmd.Args().First(),
				MaxDepth:       cmd.Int("max-depth"),
				MaxBreadth:     cmd.Int("max-breadth"),
				Limit:          cmd.Int("limit"),
				Instructions:   cmd.String("instructions"),
				SelectPaths:    cmd.StringSlice("select-path"),
				SelectDomains:  cmd.StringSlice("select-domain"),
				ExcludePaths:   cmd.StringSlice("exclude-path"),
				ExcludeDomains: cmd.StringSlice("exclude-domain"),
				AllowExternal:  optionalBool(cmd, "allow-external"),
				Categories:     categories(cmd),
				Timeout:        cmd.Duration("timeout"),
			})
			if err != nil {
				return err
			}
			return a.printJSON(resp)
		}),
	}
}
