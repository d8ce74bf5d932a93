package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kitbuilder587/tavily-go/tavily"
)

func searchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "depth", Usage: "search depth: basic or advanced"},
		&cli.StringFlag{Name: "topic", Usage: "general, news or finance"},
		&cli.StringFlag{Name: "time-range", Usage: "day, week, month or year"},
		&cli.IntFlag{Name: "days", Usage: "days back for the news topic"},
		&cli.IntFlag{Name: "max-results", Aliases: []string{"n"}, Usage: "number of results"},
		&cli.StringSliceFlag{Name: "include-domain", Usage: "only search these domains"},
		&cli.StringSliceFlag{Name: "exclude-domain", Usage: "never return these domains"},
		&cli.StringFlag{Name: "country", Usage: "boost results from this country"},
		&cli.IntFlag{Name: "chunks-per-source", Usage: "content chunks per source (advanced depth)"},
		&cli.BoolFlag{Name: "auto-parameters", Usage: "let the API pick parameters from the query"},
		&cli.DurationFlag{Name: "timeout", Usage: "request timeout (capped at 120s)"},
	}
}

func searchRequest(cmd *cli.Command) tavily.SearchRequest {
	return tavily.SearchRequest{
		Query:           strings.Join(cmd.Args().Slice(), " "),
		SearchDepth:     tavily.SearchDepth(cmd.String("depth")),
		Topic:           tavily.Topic(cmd.String("topic")),
		TimeRange:       tavily.TimeRange(cmd.String("time-range")),
		Days:            cmd.Int("days"),
		MaxResults:      cmd.Int("max-results"),
		IncludeDomains:  cmd.StringSlice("include-domain"),
		ExcludeDomains:  cmd.StringSlice("exclude-domain"),
		Country:         cmd.String("country"),
		ChunksPerSource: cmd.Int("chunks-per-source"),
		AutoParameters:  cmd.Bool("auto-parameters"),
		Timeout:         cmd.Duration("timeout"),
	}
}

func cmdSearch() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "run a web search and print the JSON response",
		ArgsUsage: "<query>",
		Flags: append(searchFlags(),
			&cli.StringFlag{Name: "answer", Usage: "include a generated answer: basic or advanced"},
			&cli.BoolFlag{Name: "raw", Usage: "include raw page content"},
			&cli.BoolFlag{Name: "images", Usage: "include images"},
			&cli.BoolFlag{Name: "image-descriptions", Usage: "describe included images"},
			&cli.BoolFlag{Name: "favicon", Usage: "include favicons"},
		),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			req := searchRequest(cmd)
			req.IncludeAnswer = tavily.AnswerMode(cmd.String("answer"))
			req.IncludeRawContent = cmd.Bool("raw")
			req.IncludeImages = cmd.Bool("images")
			req.IncludeImageDescriptions = cmd.Bool("image-descriptions")
			req.IncludeFavicon = cmd.Bool("favicon")

			resp, err := a.client.Search(ctx, req)
			if err != nil {
				return err
			}
			return a.printJSON(resp)
		}),
	}
}

func cmdContext() *cli.Command {
	return &cli.Command{
		Name:      "context",
		Usage:     "print search results packed into a token budget, for RAG prompts",
		ArgsUsage: "<query>",
		Flags: append(searchFlags(),
			&cli.IntFlag{Name: "max-tokens", Usage: "token budget for the packed results (default 4000)"},
		),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			out, err := a.client.GetSearchContext(ctx, tavily.SearchContextRequest{
				SearchRequest: searchRequest(cmd),
				MaxTokens:     cmd.Int("max-tokens"),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, out)
			return err
		}),
	}
}

func cmdQnA() *cli.Command {
	return &cli.Command{
		Name:      "qna",
		Usage:     "print a short answer to a question",
		ArgsUsage: "<question>",
		Flags:     searchFlags(),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			answer, err := a.client.QnASearch(ctx, searchRequest(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, answer)
			return err
		}),
	}
}

func cmdCompany() *cli.Command {
	return &cli.Command{
		Name:      "company",
		Usage:     "search news, general and finance sources about a company",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "depth", Usage: "search depth: basic or advanced"},
			&cli.IntFlag{Name: "max-results", Aliases: []string{"n"}, Usage: "number of results (default 5)"},
			&cli.DurationFlag{Name: "timeout", Usage: "request timeout per topic"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			results, err := a.client.GetCompanyInfo(ctx, tavily.CompanyInfoRequest{
				Query:       strings.Join(cmd.Args().Slice(), " "),
				SearchDepth: tavily.SearchDepth(cmd.String("depth")),
				MaxResults:  cmd.Int("max-results"),
				Timeout:     cmd.Duration("timeout"),
			})
			if err != nil {
				return err
			}
			return a.printJSON(results)
		}),
	}
}
