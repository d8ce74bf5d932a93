package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kitbuilder587/tavily-go/tavily"
)

func cmdResearch() *cli.Command {
	return &cli.Command{
		Name:      "research",
		Usage:     "start a research run; optionally stream it or wait for the result",
		ArgsUsage: "<input>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Usage: "mini, pro or auto"},
			&cli.StringFlag{Name: "citation-format", Usage: "numbered, mla, apa or chicago"},
			&cli.StringFlag{Name: "output-schema", Usage: "path to a JSON schema for structured output"},
			&cli.BoolFlag{Name: "stream", Usage: "print server-sent events as they arrive"},
			&cli.BoolFlag{Name: "wait", Usage: "poll until the run completes and print the result"},
			&cli.DurationFlag{Name: "poll-interval", Usage: "interval between polls with --wait"},
			&cli.DurationFlag{Name: "timeout", Usage: "request timeout (not capped for research)"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if cmd.Bool("stream") && cmd.Bool("wait") {
				return cli.Exit("--stream and --wait are mutually exclusive", 2)
			}

			schema, err := readSchema(cmd.String("output-schema"))
			if err != nil {
				return err
			}
			req := tavily.ResearchRequest{
				Input:          strings.Join(cmd.Args().Slice(), " "),
				Model:          tavily.ResearchModel(cmd.String("model")),
				CitationFormat: tavily.CitationFormat(cmd.String("citation-format")),
				OutputSchema:   schema,
				Timeout:        cmd.Duration("timeout"),
			}

			if cmd.Bool("stream") {
				return streamResearch(ctx, a, req)
			}

			task, err := a.client.Research(ctx, req)
			if err != nil {
				return err
			}
			if !cmd.Bool("wait") {
				return a.printJSON(task)
			}

			result, err := a.client.WaitResearch(ctx, task.RequestID, cmd.Duration("poll-interval"))
			if err != nil {
				return err
			}
			return a.printJSON(result)
		}),
	}
}

func cmdResearchGet() *cli.Command {
	return &cli.Command{
		Name:      "research-get",
		Usage:     "print the state of a research run",
		ArgsUsage: "<request-id>",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			result, err := a.client.GetResearch(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			return a.printJSON(result)
		}),
	}
}

func streamResearch(ctx context.Context, a *app, req tavily.ResearchRequest) error {
	stream, err := a.client.ResearchStream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Event != "" {
			fmt.Fprintf(a.out, "event: %s\n", ev.Event)
		}
		fmt.Fprintf(a.out, "data: %s\n\n", ev.Data)
	}
}

func readSchema(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read output schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse output schema %s: %w", path, err)
	}
	return schema, nil
}
