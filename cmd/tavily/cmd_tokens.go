package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kitbuilder587/tavily-go/tokens"
)

func cmdTokens() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "count or truncate text by tokens (reads stdin when no text is given)",
		Commands: []*cli.Command{
			{
				Name:      "count",
				Usage:     "print the token count",
				ArgsUsage: "[text]",
				Flags:     []cli.Flag{modelFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					tk, text, err := tokenizerAndText(cmd)
					if err != nil {
						return err
					}
					n, err := tk.Count(text)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, n)
					return err
				},
			},
			{
				Name:      "truncate",
				Usage:     "print the text cut to at most --max tokens",
				ArgsUsage: "[text]",
				Flags: []cli.Flag{
					modelFlag(),
					&cli.IntFlag{Name: "max", Value: tokens.DefaultMaxTokens, Usage: "token limit"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					tk, text, err := tokenizerAndText(cmd)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.Root().Writer, tk.Truncate(text, cmd.Int("max")))
					return err
				},
			},
		},
	}
}

func modelFlag() cli.Flag {
	return &cli.StringFlag{Name: "model", Value: tokens.DefaultModelEncoding, Usage: "model whose tokenizer to use"}
}

func tokenizerAndText(cmd *cli.Command) (*tokens.Tiktoken, string, error) {
	tk, err := tokens.NewTiktoken(cmd.String("model"))
	if err != nil {
		return nil, "", err
	}
	if cmd.NArg() > 0 {
		return tk, strings.Join(cmd.Args().Slice(), " "), nil
	}
	data, err := io.ReadAll(cmd.Root().Reader)
	if err != nil {
		return nil, "", fmt.Errorf("read stdin: %w", err)
	}
	return tk, strings.TrimRight(string(data), "\n"), nil
}
