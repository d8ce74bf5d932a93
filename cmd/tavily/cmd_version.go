package main

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kitbuilder587/tavily-go/tavily"
	"github.com/kitbuilder587/tavily-go/tokens"
)

const modulePath = "github.com/kitbuilder587/tavily-go"

var (
	version       = "dev" // set with -ldflags "-X main.version=..."
	readBuildInfo = debug.ReadBuildInfo
)

// buildInfo is what `tavily version` reports.
type buildInfo struct {
	Version      string
	Module       string
	GoVersion    string
	ClientSource string
	Tokenizer    string
}

func currentBuild() buildInfo {
	info := buildInfo{
		Version:      "dev",
		Module:       modulePath,
		GoVersion:    runtime.Version(),
		ClientSource: tavily.DefaultClientSource,
		Tokenizer:    tokens.DefaultModelEncoding,
	}

	bi, ok := readBuildInfo()
	if ok {
		if p := strings.TrimSpace(bi.Main.Path); p != "" {
			info.Module = p
		}
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
	}

	switch v := strings.TrimSpace(version); {
	case v != "" && v != "dev":
		info.Version = v
	case ok:
		if mv := strings.TrimSpace(bi.Main.Version); mv != "" && mv != "(devel)" {
			info.Version = mv
		}
	}
	return info
}

func resolveVersion() string {
	return currentBuild().Version
}

func cmdVersion() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print version, module and defaults sent to the API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			b := currentBuild()
			_, err := fmt.Fprintf(cmd.Root().Writer,
				"tavily %s\nmodule:        %s\ngo:            %s\nclient source: %s\ntokenizer:     %s\n",
				b.Version, b.Module, b.GoVersion, b.ClientSource, b.Tokenizer)
			return err
		},
	}
}
