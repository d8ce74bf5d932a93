package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/kitbuilder587/tavily-go/internal/cache/memory"
	"github.com/kitbuilder587/tavily-go/internal/config"
	"github.com/kitbuilder587/tavily-go/internal/metrics"
	"github.com/kitbuilder587/tavily-go/internal/ratelimit"
	"github.com/kitbuilder587/tavily-go/tavily"
)

const cacheMaxEntries = 1000

// app holds everything a command needs to talk to Tavily.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *tavily.Client
	out     io.Writer
	closers []func()
}

// withApp loads config, builds the client and closes it after fn returns.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, cmd, a)
	}
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if addr := cmd.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, out: cmd.Root().Writer}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	clientCfg := tavily.Config{
		APIKey:  cfg.Tavily.APIKey,
		BaseURL: cfg.Tavily.BaseURL,
		Proxies: tavily.Proxies{
			HTTP:  cfg.Tavily.HTTPProxy,
			HTTPS: cfg.Tavily.HTTPSProxy,
		},
		MaxRetries:               cfg.Tavily.MaxRetries,
		DisableRetries:           cfg.Tavily.MaxRetries == 0,
		SkipContentNormalization: cfg.Tavily.SkipNormalize,
		ClientSource:             cfg.Tavily.ClientSource,
	}

	if cfg.Cache.Type == "memory" {
		c := memory.New(memory.WithMaxEntries(cacheMaxEntries))
		a.closers = append(a.closers, c.Stop)
		clientCfg.Cache = c
		clientCfg.CacheTTL = cfg.Cache.TTL
	}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		l := ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute})
		a.closers = append(a.closers, l.Stop)
		clientCfg.Limiter = l
	}
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		clientCfg.Metrics = metrics.New(reg)
		if err := a.serveMetrics(cfg.Metrics.Addr, reg); err != nil {
			a.close()
			return nil, err
		}
	}

	client, err := tavily.New(clientCfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	return a, nil
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return nil
}

// close runs closers in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) printJSON(v any) error {
	return writeJSON(a.out, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optionalBool maps an explicitly set flag to a pointer, nil otherwise.
func optionalBool(cmd *cli.Command, name string) *bool {
	if !cmd.IsSet(name) {
		return nil
	}
	return tavily.Bool(cmd.Bool(name))
}
