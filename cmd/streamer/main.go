package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/trade-sonic/quote-stream/internal/config"
	"github.com/trade-sonic/quote-stream/internal/credentials"
	"github.com/trade-sonic/quote-stream/internal/metrics"
	"github.com/trade-sonic/quote-stream/internal/runner"
	"github.com/trade-sonic/quote-stream/internal/session"
	"github.com/trade-sonic/quote-stream/internal/sink"
	"github.com/trade-sonic/quote-stream/internal/status"
	"github.com/trade-sonic/quote-stream/internal/transport"
)

const clientName = "quote-stream"

type flags struct {
	configPath string
	url        string
	targets    []string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "streamer",
		Short: "Stream quotes from a push market-data feed",
		Long: `streamer connects to a market-data websocket, authenticates, subscribes
to the requested symbols and writes every event to stdout. Events can also be
relayed to a NATS subject. The connection is re-established with exponential
backoff when it drops.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&f.url, "url", "", "feed websocket URL")
	cmd.Flags().StringSliceVarP(&f.targets, "target", "t", nil, "symbol to subscribe to (repeatable)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	return cmd
}

func loadConfig(f flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.url != "" {
		cfg.Feed.URL = f.url
	}
	if len(f.targets) > 0 {
		cfg.Feed.Targets = f.targets
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	out, handlers, closeSinks, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	opts := transport.Options{
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		Logger:           logger,
	}
	dial := func(ctx context.Context) (transport.Port, error) {
		logger.Info("connecting to feed", "url", cfg.Feed.URL)
		return transport.Dial(ctx, cfg.Feed.URL, opts)
	}

	r := runner.New(dial, runner.Config{
		Session: session.Config{
			Targets:          cfg.Feed.Targets,
			Protocol:         cfg.Protocol(),
			MaxIdleCycles:    cfg.Session.MaxIdleCycles,
			HandshakeTimeout: cfg.Session.HandshakeTimeout,
			QueueSize:        cfg.Session.QueueSize,
		},
		Credentials:  secretSource(cfg),
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		MaxAttempts:  cfg.Reconnect.MaxAttempts,

		// highs tracked before a reconnect are stale
		OnSessionStart: func(string) { handlers.Reset() },
		Logger:         logger,
		Metrics:        m,
	}, out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the status server stops once the runner does
	var wg sync.WaitGroup
	if cfg.Status.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		srv := status.NewServer(cfg.Status.Addr, status.NewRouter(r, reg), logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("status server error", "error", err)
				cancel()
			}
		}()
	}

	logger.Info("streamer started", "targets", cfg.Feed.Targets, "format", cfg.Output.Format)
	err = r.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil {
		logger.Error("streamer stopped", "error", err)
		return err
	}
	logger.Info("streamer stopped")
	return nil
}

// secretSource picks the configured secret, the token service or the
// environment, in that order.
func secretSource(cfg *config.Config) credentials.Source {
	switch {
	case cfg.Feed.Secret != "":
		return credentials.Static(cfg.Feed.Secret)
	case cfg.Feed.TokenServiceURL != "":
		return credentials.NewTokenService(cfg.Feed.TokenServiceURL, cfg.Feed.AccountType)
	default:
		return credentials.Env(cfg.Feed.SecretEnv)
	}
}

// buildSink returns the stdout writer, followed by a dispatcher for
// best-effort handlers such as the NATS relay and drawdown alerts.
func buildSink(cfg *config.Config, logger *slog.Logger) (session.Sink, *sink.Dispatcher, func(), error) {
	format, err := sink.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	writer := sink.NewWriter(os.Stdout, format)
	d := sink.NewDispatcher(logger)
	closeFn := func() {}

	if cfg.Alerts.MaxDrawdownPercent > 0 {
		dd, err := sink.NewDrawdown(cfg.Alerts.MaxDrawdownPercent, logger, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := d.RegisterHandler(dd); err != nil {
			return nil, nil, nil, fmt.Errorf("error registering drawdown alerts: %w", err)
		}
	}

	if cfg.NATS.URL != "" {
		relay, err := sink.DialNATS(cfg.NATS.URL, cfg.NATS.Subject, clientName)
		if err != nil {
			return nil, nil, nil, err
		}
		h := sink.NewHandler("nats", relay.Deliver)
		if err := d.RegisterHandler(h); err != nil {
			_ = relay.Close()
			return nil, nil, nil, fmt.Errorf("error registering nats relay: %w", err)
		}
		// stop relaying before the connection drains
		closeFn = func() {
			if err := d.UnregisterHandler(h.Name()); err != nil {
				logger.Warn("error unregistering nats relay", "error", err)
			}
			if err := relay.Close(); err != nil {
				logger.Warn("error closing nats connection", "error", err)
			}
		}
	}

	if len(d.ListHandlers()) == 0 {
		return writer, d, closeFn, nil
	}
	logger.Info("event handlers registered", "handlers", d.ListHandlers())
	return sink.Multi(writer, d), d, closeFn, nil
}
