// Command gateway runs the messaging bridge: lifecycle controller, HTTP
// surface, and interactive console in one process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/chat-gateway/internal/config"
	"github.com/and161185/chat-gateway/internal/console"
	"github.com/and161185/chat-gateway/internal/gateway"
	"github.com/and161185/chat-gateway/internal/guard"
	"github.com/and161185/chat-gateway/internal/httpapi"
	"github.com/and161185/chat-gateway/internal/metrics"
	"github.com/and161185/chat-gateway/internal/owner"
	"github.com/and161185/chat-gateway/internal/reply"
	"github.com/and161185/chat-gateway/internal/status"
	"github.com/and161185/chat-gateway/internal/wire"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires the components, and serves until a signal
// or console exit.
func main() {
	configPath := flag.String("config", "", "optional YAML config overlay")
	flag.Parse()

	cfg := config.Load()
	if *configPath != "" {
		if err := cfg.ApplyFile(*configPath); err != nil {
			// Logger not built yet; this is startup misconfiguration.
			panic(err)
		}
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := status.New()
	owners := owner.New(cfg.StateDir, cfg.OwnerNumbers, cfg.OwnerJIDs, logger)
	owners.Load()
	st.SetOwners(owners.OwnerJIDs())

	replier, err := reply.New(cfg)
	if err != nil {
		logger.Fatal("reply backend", zap.Error(err))
	}

	met := metrics.NewProm("gateway")
	creds := wire.NewCredStore(cfg.StateDir)

	ctrl := gateway.New(gateway.Config{
		AllowGroups:     cfg.AllowGroups,
		MaxInboundChars: cfg.MaxInboundChars,
		ReplyMode:       cfg.ReplyMode,
		PrintQR:         true,
	}, gateway.Deps{
		Log:     logger,
		Status:  st,
		Owners:  owners,
		Guard:   guard.New(0, 0),
		Metrics: met,
		Dial:    wire.NewRelayDialer(cfg.RelayURL, creds, logger),
		Replier: replier,
	})

	srv, err := httpapi.New(cfg.Host, cfg.Port, cfg.AdminToken, st, ctrl, met, logger)
	if err != nil {
		// Insecure bind must abort before any traffic is accepted.
		logger.Fatal("http server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	if cfg.EnableConsole {
		go func() {
			console.New(os.Stdin, os.Stdout, ctrl, st, ".").Run(ctx)
			stop()
		}()
	} else {
		logger.Info("console disabled (ENABLE_CLI=false); use HTTP /init to start")
	}

	select {
	case <-ctx.Done():
		if err := <-errCh; err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
			_ = ctrl.Close()
			os.Exit(1)
		}
	}

	_ = ctrl.Close()
	logger.Info("shutdown complete")
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
