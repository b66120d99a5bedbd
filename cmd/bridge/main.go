// Command bridge is the main entry point for the realtime audio bridge: it
// accepts AudioSocket connections from the SIP PBX, bridges each one to a
// configured realtime AI provider, and drives the call end to end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxbridge/realtime-bridge/internal/bridge"
	"github.com/voxbridge/realtime-bridge/internal/config"
	"github.com/voxbridge/realtime-bridge/internal/health"
	"github.com/voxbridge/realtime-bridge/internal/ingress"
	"github.com/voxbridge/realtime-bridge/internal/observe"
	"github.com/voxbridge/realtime-bridge/internal/resilience"
	"github.com/voxbridge/realtime-bridge/internal/sink"
	"github.com/voxbridge/realtime-bridge/internal/tools"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/appointment"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/callback"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/docsearch"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/endcall"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/lead"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/surveyanswer"
	"github.com/voxbridge/realtime-bridge/internal/tools/builtin/transfer"
	"github.com/voxbridge/realtime-bridge/internal/tools/crm"
	"github.com/voxbridge/realtime-bridge/internal/tools/webhook"
	"github.com/voxbridge/realtime-bridge/pkg/kv"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime/gemini"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime/openai"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime/ultravox"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime/xai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "bridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("realtime bridge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"admin_addr", cfg.Server.AdminAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "realtime-bridge"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	kvStore := kv.New(kv.Config{
		Addr:        cfg.KV.Addr,
		Password:    cfg.KV.Password,
		DB:          cfg.KV.DB,
		DialTimeout: cfg.KV.DialTimeout,
	})

	providers := buildProviders(cfg)
	cbCfg := resilience.CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second}
	registry := bridge.NewRegistry(providers, cfg.Providers.Primary, cfg.Providers.Fallback, cbCfg)
	calls := bridge.NewCallRegistry()

	dispatcher := tools.NewDispatcher(tools.WithTimeout(cfg.Tools.CallTimeout))
	crmStore := crm.New(crm.Config{BaseURL: cfg.Tools.WebhookBaseURL, Timeout: cfg.Tools.CallTimeout})
	var defs []tools.Definition
	defs = append(defs, endcall.Tools(calls)...)
	defs = append(defs, transfer.Tools(calls)...)
	defs = append(defs, surveyanswer.Tools(crmStore)...)
	defs = append(defs, appointment.Tools(crmStore)...)
	defs = append(defs, lead.Tools(crmStore)...)
	defs = append(defs, callback.Tools(crmStore)...)
	defs = append(defs, docsearch.Tools(crmStore)...)

	webhookDispatcher := webhook.New(webhook.Config{BaseURL: cfg.Tools.WebhookBaseURL, Timeout: cfg.Tools.CallTimeout})
	for _, ext := range cfg.Tools.External {
		defs = append(defs, webhookDispatcher.Tool(ext.Name, ext.Description, ext.Path, ext.Parameters))
	}

	schemas := tools.RegisterAll(dispatcher, defs)

	svc := &bridge.Service{
		Registry:    registry,
		Calls:       calls,
		Dispatcher:  dispatcher,
		ToolSchemas: schemas,
		KV:          kvStore,
		Recording:   sink.NewRecordingSink(kvStore),
		Transcripts: sink.NewTranscriptSink(kvStore),
		Costs:       sink.NewCostSink(kvStore),
		Metrics:     metrics,
	}

	// activeCalls lets shutdown wait for in-flight calls to wind down
	// (each one's context is cancelled as soon as ctx is, via
	// bridge.Driver.run's derived callCtx) instead of exiting mid-call.
	var activeCalls sync.WaitGroup
	handleConn := func(ctx context.Context, conn net.Conn) {
		activeCalls.Add(1)
		defer activeCalls.Done()
		svc.HandleConn(ctx, conn)
	}
	ingressSrv := ingress.NewServer(cfg.Server.ListenAddr, handleConn)

	adminMux := http.NewServeMux()
	healthHandler := health.New(health.Checker{
		Name: "kv",
		Check: func(ctx context.Context) error {
			return kvStore.Ping(ctx)
		},
	})
	adminMux.HandleFunc("/healthz", healthHandler.Healthz)
	adminMux.HandleFunc("/readyz", healthHandler.Readyz)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:    cfg.Server.AdminAddr,
		Handler: observe.Middleware(metrics)(adminMux),
	}

	errCh := make(chan error, 2)
	go func() {
		if err := ingressSrv.Serve(ctx); err != nil {
			errCh <- fmt.Errorf("ingress server: %w", err)
		}
	}()
	go func() {
		slog.Info("admin server started", "addr", cfg.Server.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	slog.Info("bridge ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	grace := cfg.Server.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("admin server shutdown error", "err", err)
	}

	callsDone := make(chan struct{})
	go func() {
		activeCalls.Wait()
		close(callsDone)
	}()
	select {
	case <-callsDone:
	case <-shutdownCtx.Done():
		slog.Warn("shutdown grace period exceeded, forcing exit with calls still active")
	}

	slog.Info("goodbye")
	return 0
}

// buildProviders constructs every realtime provider adapter whose
// configuration entry has an API key, keyed by the name [bridge.Registry]
// expects.
func buildProviders(cfg *config.Config) map[string]realtime.Provider {
	providers := make(map[string]realtime.Provider)

	if e := cfg.Providers.OpenAI; e.APIKey != "" {
		var opts []openai.Option
		if e.Model != "" {
			opts = append(opts, openai.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		providers["openai"] = openai.New(e.APIKey, opts...)
	}
	if e := cfg.Providers.XAI; e.APIKey != "" {
		var opts []xai.Option
		if e.Model != "" {
			opts = append(opts, xai.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, xai.WithBaseURL(e.BaseURL))
		}
		providers["xai"] = xai.New(e.APIKey, opts...)
	}
	if e := cfg.Providers.Gemini; e.APIKey != "" {
		var opts []gemini.Option
		if e.Model != "" {
			opts = append(opts, gemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(e.BaseURL))
		}
		providers["gemini"] = gemini.New(e.APIKey, opts...)
	}
	if e := cfg.Providers.Ultravox; e.APIKey != "" {
		var opts []ultravox.Option
		if e.BaseURL != "" {
			opts = append(opts, ultravox.WithBaseURL(e.BaseURL))
		}
		providers["ultravox"] = ultravox.New(e.APIKey, opts...)
	}

	for name, p := range providers {
		slog.Info("provider configured", "provider", name, "name", p.Name())
	}
	return providers
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
