// clinicod serves the clinical workflow API: grounded Q&A over patient
// context and structured document generation from consultation transcripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/clinicoai/clinico-go/agent"
	"github.com/clinicoai/clinico-go/config"
	"github.com/clinicoai/clinico-go/docgen"
	"github.com/clinicoai/clinico-go/graph"
	"github.com/clinicoai/clinico-go/graph/emit"
	"github.com/clinicoai/clinico-go/httpapi"
	"github.com/clinicoai/clinico-go/model"
	anthropicmodel "github.com/clinicoai/clinico-go/model/anthropic"
	googlemodel "github.com/clinicoai/clinico-go/model/google"
	openaimodel "github.com/clinicoai/clinico-go/model/openai"
	"github.com/clinicoai/clinico-go/retrieval"
	"github.com/clinicoai/clinico-go/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "clinicod:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatModel, closeModel, err := newChatModel(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeModel()

	registry := prometheus.NewRegistry()
	metrics := graph.NewMetrics(registry)

	emitter := emit.Emitter(emit.NewLogEmitter(os.Stderr, cfg.Telemetry.LogJSON))
	if cfg.Telemetry.OTelEnabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		emitter = emit.Multi(emitter, emit.NewOTelEmitter(otel.Tracer("clinico")))
	}

	runOpts := []graph.RunOption{
		graph.WithEmitter(emitter),
		graph.WithMetrics(metrics),
		graph.WithMaxSteps(cfg.Engine.MaxSteps),
	}
	if d := cfg.NodeTimeout(); d > 0 {
		runOpts = append(runOpts, graph.WithNodeTimeout(d))
	}

	retriever := retrieval.NewHTTP(cfg.Retrieval.BaseURL,
		retrieval.WithHTTPClient(&http.Client{Timeout: cfg.RetrievalTimeout()}),
		retrieval.WithRetries(cfg.Retrieval.Retries),
	)

	chatAgent, err := agent.New(chatModel, retriever, agent.WithRunOptions(runOpts...))
	if err != nil {
		return err
	}

	pipeline, err := docgen.New(chatModel, docgen.WithRunOptions(runOpts...))
	if err != nil {
		return err
	}

	serverOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithRegistry(registry),
	}
	if cfg.Server.CheckAPIKey {
		key := os.Getenv("CLINICO_AI_API_KEY")
		if key == "" {
			return errors.New("server.check_api_key is enabled but CLINICO_AI_API_KEY is not set")
		}
		serverOpts = append(serverOpts, httpapi.WithAPIKey(key))
	}

	archive, err := newArchive(cfg.Archive)
	if err != nil {
		return err
	}
	if archive != nil {
		defer func() { _ = archive.Close() }()
		serverOpts = append(serverOpts, httpapi.WithArchive(archive))
	}

	api := httpapi.NewServer(chatAgent, pipeline, serverOpts...)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "provider", cfg.LLM.Provider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Telemetry) *slog.Logger {
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// chatProvider is the combined surface the agent and pipeline need.
type chatProvider interface {
	model.ChatModel
	model.StructuredModel
}

func newChatModel(ctx context.Context, cfg config.Config) (chatProvider, func(), error) {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, nil, fmt.Errorf("llm api key env %q is empty", cfg.LLM.APIKeyEnv)
	}

	switch cfg.LLM.Provider {
	case "openai":
		return openaimodel.New(apiKey, cfg.LLM.Model), func() {}, nil
	case "anthropic":
		return anthropicmodel.New(apiKey, cfg.LLM.Model), func() {}, nil
	case "google":
		m, err := googlemodel.New(ctx, apiKey, cfg.LLM.Model)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = m.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func newArchive(cfg config.Archive) (store.Store, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "memory":
		return store.NewMemStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.DSN)
	case "mysql":
		return store.NewMySQLStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
