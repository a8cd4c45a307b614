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

	"github.com/joho/godotenv"

	"datapi-mcp-server/internal/application"
	"datapi-mcp-server/internal/domain"
	"datapi-mcp-server/internal/infrastructure"
	"datapi-mcp-server/internal/observe"
)

func main() {
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(*configPath, *envFile); err != nil {
		slog.Error("server failed", "err", err)
		if errors.Is(err, domain.ErrConfigurationMissing) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run wires the server together and blocks until shutdown.
func run(configPath, envFile string) error {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	config, err := domain.LoadConfig(configPath, os.LookupEnv)
	if err != nil {
		return err
	}
	slog.Info("configuration loaded", "datapi_url", config.Datapi.URL, "transport", config.Transport.Type)

	provider, err := observe.InitProvider(observe.ProviderConfig{
		ServiceName:    application.ServerName,
		ServiceVersion: application.ServerVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("telemetry shutdown failed", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	authManager := domain.NewAuthenticationManagerFromConfig(config, observe.InstrumentTransport(nil, metrics))
	httpClient, err := authManager.GetAuthenticatedClient()
	if err != nil {
		return fmt.Errorf("failed to create authenticated client: %w", err)
	}

	client := infrastructure.NewDatapiClient(config.Datapi.URL, httpClient, config.Datapi.DownloadDir)
	mapper := domain.NewResponseMapper()
	handler := application.NewDatapiHandler(client, mapper)

	router, err := application.NewRequestRouter(metrics, handler)
	if err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	slog.Info("tools registered", "count", len(router.ListAllTools()))

	var transport domain.Transport
	switch config.Transport.Type {
	case "stdio":
		transport = domain.NewStdioTransport()
	case "http":
		var opts []domain.HTTPOption
		if config.Metrics.Enabled {
			opts = append(opts, domain.WithRoute(config.Metrics.Path, provider.MetricsHandler()))
		}
		transport = domain.NewHTTPTransport(config.Transport.HTTP.Host, config.Transport.HTTP.Port, opts...)
	default:
		return fmt.Errorf("invalid transport type: %s", config.Transport.Type)
	}
	if config.Metrics.Enabled && config.Transport.Type != "http" {
		slog.Warn("metrics endpoint requires the http transport; not serving it")
	}

	server := application.NewServer(transport, router, mapper, config, application.NewStructuredLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	if config.Transport.Type == "http" {
		slog.Info("MCP server started", "addr", fmt.Sprintf("%s:%d", config.Transport.HTTP.Host, config.Transport.HTTP.Port))
	} else {
		slog.Info("MCP server started on stdio")
	}

	// Stdio ends at EOF; both transports end on a signal.
	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case <-server.Done():
		slog.Info("request stream closed")
	}
	stop()

	if err := server.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	<-server.Done()

	slog.Info("server shutdown complete")
	return nil
}
