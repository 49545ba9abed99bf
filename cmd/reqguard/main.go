// Package main is the entry point for the request admission gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkadyev/reqguard/internal/admin"
	"github.com/arkadyev/reqguard/internal/circuitbreaker"
	"github.com/arkadyev/reqguard/internal/config"
	"github.com/arkadyev/reqguard/internal/dispatch"
	"github.com/arkadyev/reqguard/internal/gateway"
	"github.com/arkadyev/reqguard/internal/observability"
	"github.com/arkadyev/reqguard/internal/ratelimit"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)

	run(cfg, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("REQGUARD_CONFIG_PATH", "configs/reqguard.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("REQGUARD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("REQGUARD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("reqguard version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting reqguard",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}
	return cfg
}

// run assembles every component and blocks until shutdown.
func run(cfg *config.Config, logger observability.Logger) {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "reqguard",
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracing", observability.Error(err))
	}

	factory, err := ratelimit.NewFactory(cfg.Admission.Store, observability.ZapFrom(logger))
	if err != nil {
		logger.Fatal("failed to initialize rate limit store", observability.Error(err))
	}
	defer func() { _ = factory.Close() }()

	dispatcher, err := dispatch.FromConfig(cfg.Admission, factory, logger)
	if err != nil {
		logger.Fatal("failed to build admission rules", observability.Error(err))
	}

	var breakers *circuitbreaker.Registry
	if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
		breakers = circuitbreaker.NewRegistry(
			cb.FailureThreshold, cb.RecoveryTimeout.Duration(), logger)
	} else {
		breakers = circuitbreaker.NewRegistry(0, 0, logger)
	}

	downstream, err := buildDownstream(cfg.Server, logger)
	if err != nil {
		logger.Fatal("failed to build downstream handler", observability.Error(err))
	}

	gw, err := gateway.New(cfg,
		gateway.WithLogger(logger),
		gateway.WithDispatcher(dispatcher),
		gateway.WithBreakerRegistry(breakers),
		gateway.WithDownstream(downstream),
	)
	if err != nil {
		logger.Fatal("failed to assemble gateway", observability.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- gw.Start(context.Background())
	}()

	var adminServer *admin.Server
	if cfg.Admin.Enabled {
		adminServer = admin.NewServer(cfg.Admin, dispatcher, breakers, logger)
		go func() {
			errCh <- adminServer.Start()
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down",
			observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("gateway shutdown failed", observability.Error(err))
	}
	if adminServer != nil {
		if err := adminServer.Stop(shutdownCtx); err != nil {
			logger.Error("admin shutdown failed", observability.Error(err))
		}
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", observability.Error(err))
	}

	logger.Info("shutdown complete")
}

// buildDownstream returns the handler admitted requests are forwarded to.
// With an upstream URL configured it is a reverse proxy; otherwise a
// static 200 responder useful for smoke testing.
func buildDownstream(cfg config.ServerConfig, logger observability.Logger) (http.Handler, error) {
	if cfg.Upstream == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}), nil
	}

	target, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bad gateway"}`))
	}
	return proxy, nil
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
