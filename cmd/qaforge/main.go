// qaforge orchestrator CLI — generates AI-driven test scenarios for an API
// spec, executes them against the target, and reports coverage and the QA
// verdict. Runs one package end to end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/qaforge/qaforge/pkg/config"
	"github.com/qaforge/qaforge/pkg/events"
	"github.com/qaforge/qaforge/pkg/execution"
	"github.com/qaforge/qaforge/pkg/generator"
	"github.com/qaforge/qaforge/pkg/llm"
	"github.com/qaforge/qaforge/pkg/masking"
	"github.com/qaforge/qaforge/pkg/models"
	"github.com/qaforge/qaforge/pkg/orchestrator"
	"github.com/qaforge/qaforge/pkg/qa"
	"github.com/qaforge/qaforge/pkg/specsource"
	"github.com/qaforge/qaforge/pkg/storage"
	"github.com/qaforge/qaforge/pkg/version"
	"github.com/qaforge/qaforge/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads qaforge.yaml when present; otherwise it falls back to
// built-in defaults with the LLM connection taken from the environment.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Initialize(ctx, path)
	}

	slog.Warn("No configuration file found, using built-in defaults", "path", path)
	cfg := config.DefaultConfig()
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", "https://api.openai.com/v1")
	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if err := config.NewValidator(cfg).ValidateAll(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("QAFORGE_CONFIG", "./qaforge.yaml"),
		"Path to qaforge.yaml")
	specURL := flag.String("spec-url", "", "URL of the OpenAPI spec to test against (required)")
	baseURL := flag.String("base-url", "", "Base URL of the target API (required)")
	name := flag.String("name", "qa-package", "Package name")
	requirements := flag.String("requirements", "", "Free-form testing requirements passed to generation")
	flag.Parse()

	if *specURL == "" || *baseURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Load .env file before reading configuration
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting qaforge",
		"version", version.Full(), "spec_url", *specURL, "base_url", *baseURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Initialize configuration
	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Storage, clock, IDs, event bus
	store := storage.NewMemoryStore()
	clock := storage.SystemClock{}
	ids := storage.UUIDGenerator{}
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// 3. Register configured webhooks
	for _, hook := range cfg.Webhooks {
		hook.ID = ids.NewID()
		hook.CreatedAt = clock.Now()
		hookCopy := hook
		if err := store.CreateWebhook(ctx, &hookCopy); err != nil {
			slog.Error("Failed to register webhook", "webhook", hook.Name, "error", err)
			os.Exit(1)
		}
	}

	// 4. Webhook dispatcher (bus consumer + retry scheduler)
	dispatcher := webhook.NewDispatcher(store.Webhooks(), store.Deliveries(), nil, nil, clock, ids)
	busCh, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go dispatcher.Run(ctx, busCh)
	go dispatcher.RunScheduler(ctx, 10*time.Second)

	// 5. LLM client with the resilience chain
	httpClient := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey,
		&http.Client{Timeout: cfg.LLM.RequestTimeout})
	client := llm.NewResilientClient(httpClient, llm.ResilienceConfig{
		MaxConcurrent:           cfg.LLM.Resilience.MaxConcurrent,
		RequestsPerSecond:       cfg.LLM.Resilience.RequestsPerSecond,
		Burst:                   cfg.LLM.Resilience.Burst,
		BreakerFailureThreshold: cfg.LLM.Resilience.BreakerFailureThreshold,
		BreakerCooldown:         cfg.LLM.Resilience.BreakerCooldown,
		MaxAttempts:             cfg.LLM.Resilience.MaxAttempts,
		RetryBaseDelay:          cfg.LLM.Resilience.RetryBaseDelay,
	})
	slog.Info("LLM client initialized", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)

	// 6. Domain services
	stepExecutor := execution.NewStepExecutor(nil, 0, clock)
	runExecutor := execution.NewRunExecutor(stepExecutor, store.Runs(), store.StepResults(), bus, clock)
	runExecutor.SetSanitizer(masking.NewService())

	orch := orchestrator.New(orchestrator.Deps{
		Packages:  store.Packages(),
		Scenarios: store.Scenarios(),
		Runs:      store.Runs(),
		Fetcher:   specsource.NewHTTPFetcher(nil),
		Generator: generator.New(client, ids),
		Executor:  runExecutor,
		Evaluator: qa.NewEvaluator(client),
		Bus:       bus,
		Clock:     clock,
		IDs:       ids,
	}, orchestrator.Options{
		MaxWorkers:        cfg.Orchestrator.MaxWorkers,
		CoverageThreshold: cfg.Orchestrator.CoverageThreshold,
	})

	// 7. Create the package
	pkgConfig := cfg.PackageDefaults
	if pkgConfig.AIModel == "" {
		pkgConfig.AIModel = cfg.LLM.Model
	}
	pkg := &models.Package{
		Name:         *name,
		SpecURL:      *specURL,
		BaseURL:      *baseURL,
		Requirements: *requirements,
		TriggeredBy:  "cli",
		Config:       pkgConfig,
	}
	if err := orch.CreatePackage(ctx, pkg); err != nil {
		slog.Error("Failed to create package", "error", err)
		os.Exit(1)
	}
	slog.Info("Package created", "package_id", pkg.ID, "name", pkg.Name)

	// 8. Execute (non-blocking) and wait for completion or a signal
	execDone := make(chan error, 1)
	go func() {
		execDone <- orch.Execute(ctx, pkg.ID)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received, cancelling package", "signal", sig)
		if err := orch.CancelPackage(context.Background(), pkg.ID); err != nil {
			slog.Error("Failed to cancel package", "error", err)
		}
		if err := <-execDone; err != nil {
			slog.Error("Execution error during cancellation", "error", err)
		}
	case err := <-execDone:
		if err != nil {
			slog.Error("Package execution error", "error", err)
			os.Exit(1)
		}
	}

	// 9. Report the outcome
	final, err := store.Packages().Get(ctx, pkg.ID)
	if err != nil {
		slog.Error("Failed to load final package state", "error", err)
		os.Exit(1)
	}

	attrs := []any{"package_id", final.ID, "status", final.Status}
	if final.Coverage != nil {
		attrs = append(attrs, "coverage", final.Coverage.CoveragePercentage)
	}
	if final.QaSummary != nil {
		attrs = append(attrs, "verdict", final.QaSummary.Verdict)
	}
	slog.Info("Package finished", attrs...)

	// 10. Give in-flight webhook deliveries a short drain window
	health := orch.Health()
	if health.EventsDropped > 0 {
		slog.Warn("Event bus dropped events", "dropped", health.EventsDropped)
	}
	time.Sleep(500 * time.Millisecond)
	cancel()

	if final.Status != models.PackageStatusComplete {
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
