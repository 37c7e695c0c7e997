package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/zenostudy/zeno/internal/adapter/inbound/http"
	"github.com/zenostudy/zeno/internal/adapter/outbound/backend"
	"github.com/zenostudy/zeno/internal/adapter/outbound/cel"
	"github.com/zenostudy/zeno/internal/adapter/outbound/emailcheck"
	"github.com/zenostudy/zeno/internal/adapter/outbound/memory"
	"github.com/zenostudy/zeno/internal/adapter/outbound/sqlite"
	"github.com/zenostudy/zeno/internal/config"
	"github.com/zenostudy/zeno/internal/domain/adminauth"
	"github.com/zenostudy/zeno/internal/domain/csrf"
	"github.com/zenostudy/zeno/internal/domain/formpolicy"
	"github.com/zenostudy/zeno/internal/domain/ratelimit"
	"github.com/zenostudy/zeno/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start the zeno gateway server.

The server exposes the form submission API under /api/, Prometheus
metrics under /metrics, and (when admin key hashes are configured)
the operator API under /admin/api/.

Examples:
  # Start with config file settings
  zeno start

  # Start in development mode (debug logging, default admin key)
  zeno start --dev

  # Start with a specific config file
  zeno --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, default admin key)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override dev mode from CLI flag
	if devMode {
		cfg.DevMode = true
	}

	// Apply dev defaults (fills the admin key hash if empty in dev mode)
	cfg.SetDevDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	// Setup logger to stderr.
	// Priority: DevMode=true -> debug, otherwise use configured log_level
	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug // DevMode always forces debug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	// Log config file used if any
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// Write PID file so "zeno stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("zeno stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("DEVELOPMENT MODE: default admin key active, do not expose this server")
	}

	// Span export to stdout, mainly a dev-mode aid.
	if cfg.Trace.Stdout {
		shutdown, err := setupTracing()
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("trace provider shutdown", "error", err)
			}
		}()
	}

	// Rate limit store: per-process counters or a SQLite file shared
	// across processes on one host.
	var rlStore ratelimit.Store
	switch cfg.RateLimit.Store {
	case "sqlite":
		store, err := sqlite.NewRateLimitStore(cfg.RateLimit.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open rate limit store: %w", err)
		}
		defer store.Close()
		rlStore = store
		logger.Info("rate limit store", "kind", "sqlite", "path", cfg.RateLimit.SQLitePath)
	default:
		store := memory.NewRateLimitStoreWithConfig(cfg.CleanupInterval())
		store.StartCleanup(ctx)
		defer store.Stop()
		rlStore = store
		logger.Info("rate limit store", "kind", "memory")
	}

	csrfStore := memory.NewCSRFStoreWithConfig(cfg.CleanupInterval())
	csrfStore.StartCleanup(ctx)
	defer csrfStore.Stop()

	tokens := csrf.NewManager(csrfStore).WithTTL(cfg.CSRFTokenTTL())
	limiter := ratelimit.NewLimiter(rlStore)

	// Policy engine: compiled once at boot so a bad rule fails startup,
	// not the first submission.
	var policy formpolicy.Engine
	if len(cfg.Rules) > 0 {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return fmt.Errorf("failed to build policy evaluator: %w", err)
		}
		rules := make([]formpolicy.Rule, 0, len(cfg.Rules))
		for _, rc := range cfg.Rules {
			rules = append(rules, formpolicy.Rule{
				Name:      rc.Name,
				Operation: rc.Operation,
				Condition: rc.Condition,
				Action:    formpolicy.Action(rc.Action),
			})
		}
		engine, err := cel.NewEngine(evaluator, rules)
		if err != nil {
			return fmt.Errorf("failed to compile policy rules: %w", err)
		}
		policy = engine
		logger.Info("policy engine ready", "rules", len(rules))
	}

	oracle := emailcheck.NewClient(cfg.EmailCheck.APIKey, logger)
	if cfg.EmailCheck.BaseURL != "" {
		oracle = oracle.WithBaseURL(cfg.EmailCheck.BaseURL)
	}
	if !oracle.Configured() {
		logger.Warn("email check oracle unconfigured, verdicts degrade to format-only")
	}

	be := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, logger)
	if cfg.Backend.URL == "" {
		logger.Warn("backend URL unconfigured, auth and data operations will fail")
	}

	svc := service.NewSubmissionService(tokens, limiter, policy, oracle, be, logger)
	state := service.NewMaintenanceState(cfg.Maintenance.Enabled, cfg.Maintenance.AllowPrefixes)

	srv := http.NewServer(svc, state,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
	)

	if len(cfg.Admin.KeyHashes) > 0 {
		verifier := adminauth.NewVerifier(cfg.Admin.KeyHashes...)
		admin := http.NewAdminHandler(verifier, state, limiter, cfg, srv.Metrics(), logger)
		srv.SetAdminHandler(admin.Routes())
	} else {
		logger.Info("no admin key hashes configured, admin API disabled")
	}

	printBanner(Version, cfg.Server.HTTPAddr, cfg.DevMode, len(cfg.Rules), cfg.RateLimit.Store, cfg.Maintenance.Enabled)

	return srv.Start(ctx)
}

// setupTracing installs a stdout span exporter and returns its shutdown func.
func setupTracing() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("zeno"),
		semconv.ServiceVersion(Version),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return provider.Shutdown, nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// addresses, mode, and configured counts.
func printBanner(version, httpAddr string, devMode bool, ruleCount int, rlStore string, maintenance bool) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		red    = "\033[31m"
		dim    = "\033[2m"
	)

	apiURL := fmt.Sprintf("http://%s/api", httpAddr)
	adminURL := fmt.Sprintf("http://%s/admin/api", httpAddr)
	if strings.HasPrefix(httpAddr, ":") {
		apiURL = fmt.Sprintf("http://localhost%s/api", httpAddr)
		adminURL = fmt.Sprintf("http://localhost%s/admin/api", httpAddr)
	}

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset + dim + " (default admin key)" + reset
	}

	if rlStore == "" {
		rlStore = "memory"
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s Zeno %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "API:", apiURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Admin API:", adminURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Limit store:", rlStore)
	fmt.Fprintf(os.Stderr, "  %-14s %d active\n", "Rules:", ruleCount)
	if maintenance {
		fmt.Fprintf(os.Stderr, "  %-14s %sON%s\n", "Maintenance:", red, reset)
	}
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the zeno PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".zeno", "server.pid")
	}
	return filepath.Join(os.TempDir(), "zeno-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
