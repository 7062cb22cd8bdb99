package commands

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eecworkbench/eec/cmd/eec/cmdutil"
	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/internal/shutdown"
	"github.com/eecworkbench/eec/internal/telemetry"
	"github.com/eecworkbench/eec/pkg/api"
	"github.com/eecworkbench/eec/pkg/api/auth"
	"github.com/eecworkbench/eec/pkg/clustering"
	"github.com/eecworkbench/eec/pkg/config"
	"github.com/eecworkbench/eec/pkg/embedding"
	"github.com/eecworkbench/eec/pkg/metrics"
	"github.com/eecworkbench/eec/pkg/metrics/prometheus"
	"github.com/eecworkbench/eec/pkg/store"
	"github.com/eecworkbench/eec/pkg/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the configured services",
	Long: `Run the services listed in server.services, each on its own port.

All services of one process share a single workspace. Processes started
separately (for instance one per service) coordinate through the file
locks next to the snapshots in storage.data_path.

Examples:
  # Run every service
  eec serve

  # Run only the entity and cluster services, verifying tokens remotely
  EEC_SERVER_SERVICES=entity,cluster EEC_SERVER_VERIFIER_MODE=remote \
  EEC_SERVER_VERIFIER_AUTH_URL=http://localhost:8001/api/v1/auth eec serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := cmdutil.InitLogger(cfg); err != nil {
		return err
	}

	critical := &shutdown.Critical{}
	ctx, stop := shutdown.NotifyContext(context.Background(), critical)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "eec",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "eec",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	var recorder metrics.Recorder
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		recorder = prometheus.NewRecorder()
	}

	ws, err := workspace.Open(cfg.Storage,
		workspace.WithRecorder(recorder),
		workspace.WithCriticalSection(critical),
	)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := ws.Close(closeCtx); err != nil {
			logger.Error("Final save failed", logger.Err(err))
		}
	}()

	deps, err := buildDeps(ctx, cfg, ws, recorder)
	if err != nil {
		return err
	}

	services := cfg.Server.Enabled()
	if slices.Contains(services, api.ServiceAuth) {
		if err := bootstrapAdmin(ctx, ws, cfg.Auth.AdminPassword); err != nil {
			return err
		}
	}
	auditWorkspace(ctx, ws)

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		handler, err := api.NewRouter(svc, deps)
		if err != nil {
			return err
		}
		srv := api.NewServer(string(svc), cfg.Server.Addr(svc), handler, cfg.Server)
		g.Go(func() error { return srv.Start(gctx) })
	}

	if cfg.Metrics.Enabled {
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Metrics.Port))
		srv := api.NewServer("metrics", addr, metrics.Handler(), cfg.Server)
		g.Go(func() error { return srv.Start(gctx) })
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	g.Go(func() error { return ws.Watch(gctx) })

	logger.Info("Server is running. Press Ctrl+C to stop.", "services", services)
	if err := g.Wait(); err != nil {
		logger.Error("Server error", logger.Err(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// buildDeps assembles what the routers need: token handling, the
// embedding and the clustering method.
func buildDeps(ctx context.Context, cfg *config.Config, ws *workspace.Workspace, recorder metrics.Recorder) (api.Deps, error) {
	deps := api.Deps{
		Workspace:      ws,
		Recorder:       recorder,
		RequestTimeout: cfg.Server.RequestTimeout,
		Clustering:     clustering.NewCosine(ws.Clusters, cfg.Clustering.TopN),
	}

	if cfg.NeedsJWTSecret() {
		jwtService, err := auth.NewJWTService(auth.JWTConfig{
			Secret:        cfg.Auth.JWTSecret,
			Issuer:        cfg.Auth.Issuer,
			TokenDuration: cfg.Auth.TokenDuration,
		})
		if err != nil {
			return deps, fmt.Errorf("failed to create JWT service: %w", err)
		}
		deps.JWT = jwtService
		deps.Verifier = auth.NewLocalVerifier(jwtService)
	}
	if cfg.Server.Verifier.Mode == api.VerifierRemote {
		deps.Verifier = auth.NewRemoteVerifier(cfg.Server.Verifier.AuthURL, cfg.Server.Verifier.Timeout)
		logger.Info("Verifying tokens remotely", "auth_url", cfg.Server.Verifier.AuthURL)
	}

	if cfg.Embedding.Path != "" {
		model, err := embedding.Load(cfg.Embedding.Path)
		if err != nil {
			return deps, err
		}
		deps.Embedder = model
		logger.InfoCtx(ctx, "Embedding loaded", logger.File(cfg.Embedding.Path), "words", model.Len(), "dim", model.Dim())
	} else {
		logger.Info("No embedding configured, entities are created without mention vectors")
	}

	return deps, nil
}

func bootstrapAdmin(ctx context.Context, ws *workspace.Workspace, password string) error {
	res, err := ws.Bootstrap(ctx, password)
	if err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}

	switch res.Action {
	case store.BootstrapCreated:
		logger.Info("Admin user created", logger.KeyUsername, res.User.Username)
		if res.Password != "" {
			fmt.Printf("\n*** IMPORTANT: Admin user created with password: %s ***\n", res.Password)
			fmt.Println("Please save this password. It will not be shown again.")
			fmt.Println()
		}
	case store.BootstrapPromoted:
		logger.Info("Only user promoted to admin", logger.KeyUsername, res.User.Username)
	}
	return nil
}

// auditWorkspace logs consistency violations without refusing to start.
func auditWorkspace(ctx context.Context, ws *workspace.Workspace) {
	violations, err := ws.Check(ctx)
	if err != nil {
		logger.Warn("Consistency check failed", logger.Err(err))
		return
	}
	for _, v := range violations {
		logger.Warn("Consistency violation", "resource", v.Resource, "id", v.ID, "problem", v.Problem)
	}
	if len(violations) > 0 {
		logger.Warn("Run 'eec check' for the full report", logger.KeyCount, len(violations))
	}
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
