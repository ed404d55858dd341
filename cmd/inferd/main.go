package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/internal/daemon"
	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/model"
	"inferd/internal/parallel"
	"inferd/internal/retry"
	"inferd/internal/scheduler"
	"inferd/internal/session"
	"inferd/pkg/types"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Local LLM serving daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	return root
}

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		cacheDir   string
		modelRepo  string
		modelFile  string
		modelDir   string
		policyPath string
		logLevel   string
		corsOn     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			// Flags win over the config file.
			if addr != "" {
				cfg.Addr = addr
			}
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if policyPath != "" {
				cfg.ParallelPolicyPath = policyPath
			}
			if modelDir != "" {
				cfg.Model.Source = types.LocalSource(modelDir, modelFile)
			} else if modelRepo != "" {
				cfg.Model.Source = types.RemoteSource(modelRepo, modelFile, "")
			}
			return runServe(cfg, corsOn)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", envOr("INFERD_CONFIG", ""), "Config file (.yaml/.json/.toml)")
	f.StringVar(&addr, "addr", envOr("INFERD_ADDR", ""), "HTTP listen address, e.g. :8080")
	f.StringVar(&cacheDir, "cache-dir", envOr("INFERD_CACHE_DIR", ""), "Model cache directory")
	f.StringVar(&modelRepo, "model-repo", envOr("INFERD_MODEL_REPO", ""), "Remote model repo, e.g. org/model")
	f.StringVar(&modelFile, "model-file", envOr("INFERD_MODEL_FILE", ""), "Weights filename (*.gguf)")
	f.StringVar(&modelDir, "model-dir", envOr("INFERD_MODEL_DIR", ""), "Local folder containing *.gguf weights")
	f.StringVar(&policyPath, "parallel-policy", envOr("INFERD_PARALLEL_POLICY", ""), "Tool-parallelism policy file")
	f.StringVar(&logLevel, "log-level", envOr("INFERD_LOG_LEVEL", ""), "Log level: debug|info|warn|error")
	f.BoolVar(&corsOn, "cors", os.Getenv("INFERD_CORS") == "1", "Enable permissive CORS")
	return cmd
}

func runServe(cfg config.Config, corsOn bool) error {
	logger := newLogger(cfg.LogLevel)

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "~/.cache/inferd/models"
	}
	var err error
	if cfg.CacheDir, err = fsutil.ExpandHome(cfg.CacheDir); err != nil {
		return err
	}
	if cfg.Model.Source.Folder, err = fsutil.ExpandHome(cfg.Model.Source.Folder); err != nil {
		return err
	}

	rcfg := retry.DefaultConfig()
	if cfg.Retry.MaxRetries > 0 {
		rcfg.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.InitialDelayMS > 0 {
		rcfg.InitialDelay = time.Duration(cfg.Retry.InitialDelayMS) * time.Millisecond
	}
	if cfg.Retry.BackoffMultiplier > 0 {
		rcfg.BackoffMultiplier = cfg.Retry.BackoffMultiplier
	}
	if cfg.Retry.MaxDelayMS > 0 {
		rcfg.MaxDelay = time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond
	}
	rcfg.UseJitter = !cfg.Retry.NoJitter

	mcfg := model.DefaultConfig(cfg.Model.Source)
	if cfg.Model.BatchSize > 0 {
		mcfg.BatchSize = cfg.Model.BatchSize
	}
	if cfg.Model.NSeqMax > 0 {
		mcfg.NSeqMax = cfg.Model.NSeqMax
	}
	if cfg.Model.Threads > 0 {
		mcfg.Threads = cfg.Model.Threads
	}
	if cfg.Model.ContextSize > 0 {
		mcfg.ContextSize = cfg.Model.ContextSize
	}
	mcfg.Debug = cfg.Model.Debug
	mcfg.Retry = rcfg

	scfg := scheduler.DefaultConfig()
	scfg.NSeqMax = mcfg.NSeqMax
	scfg.Threads = mcfg.Threads
	if cfg.Scheduler.QueueSize > 0 {
		scfg.QueueSize = cfg.Scheduler.QueueSize
	}
	if cfg.Scheduler.MaxWaitMS > 0 {
		scfg.MaxWait = time.Duration(cfg.Scheduler.MaxWaitMS) * time.Millisecond
	}
	if cfg.Scheduler.BatchSize > 0 {
		scfg.BatchSize = cfg.Scheduler.BatchSize
	}

	policy := types.ParallelConfig{}
	if cfg.ParallelPolicyPath != "" {
		if policy, err = config.LoadParallelPolicy(cfg.ParallelPolicyPath); err != nil {
			return fmt.Errorf("load parallel policy: %w", err)
		}
	}

	maxIdle := time.Duration(cfg.Session.MaxIdleMin) * time.Minute
	models := model.New(cfg.CacheDir, rcfg)
	sched := scheduler.New(scfg, models, engine.NewLlamaAdapter())
	d := daemon.New(models, sched, session.NewStore(maxIdle), parallel.NewAnalyzer(policy))
	d.SetLogger(logger)
	httpapi.SetLogger(logger)
	httpapi.SetCORSOptions(corsOn, []string{"*"}, []string{"GET", "POST", "DELETE"}, []string{"*"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	// Load in the background so /readyz reports loading until it completes.
	go func() {
		if err := d.LoadModel(ctx, mcfg); err != nil {
			logger.Error().Err(err).Msg("model load failed")
		}
	}()

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(d)}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	d.Drain()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := d.Close(); err != nil {
		logger.Error().Err(err).Msg("engine close error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
