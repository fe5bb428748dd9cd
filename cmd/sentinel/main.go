package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/config"
	"github.com/rajputsidhu/sentinal-analysis/internal/embeddings"
	"github.com/rajputsidhu/sentinal-analysis/internal/engine"
	"github.com/rajputsidhu/sentinal-analysis/internal/llm"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
	"github.com/rajputsidhu/sentinal-analysis/internal/mitigate"
	"github.com/rajputsidhu/sentinal-analysis/internal/patterns"
	"github.com/rajputsidhu/sentinal-analysis/internal/pipeline"
	"github.com/rajputsidhu/sentinal-analysis/internal/risk"
	"github.com/rajputsidhu/sentinal-analysis/internal/server"
	"github.com/rajputsidhu/sentinal-analysis/internal/session"
	"github.com/rajputsidhu/sentinal-analysis/internal/vector"
	"github.com/rajputsidhu/sentinal-analysis/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("port", cfg.Server.Port),
		zap.String("analysis_mode", cfg.Analysis.Mode),
		zap.Bool("dry_run", cfg.DryRun()))

	if err := config.Watch(func(updated *config.Config) {
		log.Info("configuration file changed, restart to apply",
			zap.String("analysis_mode", updated.Analysis.Mode),
			zap.Float64("warn_threshold", updated.Analysis.WarnThreshold),
			zap.Float64("block_threshold", updated.Analysis.BlockThreshold))
	}); err != nil {
		log.Warn("config watch unavailable", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Downstream LLM client. With no API key everything runs on heuristics
	// and placeholder completions.
	var downstream llm.ChatCompleter
	if cfg.DryRun() {
		downstream = llm.DryRunClient{}
	} else {
		downstream = llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			BaseURL:        cfg.LLM.BaseURL,
			Timeout:        cfg.LLM.Timeout,
			MaxRetries:     cfg.LLM.MaxRetries,
			RetryDelay:     cfg.LLM.RetryDelay,
		}, log)
	}

	library := patterns.New()
	useLLM := cfg.UseLLM()

	var provider embeddings.Embedder
	if useLLM {
		provider = downstream
	}
	embedder := embeddings.NewService(provider, log)
	signatures := embeddings.NewScorer(library)

	// Extra attack signatures come from PostgreSQL when configured.
	if cfg.Signatures.Enabled {
		sigStore, err := vector.NewStore(cfg.Signatures, log)
		if err != nil {
			log.Fatal("failed to open signature store", zap.Error(err))
		}
		defer sigStore.Close()

		loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
		sigs, err := sigStore.LoadAll(loadCtx)
		loadCancel()
		if err != nil {
			log.Fatal("failed to load attack signatures", zap.Error(err))
		}
		for _, sig := range sigs {
			signatures.AddSignature(sig.Category, sig.Embedding)
		}
		log.Info("signature store attached", zap.Int("signatures", len(sigs)))
	}

	var store session.Store
	switch cfg.Store.Backend {
	case "redis":
		redisStore, err := session.NewRedisStore(cfg.Store.RedisURL, cfg.Session.MaxHistory, cfg.Session.TTL(), log)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		store = redisStore
	default:
		memStore := session.NewMemoryStore(cfg.Session.MaxHistory, cfg.Session.TTL(), log)
		memStore.StartJanitor(ctx, time.Minute)
		store = memStore
	}
	defer store.Close()

	var hub *websocket.Hub
	if cfg.Dashboard.Enabled {
		hub = websocket.NewHub(log)
		go hub.Run()
		go publishStatus(ctx, hub, store, log)
	}

	opts := pipeline.Options{
		Store:      store,
		Embedder:   embedder,
		Signatures: signatures,
		Pattern:    engine.NewPatternDetector(library),
		RedTeam:    engine.NewRedTeamAnalyzer(downstream, library, useLLM, log),
		BlueTeam:   engine.NewBlueTeamAnalyzer(downstream, library, useLLM, log),
		Drift:      engine.NewDriftDetector(library),
		Scorer:     risk.NewScorer(cfg.Analysis.WarnThreshold, cfg.Analysis.BlockThreshold),
		Mitigator:  mitigate.New(downstream, library, useLLM, log),
		Downstream: downstream,
		Library:    library,
		MaxHistory: cfg.Session.MaxHistory,
		DryRun:     cfg.DryRun(),
		Logger:     log,
	}
	if hub != nil {
		opts.Publisher = hub
	}
	pipe := pipeline.New(opts)

	srv := server.New(cfg, pipe, store, hub, log)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()

		if err := srv.Stop(stopCtx); err != nil {
			log.Error("failed to shut down gracefully", zap.Error(err))
			os.Exit(1)
		}
		log.Info("server shutdown complete")
	}
}

// publishStatus pushes a periodic status event to dashboard clients.
func publishStatus(ctx context.Context, hub *websocket.Hub, store session.Store, log *logger.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := store.ActiveCount(ctx)
			if err != nil {
				log.Warn("active session count failed", zap.Error(err))
				continue
			}
			hub.PublishStatus("ok", active)
		}
	}
}

// performHealthCheck probes a locally running gateway.
func performHealthCheck(port int) {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
