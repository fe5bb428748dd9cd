package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/config"
	"github.com/rajputsidhu/sentinal-analysis/internal/etl"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
	"github.com/rajputsidhu/sentinal-analysis/internal/vector"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to configuration file")
		inputFile    = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		databaseURL  = flag.String("database-url", "", "Override the signature database URL")
		batchSize    = flag.Int("batch-size", 500, "Records per batch")
		workers      = flag.Int("workers", 4, "Embedding worker goroutines")
		skipIndex    = flag.Bool("skip-index", false, "Skip building the similarity index")
		validateOnly = flag.Bool("validate-only", false, "Validate records without writing anything")
		dryRun       = flag.Bool("dry-run", false, "Compute embeddings but do not write to the database")
		showStats    = flag.Bool("stats", false, "Show signature database statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input attacks.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input attacks.parquet --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input attacks.csv --validate-only\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *databaseURL != "" {
		cfg.Signatures.DatabaseURL = *databaseURL
		cfg.Signatures.Enabled = true
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, cancelling")
		cancel()
	}()

	// Validate-only runs never need a database connection.
	var store *vector.Store
	if !*validateOnly {
		store, err = vector.NewStore(cfg.Signatures, log)
		if err != nil {
			log.Fatal("failed to open signature store", zap.Error(err))
		}
		defer store.Close()
	}

	if *showStats {
		if err := printStats(ctx, store); err != nil {
			log.Fatal("failed to read stats", zap.Error(err))
		}
		return
	}

	if _, err := os.Stat(*inputFile); os.IsNotExist(err) {
		log.Fatal("input file does not exist", zap.String("file", *inputFile))
	}

	pipe := etl.NewPipeline(store, etl.Config{
		BatchSize:    *batchSize,
		WorkerCount:  *workers,
		ValidateData: true,
		ValidateOnly: *validateOnly,
		DryRun:       *dryRun,
		CreateIndex:  !*skipIndex,
	}, log)

	result, err := pipe.ProcessFile(ctx, *inputFile)
	if err != nil {
		log.Fatal("ingestion failed", zap.Error(err))
	}

	log.Info("dataset processed",
		zap.String("file", *inputFile),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("inserted", result.Inserted),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("invalid", result.Invalid),
		zap.Duration("duration", result.Duration),
		zap.Duration("embedding_time", result.EmbeddingTime),
		zap.Duration("database_time", result.DatabaseTime))

	if len(result.Errors) > 0 {
		log.Warn("completed with errors", zap.Strings("errors", result.Errors))
	}
}

func printStats(ctx context.Context, store *vector.Store) error {
	stats, err := store.GetStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Sentinel Signature Database ===\n")
	fmt.Printf("Total signatures:  %d\n", stats.TotalSignatures)
	fmt.Printf("Malicious:         %d\n", stats.MaliciousCount)
	fmt.Printf("Benign:            %d\n", stats.BenignCount)

	if len(stats.ByCategory) > 0 {
		categories := make([]string, 0, len(stats.ByCategory))
		for category := range stats.ByCategory {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		fmt.Printf("\nBy category:\n")
		for _, category := range categories {
			fmt.Printf("  %-20s %d\n", category, stats.ByCategory[category])
		}
	}
	return nil
}
