package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/datacloak/internal/audit"
	"github.com/raaihank/datacloak/internal/batch"
	"github.com/raaihank/datacloak/internal/config"
	"github.com/raaihank/datacloak/internal/logger"
	"github.com/raaihank/datacloak/internal/privacy"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON Lines)")
		outputFile = flag.String("output", "", "Output file (default: <input>.masked.<ext>)")
		batchSize  = flag.Int("batch-size", 0, "Records per batch (default from config)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (default from config)")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input customers.csv --batch-size 500\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input events.parquet --workers 8\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
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

	log.Info("Starting DataCloak batch masking",
		zap.String("version", privacy.Version),
		zap.String("input", *inputFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	if err := run(ctx, cfg, log, *inputFile, *outputFile, *batchSize, *workers); err != nil {
		log.Fatal("Batch masking failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, input, output string, batchSize, workers int) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if output == "" {
		output = defaultOutputPath(input)
	}

	engineConfig, err := cfg.PrivacyEngineConfig()
	if err != nil {
		return err
	}
	engine, err := privacy.New(engineConfig, log.WithComponent("privacy"))
	if err != nil {
		return err
	}

	batchConfig := &batch.Config{
		BatchSize:   cfg.Batch.BatchSize,
		WorkerCount: cfg.Batch.WorkerCount,
	}
	if batchSize > 0 {
		batchConfig.BatchSize = batchSize
	}
	if workers > 0 {
		batchConfig.WorkerCount = workers
	}

	var opts []batch.Option
	if cfg.Audit.Enabled {
		store, err := audit.NewPostgresStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		defer store.Close()
		opts = append(opts, batch.WithAudit(store))
	}

	pipeline := batch.NewPipeline(engine, batchConfig, log.WithComponent("batch").Logger, opts...)

	result, err := pipeline.ProcessFile(ctx, input, output)
	if err != nil {
		return err
	}

	// summary goes to stdout; logs go to stderr
	summary, err := json.MarshalIndent(struct {
		Output string `json:"output"`
		*batch.Result
	}{output, result}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(summary))
	return nil
}

// defaultOutputPath turns data/users.csv into data/users.masked.csv
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".masked" + ext
}
