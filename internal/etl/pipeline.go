package etl

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/embeddings"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
	"github.com/rajputsidhu/sentinal-analysis/internal/vector"
)

// Pipeline ingests signature datasets into the vector store. Embeddings are
// computed locally with the hash embedder, so ingestion never touches the
// LLM provider.
type Pipeline struct {
	store  *vector.Store
	config Config
	logger *logger.Logger
}

// NewPipeline creates an ingestion pipeline. store may be nil when the
// pipeline runs in validate-only or dry-run mode.
func NewPipeline(store *vector.Store, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 5000
	}
	return &Pipeline{
		store:  store,
		config: cfg,
		logger: log.WithComponent("etl"),
	}
}

// ProcessFile ingests one dataset file. The format is picked from the file
// extension.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Result, error) {
	format := DetectFormat(path)
	p.logger.Info("starting ingestion",
		zap.String("file", path),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount),
		zap.Bool("validate_only", p.config.ValidateOnly),
		zap.Bool("dry_run", p.config.DryRun))

	start := time.Now()
	result := &Result{}

	var err error
	switch format {
	case FormatCSV:
		err = p.processCSV(ctx, path, result)
	case FormatParquet:
		err = p.processParquet(ctx, path, result)
	case FormatJSON:
		err = p.processJSON(ctx, path, result)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	if p.config.CreateIndex && p.store != nil && !p.config.ValidateOnly && !p.config.DryRun {
		if err := p.store.EnsureIndex(ctx); err != nil {
			p.logger.Warn("failed to build similarity index", zap.Error(err))
		}
	}

	p.logger.Info("ingestion completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("inserted", result.Inserted),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("invalid", result.Invalid),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (p *Pipeline) processCSV(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return err
	}

	return p.processBatches(ctx, result, func() ([]DataRecord, error) {
		var batch []DataRecord
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("failed to read CSV row", zap.Error(err))
				result.Invalid++
				continue
			}
			record, ok := cols.extract(row)
			if !ok {
				result.Invalid++
				continue
			}
			batch = append(batch, record)
		}
		return batch, nil
	})
}

func (p *Pipeline) processParquet(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	return p.processBatches(ctx, result, func() ([]DataRecord, error) {
		var batch []DataRecord
		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := reader.Read(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("failed to read Parquet record", zap.Error(err))
				result.Invalid++
				continue
			}
			batch = append(batch, record)
		}
		return batch, nil
	})
}

func (p *Pipeline) processJSON(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return p.processBatches(ctx, result, func() ([]DataRecord, error) {
		var batch []DataRecord
		for len(batch) < p.config.BatchSize {
			var record DataRecord
			err := decoder.Decode(&record)
			if err == io.EOF {
				break
			}
			if err != nil {
				return batch, fmt.Errorf("failed to decode JSON record: %w", err)
			}
			batch = append(batch, record)
		}
		return batch, nil
	})
}

func (p *Pipeline) processBatches(ctx context.Context, result *Result, readBatch func() ([]DataRecord, error)) error {
	lastReport := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := readBatch()
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := p.processBatch(ctx, batch, result); err != nil {
			result.Failed += int64(len(batch))
			result.Errors = append(result.Errors, err.Error())
			p.logger.Error("batch failed", zap.Error(err))
			continue
		}

		if result.TotalRecords-lastReport >= int64(p.config.ProgressEvery) {
			lastReport = result.TotalRecords
			p.logger.Info("ingestion progress",
				zap.Int64("records", result.TotalRecords),
				zap.Int64("inserted", result.Inserted),
				zap.Int64("invalid", result.Invalid))
		}
	}
}

func (p *Pipeline) processBatch(ctx context.Context, batch []DataRecord, result *Result) error {
	valid := make([]DataRecord, 0, len(batch))
	for _, record := range batch {
		if p.validateRecord(record) {
			valid = append(valid, record)
		} else {
			result.Invalid++
		}
	}
	result.TotalRecords += int64(len(batch))

	if len(valid) == 0 || p.config.ValidateOnly {
		return nil
	}

	embeddingStart := time.Now()
	sigs := make([]*vector.AttackSignature, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.WorkerCount)
	for i, record := range valid {
		i, record := i, record
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			category, _ := analysis.ParseCategory(record.Category)
			sigs[i] = &vector.AttackSignature{
				Text:      record.Text,
				TextHash:  textHash(record.Text),
				Category:  category,
				Malicious: record.Malicious == 1,
				Embedding: embeddings.HashEmbedding(record.Text),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	result.EmbeddingTime += time.Since(embeddingStart)

	if p.config.DryRun || p.store == nil {
		result.Skipped += int64(len(sigs))
		return nil
	}

	dbStart := time.Now()
	batchResult, err := p.store.BatchInsert(ctx, sigs)
	result.DatabaseTime += time.Since(dbStart)
	if err != nil {
		return err
	}
	result.Inserted += batchResult.Inserted
	result.Skipped += batchResult.Skipped
	return nil
}

// validateRecord rejects rows the scorer could not use.
func (p *Pipeline) validateRecord(record DataRecord) bool {
	if !p.config.ValidateData {
		return strings.TrimSpace(record.Text) != ""
	}

	text := strings.TrimSpace(record.Text)
	if text == "" || len(text) > 10000 {
		return false
	}
	if record.Malicious != 0 && record.Malicious != 1 {
		return false
	}
	if record.Malicious == 1 {
		if _, ok := analysis.ParseCategory(record.Category); !ok {
			return false
		}
	}
	return true
}

// columnMap resolves dataset column positions from a CSV header.
type columnMap struct {
	text      int
	category  int
	malicious int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{text: -1, category: -1, malicious: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text", "prompt":
			cols.text = i
		case "category", "label_text":
			cols.category = i
		case "malicious", "label":
			cols.malicious = i
		}
	}
	if cols.text == -1 {
		return cols, fmt.Errorf("dataset header is missing a text column: %v", header)
	}
	return cols, nil
}

func (c columnMap) extract(row []string) (DataRecord, bool) {
	if c.text >= len(row) {
		return DataRecord{}, false
	}
	record := DataRecord{Text: strings.TrimSpace(row[c.text])}
	if c.category >= 0 && c.category < len(row) {
		record.Category = strings.TrimSpace(row[c.category])
	}
	if c.malicious >= 0 && c.malicious < len(row) {
		raw := strings.ToLower(strings.TrimSpace(row[c.malicious]))
		if raw == "1" || raw == "true" {
			record.Malicious = 1
		}
	}
	return record, true
}

// textHash is the dedup key for a signature row.
func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
