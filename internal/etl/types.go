package etl

import (
	"path/filepath"
	"strings"
	"time"
)

// DataRecord is one row of an input dataset: a prompt text, its attack
// category and whether it is malicious (1) or benign (0).
type DataRecord struct {
	Text      string `csv:"text" parquet:"text" json:"text"`
	Category  string `csv:"category" parquet:"category" json:"category"`
	Malicious int    `csv:"malicious" parquet:"malicious" json:"malicious"`
}

// Config controls the ingestion pipeline.
type Config struct {
	BatchSize     int  `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount   int  `yaml:"worker_count" mapstructure:"worker_count"`
	ValidateData  bool `yaml:"validate_data" mapstructure:"validate_data"`
	ValidateOnly  bool `yaml:"validate_only" mapstructure:"validate_only"`
	DryRun        bool `yaml:"dry_run" mapstructure:"dry_run"`
	CreateIndex   bool `yaml:"create_index" mapstructure:"create_index"`
	ProgressEvery int  `yaml:"progress_every" mapstructure:"progress_every"`
}

// Result summarises one ProcessFile run.
type Result struct {
	TotalRecords  int64         `json:"total_records"`
	Inserted      int64         `json:"inserted"`
	Skipped       int64         `json:"skipped"`
	Invalid       int64         `json:"invalid"`
	Failed        int64         `json:"failed"`
	Duration      time.Duration `json:"duration"`
	EmbeddingTime time.Duration `json:"embedding_time"`
	DatabaseTime  time.Duration `json:"database_time"`
	Errors        []string      `json:"errors,omitempty"`
}

// FileFormat is a supported dataset encoding.
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFormat picks the dataset format from the file extension. Unknown
// extensions fall back to CSV.
func DetectFormat(path string) FileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl":
		return FormatJSON
	default:
		return FormatCSV
	}
}
