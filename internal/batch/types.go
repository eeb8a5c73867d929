package batch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// InputRecord is one row of the dataset to mask
type InputRecord struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// OutputRecord is the masked form of an InputRecord
type OutputRecord struct {
	ID            string   `parquet:"id" json:"id"`
	MaskedText    string   `parquet:"masked_text" json:"masked_text"`
	PIIItemsFound int64    `parquet:"pii_items_found" json:"pii_items_found"`
	PIITypes      []string `parquet:"pii_types" json:"pii_types"`
}

// Result represents the result of processing a dataset
type Result struct {
	TotalRecords    int64            `json:"total_records"`
	ProcessedOK     int64            `json:"processed_ok"`
	ProcessedFailed int64            `json:"processed_failed"`
	ItemsFound      int64            `json:"items_found"`
	ItemsByType     map[string]int64 `json:"items_by_type"`
	Duration        time.Duration    `json:"duration"`
	Errors          []string         `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount int `yaml:"worker_count" mapstructure:"worker_count"`
}

// maxReportedErrors bounds Result.Errors for very dirty inputs
const maxReportedErrors = 100

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) (FileFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported file format: %q", filepath.Ext(filename))
	}
}
