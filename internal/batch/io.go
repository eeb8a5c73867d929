package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

// recordReader yields input records; Read returns io.EOF when exhausted
type recordReader interface {
	Read() (InputRecord, error)
	Close() error
}

type recordWriter interface {
	Write(OutputRecord) error
	Close() error
}

func openReader(format FileFormat, path string) (recordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", format, err)
	}

	switch format {
	case FormatCSV:
		r, err := newCSVReader(file)
		if err != nil {
			file.Close()
			return nil, err
		}
		return r, nil
	case FormatJSON:
		return &jsonReader{file: file, decoder: json.NewDecoder(file)}, nil
	case FormatParquet:
		return &parquetReader{file: file, reader: parquet.NewReader(file)}, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

func createWriter(format FileFormat, path string) (recordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s file: %w", format, err)
	}

	switch format {
	case FormatCSV:
		w := csv.NewWriter(file)
		if err := w.Write([]string{"id", "masked_text", "pii_items_found", "pii_types"}); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return &csvWriter{file: file, writer: w}, nil
	case FormatJSON:
		return &jsonWriter{file: file, encoder: json.NewEncoder(file)}, nil
	case FormatParquet:
		return &parquetWriter{file: file, writer: parquet.NewWriter(file, parquet.SchemaOf(OutputRecord{}))}, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// csvReader requires a header row naming the id and text columns
type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	idCol   int
	textCol int
}

func newCSVReader(file *os.File) (*csvReader, error) {
	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	r := &csvReader{file: file, reader: reader, idCol: -1, textCol: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "id":
			r.idCol = i
		case "text":
			r.textCol = i
		}
	}
	if r.textCol < 0 {
		return nil, errors.New(`CSV header has no "text" column`)
	}
	return r, nil
}

func (r *csvReader) Read() (InputRecord, error) {
	row, err := r.reader.Read()
	if err != nil {
		return InputRecord{}, err
	}

	var record InputRecord
	record.Text = row[r.textCol]
	if r.idCol >= 0 {
		record.ID = row[r.idCol]
	}
	return record, nil
}

func (r *csvReader) Close() error { return r.file.Close() }

type jsonReader struct {
	file    *os.File
	decoder *json.Decoder
}

func (r *jsonReader) Read() (InputRecord, error) {
	var record InputRecord
	err := r.decoder.Decode(&record)
	return record, err
}

func (r *jsonReader) Close() error { return r.file.Close() }

type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
}

func (r *parquetReader) Read() (InputRecord, error) {
	var record InputRecord
	err := r.reader.Read(&record)
	return record, err
}

func (r *parquetReader) Close() error {
	r.reader.Close()
	return r.file.Close()
}

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func (w *csvWriter) Write(record OutputRecord) error {
	return w.writer.Write([]string{
		record.ID,
		record.MaskedText,
		strconv.FormatInt(record.PIIItemsFound, 10),
		strings.Join(record.PIITypes, ";"),
	})
}

func (w *csvWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type jsonWriter struct {
	file    *os.File
	encoder *json.Encoder
}

func (w *jsonWriter) Write(record OutputRecord) error {
	return w.encoder.Encode(record)
}

func (w *jsonWriter) Close() error { return w.file.Close() }

type parquetWriter struct {
	file   *os.File
	writer *parquet.Writer
}

func (w *parquetWriter) Write(record OutputRecord) error {
	return w.writer.Write(&record)
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
