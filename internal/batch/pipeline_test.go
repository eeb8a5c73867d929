package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/datacloak/internal/audit"
	"github.com/raaihank/datacloak/internal/metrics"
	"github.com/raaihank/datacloak/internal/privacy"
)

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Record(_ context.Context, e *audit.Event) error {
	s.events = append(s.events, *e)
	return nil
}

func (s *recordingSink) Recent(context.Context, int) ([]audit.Event, error) { return s.events, nil }
func (s *recordingSink) Close() error                                       { return nil }

func newTestPipeline(t *testing.T, maxTextLength int, opts ...Option) *Pipeline {
	t.Helper()
	cfg := privacy.DefaultEngineConfig()
	if maxTextLength > 0 {
		cfg.MaxTextLength = maxTextLength
	}
	engine, err := privacy.New(cfg, nil)
	require.NoError(t, err)
	return NewPipeline(engine, &Config{BatchSize: 2, WorkerCount: 3}, zap.NewNop(), opts...)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"data.csv":        FormatCSV,
		"DATA.CSV":        FormatCSV,
		"data.parquet":    FormatParquet,
		"data.json":       FormatJSON,
		"data.jsonl":      FormatJSON,
		"dir/data.ndjson": FormatJSON,
	}
	for name, want := range tests {
		got, err := DetectFileFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectFileFormat("data.xlsx")
	assert.Error(t, err)
}

func TestProcessCSV(t *testing.T) {
	input := writeFile(t, "in.csv", strings.Join([]string{
		"id,text",
		"1,Call 555-123-4567 or email john@test.com",
		"2,nothing to see",
		`3,"SSN 123-45-6789, card 4111 1111 1111 1111"`,
	}, "\n")+"\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	result, err := newTestPipeline(t, 0).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(3), result.ProcessedOK)
	assert.Equal(t, int64(0), result.ProcessedFailed)
	assert.Equal(t, int64(4), result.ItemsFound)
	assert.Equal(t, int64(1), result.ItemsByType["email"])
	assert.Equal(t, int64(1), result.ItemsByType["phone"])
	assert.Equal(t, int64(1), result.ItemsByType["ssn"])
	assert.Equal(t, int64(1), result.ItemsByType["credit_card"])

	rows := readCSV(t, output)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"id", "masked_text", "pii_items_found", "pii_types"}, rows[0])
	assert.Equal(t, []string{"1", "Call ***-***-4567 or email j***@test.com", "2", "email;phone"}, rows[1])
	assert.Equal(t, []string{"2", "nothing to see", "0", ""}, rows[2])
	assert.Equal(t, []string{"3", "SSN ***-**-6789, card **** **** **** 1111", "2", "credit_card;ssn"}, rows[3])
}

func TestProcessCSVSkipsOversizedAndMalformedRows(t *testing.T) {
	input := writeFile(t, "in.csv", strings.Join([]string{
		"text,id",
		"short,a",
		strings.Repeat("x", 40) + ",b",
		"too,many,fields",
		"ok,c",
	}, "\n")+"\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	result, err := newTestPipeline(t, 32).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.TotalRecords)
	assert.Equal(t, int64(2), result.ProcessedOK)
	assert.Equal(t, int64(2), result.ProcessedFailed)
	require.Len(t, result.Errors, 2)

	rows := readCSV(t, output)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "c", rows[2][0])
}

func TestProcessCSVRequiresTextColumn(t *testing.T) {
	input := writeFile(t, "in.csv", "id,body\n1,hello\n")
	_, err := newTestPipeline(t, 0).ProcessFile(context.Background(), input, filepath.Join(t.TempDir(), "out.csv"))
	assert.Error(t, err)
}

func TestProcessJSONLines(t *testing.T) {
	var lines []string
	for i := 0; i < 25; i++ {
		b, _ := json.Marshal(InputRecord{ID: fmt.Sprintf("r%02d", i), Text: fmt.Sprintf("user%d@example.com", i)})
		lines = append(lines, string(b))
	}
	input := writeFile(t, "in.jsonl", strings.Join(lines, "\n")+"\n")
	output := filepath.Join(t.TempDir(), "out.jsonl")

	result, err := newTestPipeline(t, 0).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(25), result.ProcessedOK)
	assert.Equal(t, int64(25), result.ItemsByType["email"])

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var i int
	for scanner.Scan() {
		var out OutputRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &out))
		// order is preserved across batches and workers
		assert.Equal(t, fmt.Sprintf("r%02d", i), out.ID)
		assert.Equal(t, "u***@example.com", out.MaskedText)
		assert.Equal(t, []string{"email"}, out.PIITypes)
		i++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 25, i)
}

func TestProcessJSONMalformedAborts(t *testing.T) {
	input := writeFile(t, "in.json", `{"id":"1","text":"a"}`+"\n{not json\n")
	_, err := newTestPipeline(t, 0).ProcessFile(context.Background(), input, filepath.Join(t.TempDir(), "out.json"))
	assert.Error(t, err)
}

func TestProcessParquet(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.parquet")

	f, err := os.Create(input)
	require.NoError(t, err)
	w := parquet.NewWriter(f, parquet.SchemaOf(InputRecord{}))
	for _, rec := range []InputRecord{
		{ID: "1", Text: "Card 4532015112830366 on file"},
		{ID: "2", Text: "reach me at 555.987.6543"},
		{ID: "3", Text: "clean"},
	} {
		rec := rec
		require.NoError(t, w.Write(&rec))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	output := filepath.Join(dir, "out.parquet")
	result, err := newTestPipeline(t, 0).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.ProcessedOK)
	assert.Equal(t, int64(2), result.ItemsFound)

	of, err := os.Open(output)
	require.NoError(t, err)
	defer of.Close()

	reader := parquet.NewReader(of)
	defer reader.Close()

	var got []OutputRecord
	for {
		var rec OutputRecord
		if err := reader.Read(&rec); err != nil {
			break
		}
		got = append(got, rec)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "Card **** **** **** 0366 on file", got[0].MaskedText)
	assert.Equal(t, []string{"credit_card"}, got[0].PIITypes)
	assert.Equal(t, "reach me at ***-***-6543", got[1].MaskedText)
	assert.Equal(t, int64(0), got[2].PIIItemsFound)
}

func TestProcessRecordsMetricsAndAudit(t *testing.T) {
	m := metrics.New("datacloak")
	sink := &recordingSink{}

	input := writeFile(t, "in.csv", "id,text\n1,a@b.co\n2,"+strings.Repeat("y", 20)+"\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	result, err := newTestPipeline(t, 10, WithMetrics(m), WithAudit(sink)).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ProcessedFailed)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchRecords.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BatchRecords.WithLabelValues("failed")))

	require.Len(t, sink.events, 1)
	assert.Equal(t, "batch", sink.events[0].Operation)
	assert.Equal(t, 1, sink.events[0].EmailCount)
	assert.Equal(t, 2, sink.events[0].TextLength)
}

func TestProcessCancelled(t *testing.T) {
	input := writeFile(t, "in.csv", "id,text\n1,hello\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, 0).ProcessFile(ctx, input, filepath.Join(t.TempDir(), "out.csv"))
	assert.ErrorIs(t, err, context.Canceled)
}
