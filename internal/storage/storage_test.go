package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/truthlens/internal/models"
)

func testReport(score float64) *models.Report {
	return &models.Report{
		OverallScore: score,
		Confidence:   0.9,
		Detections: models.Detections{
			Eyes:     models.FeatureAnalysis{Score: 80, Status: models.StatusManipulated, Observation: "no blink"},
			Mouth:    models.FeatureAnalysis{Score: 60, Status: models.StatusSuspicious, Observation: "drift"},
			Skin:     models.FeatureAnalysis{Score: 40, Status: models.StatusSuspicious, Observation: "smooth"},
			Lighting: models.FeatureAnalysis{Score: 20, Status: models.StatusNatural, Observation: "ok"},
		},
		Anomalies:      []models.Anomaly{},
		Summary:        "summary",
		Recommendation: "recommendation",
	}
}

func testRecord(i int) Record {
	return Record{
		ID:        fmt.Sprintf("TLR-%08d", i),
		VideoName: fmt.Sprintf("clip-%d.mp4", i),
		Verdict:   "AI_GENERATED",
		Report:    testReport(float64(50 + i)),
		CreatedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
	}
}

func TestFileStorage_BatchesWrites(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)
	ctx := context.Background()

	for i := 0; i < batchSize-1; i++ {
		require.NoError(t, s.SaveReport(ctx, testRecord(i)))
	}
	_, err := os.Stat(filepath.Join(dir, "reports.json"))
	assert.True(t, os.IsNotExist(err), "nothing written before the batch fills")

	require.NoError(t, s.SaveReport(ctx, testRecord(batchSize-1)))
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var onDisk []Record
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk, batchSize)
	assert.Equal(t, "TLR-00000000", onDisk[0].ID)
	assert.Equal(t, 80.0, onDisk[0].Report.Detections.Eyes.Score)
}

func TestFileStorage_CloseFlushesAndAppends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewFileStorage(dir)
	require.NoError(t, first.SaveReport(ctx, testRecord(1)))
	require.NoError(t, first.Close())

	second := NewFileStorage(dir)
	require.NoError(t, second.SaveReport(ctx, testRecord(2)))
	require.NoError(t, second.Close())

	records, err := NewFileStorage(dir).ListReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "TLR-00000002", records[0].ID, "newest first")
	assert.Equal(t, "TLR-00000001", records[1].ID)
}

func TestFileStorage_ListIncludesPending(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveReport(ctx, testRecord(i)))
	}

	records, err := s.ListReports(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "TLR-00000002", records[0].ID)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reports.json"), []byte("{not json"), 0o644))

	s := NewFileStorage(dir)
	require.NoError(t, s.SaveReport(context.Background(), testRecord(1)))
	assert.Error(t, s.Flush())
}

func TestDiscard(t *testing.T) {
	var s Storage = Discard{}
	assert.NoError(t, s.SaveReport(context.Background(), testRecord(1)))
	assert.NoError(t, s.Flush())
	assert.NoError(t, s.Close())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, Discard{}, s)

	s, err = Open(ctx, Config{Driver: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	_, err = Open(ctx, Config{Driver: "s3"})
	assert.Error(t, err)
}

func TestSignature(t *testing.T) {
	sig := Signature(testReport(87))
	require.Len(t, sig, SignatureDims)
	assert.InDeltaSlice(t, []float32{0.8, 0.6, 0.4, 0.2}, sig, 1e-6)
}

func TestPostgresConfig_ConnString(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", User: "lens", Password: "p@ss", DBName: "truthlens"}
	assert.Equal(t, "postgres://lens:p%40ss@db:5432/truthlens", cfg.ConnString())

	cfg.URL = "postgres://override/db"
	assert.Equal(t, "postgres://override/db", cfg.ConnString())
}
