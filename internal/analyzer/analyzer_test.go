package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/truthlens/internal/models"
)

const reportJSON = `{
  "overallScore": 87,
  "confidence": 0.93,
  "detections": {
    "eyes":     {"score": 80, "status": "manipulated", "observation": "no blink"},
    "mouth":    {"score": 61, "status": "suspicious", "observation": "lip sync drift"},
    "skin":     {"score": 74, "status": "manipulated", "observation": "smoothing"},
    "lighting": {"score": 35, "status": "suspicious", "observation": "rim light mismatch"}
  },
  "anomalies": [
    {"timestamp": 5.4, "description": "hairline warping", "severity": "medium", "coordinates": {"x": 50, "y": 20, "radius": 6}}
  ],
  "summary": "Generative artifacts around the face.",
  "recommendation": "Do not trust."
}`

type fakeOracle struct {
	resp *Response
	err  error
	req  Request
}

func (f *fakeOracle) Complete(_ context.Context, req Request) (*Response, error) {
	f.req = req
	return f.resp, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFrames() []models.Frame {
	return []models.Frame{
		{Timestamp: 1.8, Data: []byte{0xFF, 0xD8, 0x01}},
		{Timestamp: 3.6, Data: []byte{0xFF, 0xD8, 0x02}},
		{Timestamp: 5.4, Data: []byte{0xFF, 0xD8, 0x03}},
		{Timestamp: 7.2, Data: []byte{0xFF, 0xD8, 0x04}},
	}
}

func TestAnalyze_ToolInput(t *testing.T) {
	oracle := &fakeOracle{resp: &Response{
		ToolName:  reportToolName,
		ToolInput: json.RawMessage(reportJSON),
	}}
	a := NewAnalyzer(oracle, Config{}, discardLogger())

	report, err := a.Analyze(context.Background(), testFrames())
	require.NoError(t, err)
	assert.Equal(t, 87.0, report.OverallScore)
	assert.Equal(t, models.StatusManipulated, report.Detections.Eyes.Status)

	// Request shape
	assert.Equal(t, DefaultModel, oracle.req.Model)
	assert.Equal(t, int64(DefaultMaxTokens), oracle.req.MaxTokens)
	assert.InDelta(t, 0.1, oracle.req.Temperature, 1e-9)
	assert.Contains(t, oracle.req.Prompt, "BIOLOGICAL MARKERS")
	assert.Contains(t, oracle.req.Prompt, "GENERATIVE ARTIFACTS")
	assert.Contains(t, oracle.req.Prompt, "COMPRESSION & NOISE")
	assert.Contains(t, oracle.req.Prompt, "TEMPORAL COHERENCE")
	require.Len(t, oracle.req.Images, 4)
	for i, img := range oracle.req.Images {
		assert.Equal(t, "image/jpeg", img.MediaType)
		assert.Equal(t, testFrames()[i].Base64(), img.Data)
	}
	require.NotNil(t, oracle.req.Tool)
	assert.Equal(t, reportToolName, oracle.req.Tool.Name)
	assert.ElementsMatch(t,
		[]string{"overallScore", "confidence", "detections", "anomalies", "summary", "recommendation"},
		oracle.req.Tool.Required)
}

func TestAnalyze_TextFallback(t *testing.T) {
	oracle := &fakeOracle{resp: &Response{Text: "```json\n" + reportJSON + "\n```"}}
	a := NewAnalyzer(oracle, Config{Model: "claude-test", Temperature: 0.2}, discardLogger())

	report, err := a.Analyze(context.Background(), testFrames())
	require.NoError(t, err)
	assert.InDelta(t, 0.93, report.Confidence, 1e-9)
	assert.Equal(t, "claude-test", oracle.req.Model)
	assert.InDelta(t, 0.2, oracle.req.Temperature, 1e-9)
}

func TestAnalyze_MalformedPayload(t *testing.T) {
	oracle := &fakeOracle{resp: &Response{Text: `{"overallScore": 87, "confidence":`}}
	a := NewAnalyzer(oracle, Config{}, discardLogger())

	report, err := a.Analyze(context.Background(), testFrames())
	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchema))
}

func TestAnalyze_MissingDetection(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(reportJSON), &m))
	delete(m["detections"].(map[string]any), "lighting")
	raw, err := json.Marshal(m)
	require.NoError(t, err)

	a := NewAnalyzer(&fakeOracle{resp: &Response{ToolInput: raw}}, Config{}, discardLogger())

	report, err := a.Analyze(context.Background(), testFrames())
	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSchema))
}

func TestAnalyze_OracleError(t *testing.T) {
	a := NewAnalyzer(&fakeOracle{err: errors.New("connection refused")}, Config{}, discardLogger())

	_, err := a.Analyze(context.Background(), testFrames())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOracle))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAnalyze_NoFrames(t *testing.T) {
	oracle := &fakeOracle{}
	a := NewAnalyzer(oracle, Config{}, discardLogger())

	_, err := a.Analyze(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOracle))
	assert.Empty(t, oracle.req.Model)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripFences("```json\n{\"a\":1}\n```")))
	assert.Equal(t, `{"a":1}`, string(stripFences("  {\"a\":1}  ")))
	assert.Equal(t, `{"a":1}`, string(stripFences("```\n{\"a\":1}```")))
}
