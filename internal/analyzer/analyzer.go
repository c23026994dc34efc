package analyzer

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/rotisserie/eris"

	"github.com/bdougie/truthlens/internal/metrics"
	"github.com/bdougie/truthlens/internal/models"
)

// ErrOracle is returned when the remote model cannot be reached or refuses the request
var ErrOracle = eris.New("oracle request failed")

const (
	DefaultModel       = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.1
)

const systemPrompt = "You are a Tier-1 Digital Forensic Investigator specializing in Synthetic Media Attribution."

const forensicPrompt = `I am providing keyframes from a video in chronological order. Conduct an exhaustive forensic scan for:
1. BIOLOGICAL MARKERS: Unnatural eye blinking rhythm, absence of micro-expressions, lack of eye-moisture highlights.
2. GENERATIVE ARTIFACTS: Double-edge ghosting around jawlines, texture warping in hair/ear zones, and 'zombie' eyes.
3. COMPRESSION & NOISE: Mismatched JPEG noise between the subject and background, indicating a face-swap.
4. TEMPORAL COHERENCE: Sudden shifts in face orientation that look 'jittery' across frames.

BE CRITICAL. If there is a 1% doubt, flag it as 'suspicious'.
Anomaly coordinates use a 0-100 plane relative to the frame (x from the left edge, y from the top).
Return the forensic report by calling the submit_forensic_report tool.`

// Config tunes the request sent to the oracle
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Analyzer turns sampled frames into a validated forensic report
type Analyzer struct {
	oracle Oracle
	cfg    Config
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer, filling in defaults for unset config
func NewAnalyzer(oracle Oracle, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &Analyzer{
		oracle: oracle,
		cfg:    cfg,
		logger: logger,
	}
}

// Analyze sends all frames in one request and parses the structured verdict
func (a *Analyzer) Analyze(ctx context.Context, frames []models.Frame) (*models.Report, error) {
	if len(frames) == 0 {
		return nil, eris.Wrap(ErrOracle, "no frames to analyze")
	}

	images := make([]Image, len(frames))
	for i, f := range frames {
		images[i] = Image{MediaType: "image/jpeg", Data: f.Base64()}
	}

	resp, err := a.oracle.Complete(ctx, Request{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		System:      systemPrompt,
		Prompt:      forensicPrompt,
		Images:      images,
		Tool:        reportTool(),
	})
	if err != nil {
		return nil, eris.Wrapf(ErrOracle, "%v", err)
	}

	metrics.OracleTokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	metrics.OracleTokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))

	a.logger.Info("oracle responded",
		"id", resp.ID,
		"model", resp.Model,
		"stop_reason", resp.StopReason,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	payload := payloadOf(resp)
	report, err := models.ParseReport(payload)
	if err != nil {
		a.logger.Error("failed to parse forensic report", "payload", string(payload), tint.Err(err))
		return nil, err
	}
	return report, nil
}

// payloadOf prefers the forced tool call and falls back to a JSON text reply
func payloadOf(resp *Response) []byte {
	if len(resp.ToolInput) > 0 {
		return resp.ToolInput
	}
	return stripFences(resp.Text)
}

func stripFences(text string) []byte {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return bytes.TrimSpace([]byte(text))
}
