package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/bdougie/truthlens/internal/models"
)

var (
	// ErrInvalidCount is returned when fewer than one frame is requested
	ErrInvalidCount = eris.New("frame count must be at least 1")
	// ErrDecode is returned when video metadata cannot be loaded or a seek fails
	ErrDecode = eris.New("video decode failed")
	// ErrCapture is returned when a frame cannot be rendered to a still image
	ErrCapture = eris.New("frame capture failed")
)

// DefaultQuality is the mjpeg qscale used for captured stills (2 best, 31 worst)
const DefaultQuality = 3

// Options configures a Sampler
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Quality     int
	Runner      Runner
}

// Metadata describes the probed video stream
type Metadata struct {
	Duration float64
	Width    int
	Height   int
}

// Sampler captures evenly spaced stills from a video using ffmpeg
type Sampler struct {
	ffmpeg  string
	ffprobe string
	quality int
	runner  Runner
	logger  *slog.Logger
}

// NewSampler creates a Sampler, filling in defaults for unset options
func NewSampler(opts Options, logger *slog.Logger) *Sampler {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	return &Sampler{
		ffmpeg:  opts.FFmpegPath,
		ffprobe: opts.FFprobePath,
		quality: opts.Quality,
		runner:  opts.Runner,
		logger:  logger,
	}
}

// Timestamps returns count seek points evenly spaced across duration,
// excluding the very start and end of the video.
func Timestamps(duration float64, count int) []float64 {
	step := duration / float64(count+1)
	out := make([]float64, count)
	for i := range out {
		out[i] = step * float64(i+1)
	}
	return out
}

// Sample captures count frames from the video at videoPath.
// Frames are captured one at a time in increasing timestamp order.
func (s *Sampler) Sample(ctx context.Context, videoPath string, count int) ([]models.Frame, error) {
	if count < 1 {
		return nil, eris.Wrapf(ErrInvalidCount, "got %d", count)
	}

	// Check if video file exists
	if _, err := os.Stat(videoPath); err != nil {
		return nil, eris.Wrapf(ErrDecode, "video file not readable at path '%s': %v", videoPath, err)
	}

	meta, err := s.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("sampling frames",
		"video", videoPath,
		"duration", meta.Duration,
		"width", meta.Width,
		"height", meta.Height,
		"count", count,
	)

	frames := make([]models.Frame, 0, count)
	for _, ts := range Timestamps(meta.Duration, count) {
		data, err := s.capture(ctx, videoPath, ts)
		if err != nil {
			return nil, err
		}
		frames = append(frames, models.Frame{
			Timestamp: ts,
			Data:      data,
			Width:     meta.Width,
			Height:    meta.Height,
		})
	}

	s.logger.Info("frames sampled", "video", videoPath, "count", len(frames))
	return frames, nil
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe loads the duration and dimensions of the first video stream
func (s *Sampler) Probe(ctx context.Context, videoPath string) (Metadata, error) {
	out, err := s.runner.Output(ctx, s.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		videoPath,
	)
	if err != nil {
		return Metadata{}, eris.Wrapf(ErrDecode, "probe '%s': %v", videoPath, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Metadata{}, eris.Wrapf(ErrDecode, "parse probe output: %v", err)
	}
	if len(probe.Streams) == 0 {
		return Metadata{}, eris.Wrapf(ErrDecode, "no video stream in '%s'", videoPath)
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return Metadata{}, eris.Wrapf(ErrDecode, "unusable duration %q", probe.Format.Duration)
	}

	return Metadata{
		Duration: duration,
		Width:    probe.Streams[0].Width,
		Height:   probe.Streams[0].Height,
	}, nil
}

var jpegMagic = []byte{0xFF, 0xD8}

func (s *Sampler) capture(ctx context.Context, videoPath string, ts float64) ([]byte, error) {
	seek := strconv.FormatFloat(ts, 'f', 3, 64)
	out, err := s.runner.Output(ctx, s.ffmpeg,
		"-v", "error",
		"-ss", seek,
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(s.quality),
		"-",
	)
	if err != nil {
		return nil, eris.Wrapf(ErrDecode, "seek to %ss: %v", seek, err)
	}
	if !bytes.HasPrefix(out, jpegMagic) {
		return nil, eris.Wrapf(ErrCapture, "no image at %ss (%d bytes)", seek, len(out))
	}
	return out, nil
}
