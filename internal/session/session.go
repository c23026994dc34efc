package session

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/rotisserie/eris"

	"github.com/bdougie/truthlens/internal/dashboard"
	"github.com/bdougie/truthlens/internal/metrics"
	"github.com/bdougie/truthlens/internal/models"
	"github.com/bdougie/truthlens/internal/storage"
)

var (
	// ErrInvalidInput is returned when the upload is not a video
	ErrInvalidInput = eris.New("invalid upload")
	// ErrBusy is returned when a session already has a pipeline in flight
	ErrBusy = eris.New("session is busy")
)

const (
	DefaultFrameCount  = 4
	DefaultSettleDelay = 500 * time.Millisecond
)

// Sampler extracts still frames from a video file
type Sampler interface {
	Sample(ctx context.Context, videoPath string, count int) ([]models.Frame, error)
}

// Analyzer produces a forensic report from frames
type Analyzer interface {
	Analyze(ctx context.Context, frames []models.Frame) (*models.Report, error)
}

// Upload describes the file handed to Submit
type Upload struct {
	Name        string
	ContentType string
	Path        string
	Size        int64
	// Release, if set, is called once the file is no longer needed
	Release func()
}

// Config tunes a session
type Config struct {
	FrameCount     int
	TickInterval   time.Duration
	SettleDelay    time.Duration
	MaxUploadBytes int64
	// Rand returns a value in [0,1); math/rand by default
	Rand func() float64
}

func (c Config) withDefaults() Config {
	if c.FrameCount <= 0 {
		c.FrameCount = DefaultFrameCount
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	return c
}

// Session owns the state of one upload from selection to result
type Session struct {
	ID string

	cfg      Config
	sampler  Sampler
	analyzer Analyzer
	archive  storage.Storage
	logger   *slog.Logger

	mu        sync.RWMutex
	state     State
	observers []func(State)
	updatedAt time.Time
}

// New creates an idle session. A nil archive discards reports.
func New(id string, sampler Sampler, analyzer Analyzer, archive storage.Storage, cfg Config, logger *slog.Logger) *Session {
	if archive == nil {
		archive = storage.Discard{}
	}
	return &Session{
		ID:        id,
		cfg:       cfg.withDefaults(),
		sampler:   sampler,
		analyzer:  analyzer,
		archive:   archive,
		logger:    logger.With("session", id),
		updatedAt: time.Now(),
	}
}

// Observe registers fn to be called with a copy of the state after every
// change. fn may run on the ticker goroutine and must not call back into the
// session's mutating methods.
func (s *Session) Observe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UpdatedAt is the time of the last state change
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// apply runs fn against the current state under the lock and notifies observers
func (s *Session) apply(fn func(State) (State, error)) error {
	s.mu.Lock()
	next, err := fn(s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.updatedAt = time.Now()
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o(next)
	}
	return nil
}

// Submit runs the whole pipeline for one upload and blocks until the session
// reaches Result or Error. Sampling and analysis failures are reported as the
// generic failure message in the state and returned for logging.
func (s *Session) Submit(ctx context.Context, up Upload) error {
	release := func() {
		if up.Release != nil {
			up.Release()
			up.Release = nil
		}
	}
	defer release()

	if s.Snapshot().Phase != PhaseIdle {
		return eris.Wrapf(ErrBusy, "session %s", s.ID)
	}

	if reason := s.validate(up); reason != "" {
		if err := s.apply(func(st State) (State, error) { return st.Reject(InvalidUploadMessage) }); err != nil {
			return eris.Wrapf(ErrBusy, "session %s", s.ID)
		}
		metrics.AnalysesTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("rejected upload", "name", up.Name, "content_type", up.ContentType, "reason", reason)
		return eris.Wrap(ErrInvalidInput, reason)
	}

	// Step 1: decode frames
	if err := s.apply(func(st State) (State, error) { return st.Select(up.Name) }); err != nil {
		return eris.Wrapf(ErrBusy, "session %s", s.ID)
	}
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	s.logger.Info("extracting frames", "name", up.Name, "size", up.Size, "count", s.cfg.FrameCount)
	start := time.Now()
	frames, err := s.sampler.Sample(ctx, up.Path, s.cfg.FrameCount)
	release()
	metrics.PhaseDuration.WithLabelValues("extracting").Observe(time.Since(start).Seconds())
	if err != nil {
		return s.fail(err)
	}
	metrics.FramesSampledTotal.Add(float64(len(frames)))

	// Step 2: ask the oracle while the ticker runs
	if err := s.apply(func(st State) (State, error) { return st.FramesReady(frames) }); err != nil {
		return err
	}
	s.logger.Info("analyzing frames", "frames", len(frames))

	start = time.Now()
	stop := startTicker(s.cfg.TickInterval, func() {
		increment := s.cfg.Rand() * maxIncrement
		s.apply(func(st State) (State, error) { return st.Tick(increment), nil }) //nolint:errcheck
	})
	report, err := s.analyzer.Analyze(ctx, frames)
	stop()
	metrics.PhaseDuration.WithLabelValues("analyzing").Observe(time.Since(start).Seconds())
	if err != nil {
		return s.fail(err)
	}

	// Step 3: settle at 100 then show the result
	s.apply(func(st State) (State, error) { return st.Complete(), nil }) //nolint:errcheck
	if err := sleep(ctx, s.cfg.SettleDelay); err != nil {
		return s.fail(err)
	}
	id, finished := NewReportID(), time.Now().UTC()
	if err := s.apply(func(st State) (State, error) { return st.ReportReady(id, report, finished) }); err != nil {
		return err
	}

	verdict := dashboard.Classify(report.OverallScore)
	metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	metrics.VerdictsTotal.WithLabelValues(string(verdict)).Inc()
	s.logger.Info("analysis complete",
		"report_id", id,
		"verdict", verdict,
		"score", report.OverallScore,
		"confidence", report.Confidence,
		"anomalies", len(report.Anomalies),
	)

	s.archiveReport(ctx, storage.Record{
		ID:        id,
		VideoName: up.Name,
		Verdict:   string(verdict),
		Report:    report,
		CreatedAt: finished,
	})
	return nil
}

// Reset returns a finished session to Idle
func (s *Session) Reset() error {
	phase := s.Snapshot().Phase
	if phase.Busy() {
		return eris.Wrapf(ErrBusy, "session %s is %s", s.ID, phase)
	}
	return s.apply(func(st State) (State, error) { return st.Reset() })
}

func (s *Session) validate(up Upload) string {
	if !strings.HasPrefix(strings.ToLower(up.ContentType), "video/") {
		return "content type " + up.ContentType + " is not a video"
	}
	if s.cfg.MaxUploadBytes > 0 && up.Size > s.cfg.MaxUploadBytes {
		return "upload exceeds size limit"
	}
	return ""
}

func (s *Session) fail(cause error) error {
	metrics.AnalysesTotal.WithLabelValues("failed").Inc()
	s.logger.Error("analysis failed", tint.Err(cause))
	if err := s.apply(func(st State) (State, error) { return st.Fail(GenericFailureMessage) }); err != nil {
		return err
	}
	return cause
}

func (s *Session) archiveReport(ctx context.Context, rec storage.Record) {
	if err := s.archive.SaveReport(ctx, rec); err != nil {
		s.logger.Error("failed to archive report", "report_id", rec.ID, tint.Err(err))
	}
}

// NewReportID returns a short display id such as TLR-1a2b3c4d
func NewReportID() string {
	return "TLR-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
