package session

import (
	"time"

	"github.com/bdougie/truthlens/internal/models"
)

const (
	// ProgressCap is the highest value the cosmetic ticker reaches
	ProgressCap = 92.0
	// ExtractingLabel is shown while frames are being decoded
	ExtractingLabel = "DECODING_MEDIA"

	GenericFailureMessage = "Analysis failed. This might be due to content safety filters or API connectivity issues."
	InvalidUploadMessage  = "Please select a valid video file."
)

// Steps are the cosmetic labels cycled through while analyzing
var Steps = []string{
	"DECODING_TEMPORAL_DATA",
	"ISOLATING_FACIAL_LANDMARKS",
	"ANALYZING_BLINK_PATTERNS",
	"CHECKING_LIP_SYNC_COHERENCE",
	"SCANNING_SKIN_TEXTURE_NOISE",
	"IDENTIFYING_LIGHTING_INCONSISTENCIES",
	"COMPUTING_NEURAL_WEIGHTS",
}

// State is the full observable state of a session. Methods return a new value
// and leave the receiver untouched.
type State struct {
	Phase      Phase          `json:"phase"`
	VideoName  string         `json:"videoName,omitempty"`
	Progress   float64        `json:"progress"`
	Step       int            `json:"step"`
	StepLabel  string         `json:"stepLabel,omitempty"`
	Frames     []models.Frame `json:"frames,omitempty"`
	Report     *models.Report `json:"report,omitempty"`
	ReportID   string         `json:"reportId,omitempty"`
	FinishedAt time.Time      `json:"finishedAt,omitzero"`
	ErrMessage string         `json:"error,omitempty"`
}

func (s State) transition(e Event) (State, error) {
	next, err := Next(s.Phase, e)
	if err != nil {
		return s, err
	}
	s.Phase = next
	return s, nil
}

// Select starts extraction of the named video
func (s State) Select(videoName string) (State, error) {
	if _, err := s.transition(EventSelect); err != nil {
		return s, err
	}
	return State{
		Phase:     PhaseExtracting,
		VideoName: videoName,
		StepLabel: ExtractingLabel,
	}, nil
}

// Reject moves an idle session straight to Error
func (s State) Reject(message string) (State, error) {
	if _, err := s.transition(EventReject); err != nil {
		return s, err
	}
	return State{Phase: PhaseError, ErrMessage: message}, nil
}

// FramesReady enters Analyzing with the sampled frames
func (s State) FramesReady(frames []models.Frame) (State, error) {
	next, err := s.transition(EventFramesReady)
	if err != nil {
		return s, err
	}
	next.Frames = frames
	next.Progress = 0
	next.Step = 0
	next.StepLabel = Steps[0]
	return next, nil
}

// Tick advances the cosmetic progress. It is a no-op outside Analyzing and
// never lowers progress that is already above the cap.
func (s State) Tick(increment float64) State {
	if s.Phase != PhaseAnalyzing {
		return s
	}
	if s.Progress < ProgressCap {
		s.Progress = min(s.Progress+increment, ProgressCap)
	}
	if s.Step < len(Steps)-1 {
		s.Step++
	}
	s.StepLabel = Steps[s.Step]
	return s
}

// Complete forces progress to 100 ahead of the settle delay
func (s State) Complete() State {
	if s.Phase == PhaseAnalyzing {
		s.Progress = 100
	}
	return s
}

// ReportReady enters Result
func (s State) ReportReady(id string, report *models.Report, at time.Time) (State, error) {
	next, err := s.transition(EventReportReady)
	if err != nil {
		return s, err
	}
	next.Report = report
	next.ReportID = id
	next.FinishedAt = at
	next.Progress = 100
	return next, nil
}

// Fail enters Error, dropping frames and any partial data
func (s State) Fail(message string) (State, error) {
	if _, err := s.transition(EventFail); err != nil {
		return s, err
	}
	return State{Phase: PhaseError, VideoName: s.VideoName, ErrMessage: message}, nil
}

// Reset returns to an empty Idle state
func (s State) Reset() (State, error) {
	if _, err := s.transition(EventReset); err != nil {
		return s, err
	}
	return State{}, nil
}
