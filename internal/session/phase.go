package session

import (
	"github.com/rotisserie/eris"
)

// ErrInvalidTransition is returned for an event the current phase does not accept
var ErrInvalidTransition = eris.New("invalid phase transition")

// Phase is the lifecycle stage of one analysis
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExtracting
	PhaseAnalyzing
	PhaseResult
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseExtracting:
		return "EXTRACTING"
	case PhaseAnalyzing:
		return "ANALYZING"
	case PhaseResult:
		return "RESULT"
	case PhaseError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets phases appear by name in JSON
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Busy reports whether a pipeline is in flight
func (p Phase) Busy() bool {
	return p == PhaseExtracting || p == PhaseAnalyzing
}

// Event drives a phase change
type Event int

const (
	EventSelect Event = iota
	EventReject
	EventFramesReady
	EventReportReady
	EventFail
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventSelect:
		return "select"
	case EventReject:
		return "reject"
	case EventFramesReady:
		return "frames_ready"
	case EventReportReady:
		return "report_ready"
	case EventFail:
		return "fail"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Next is the transition function
func Next(p Phase, e Event) (Phase, error) {
	switch {
	case p == PhaseIdle && e == EventSelect:
		return PhaseExtracting, nil
	case p == PhaseIdle && e == EventReject:
		return PhaseError, nil
	case p == PhaseExtracting && e == EventFramesReady:
		return PhaseAnalyzing, nil
	case p == PhaseAnalyzing && e == EventReportReady:
		return PhaseResult, nil
	case p.Busy() && e == EventFail:
		return PhaseError, nil
	case (p == PhaseResult || p == PhaseError) && e == EventReset:
		return PhaseIdle, nil
	}
	return p, eris.Wrapf(ErrInvalidTransition, "%s on %s", e, p)
}
