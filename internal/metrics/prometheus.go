package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesTotal counts finished analyses by outcome
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthlens_analyses_total",
		Help: "Total number of analyses finished, by outcome",
	}, []string{"outcome"})

	// VerdictsTotal counts completed reports by verdict
	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthlens_verdicts_total",
		Help: "Completed reports by binary classification",
	}, []string{"verdict"})

	// PhaseDuration observes how long extraction and analysis take
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "truthlens_phase_duration_seconds",
		Help:    "Time spent in each busy session phase",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"phase"})

	// FramesSampledTotal counts frames decoded from uploads
	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "truthlens_frames_sampled_total",
		Help: "Total number of frames sampled across all sessions",
	})

	// OracleTokensTotal counts model tokens by direction
	OracleTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthlens_oracle_tokens_total",
		Help: "Tokens exchanged with the remote model, by direction",
	}, []string{"direction"})

	// ActiveSessions tracks sessions with a pipeline in flight
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "truthlens_active_sessions",
		Help: "Number of sessions currently extracting or analyzing",
	})
)
