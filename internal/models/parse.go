package models

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
)

// ErrSchema is returned when a model payload is not a valid forensic report
var ErrSchema = eris.New("invalid forensic report")

type wireFeature struct {
	Score       *float64 `json:"score"`
	Status      *string  `json:"status"`
	Observation *string  `json:"observation"`
}

type wireCoordinates struct {
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Radius *float64 `json:"radius"`
}

type wireAnomaly struct {
	Timestamp   *float64         `json:"timestamp"`
	Description *string          `json:"description"`
	Severity    *string          `json:"severity"`
	Coordinates *wireCoordinates `json:"coordinates"`
}

type wireReport struct {
	OverallScore   *float64                `json:"overallScore"`
	Confidence     *float64                `json:"confidence"`
	Detections     map[string]*wireFeature `json:"detections"`
	Anomalies      *[]wireAnomaly          `json:"anomalies"`
	Summary        *string                 `json:"summary"`
	Recommendation *string                 `json:"recommendation"`
}

// ParseReport decodes and validates a raw forensic report payload.
// A report missing any required field or any of the four detection keys is rejected
// rather than returned partially filled.
func ParseReport(raw []byte) (*Report, error) {
	var w wireReport
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, eris.Wrapf(ErrSchema, "decode: %v", err)
	}

	switch {
	case w.OverallScore == nil:
		return nil, missing("overallScore")
	case w.Confidence == nil:
		return nil, missing("confidence")
	case w.Detections == nil:
		return nil, missing("detections")
	case w.Anomalies == nil:
		return nil, missing("anomalies")
	case w.Summary == nil:
		return nil, missing("summary")
	case w.Recommendation == nil:
		return nil, missing("recommendation")
	}

	if !inRange(*w.OverallScore, 0, 100) {
		return nil, eris.Wrapf(ErrSchema, "overallScore %v out of range", *w.OverallScore)
	}
	if !inRange(*w.Confidence, 0, 1) {
		return nil, eris.Wrapf(ErrSchema, "confidence %v out of range", *w.Confidence)
	}

	report := &Report{
		OverallScore:   *w.OverallScore,
		Confidence:     *w.Confidence,
		Anomalies:      make([]Anomaly, 0, len(*w.Anomalies)),
		Summary:        *w.Summary,
		Recommendation: *w.Recommendation,
	}

	targets := map[string]*FeatureAnalysis{
		"eyes":     &report.Detections.Eyes,
		"mouth":    &report.Detections.Mouth,
		"skin":     &report.Detections.Skin,
		"lighting": &report.Detections.Lighting,
	}
	for _, key := range DetectionKeys {
		feature, err := parseFeature(key, w.Detections[key])
		if err != nil {
			return nil, err
		}
		*targets[key] = feature
	}

	for i, a := range *w.Anomalies {
		anomaly, err := parseAnomaly(i, a)
		if err != nil {
			return nil, err
		}
		report.Anomalies = append(report.Anomalies, anomaly)
	}

	return report, nil
}

func parseFeature(key string, f *wireFeature) (FeatureAnalysis, error) {
	if f == nil {
		return FeatureAnalysis{}, missing("detections." + key)
	}
	if f.Score == nil || f.Status == nil || f.Observation == nil {
		return FeatureAnalysis{}, eris.Wrapf(ErrSchema, "detections.%s: score, status and observation are required", key)
	}
	if !inRange(*f.Score, 0, 100) {
		return FeatureAnalysis{}, eris.Wrapf(ErrSchema, "detections.%s.score %v out of range", key, *f.Score)
	}
	status := FeatureStatus(*f.Status)
	if !status.Valid() {
		return FeatureAnalysis{}, eris.Wrapf(ErrSchema, "detections.%s.status %q unknown", key, *f.Status)
	}
	return FeatureAnalysis{
		Score:       *f.Score,
		Status:      status,
		Observation: *f.Observation,
	}, nil
}

func parseAnomaly(i int, a wireAnomaly) (Anomaly, error) {
	if a.Timestamp == nil || a.Description == nil || a.Severity == nil || a.Coordinates == nil {
		return Anomaly{}, eris.Wrapf(ErrSchema, "anomalies[%d]: timestamp, description, severity and coordinates are required", i)
	}
	c := a.Coordinates
	if c.X == nil || c.Y == nil || c.Radius == nil {
		return Anomaly{}, eris.Wrapf(ErrSchema, "anomalies[%d].coordinates: x, y and radius are required", i)
	}
	if !inRange(*c.X, 0, 100) || !inRange(*c.Y, 0, 100) || !inRange(*c.Radius, 0, 100) {
		return Anomaly{}, eris.Wrapf(ErrSchema, "anomalies[%d].coordinates (%v, %v, r=%v) outside the 0-100 plane", i, *c.X, *c.Y, *c.Radius)
	}
	severity := Severity(*a.Severity)
	if !severity.Valid() {
		return Anomaly{}, eris.Wrapf(ErrSchema, "anomalies[%d].severity %q unknown", i, *a.Severity)
	}
	return Anomaly{
		Timestamp:   *a.Timestamp,
		Description: *a.Description,
		Severity:    severity,
		Coordinates: Coordinates{X: *c.X, Y: *c.Y, Radius: *c.Radius},
	}, nil
}

func missing(field string) error {
	return eris.Wrapf(ErrSchema, "missing required field %s", field)
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
