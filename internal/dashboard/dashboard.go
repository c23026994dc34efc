package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bdougie/truthlens/internal/models"
)

// Verdict is the binary media classification shown on the dashboard
type Verdict string

const (
	VerdictSynthetic Verdict = "AI_GENERATED"
	VerdictOriginal  Verdict = "ORIGINAL_VIDEO"
)

// SyntheticThreshold is the lowest overall score classified as synthetic
const SyntheticThreshold = 50.0

// MaxTiles caps the number of frames shown in the overlay grid
const MaxTiles = 4

// Classify maps an overall score to a verdict; the threshold itself counts as synthetic
func Classify(score float64) Verdict {
	if score >= SyntheticThreshold {
		return VerdictSynthetic
	}
	return VerdictOriginal
}

// Synthetic reports whether v flags the media as generated
func (v Verdict) Synthetic() bool {
	return v == VerdictSynthetic
}

// Meta identifies one rendering of a report
type Meta struct {
	ReportID    string
	GeneratedAt time.Time
}

// View is everything the renderers need, derived from a report and its frames
type View struct {
	Meta
	Verdict        Verdict
	Synthetic      bool
	Score          string
	ScoreValue     float64
	Confidence     string
	Radar          Radar
	Tiles          []Tile
	Anomalies      []AnomalyRow
	Features       []FeatureBar
	Summary        string
	Recommendation string
}

// Radar is a four-axis chart of the detection scores on a 200x200 canvas
type Radar struct {
	Axes    []RadarAxis
	Polygon string
}

// RadarAxis is one spoke of the radar chart
type RadarAxis struct {
	Label  string
	Value  float64
	EndX   float64
	EndY   float64
	LabelX float64
	LabelY float64
}

// Tile is a sampled frame with the anomaly overlay drawn on top
type Tile struct {
	Index     int
	Timestamp string
	ImageURL  string
	Markers   []Marker
}

// Marker is an anomaly circle in the 0-100 overlay plane
type Marker struct {
	X           float64
	Y           float64
	Radius      float64
	Fill        string
	Description string
}

// AnomalyRow is one entry of the chronological anomaly list
type AnomalyRow struct {
	Offset      string
	Severity    string
	High        bool
	Description string
}

// FeatureBar is one row of the per-feature status matrix
type FeatureBar struct {
	Key         string
	Label       string
	Status      string
	StatusTone  string
	Score       float64
	Level       string
	Observation string
}

const (
	radarCenter = 100.0
	radarRadius = 80.0
	labelRadius = 92.0
)

// Build derives the dashboard view. The report and frames are never modified.
func Build(report *models.Report, frames []models.Frame, meta Meta) View {
	verdict := Classify(report.OverallScore)

	v := View{
		Meta:           meta,
		Verdict:        verdict,
		Synthetic:      verdict.Synthetic(),
		Score:          formatNumber(report.OverallScore) + "%",
		ScoreValue:     report.OverallScore,
		Confidence:     fmt.Sprintf("%.1f%%", report.Confidence*100),
		Radar:          buildRadar(report.Detections),
		Summary:        report.Summary,
		Recommendation: report.Recommendation,
	}

	// Anomalies carry no frame binding, so every tile gets the full overlay
	markers := make([]Marker, len(report.Anomalies))
	for i, a := range report.Anomalies {
		markers[i] = Marker{
			X:           a.Coordinates.X,
			Y:           a.Coordinates.Y,
			Radius:      a.Coordinates.Radius,
			Fill:        markerFill(a.Severity),
			Description: a.Description,
		}
	}
	for i, f := range frames {
		if i == MaxTiles {
			break
		}
		v.Tiles = append(v.Tiles, Tile{
			Index:     i,
			Timestamp: fmt.Sprintf("%.2fs", f.Timestamp),
			ImageURL:  f.DataURL(),
			Markers:   markers,
		})
	}

	v.Anomalies = chronological(report.Anomalies)

	for _, f := range report.Detections.Each() {
		v.Features = append(v.Features, FeatureBar{
			Key:         f.Key,
			Label:       capitalize(f.Key),
			Status:      strings.ToUpper(string(f.Status)),
			StatusTone:  StatusTone(f.Status),
			Score:       f.Score,
			Level:       ScoreLevel(f.Score),
			Observation: f.Observation,
		})
	}

	return v
}

// StatusTone maps a feature status to its display colour
func StatusTone(s models.FeatureStatus) string {
	switch s {
	case models.StatusNatural:
		return "green"
	case models.StatusSuspicious:
		return "yellow"
	case models.StatusManipulated:
		return "red"
	default:
		return "gray"
	}
}

// ScoreLevel buckets a feature score for the status bar colour
func ScoreLevel(score float64) string {
	switch {
	case score > 70:
		return "high"
	case score > 30:
		return "elevated"
	default:
		return "low"
	}
}

func markerFill(s models.Severity) string {
	if s == models.SeverityHigh {
		return "rgba(239, 68, 68, 0.4)"
	}
	return "rgba(234, 179, 8, 0.4)"
}

func chronological(anomalies []models.Anomaly) []AnomalyRow {
	sorted := make([]models.Anomaly, len(anomalies))
	copy(sorted, anomalies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	rows := make([]AnomalyRow, len(sorted))
	for i, a := range sorted {
		rows[i] = AnomalyRow{
			Offset:      fmt.Sprintf("%.2fs", a.Timestamp),
			Severity:    strings.ToUpper(string(a.Severity)),
			High:        a.Severity == models.SeverityHigh,
			Description: a.Description,
		}
	}
	return rows
}

func buildRadar(d models.Detections) Radar {
	features := d.Each()
	var r Radar
	points := make([]string, 0, len(features))
	for i, f := range features {
		// Start at twelve o'clock and go clockwise
		angle := -math.Pi/2 + 2*math.Pi*float64(i)/float64(len(features))
		cos, sin := math.Cos(angle), math.Sin(angle)
		value := clamp(f.Score, 0, 100)

		r.Axes = append(r.Axes, RadarAxis{
			Label:  capitalize(f.Key),
			Value:  f.Score,
			EndX:   round1(radarCenter + radarRadius*cos),
			EndY:   round1(radarCenter + radarRadius*sin),
			LabelX: round1(radarCenter + labelRadius*cos),
			LabelY: round1(radarCenter + labelRadius*sin),
		})
		x := radarCenter + radarRadius*value/100*cos
		y := radarCenter + radarRadius*value/100*sin
		points = append(points, fmt.Sprintf("%.1f,%.1f", x, y))
	}
	r.Polygon = strings.Join(points, " ")
	return r
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
