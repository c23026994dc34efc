package models

// FeatureStatus is the verdict for a single forensic axis
type FeatureStatus string

const (
	StatusNatural     FeatureStatus = "natural"
	StatusSuspicious  FeatureStatus = "suspicious"
	StatusManipulated FeatureStatus = "manipulated"
)

// Valid reports whether s is one of the known statuses
func (s FeatureStatus) Valid() bool {
	switch s {
	case StatusNatural, StatusSuspicious, StatusManipulated:
		return true
	}
	return false
}

// Severity grades an anomaly
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// FeatureAnalysis is the model's assessment of one forensic axis
type FeatureAnalysis struct {
	Score       float64       `json:"score"`
	Status      FeatureStatus `json:"status"`
	Observation string        `json:"observation"`
}

// Coordinates locate an anomaly on a 0-100 normalized plane
type Coordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Anomaly is a single flagged artifact
type Anomaly struct {
	Timestamp   float64     `json:"timestamp"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Coordinates Coordinates `json:"coordinates"`
}

// Detections holds the four fixed forensic axes
type Detections struct {
	Eyes     FeatureAnalysis `json:"eyes"`
	Mouth    FeatureAnalysis `json:"mouth"`
	Skin     FeatureAnalysis `json:"skin"`
	Lighting FeatureAnalysis `json:"lighting"`
}

// DetectionKeys lists the detection axes in display order
var DetectionKeys = []string{"eyes", "mouth", "skin", "lighting"}

// NamedFeature pairs a detection key with its analysis
type NamedFeature struct {
	Key string
	FeatureAnalysis
}

// Each returns the detections in DetectionKeys order
func (d Detections) Each() []NamedFeature {
	return []NamedFeature{
		{Key: "eyes", FeatureAnalysis: d.Eyes},
		{Key: "mouth", FeatureAnalysis: d.Mouth},
		{Key: "skin", FeatureAnalysis: d.Skin},
		{Key: "lighting", FeatureAnalysis: d.Lighting},
	}
}

// Report is the structured forensic verdict returned by the model
type Report struct {
	OverallScore   float64    `json:"overallScore"`
	Confidence     float64    `json:"confidence"`
	Detections     Detections `json:"detections"`
	Anomalies      []Anomaly  `json:"anomalies"`
	Summary        string     `json:"summary"`
	Recommendation string     `json:"recommendation"`
}
