package storage

import (
	"github.com/bdougie/truthlens/internal/models"
)

// SignatureDims is the length of a report signature
const SignatureDims = 4

// Signature embeds a report as its four detection scores scaled to 0-1, in
// models.DetectionKeys order. Reports with similar forensic profiles end up
// close together under L2 distance.
func Signature(report *models.Report) []float32 {
	features := report.Detections.Each()
	sig := make([]float32, len(features))
	for i, f := range features {
		sig[i] = float32(f.Score / 100)
	}
	return sig
}
