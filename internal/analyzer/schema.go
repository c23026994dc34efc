package analyzer

// reportToolName is the tool the model is forced to call with its verdict
const reportToolName = "submit_forensic_report"

func featureSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":       map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"status":      map[string]any{"type": "string", "enum": []string{"natural", "suspicious", "manipulated"}},
			"observation": map[string]any{"type": "string"},
		},
		"required": []string{"score", "status", "observation"},
	}
}

// reportTool mirrors models.Report as a JSON schema
func reportTool() *Tool {
	return &Tool{
		Name:        reportToolName,
		Description: "Submit the structured forensic report for the supplied keyframes.",
		Properties: map[string]any{
			"overallScore": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     100,
				"description": "Scale 0-100 where 100 is definite deepfake",
			},
			"confidence": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     1,
				"description": "0.0 to 1.0",
			},
			"detections": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"eyes":     featureSchema(),
					"mouth":    featureSchema(),
					"skin":     featureSchema(),
					"lighting": featureSchema(),
				},
				"required": []string{"eyes", "mouth", "skin", "lighting"},
			},
			"anomalies": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"timestamp":   map[string]any{"type": "number"},
						"description": map[string]any{"type": "string"},
						"severity":    map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
						"coordinates": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"x":      map[string]any{"type": "number", "minimum": 0, "maximum": 100},
								"y":      map[string]any{"type": "number", "minimum": 0, "maximum": 100},
								"radius": map[string]any{"type": "number", "minimum": 0, "maximum": 100},
							},
							"required": []string{"x", "y", "radius"},
						},
					},
					"required": []string{"timestamp", "description", "severity", "coordinates"},
				},
			},
			"summary":        map[string]any{"type": "string"},
			"recommendation": map[string]any{"type": "string"},
		},
		Required: []string{"overallScore", "confidence", "detections", "anomalies", "summary", "recommendation"},
	}
}
