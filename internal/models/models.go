package models

import "encoding/base64"

// Frame represents a still image sampled from a video
type Frame struct {
	Timestamp float64 `json:"timestamp"`
	Data      []byte  `json:"-"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// DataURL returns the frame as an inline JPEG data URL
func (f Frame) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Base64 returns the raw base64 payload of the frame
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}
