package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// HealthyMarker is matched case-insensitively against a label to decide
	// whether the diagnosis is "no disease".
	HealthyMarker = "saludable"

	// LabelNotAvocado is returned by the classifier when the frame does not
	// show an avocado. Such results are displayed but never stored.
	LabelNotAvocado = "NoAguacate"

	// LabelCaptureError and LabelInvalidResponse are synthetic labels for
	// failed capture cycles.
	LabelCaptureError    = "Error de captura"
	LabelInvalidResponse = "Respuesta inválida"
)

// ScanRecord is one stored diagnosis
type ScanRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	UserEmail string    `json:"user_email"`
	Label     string    `json:"label"`
	Score     float64   `json:"score"` // confidence in [0,1]
	CreatedAt time.Time `json:"created_at"`
}

// Healthy reports whether the record's label carries the healthy marker.
func (r ScanRecord) Healthy() bool {
	return IsHealthy(r.Label)
}

// PredictionResult is the normalized classifier answer for one capture.
type PredictionResult struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	ClassIndex *int    `json:"class_index,omitempty"`
}

// Display renders the prediction the way the capture screen shows it,
// e.g. "Antracnosis: 91.3%".
func (p PredictionResult) Display() string {
	return fmt.Sprintf("%s: %.1f%%", p.Label, p.Score*100)
}

// Storable reports whether the prediction may become a ScanRecord.
func (p PredictionResult) Storable() bool {
	return p.Label != "" && p.Label != LabelNotAvocado
}

// IsHealthy reports whether label contains the healthy marker.
func IsHealthy(label string) bool {
	return strings.Contains(strings.ToLower(label), HealthyMarker)
}

// User is the identity a scan is attributed to.
type User struct {
	ID    string `json:"user_id"`
	Email string `json:"email"`
}
