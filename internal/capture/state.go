package capture

import "github.com/vexmx/avotex/internal/models"

// State is the phase of the capture cycle.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Status is a read-only snapshot of the pipeline.
type Status struct {
	State      State                    `json:"state"`
	Processing bool                     `json:"processing"`
	Saving     bool                     `json:"saving"`
	Prediction *models.PredictionResult `json:"prediction,omitempty"`
	Display    string                   `json:"display,omitempty"`
	Healthy    bool                     `json:"healthy"`
}

// Outcome is the result of one completed cycle.
type Outcome struct {
	State      State                   `json:"state"`
	Prediction models.PredictionResult `json:"prediction"`
	Display    string                  `json:"display"`
	Healthy    bool                    `json:"healthy"`
	Saved      bool                    `json:"saved"`
	Record     *models.ScanRecord      `json:"record,omitempty"`
}
