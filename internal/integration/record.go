package integration

import (
	"time"

	"github.com/golang/geo/r3"
)

// Record is one integration step. Records are immutable once emitted.
type Record struct {
	ID uint64 `json:"id"`
	// DT is the step length in seconds.
	DT float64 `json:"dt"`
	// Elapsed is the time in seconds since the pipeline was created or reset.
	Elapsed   float64   `json:"elapsed"`
	Accel     r3.Vector `json:"accel"`
	Velocity  r3.Vector `json:"velocity"`
	Timestamp time.Time `json:"timestamp"`
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
}
