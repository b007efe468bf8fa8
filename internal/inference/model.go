// Package inference predicts the probability that the user is about to be
// distracted, backed by a hot-swappable model.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrModelNotFound is returned by a Backend with nothing persisted
	ErrModelNotFound = errors.New("inference: model not found")
	// ErrNoModel is returned by Predict before a model is loaded
	ErrNoModel = errors.New("inference: no model loaded")
)

// Features is the model input
type Features struct {
	TimeOfDay           float64 `json:"time_of_day"`           // fraction of the day elapsed, 0..1
	CurrentAppUsage     float64 `json:"current_app_usage"`     // minutes in the current application
	PastContextSwitches float64 `json:"past_context_switches"` // switches in the last hour
}

func (f Features) vector() [3]float64 {
	return [3]float64{f.TimeOfDay, f.CurrentAppUsage, f.PastContextSwitches}
}

// Model maps features to a probability in [0,1]
type Model interface {
	Predict(ctx context.Context, f Features) (float64, error)
	Version() string
}

// LogisticModel is a single dense unit with sigmoid activation
type LogisticModel struct {
	Weights [3]float64 `json:"weights"`
	Bias    float64    `json:"bias"`
	Ver     string     `json:"version"`
}

// PlaceholderVersion identifies the built-in fallback model
const PlaceholderVersion = "placeholder-v1"

// Placeholder returns the fixed fallback model. Identical on every call.
func Placeholder() *LogisticModel {
	return &LogisticModel{
		Weights: [3]float64{0.0, -0.5, 0.25},
		Bias:    0,
		Ver:     PlaceholderVersion,
	}
}

// Predict implements Model
func (m *LogisticModel) Predict(ctx context.Context, f Features) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x := f.vector()
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, fmt.Errorf("inference: non-finite prediction for %+v", f)
	}
	return p, nil
}

// Version implements Model
func (m *LogisticModel) Version() string {
	if m.Ver == "" {
		return "unversioned"
	}
	return m.Ver
}
