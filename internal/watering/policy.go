// Package watering decides how long the valve runs for a soil moisture level.
package watering

import (
	"errors"
	"fmt"
	"math"

	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
)

// Policy maps a soil moisture reading (percent) to a valve run time in
// milliseconds. Implementations must be pure and return a value >= 0.
type Policy interface {
	CalculateMilliseconds(soilMoisture float64) int64
}

// PolicyFunc adapts an ordinary function to Policy.
type PolicyFunc func(soilMoisture float64) int64

// CalculateMilliseconds calls f(soilMoisture).
func (f PolicyFunc) CalculateMilliseconds(soilMoisture float64) int64 {
	return f(soilMoisture)
}

// ErrInvalidPolicy is returned when policy parameters are inconsistent.
var ErrInvalidPolicy = errors.New("watering: invalid policy")

// LinearPolicy waters for MaxMilliseconds when the soil is at or below the
// dry threshold and not at all at or above the wet threshold. In between the
// run time falls linearly from MaxMilliseconds to MinMilliseconds.
type LinearPolicy struct {
	dry, wet float64
	min, max int64
}

// NewLinearPolicy builds a LinearPolicy from config.
func NewLinearPolicy(cfg config.PolicyConfig) (LinearPolicy, error) {
	if cfg.DryThreshold >= cfg.WetThreshold {
		return LinearPolicy{}, fmt.Errorf("%w: dry threshold %.1f must be below wet threshold %.1f",
			ErrInvalidPolicy, cfg.DryThreshold, cfg.WetThreshold)
	}
	if cfg.MinMilliseconds < 0 || cfg.MinMilliseconds > cfg.MaxMilliseconds {
		return LinearPolicy{}, fmt.Errorf("%w: need 0 <= min (%d) <= max (%d)",
			ErrInvalidPolicy, cfg.MinMilliseconds, cfg.MaxMilliseconds)
	}
	return LinearPolicy{
		dry: cfg.DryThreshold,
		wet: cfg.WetThreshold,
		min: cfg.MinMilliseconds,
		max: cfg.MaxMilliseconds,
	}, nil
}

// CalculateMilliseconds implements Policy.
func (p LinearPolicy) CalculateMilliseconds(soilMoisture float64) int64 {
	switch {
	case math.IsNaN(soilMoisture), soilMoisture >= p.wet:
		return 0
	case soilMoisture <= p.dry:
		return p.max
	}

	wetness := (soilMoisture - p.dry) / (p.wet - p.dry)
	span := float64(p.max - p.min)
	return p.max - int64(math.Round(wetness*span))
}
