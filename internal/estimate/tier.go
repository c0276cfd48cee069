// Package estimate turns an accumulating stream of hunches into per-candidate
// estimates. The estimator tier escalates from a plain average to linear
// least squares and then to a small neural network as hunches accumulate.
package estimate

import (
	"fmt"
	"strings"
)

// Tier identifies an estimation strategy.
type Tier int

// Tiers in escalation order.
const (
	TierAverage Tier = iota
	TierLinear
	TierDeep
)

var tierNames = [...]string{"average", "linear", "deep"}

// String returns the tier's name.
func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier converts a name into a Tier.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(name, s) {
			return Tier(i), nil
		}
	}
	return TierAverage, fmt.Errorf("unknown tier %q", s)
}

// Thresholds are the hunch counts at which each tier takes over.
type Thresholds struct {
	Linear int `json:"linear"`
	Deep   int `json:"deep"`
}

// DefaultThresholds returns the standard escalation points.
func DefaultThresholds() Thresholds {
	return Thresholds{Linear: 20, Deep: 100}
}

// Validate checks that thresholds are positive and ordered.
func (th Thresholds) Validate() error {
	if th.Linear <= 0 {
		return fmt.Errorf("linear threshold must be positive, got %d", th.Linear)
	}
	if th.Deep < th.Linear {
		return fmt.Errorf("deep threshold %d must not be below linear threshold %d", th.Deep, th.Linear)
	}
	return nil
}

// SelectTier picks the tier for a comparison holding n hunches.
func SelectTier(n int, th Thresholds) Tier {
	switch {
	case n >= th.Deep:
		return TierDeep
	case n >= th.Linear:
		return TierLinear
	default:
		return TierAverage
	}
}
