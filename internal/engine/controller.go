package engine

import "time"

// Controller decides, window by window, whether the test should end.
// In fixed mode it enforces the configured duration; in adaptive mode it
// watches the cumulative average bitrate for convergence and falls back to
// MaxDuration as a safety cap.
type Controller struct {
	adaptive      bool
	fixedDuration time.Duration
	maxDuration   time.Duration
	history       []float64
	stable        int
}

// NewController builds a controller. fixedDuration <= 0 selects
// FixedDuration; adaptive mode ignores it.
func NewController(adaptive bool, fixedDuration time.Duration) *Controller {
	if fixedDuration <= 0 {
		fixedDuration = FixedDuration
	}
	return &Controller{
		adaptive:      adaptive,
		fixedDuration: fixedDuration,
		maxDuration:   MaxDuration,
	}
}

// Observe consumes one sample and reports whether the test should stop and
// why. It must be called once per window, in order.
func (c *Controller) Observe(s Sample) (Reason, bool) {
	elapsed := time.Duration(s.ElapsedMs) * time.Millisecond
	if !c.adaptive {
		if elapsed >= c.fixedDuration {
			return ReasonDurationCap, true
		}
		return 0, false
	}

	if elapsed >= c.maxDuration {
		return ReasonDurationCap, true
	}
	c.history = append(c.history, s.AverageBps)
	if len(c.history) < MinWindows || len(c.history) < ChangeWindow {
		return 0, false
	}
	if relativeChange(c.history[len(c.history)-ChangeWindow:]) < Epsilon {
		c.stable++
	} else {
		c.stable = 0
	}
	if c.stable >= StableWindows {
		return ReasonConverged, true
	}
	return 0, false
}

// relativeChange is the spread of the values relative to their maximum.
func relativeChange(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return 0
	}
	return (max - min) / max
}
