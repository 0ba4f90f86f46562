// Package strategy defines the Strategy contract (evaluate a bounded history
// window into trade signals) plus parameter schemas, a factory registry, and
// position-sizing helpers shared by the built-in strategies.
package strategy

import (
	"context"

	"vela/internal/domain"
	"vela/internal/series"
)

// Strategy is the interface all trading strategies implement. Evaluate sees
// only the bars inside the window; the simulator guarantees the window never
// extends past the bar being decided on.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Evaluate inspects history up to and including the window's final bar
	// and returns zero or more trade signals for it. Signals are filled by
	// the simulator against the NEXT bar's open.
	Evaluate(ctx context.Context, w *series.Window) ([]domain.Signal, error)
}

// Fitter is implemented by strategies that need a training pass before a run
// (the ML predictor). The runner calls Fit with history ending no later than
// the start of the test window, never with in-window data. Fitting on
// in-window bars is look-ahead and a bug, not a feature.
type Fitter interface {
	Fit(history map[string][]domain.Bar) error
}
