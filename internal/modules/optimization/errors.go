package optimization

import "errors"

// Failure categories surfaced by the engine. Callers match them with
// errors.Is; the wrapped message carries the offending dimensions or values.
var (
	// ErrConfiguration indicates missing or malformed calculation settings.
	// No engine is constructed when this is returned.
	ErrConfiguration = errors.New("invalid calculation settings")

	// ErrDimensionMismatch indicates misaligned indices between market data,
	// the view matrix, and view vectors. Inputs are never silently reindexed
	// or truncated to fit.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrSingularMatrix indicates the precision matrix in the weight solver
	// is not invertible. No pseudo-inverse is substituted.
	ErrSingularMatrix = errors.New("singular matrix")

	// ErrCalibrationNonConvergence indicates the per-view variance search
	// exhausted its iteration budget or produced a non-finite or negative
	// variance. The whole blended result fails rather than running with an
	// uncalibrated view.
	ErrCalibrationNonConvergence = errors.New("calibration did not converge")
)
