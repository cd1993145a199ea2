package engine

import "errors"

// Sentinel errors for invalid engine input and corrupt datasets. Missing data
// is never an error.
var (
	ErrInvalidWindow      = errors.New("invalid time window")
	ErrUnknownGranularity = errors.New("unknown granularity")
	ErrUnknownMetric      = errors.New("unknown metric")
	ErrNegativeCounter    = errors.New("negative counter value")
	ErrDuplicateItem      = errors.New("duplicate content item")
	ErrUnknownItem        = errors.New("unknown content item")
	ErrTooManyIntervals   = errors.New("too many intervals")
)

// IsInvalidInput reports whether err was caused by query parameters.
// ErrNegativeCounter and ErrDuplicateItem describe the stored dataset and are
// deliberately excluded.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrUnknownGranularity) ||
		errors.Is(err, ErrUnknownMetric) ||
		errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrTooManyIntervals)
}
