package imageinfo

import (
	"errors"

	"github.com/chis/regview/internal/registry"
)

// AggregationError wraps a failure to assemble image info. The cause stays
// reachable with errors.As / errors.Is.
type AggregationError struct {
	Repository string
	Tag        string
	Err        error
}

func (e *AggregationError) Error() string {
	return "failed to fetch image info: " + e.Err.Error()
}

func (e *AggregationError) Unwrap() error { return e.Err }

// NotFound reports whether the underlying registry response was a 404.
func (e *AggregationError) NotFound() bool {
	return registry.IsNotFound(e.Err)
}

// IsAggregationError reports whether err is, or wraps, an *AggregationError.
func IsAggregationError(err error) bool {
	var ae *AggregationError
	return errors.As(err, &ae)
}
