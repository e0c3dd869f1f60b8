package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// ErrInvalidObservation rejects observations that can never be stored.
var ErrInvalidObservation = errors.New("invalid observation")

// OutOfOrderError reports a write whose timestamp does not advance the series.
type OutOfOrderError struct {
	ServiceID string
	Metric    models.Metric
	Timestamp time.Time
	Last      time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order observation for %s/%s: %s is not after %s",
		e.ServiceID, e.Metric, e.Timestamp.Format(time.RFC3339Nano), e.Last.Format(time.RFC3339Nano))
}
