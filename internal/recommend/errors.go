package recommend

import (
	"fmt"
	"time"
)

// RetrievalTimeoutError is returned when a recommendation call runs past its
// deadline. No partial result is returned with it.
type RetrievalTimeoutError struct {
	Direction string
	QueryID   string
	Timeout   time.Duration
	Err       error
}

func (e *RetrievalTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s retrieval for %q exceeded %s: %v", e.Direction, e.QueryID, e.Timeout, e.Err)
	}
	return fmt.Sprintf("%s retrieval for %q exceeded its deadline: %v", e.Direction, e.QueryID, e.Err)
}

func (e *RetrievalTimeoutError) Unwrap() error {
	return e.Err
}
