package dispatch

import "fmt"

// Report is the aggregate outcome of one dispatch run. It is built while
// outcomes arrive and must not be mutated after Run returns it.
type Report struct {
	// Attempted is the number of items submitted.
	Attempted int

	// Succeeded is the number of items whose operation completed.
	Succeeded int

	// Exhausted is the number of items whose operation failed terminally.
	Exhausted int

	// ExhaustedIDs lists the failed identifiers in submission order.
	ExhaustedIDs []string
}

// Clean reports whether every item succeeded.
func (r *Report) Clean() bool {
	return r.Exhausted == 0
}

// Summary returns a one-line human-readable account of the run.
func (r *Report) Summary() string {
	if r.Clean() {
		return fmt.Sprintf("%d/%d records patched", r.Succeeded, r.Attempted)
	}
	return fmt.Sprintf("%d/%d records patched, %d exhausted: %v",
		r.Succeeded, r.Attempted, r.Exhausted, r.ExhaustedIDs)
}
