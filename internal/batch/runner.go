package batch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/careloop/appointment-lifecycle/internal/appointment"
)

const DefaultWorkers = 4

// Failure records one candidate whose processing returned an error.
type Failure struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Err         string    `json:"error"`
}

// Result aggregates one batch run. Attempted always equals the number of
// candidates handed to Run; Succeeded counts candidates whose process call
// returned nil, including logical no-ops.
type Result struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (r Result) HasFailures() bool {
	return len(r.Failures) > 0
}

// ProcessFunc handles one candidate. Returning an error marks only that
// candidate as failed; the rest of the batch proceeds.
type ProcessFunc func(ctx context.Context, candidate appointment.Appointment) error

// Run processes every candidate independently with at most workers in
// flight. A candidate's failure is recorded in the result and never aborts
// the remaining candidates. The runner keeps no state between calls and does
// not retry; re-running the same window is safe because processing is
// idempotent per candidate.
func Run(ctx context.Context, candidates []appointment.Appointment, workers int, process ProcessFunc) Result {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	result := Result{Attempted: len(candidates)}
	if len(candidates) == 0 {
		return result
	}

	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			err := process(ctx, candidate)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, Failure{
					CandidateID: candidate.ID,
					Err:         err.Error(),
				})
				return nil
			}
			result.Succeeded++
			return nil
		})
	}

	// Goroutines never return an error; Wait only synchronizes.
	_ = g.Wait()

	return result
}
