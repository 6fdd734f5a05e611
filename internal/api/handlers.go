package api

import (
	"context"
	"net/http"

	"github.com/careloop/appointment-lifecycle/internal/batch"
	"github.com/careloop/appointment-lifecycle/internal/dispatch"
)

// runFunc is one dispatch entry point on the service.
type runFunc func(ctx context.Context) (batch.Result, error)

// dispatchHandler triggers one batch job and reports its result. Per-candidate
// failures come back inside the result with HTTP 200; only a failed candidate
// query surfaces as a 5xx.
func dispatchHandler(job string, run runFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := run(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "dispatch_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, DispatchResponse{
			Job:    job,
			Result: result,
		})
	}
}

func remindersHandler(svc *dispatch.Service) http.HandlerFunc {
	return dispatchHandler("reminders", svc.DispatchReminders)
}

func reviewPromptsHandler(svc *dispatch.Service) http.HandlerFunc {
	return dispatchHandler("review-prompts", svc.DispatchReviewPrompts)
}

func missedSweepHandler(svc *dispatch.Service) http.HandlerFunc {
	return dispatchHandler("missed-sweep", svc.SweepMissedAppointments)
}
