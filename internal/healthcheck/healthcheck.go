package healthcheck

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/edge-tracker/internal/circuitbreaker"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// BreakerStats reports the state of every known breaker.
type BreakerStats interface {
	Stats() map[string]circuitbreaker.State
}

// TaskStats reports background task counters.
type TaskStats interface {
	Stats() (submitted, dropped, failed int64)
}

type Report struct {
	Status   string            `json:"status"`
	Senders  map[string]string `json:"senders"`
	Dispatch DispatchReport    `json:"dispatch"`
}

type DispatchReport struct {
	Submitted int64 `json:"submitted"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// Check builds a report. The edge is degraded while any sender's breaker is
// not closed; proxying is unaffected either way.
func Check(breakers BreakerStats, tasks TaskStats) Report {
	report := Report{
		Status:  StatusOK,
		Senders: make(map[string]string),
	}

	if breakers != nil {
		for name, state := range breakers.Stats() {
			report.Senders[name] = state.String()
			if state != circuitbreaker.StateClosed {
				report.Status = StatusDegraded
			}
		}
	}

	if tasks != nil {
		submitted, dropped, failed := tasks.Stats()
		report.Dispatch = DispatchReport{Submitted: submitted, Dropped: dropped, Failed: failed}
	}

	return report
}

// Handler always answers 200 while the process serves traffic; the body
// carries the detailed status.
func Handler(breakers BreakerStats, tasks TaskStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(Check(breakers, tasks))
	}
}
