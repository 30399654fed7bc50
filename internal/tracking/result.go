package tracking

import (
	"log/slog"
	"time"
)

type Status string

const (
	StatusTracked Status = "tracked"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// ReasonNoCredential marks attempts skipped because no website key is set.
const ReasonNoCredential = "no_credential"

// Result describes one tracking attempt. It is logged and then discarded.
type Result struct {
	Status        Status
	Reason        string
	EventID       string
	FailedSenders []string
	Duration      time.Duration
	Err           error
}

func Skipped(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

// Log writes the result at a level matching its status.
func (r Result) Log(logger *slog.Logger) {
	attrs := []any{
		slog.String("status", string(r.Status)),
	}

	if r.EventID != "" {
		attrs = append(attrs, slog.String("event_id", r.EventID))
	}
	if r.Reason != "" {
		attrs = append(attrs, slog.String("reason", r.Reason))
	}
	if r.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", r.Duration))
	}
	if len(r.FailedSenders) > 0 {
		attrs = append(attrs, slog.Any("failed_senders", r.FailedSenders))
	}
	if r.Err != nil {
		attrs = append(attrs, slog.String("error", r.Err.Error()))
	}

	if r.Status == StatusFailed {
		logger.Warn("Tracking event not delivered", attrs...)
		return
	}

	logger.Debug("Tracking attempt finished", attrs...)
}
