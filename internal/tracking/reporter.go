package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angeloszaimis/edge-tracker/internal/circuitbreaker"
	"github.com/angeloszaimis/edge-tracker/internal/eligibility"
)

var errNoSenders = errors.New("no tracking senders configured")

type Reporter struct {
	websiteKey      string
	policy          *eligibility.Policy
	senders         []Sender
	breakers        *circuitbreaker.Registry
	captureResponse bool
	logger          *slog.Logger

	missingKey sync.Once
}

type Option func(*Reporter)

// WithBreakers guards every sender with a breaker from registry.
func WithBreakers(registry *circuitbreaker.Registry) Option {
	return func(r *Reporter) {
		r.breakers = registry
	}
}

// WithResponseCapture includes origin status and duration in events.
func WithResponseCapture(enabled bool) Option {
	return func(r *Reporter) {
		r.captureResponse = enabled
	}
}

// NewReporter creates a reporter for websiteKey. A nil policy treats every
// request as eligible.
func NewReporter(websiteKey string, policy *eligibility.Policy, senders []Sender, logger *slog.Logger, opts ...Option) *Reporter {
	if policy == nil {
		policy = eligibility.NewPolicy(nil, nil, nil)
	}

	r := &Reporter{
		websiteKey: websiteKey,
		policy:     policy,
		senders:    senders,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Decide reports why a request would be skipped, or the empty reason when it
// is eligible.
func (r *Reporter) Decide(method, path string) eligibility.Reason {
	return r.policy.Decide(method, path)
}

// CapturesResponse reports whether Track uses the origin outcome.
func (r *Reporter) CapturesResponse() bool {
	return r.captureResponse
}

// Track delivers one event for req to every sender. It never panics and
// never returns an error: delivery problems are reported in the Result.
func (r *Reporter) Track(ctx context.Context, req Request, outcome *Outcome) Result {
	if reason := r.policy.Decide(req.Method, req.Path); reason != eligibility.ReasonNone {
		return Skipped(string(reason))
	}

	if r.websiteKey == "" {
		r.warnMissingKey()
		return Skipped(ReasonNoCredential)
	}

	if !r.captureResponse {
		outcome = nil
	}

	event := NewEvent(req, outcome, r.websiteKey)
	result := Result{EventID: event.ID}

	if len(r.senders) == 0 {
		result.Status = StatusFailed
		result.Err = errNoSenders
		return result
	}

	start := time.Now()

	var errs error
	for _, sender := range r.senders {
		if err := r.send(ctx, sender, event); err != nil {
			result.FailedSenders = append(result.FailedSenders, sender.Name())
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sender.Name(), err))
		}
	}

	result.Duration = time.Since(start)
	result.Err = errs

	if len(result.FailedSenders) == len(r.senders) {
		result.Status = StatusFailed
	} else {
		result.Status = StatusTracked
	}

	return result
}

func (r *Reporter) send(ctx context.Context, sender Sender, event Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sender panicked: %v", rec)
		}
	}()

	if r.breakers == nil {
		return sender.Send(ctx, event)
	}

	return r.breakers.GetBreaker(sender.Name()).Execute(func() error {
		return sender.Send(ctx, event)
	})
}

func (r *Reporter) warnMissingKey() {
	warned := false
	r.missingKey.Do(func() {
		warned = true
		r.logger.Warn("Tracking website key is not configured, requests will not be tracked")
	})

	if !warned {
		r.logger.Debug("Tracking skipped, website key not configured")
	}
}
