package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/angeloszaimis/edge-tracker/internal/dispatch"
	"github.com/angeloszaimis/edge-tracker/internal/eligibility"
	"github.com/angeloszaimis/edge-tracker/internal/metrics"
	"github.com/angeloszaimis/edge-tracker/internal/origin"
	"github.com/angeloszaimis/edge-tracker/internal/tracking"
)

type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request) (origin.Result, error)
}

type Tracker interface {
	Decide(method, path string) eligibility.Reason
	CapturesResponse() bool
	Track(ctx context.Context, req tracking.Request, outcome *tracking.Outcome) tracking.Result
}

type Submitter interface {
	Submit(task dispatch.Task) bool
}

type EdgeHandler struct {
	logger           *slog.Logger
	forwarder        Forwarder
	tracker          Tracker
	submitter        Submitter
	metricsCollector *metrics.Collector
	clientIPHeader   string
}

func NewEdgeHandler(logger *slog.Logger, forwarder Forwarder, tracker Tracker, submitter Submitter, collector *metrics.Collector, clientIPHeader string) *EdgeHandler {
	return &EdgeHandler{
		logger:           logger,
		forwarder:        forwarder,
		tracker:          tracker,
		submitter:        submitter,
		metricsCollector: collector,
		clientIPHeader:   clientIPHeader,
	}
}

func (h *EdgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := tracking.Capture(r, h.clientIPHeader)

	result, err := h.forwarder.Forward(w, r)
	duration := time.Since(req.ReceivedAt)

	if err != nil {
		h.metricsCollector.Emit(metrics.MetricEvent{
			Type:     metrics.EventOriginFailed,
			Duration: duration,
		})
		return
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventRequestProxied,
		StatusCode: result.StatusCode,
		Duration:   duration,
	})

	h.logger.Info("Proxied request",
		slog.String("from", req.ClientIP),
		slog.String("method", req.Method),
		slog.String("url", req.URL),
		slog.Int("status", result.StatusCode),
		slog.String("bytes", humanize.Comma(result.Bytes)),
		slog.String("time_ms", humanize.FormatFloat("#,###.##", float64(duration)/float64(time.Millisecond))))

	if reason := h.tracker.Decide(req.Method, req.Path); reason != eligibility.ReasonNone {
		h.metricsCollector.Emit(metrics.MetricEvent{
			Type:   metrics.EventTrackingSkipped,
			Reason: string(reason),
		})
		return
	}

	var outcome *tracking.Outcome
	if h.tracker.CapturesResponse() {
		outcome = &tracking.Outcome{
			StatusCode: result.StatusCode,
			Duration:   result.HeaderTime,
		}
	}

	if !h.submitter.Submit(h.trackTask(req, outcome)) {
		h.logger.Debug("Tracking task dropped", slog.String("url", req.URL))
		h.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventTaskDropped})
	}
}

func (h *EdgeHandler) trackTask(req tracking.Request, outcome *tracking.Outcome) dispatch.Task {
	return func(ctx context.Context) error {
		result := h.tracker.Track(ctx, req, outcome)
		result.Log(h.logger)

		h.metricsCollector.Emit(metrics.MetricEvent{
			Type:          metrics.EventTrackingCompleted,
			Outcome:       string(result.Status),
			Reason:        result.Reason,
			Duration:      result.Duration,
			FailedSenders: result.FailedSenders,
		})

		if result.Status == tracking.StatusFailed {
			return result.Err
		}
		return nil
	}
}
