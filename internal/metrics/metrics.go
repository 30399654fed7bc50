package metrics

import (
	"slices"
	"sync"
	"time"
)

const (
	OutcomeTracked = "tracked"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// maxSamples bounds each latency window.
const maxSamples = 1000

type Metrics struct {
	mutex          sync.RWMutex
	requests       int64
	originErrors   int64
	statusCodes    map[int]int64
	proxyTimes     []time.Duration
	outcomes       map[string]int64
	skipReasons    map[string]int64
	senderFailures map[string]int64
	dropped        int64
	deliveryTimes  []time.Duration
	startTime      time.Time
}

type Snapshot struct {
	Uptime   time.Duration   `json:"uptime"`
	Proxy    ProxyMetrics    `json:"proxy"`
	Tracking TrackingMetrics `json:"tracking"`
}

type ProxyMetrics struct {
	Requests     int64         `json:"requests"`
	OriginErrors int64         `json:"origin_errors"`
	StatusCodes  map[int]int64 `json:"status_codes"`
	Latency      Latency       `json:"latency"`
}

type TrackingMetrics struct {
	Outcomes       map[string]int64 `json:"outcomes"`
	SkipReasons    map[string]int64 `json:"skip_reasons"`
	SenderFailures map[string]int64 `json:"sender_failures"`
	Dropped        int64            `json:"dropped"`
	Delivery       Latency          `json:"delivery"`
}

type Latency struct {
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		statusCodes:    make(map[int]int64),
		outcomes:       make(map[string]int64),
		skipReasons:    make(map[string]int64),
		senderFailures: make(map[string]int64),
		startTime:      time.Now(),
	}
}

// RecordProxied counts a request answered by the origin.
func (m *Metrics) RecordProxied(statusCode int, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests++
	m.statusCodes[statusCode]++
	m.proxyTimes = appendSample(m.proxyTimes, duration)
}

// RecordOriginFailure counts a request the origin could not answer.
func (m *Metrics) RecordOriginFailure() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests++
	m.originErrors++
}

// RecordSkipped counts a request that was never handed to the reporter.
func (m *Metrics) RecordSkipped(reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.outcomes[OutcomeSkipped]++
	m.skipReasons[reason]++
}

// RecordTracking counts a finished tracking attempt.
func (m *Metrics) RecordTracking(outcome, reason string, duration time.Duration, failedSenders []string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.outcomes[outcome]++

	if outcome == OutcomeSkipped {
		m.skipReasons[reason]++
		return
	}

	for _, name := range failedSenders {
		m.senderFailures[name]++
	}
	m.deliveryTimes = appendSample(m.deliveryTimes, duration)
}

// RecordDropped counts a tracking task rejected by the dispatcher.
func (m *Metrics) RecordDropped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dropped++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return Snapshot{
		Uptime: time.Since(m.startTime),
		Proxy: ProxyMetrics{
			Requests:     m.requests,
			OriginErrors: m.originErrors,
			StatusCodes:  copyMap(m.statusCodes),
			Latency:      summarize(m.proxyTimes),
		},
		Tracking: TrackingMetrics{
			Outcomes:       copyMap(m.outcomes),
			SkipReasons:    copyMap(m.skipReasons),
			SenderFailures: copyMap(m.senderFailures),
			Dropped:        m.dropped,
			Delivery:       summarize(m.deliveryTimes),
		},
	}
}

func appendSample(samples []time.Duration, d time.Duration) []time.Duration {
	samples = append(samples, d)
	if len(samples) > maxSamples {
		samples = samples[1:]
	}
	return samples
}

func summarize(durations []time.Duration) Latency {
	if len(durations) == 0 {
		return Latency{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	return Latency{
		Avg: average(sorted),
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func copyMap[K comparable](src map[K]int64) map[K]int64 {
	dst := make(map[K]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
