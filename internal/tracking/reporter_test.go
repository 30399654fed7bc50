package tracking_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onsi/gomega/gbytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/edge-tracker/internal/circuitbreaker"
	"github.com/angeloszaimis/edge-tracker/internal/eligibility"
	"github.com/angeloszaimis/edge-tracker/internal/tracking"
	"github.com/angeloszaimis/edge-tracker/pkg/logger"
)

type fakeSender struct {
	name  string
	err   error
	panic bool

	mutex  sync.Mutex
	events []tracking.Event
	calls  atomic.Int64
}

func (s *fakeSender) Name() string { return s.name }

func (s *fakeSender) Send(_ context.Context, event tracking.Event) error {
	s.calls.Add(1)
	if s.panic {
		panic("boom")
	}

	s.mutex.Lock()
	s.events = append(s.events, event)
	s.mutex.Unlock()
	return s.err
}

func (s *fakeSender) received() []tracking.Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]tracking.Event(nil), s.events...)
}

var _ = Describe("Reporter", func() {
	var (
		ctx    context.Context
		policy *eligibility.Policy
		req    tracking.Request
		ok     *fakeSender
	)

	BeforeEach(func() {
		ctx = context.Background()
		policy = eligibility.NewPolicy(eligibility.DefaultSkipExtensions, eligibility.DefaultSkipPaths, nil)
		req = tracking.Request{
			URL:        "http://example.com/",
			Method:     "GET",
			Path:       "/",
			ReceivedAt: time.Now(),
		}
		ok = &fakeSender{name: "query"}
	})

	It("should deliver one event and report it as tracked", func() {
		reporter := tracking.NewReporter("site-key", policy, []tracking.Sender{ok}, logger.Discard())

		result := reporter.Track(ctx, req, nil)

		Expect(result.Status).To(Equal(tracking.StatusTracked))
		Expect(result.Err).NotTo(HaveOccurred())
		Expect(result.EventID).NotTo(BeEmpty())

		events := ok.received()
		Expect(events).To(HaveLen(1))
		Expect(events[0].URL).To(Equal("http://example.com/"))
		Expect(events[0].WebsiteKey).To(Equal("site-key"))
	})

	It("should skip ineligible requests without calling senders", func() {
		reporter := tracking.NewReporter("site-key", policy, []tracking.Sender{ok}, logger.Discard())

		req.Path = "/style.css"
		req.URL = "http://example.com/style.css"
		result := reporter.Track(ctx, req, nil)

		Expect(result.Status).To(Equal(tracking.StatusSkipped))
		Expect(result.Reason).To(Equal(string(eligibility.ReasonStaticAsset)))
		Expect(ok.calls.Load()).To(BeZero())
		Expect(reporter.Decide("GET", "/robots.txt")).To(Equal(eligibility.ReasonSkipPath))
	})

	Context("without a website key", func() {
		It("should skip tracking and warn once", func() {
			buffer := gbytes.NewBuffer()
			reporter := tracking.NewReporter("", policy, []tracking.Sender{ok}, logger.NewWithWriter(buffer, "info", false, "dev"))

			for i := 0; i < 3; i++ {
				result := reporter.Track(ctx, req, nil)
				Expect(result.Status).To(Equal(tracking.StatusSkipped))
				Expect(result.Reason).To(Equal(tracking.ReasonNoCredential))
			}

			Expect(ok.calls.Load()).To(BeZero())
			Expect(string(buffer.Contents())).To(ContainSubstring("website key is not configured"))
			Expect(strings.Count(string(buffer.Contents()), "level=WARN")).To(Equal(1))
		})
	})

	Context("response capture", func() {
		outcome := &tracking.Outcome{StatusCode: 404, Duration: 15 * time.Millisecond}

		It("should ignore the outcome by default", func() {
			reporter := tracking.NewReporter("k", policy, []tracking.Sender{ok}, logger.Discard())
			Expect(reporter.CapturesResponse()).To(BeFalse())

			reporter.Track(ctx, req, outcome)

			Expect(ok.received()[0].Status).To(BeZero())
			Expect(ok.received()[0].DurationMS).To(BeNil())
		})

		It("should include status and duration when enabled", func() {
			reporter := tracking.NewReporter("k", policy, []tracking.Sender{ok}, logger.Discard(),
				tracking.WithResponseCapture(true))

			reporter.Track(ctx, req, outcome)

			Expect(ok.received()[0].Status).To(Equal(404))
			Expect(ok.received()[0].DurationMS).To(HaveValue(Equal(int64(15))))
		})
	})

	Context("with failing senders", func() {
		It("should report tracked when at least one sender succeeds", func() {
			failing := &fakeSender{name: "redis", err: errors.New("down")}
			reporter := tracking.NewReporter("k", policy, []tracking.Sender{failing, ok}, logger.Discard())

			result := reporter.Track(ctx, req, nil)

			Expect(result.Status).To(Equal(tracking.StatusTracked))
			Expect(result.FailedSenders).To(ConsistOf("redis"))
			Expect(result.Err).To(MatchError(ContainSubstring("redis: down")))
		})

		It("should report failed with every error when all senders fail", func() {
			first := &fakeSender{name: "query", err: errors.New("timeout")}
			second := &fakeSender{name: "redis", err: errors.New("refused")}
			reporter := tracking.NewReporter("k", policy, []tracking.Sender{first, second}, logger.Discard())

			result := reporter.Track(ctx, req, nil)

			Expect(result.Status).To(Equal(tracking.StatusFailed))
			Expect(result.FailedSenders).To(ConsistOf("query", "redis"))
			Expect(result.Err.Error()).To(ContainSubstring("timeout"))
			Expect(result.Err.Error()).To(ContainSubstring("refused"))
		})

		It("should recover from a panicking sender", func() {
			panicking := &fakeSender{name: "query", panic: true}
			reporter := tracking.NewReporter("k", policy, []tracking.Sender{panicking}, logger.Discard())

			var result tracking.Result
			Expect(func() { result = reporter.Track(ctx, req, nil) }).NotTo(Panic())
			Expect(result.Status).To(Equal(tracking.StatusFailed))
		})

		It("should fail when no senders are configured", func() {
			reporter := tracking.NewReporter("k", policy, nil, logger.Discard())

			Expect(reporter.Track(ctx, req, nil).Status).To(Equal(tracking.StatusFailed))
		})

		It("should stop calling a sender once its breaker opens", func() {
			failing := &fakeSender{name: "query", err: errors.New("down")}
			registry := circuitbreaker.NewRegistry(2, time.Minute)
			reporter := tracking.NewReporter("k", policy, []tracking.Sender{failing}, logger.Discard(),
				tracking.WithBreakers(registry))

			for i := 0; i < 5; i++ {
				reporter.Track(ctx, req, nil)
			}

			Expect(failing.calls.Load()).To(Equal(int64(2)))
			Expect(registry.GetBreaker("query").State()).To(Equal(circuitbreaker.StateOpen))

			result := reporter.Track(ctx, req, nil)
			Expect(result.Err).To(MatchError(circuitbreaker.ErrOpen))
		})
	})

	Describe("Result.Log", func() {
		It("should log failures at warn level", func() {
			buffer := gbytes.NewBuffer()
			log := logger.NewWithWriter(buffer, "debug", false, "dev")

			tracking.Result{Status: tracking.StatusFailed, FailedSenders: []string{"query"}, Err: errors.New("down")}.Log(log)
			Expect(buffer).To(gbytes.Say(`level=WARN msg="Tracking event not delivered" .*status=failed`))

			tracking.Skipped(tracking.ReasonNoCredential).Log(log)
			Expect(buffer).To(gbytes.Say(`level=DEBUG .*reason=no_credential`))
		})
	})
})
