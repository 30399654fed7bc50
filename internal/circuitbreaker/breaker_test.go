package circuitbreaker_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/edge-tracker/internal/circuitbreaker"
)

var _ = Describe("CircuitBreaker", func() {
	var cb *circuitbreaker.CircuitBreaker

	trip := func() {
		cb.RecordFailure()
		cb.RecordFailure()
		cb.RecordFailure()
	}

	Describe("NewCircuitBreaker", func() {
		It("should create a named circuit breaker in closed state", func() {
			cb = circuitbreaker.NewCircuitBreaker("query", 5, 30*time.Second)
			Expect(cb.Name()).To(Equal("query"))
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("State transitions", func() {
		BeforeEach(func() {
			cb = circuitbreaker.NewCircuitBreaker("query", 3, 100*time.Millisecond)
		})

		Context("when in CLOSED state", func() {
			It("should allow deliveries", func() {
				Expect(cb.Allow()).To(BeTrue())
			})

			It("should remain closed after failures below threshold", func() {
				cb.RecordFailure()
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Allow()).To(BeTrue())
			})

			It("should transition to OPEN after reaching failure threshold", func() {
				trip()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})
		})

		Context("when in OPEN state", func() {
			BeforeEach(trip)

			It("should block deliveries", func() {
				Expect(cb.Allow()).To(BeFalse())
			})

			It("should let one trial call through after the reset timeout", func() {
				time.Sleep(150 * time.Millisecond)
				Expect(cb.Allow()).To(BeTrue())
				Expect(cb.State()).To(Equal(circuitbreaker.StateHalfOpen))
				Expect(cb.Allow()).To(BeFalse())
			})
		})

		Context("when in HALF-OPEN state", func() {
			BeforeEach(func() {
				trip()
				time.Sleep(150 * time.Millisecond)
				Expect(cb.Allow()).To(BeTrue())
			})

			It("should transition to CLOSED on success", func() {
				cb.RecordSuccess()
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Allow()).To(BeTrue())
			})

			It("should transition back to OPEN on failure", func() {
				cb.RecordFailure()
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
				Expect(cb.Allow()).To(BeFalse())
			})
		})
	})

	Describe("Execute", func() {
		BeforeEach(func() {
			cb = circuitbreaker.NewCircuitBreaker("client", 2, time.Minute)
		})

		It("should return the call error and count it", func() {
			boom := errors.New("endpoint unreachable")
			Expect(cb.Execute(func() error { return boom })).To(MatchError(boom))
			Expect(cb.Execute(func() error { return boom })).To(MatchError(boom))
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should short-circuit while open", func() {
			cb.RecordFailure()
			cb.RecordFailure()

			called := false
			err := cb.Execute(func() error {
				called = true
				return nil
			})
			Expect(err).To(MatchError(circuitbreaker.ErrOpen))
			Expect(called).To(BeFalse())
		})

		It("should reset failures on success", func() {
			cb.RecordFailure()
			Expect(cb.Execute(func() error { return nil })).To(Succeed())
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Context("with a zero threshold", func() {
		BeforeEach(func() {
			cb = circuitbreaker.NewCircuitBreaker("redis", 0, time.Minute)
		})

		It("should never open", func() {
			for i := 0; i < 20; i++ {
				cb.RecordFailure()
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(cb.Allow()).To(BeTrue())
		})
	})

	Describe("OnStateChange", func() {
		It("should report each transition once", func() {
			cb = circuitbreaker.NewCircuitBreaker("query", 1, 10*time.Millisecond)

			var seen []string
			cb.OnStateChange(func(name string, from, to circuitbreaker.State) {
				seen = append(seen, name+":"+from.String()+"->"+to.String())
			})

			cb.RecordFailure()
			cb.RecordFailure()
			time.Sleep(20 * time.Millisecond)
			cb.Allow()
			cb.RecordSuccess()

			Expect(seen).To(Equal([]string{
				"query:CLOSED->OPEN",
				"query:OPEN->HALF-OPEN",
				"query:HALF-OPEN->CLOSED",
			}))
		})
	})

	Describe("State.String", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF-OPEN"))
			Expect(circuitbreaker.State(42).String()).To(Equal("UNKNOWN"))
		})
	})
})
