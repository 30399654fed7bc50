package tracking_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/edge-tracker/internal/tracking"
)

const (
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

var _ = Describe("NewEvent", func() {
	var req tracking.Request

	BeforeEach(func() {
		req = tracking.Request{
			URL:        "http://example.com/",
			Method:     "GET",
			Path:       "/",
			UserAgent:  chromeUA,
			Referrer:   "https://ref.example/",
			ClientIP:   "203.0.113.5",
			ReceivedAt: time.Now(),
		}
	})

	It("should copy request fields and attach the website key", func() {
		event := tracking.NewEvent(req, nil, "site-key")

		Expect(event.ID).NotTo(BeEmpty())
		Expect(event.URL).To(Equal(req.URL))
		Expect(event.Method).To(Equal("GET"))
		Expect(event.Referrer).To(Equal(req.Referrer))
		Expect(event.ClientIP).To(Equal(req.ClientIP))
		Expect(event.WebsiteKey).To(Equal("site-key"))
	})

	It("should leave status and duration unset without an outcome", func() {
		event := tracking.NewEvent(req, nil, "site-key")

		Expect(event.Status).To(BeZero())
		Expect(event.DurationMS).To(BeNil())
	})

	It("should round the duration to the nearest millisecond", func() {
		event := tracking.NewEvent(req, &tracking.Outcome{
			StatusCode: 201,
			Duration:   41*time.Millisecond + 600*time.Microsecond,
		}, "site-key")

		Expect(event.Status).To(Equal(201))
		Expect(event.DurationMS).To(HaveValue(Equal(int64(42))))
	})

	It("should keep a captured duration below half a millisecond as zero", func() {
		event := tracking.NewEvent(req, &tracking.Outcome{
			StatusCode: 304,
			Duration:   300 * time.Microsecond,
		}, "site-key")

		Expect(event.DurationMS).To(HaveValue(BeZero()))

		encoded, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(encoded)).To(ContainSubstring(`"duration":0`))
	})

	It("should give every event a distinct id", func() {
		Expect(tracking.NewEvent(req, nil, "k").ID).NotTo(Equal(tracking.NewEvent(req, nil, "k").ID))
	})

	Context("agent classification", func() {
		It("should classify desktop browsers", func() {
			agent := tracking.NewEvent(req, nil, "k").Agent

			Expect(agent.Name).To(Equal("Chrome"))
			Expect(agent.Bot).To(BeFalse())
			Expect(agent.Device).To(Equal("desktop"))
		})

		It("should flag crawlers as bots", func() {
			req.UserAgent = googlebotUA

			agent := tracking.NewEvent(req, nil, "k").Agent

			Expect(agent.Bot).To(BeTrue())
			Expect(agent.Device).To(Equal("bot"))
		})

		It("should leave the classification empty without a user agent", func() {
			req.UserAgent = ""

			Expect(tracking.NewEvent(req, nil, "k").Agent).To(Equal(tracking.Agent{}))
		})
	})
})
