package tracking_test

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/edge-tracker/internal/tracking"
)

var _ = Describe("Capture", func() {
	It("should capture an absolute request URL unchanged", func() {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)

		captured := tracking.Capture(req, "CF-Connecting-IP")

		Expect(captured.URL).To(Equal("http://example.com/"))
		Expect(captured.Method).To(Equal(http.MethodGet))
		Expect(captured.Path).To(Equal("/"))
		Expect(captured.ReceivedAt).NotTo(BeZero())
	})

	It("should rebuild the URL from host and request URI", func() {
		req := httptest.NewRequest(http.MethodGet, "/articles/1?page=2", nil)
		req.Host = "blog.example.com"

		Expect(tracking.Capture(req, "").URL).To(Equal("http://blog.example.com/articles/1?page=2"))
	})

	It("should honour TLS and X-Forwarded-Proto for the scheme", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "example.com"
		req.TLS = &tls.ConnectionState{}
		Expect(tracking.Capture(req, "").URL).To(Equal("https://example.com/"))

		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "example.com"
		req.Header.Set("X-Forwarded-Proto", "https, http")
		Expect(tracking.Capture(req, "").URL).To(Equal("https://example.com/"))
	})

	It("should default missing headers to empty strings", func() {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)

		captured := tracking.Capture(req, "CF-Connecting-IP")

		Expect(captured.UserAgent).To(BeEmpty())
		Expect(captured.Referrer).To(BeEmpty())
		Expect(captured.ClientIP).To(BeEmpty())
	})

	It("should capture user agent and referrer", func() {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
		req.Header.Set("User-Agent", "GPTBot/1.0")
		req.Header.Set("Referer", "https://search.example/")

		captured := tracking.Capture(req, "")

		Expect(captured.UserAgent).To(Equal("GPTBot/1.0"))
		Expect(captured.Referrer).To(Equal("https://search.example/"))
	})

	Context("client IP", func() {
		It("should read the configured header", func() {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
			req.Header.Set("CF-Connecting-IP", "203.0.113.5")

			Expect(tracking.Capture(req, "CF-Connecting-IP").ClientIP).To(Equal("203.0.113.5"))
		})

		It("should take the first element of a list header", func() {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
			req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

			Expect(tracking.Capture(req, "X-Forwarded-For").ClientIP).To(Equal("198.51.100.7"))
		})

		It("should fall back to the remote address without a header name", func() {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
			req.RemoteAddr = "192.0.2.44:53122"

			Expect(tracking.Capture(req, "").ClientIP).To(Equal("192.0.2.44"))
		})
	})
})
