package tracking

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang/gddo/httputil/header"
)

// Request is the part of an inbound request that tracking needs. Missing
// headers are captured as empty strings.
type Request struct {
	URL        string
	Method     string
	Path       string
	UserAgent  string
	Referrer   string
	ClientIP   string
	ReceivedAt time.Time
}

// Outcome carries the origin response details captured by the
// response-aware profile.
type Outcome struct {
	StatusCode int
	Duration   time.Duration
}

// Capture snapshots r. The client IP is taken from the first element of
// clientIPHeader; an empty header name uses the connection's remote address.
func Capture(r *http.Request, clientIPHeader string) Request {
	return Request{
		URL:        fullURL(r),
		Method:     r.Method,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		Referrer:   r.Referer(),
		ClientIP:   clientIP(r, clientIPHeader),
		ReceivedAt: time.Now(),
	}
}

func fullURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}

	return requestScheme(r) + "://" + r.Host + r.URL.RequestURI()
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}

	if proto := header.ParseList(r.Header, "X-Forwarded-Proto"); len(proto) > 0 {
		switch scheme := strings.ToLower(proto[0]); scheme {
		case "http", "https":
			return scheme
		}
	}

	return "http"
}

func clientIP(r *http.Request, clientIPHeader string) string {
	if clientIPHeader == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}

	if values := header.ParseList(r.Header, clientIPHeader); len(values) > 0 {
		return values[0]
	}

	return ""
}
