package origin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/golang/gddo/httputil/header"
)

// forwardedHeaders are stripped by httputil.ReverseProxy before Rewrite runs.
// They are restored from the inbound request so the origin sees them as sent.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

// viaPseudonym marks requests this edge has already forwarded. A request that
// arrives carrying it resolved back to the edge and is refused.
const viaPseudonym = "edge-tracker"

var ErrLoopDetected = errors.New("request already passed through this edge")

// Result describes the response relayed to the client.
type Result struct {
	StatusCode int
	Bytes      int64
	// HeaderTime is the time from Forward being called until the origin's
	// response headers were written.
	HeaderTime time.Duration
}

type Forwarder struct {
	target             *url.URL
	proxy              *httputil.ReverseProxy
	appendForwardedFor bool
	logger             *slog.Logger
}

type Option func(*Forwarder)

// WithForwardedFor appends the client address to X-Forwarded-For.
func WithForwardedFor(enabled bool) Option {
	return func(f *Forwarder) {
		f.appendForwardedFor = enabled
	}
}

// WithTransport replaces the round tripper used to reach the origin.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.proxy.Transport = transport
	}
}

type errorSlotKey struct{}

// New creates a forwarder for target. A nil target forwards each request to
// its own URL.
func New(target *url.URL, logger *slog.Logger, opts ...Option) *Forwarder {
	f := &Forwarder{
		target: target,
		logger: logger,
	}

	f.proxy = &httputil.ReverseProxy{
		Rewrite:      f.rewrite,
		ErrorHandler: f.handleError,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Target returns the configured origin, or nil in passthrough mode.
func (f *Forwarder) Target() *url.URL {
	return f.target
}

// Forward proxies r and writes the origin response to w. When the origin
// cannot be reached the client receives 502 and the transport error is
// returned.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request) (Result, error) {
	start := time.Now()

	if forwardedByEdge(r) {
		f.logger.Warn("Forwarding loop detected",
			slog.String("method", r.Method),
			slog.String("host", r.Host),
			slog.String("path", r.URL.Path))

		w.WriteHeader(http.StatusLoopDetected)
		return Result{StatusCode: http.StatusLoopDetected, HeaderTime: time.Since(start)},
			fmt.Errorf("forward %s %s: %w", r.Method, r.URL.Path, ErrLoopDetected)
	}

	var proxyErr error
	ctx := context.WithValue(r.Context(), errorSlotKey{}, &proxyErr)

	recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	f.proxy.ServeHTTP(recorder, r.WithContext(ctx))

	result := Result{
		StatusCode: recorder.statusCode,
		Bytes:      recorder.bytes,
		HeaderTime: time.Since(start),
	}
	if !recorder.headerAt.IsZero() {
		result.HeaderTime = recorder.headerAt.Sub(start)
	}

	if proxyErr != nil {
		return result, fmt.Errorf("forward %s %s: %w", r.Method, r.URL.Path, proxyErr)
	}

	return result, nil
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	if f.target != nil {
		pr.SetURL(f.target)
	} else {
		pr.Out.URL.Scheme = inboundScheme(pr.In)
		pr.Out.URL.Host = pr.In.Host
	}

	hopByHop := make(map[string]struct{})
	for _, name := range header.ParseList(pr.In.Header, "Connection") {
		hopByHop[http.CanonicalHeaderKey(name)] = struct{}{}
	}

	for _, name := range forwardedHeaders {
		if _, ok := hopByHop[name]; ok {
			continue
		}
		if values, ok := pr.In.Header[name]; ok {
			pr.Out.Header[name] = values
		}
	}

	if f.appendForwardedFor {
		appendForwardedFor(pr.Out, pr.In.RemoteAddr)
	}

	appendVia(pr.Out, pr.In)
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if slot, ok := r.Context().Value(errorSlotKey{}).(*error); ok {
		*slot = err
	}

	f.logger.Warn("Origin request failed",
		slog.String("method", r.Method),
		slog.String("host", r.URL.Host),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))

	w.WriteHeader(http.StatusBadGateway)
}

func inboundScheme(r *http.Request) string {
	if r.URL.Scheme != "" {
		return r.URL.Scheme
	}

	if r.TLS != nil {
		return "https"
	}

	if proto := header.ParseList(r.Header, "X-Forwarded-Proto"); len(proto) > 0 {
		if scheme := strings.ToLower(proto[0]); scheme == "https" || scheme == "http" {
			return scheme
		}
	}

	return "http"
}

func appendForwardedFor(out *http.Request, remoteAddr string) {
	clientIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return
	}

	if prior := out.Header["X-Forwarded-For"]; len(prior) > 0 {
		clientIP = strings.Join(prior, ", ") + ", " + clientIP
	}
	out.Header.Set("X-Forwarded-For", clientIP)
}

func appendVia(out, in *http.Request) {
	protocol := "1.1"
	if in.ProtoMajor > 0 {
		protocol = fmt.Sprintf("%d.%d", in.ProtoMajor, in.ProtoMinor)
	}
	out.Header.Add("Via", protocol+" "+viaPseudonym)
}

func forwardedByEdge(r *http.Request) bool {
	for _, hop := range header.ParseList(r.Header, "Via") {
		if fields := strings.Fields(hop); len(fields) >= 2 && fields[1] == viaPseudonym {
			return true
		}
	}
	return false
}

// responseRecorder captures the status and size of the relayed response.
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	bytes       int64
	wroteHeader bool
	headerAt    time.Time
}

func (r *responseRecorder) WriteHeader(code int) {
	// informational responses may precede the final status
	if !r.wroteHeader && (code >= http.StatusOK || code == http.StatusSwitchingProtocols) {
		r.statusCode = code
		r.wroteHeader = true
		r.headerAt = time.Now()
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}

	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
