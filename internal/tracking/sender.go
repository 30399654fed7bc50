package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// SDK identity reported by the client transport.
const (
	SDKName    = "edge-tracker-go"
	SDKVersion = "1.0.0"
)

// Sender delivers a single event. Implementations must be safe for
// concurrent use.
type Sender interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// QuerySender reports events as a query-string encoded GET request.
type QuerySender struct {
	endpoint *url.URL
	client   *http.Client
}

// NewQuerySender targets apiURL. Query parameters already present on apiURL
// are kept.
func NewQuerySender(apiURL string, client *http.Client) (*QuerySender, error) {
	endpoint, err := parseEndpoint(apiURL)
	if err != nil {
		return nil, err
	}

	return &QuerySender{endpoint: endpoint, client: defaultClient(client)}, nil
}

func (s *QuerySender) Name() string {
	return "query"
}

func (s *QuerySender) Send(ctx context.Context, event Event) error {
	target := *s.endpoint

	query := target.Query()
	query.Set("url", event.URL)
	query.Set("userAgent", event.UserAgent)
	query.Set("ref", event.Referrer)
	query.Set("ip", event.ClientIP)
	query.Set("websiteKey", event.WebsiteKey)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build tracking request: %w", err)
	}

	return do(s.client, req)
}

// ClientIdentity is the fixed identity a ClientSender attaches to every call.
type ClientIdentity struct {
	WebsiteKey      string
	SDK             string
	SDKVersion      string
	IntegrationType string
}

// ClientSender reports events as JSON posted to the tracking API.
type ClientSender struct {
	endpoint *url.URL
	identity ClientIdentity
	client   *http.Client
}

type clientPayload struct {
	WebsiteKey      string `json:"websiteKey"`
	SDK             string `json:"sdk"`
	SDKVersion      string `json:"sdkVersion"`
	IntegrationType string `json:"integrationType"`
	EventID         string `json:"eventId"`
	URL             string `json:"url"`
	Method          string `json:"method"`
	Status          int    `json:"status,omitempty"`
	Duration        *int64 `json:"duration,omitempty"`
	UserAgent       string `json:"userAgent"`
	Ref             string `json:"ref"`
	IP              string `json:"ip"`
}

// NewClientSender targets apiURL. Empty SDK fields fall back to SDKName and
// SDKVersion.
func NewClientSender(apiURL string, identity ClientIdentity, client *http.Client) (*ClientSender, error) {
	endpoint, err := parseEndpoint(apiURL)
	if err != nil {
		return nil, err
	}

	if identity.SDK == "" {
		identity.SDK = SDKName
	}
	if identity.SDKVersion == "" {
		identity.SDKVersion = SDKVersion
	}

	return &ClientSender{endpoint: endpoint, identity: identity, client: defaultClient(client)}, nil
}

func (s *ClientSender) Name() string {
	return "client"
}

func (s *ClientSender) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(clientPayload{
		WebsiteKey:      s.identity.WebsiteKey,
		SDK:             s.identity.SDK,
		SDKVersion:      s.identity.SDKVersion,
		IntegrationType: s.identity.IntegrationType,
		EventID:         event.ID,
		URL:             event.URL,
		Method:          event.Method,
		Status:          event.Status,
		Duration:        event.DurationMS,
		UserAgent:       event.UserAgent,
		Ref:             event.Referrer,
		IP:              event.ClientIP,
	})
	if err != nil {
		return fmt.Errorf("encode tracking payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build tracking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(s.client, req)
}

func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send tracking request: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("tracking endpoint returned %d", resp.StatusCode)
	}

	return nil
}

func parseEndpoint(apiURL string) (*url.URL, error) {
	endpoint, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tracking api url %q: %w", apiURL, err)
	}

	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid tracking api url %q: scheme must be http or https", apiURL)
	}

	return endpoint, nil
}

func defaultClient(client *http.Client) *http.Client {
	if client == nil {
		return http.DefaultClient
	}
	return client
}
