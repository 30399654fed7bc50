package tracking

import (
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/samber/lo"
)

// Event is the record delivered to senders. Status is zero and DurationMS is
// nil when the response was not captured.
type Event struct {
	ID         string    `json:"eventId"`
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	Status     int       `json:"status,omitempty"`
	DurationMS *int64    `json:"duration,omitempty"`
	UserAgent  string    `json:"userAgent"`
	Referrer   string    `json:"ref"`
	ClientIP   string    `json:"ip"`
	WebsiteKey string    `json:"websiteKey"`
	Agent      Agent     `json:"agent"`
	Timestamp  time.Time `json:"timestamp"`
}

// Agent is the parsed user agent classification.
type Agent struct {
	Name   string `json:"name,omitempty"`
	OS     string `json:"os,omitempty"`
	Device string `json:"device,omitempty"`
	Bot    bool   `json:"bot"`
}

// NewEvent builds an event for req. A nil outcome leaves status and duration
// unset.
func NewEvent(req Request, outcome *Outcome, websiteKey string) Event {
	event := Event{
		ID:         uuid.NewString(),
		URL:        req.URL,
		Method:     req.Method,
		UserAgent:  req.UserAgent,
		Referrer:   req.Referrer,
		ClientIP:   req.ClientIP,
		WebsiteKey: websiteKey,
		Agent:      classify(req.UserAgent),
		Timestamp:  req.ReceivedAt,
	}

	if outcome != nil {
		event.Status = outcome.StatusCode
		event.DurationMS = lo.ToPtr(outcome.Duration.Round(time.Millisecond).Milliseconds())
	}

	return event
}

func classify(userAgent string) Agent {
	if userAgent == "" {
		return Agent{}
	}

	ua := useragent.Parse(userAgent)

	agent := Agent{
		Name: ua.Name,
		OS:   ua.OS,
		Bot:  ua.Bot,
	}

	switch {
	case ua.Bot:
		agent.Device = "bot"
	case ua.Tablet:
		agent.Device = "tablet"
	case ua.Mobile:
		agent.Device = "mobile"
	case ua.Desktop:
		agent.Device = "desktop"
	default:
		agent.Device = ua.Device
	}

	return agent
}
