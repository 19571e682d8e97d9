// Package events queries the venue calendar: the secondary system that
// records where scheduled events took place. Tier two of the
// jurisdiction waterfall.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgermatch/ledgermatch/internal/service"
)

// Client implements service.VenueEvents against the calendar HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// FromConfig builds a Client from the events.* configuration keys.
// Returns nil when no base URL is configured: the calendar is optional
// and the waterfall simply skips its tier.
func FromConfig(v *viper.Viper) *Client {
	baseURL := v.GetString("events.base_url")
	if baseURL == "" {
		return nil
	}
	timeout := v.GetDuration("events.timeout")
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     v.GetString("events.api_key"),
	}
}

type eventResponse struct {
	Events []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Jurisdiction string `json:"jurisdiction"`
	} `json:"events"`
}

// EventForDate returns the event covering the given date, or nil when no
// event was scheduled. When multiple events overlap the hint narrows the
// choice; with no hint the first event wins.
func (c *Client) EventForDate(ctx context.Context, date time.Time, jurisdictionHint string) (*service.VenueEvent, error) {
	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("venue calendar unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("venue calendar returned status %d", resp.StatusCode)
	}

	var parsed eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	if len(parsed.Events) == 0 {
		return nil, nil
	}

	if jurisdictionHint != "" {
		for _, e := range parsed.Events {
			if e.Jurisdiction == jurisdictionHint {
				return &service.VenueEvent{ID: e.ID, Name: e.Name, Jurisdiction: e.Jurisdiction}, nil
			}
		}
	}
	e := parsed.Events[0]
	return &service.VenueEvent{ID: e.ID, Name: e.Name, Jurisdiction: e.Jurisdiction}, nil
}

var _ service.VenueEvents = (*Client)(nil)

// Static is a fixed in-memory calendar for tests: date (YYYY-MM-DD) to event.
type Static struct {
	mu     sync.RWMutex
	byDate map[string]service.VenueEvent
}

// NewStatic creates an empty Static calendar.
func NewStatic() *Static {
	return &Static{byDate: make(map[string]service.VenueEvent)}
}

// Add registers an event for a date.
func (s *Static) Add(date time.Time, event service.VenueEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDate[date.Format("2006-01-02")] = event
}

// EventForDate implements service.VenueEvents.
func (s *Static) EventForDate(_ context.Context, date time.Time, _ string) (*service.VenueEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.byDate[date.Format("2006-01-02")]; ok {
		return &e, nil
	}
	return nil, nil
}

var _ service.VenueEvents = (*Static)(nil)
