package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/domain"
)

var trendScales = map[domain.TrendPeriod]string{
	domain.TrendDaily:   "DAY",
	domain.TrendWeekly:  "WEEK",
	domain.TrendMonthly: "MONTH",
	domain.TrendYearly:  "YEAR",
}

// Client talks to a Sense-style monitor API: bearer-token REST for status
// and trends, plus an optional websocket realtime feed. All responses go
// through typed parsing that fails closed on missing fields.
type Client struct {
	http    *http.Client
	apiURL  string
	wsURL   string // printf pattern taking the monitor id
	email   string
	pass    string
	timeout time.Duration
	log     zerolog.Logger

	rateLimit atomic.Int64 // nanoseconds; ws frame freshness bound

	mu        sync.Mutex
	token     string
	monitorID string

	frame atomic.Pointer[wsFrame]
}

type wsFrame struct {
	reading    domain.RealtimeReading
	receivedAt time.Time
}

// NewClient builds a client. No network calls happen here; the first
// authentication runs lazily on the first read.
func NewClient(apiURL, wsURL, email, pass string, timeout time.Duration, log zerolog.Logger) *Client {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		apiURL:  apiURL,
		wsURL:   wsURL,
		email:   email,
		pass:    pass,
		timeout: timeout,
		log:     log.With().Str("component", "gateway").Logger(),
	}
	c.rateLimit.Store(int64(60 * time.Second))
	return c
}

// SetRateLimit records the caller's poll interval. The websocket frame
// cache uses it as the freshness bound.
func (c *Client) SetRateLimit(interval time.Duration) {
	if interval > 0 {
		c.rateLimit.Store(int64(interval))
	}
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Monitors    []struct {
		ID int64 `json:"id"`
	} `json:"monitors"`
}

func (c *Client) authenticate(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"email": c.email, "password": c.pass})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/authenticate", bytes.NewReader(body))
	if err != nil {
		return &TransientError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Err: fmt.Errorf("authenticate: status %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return &TransientError{Err: fmt.Errorf("authenticate: status %d", resp.StatusCode)}
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return &TransientError{Err: err}
	}
	if auth.AccessToken == "" || len(auth.Monitors) == 0 {
		return &AuthError{Err: fmt.Errorf("authenticate: response missing token or monitor")}
	}

	c.mu.Lock()
	c.token = auth.AccessToken
	c.monitorID = fmt.Sprintf("%d", auth.Monitors[0].ID)
	c.mu.Unlock()
	c.log.Debug().Str("monitor_id", c.monitorID).Msg("authenticated")
	return nil
}

func (c *Client) credentials(ctx context.Context) (token, monitorID string, err error) {
	c.mu.Lock()
	token, monitorID = c.token, c.monitorID
	c.mu.Unlock()
	if token != "" {
		return token, monitorID, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", "", err
	}
	c.mu.Lock()
	token, monitorID = c.token, c.monitorID
	c.mu.Unlock()
	return token, monitorID, nil
}

func (c *Client) apiCall(ctx context.Context, path string, out any) error {
	token, _, err := c.credentials(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/"+path, nil)
	if err != nil {
		return &TransientError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.mu.Lock()
		c.token = "" // force re-auth attempt before the loop gives up
		c.mu.Unlock()
		return &AuthError{Err: fmt.Errorf("%s: status %d", path, resp.StatusCode)}
	case resp.StatusCode >= 300:
		return &TransientError{Err: fmt.Errorf("%s: status %d", path, resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransientError{Err: fmt.Errorf("%s: decode: %w", path, err)}
	}
	return nil
}

// statusResponse mirrors the monitor status payload. Pointer fields
// distinguish "absent" from zero so parsing can fail closed.
type statusResponse struct {
	W       *float64  `json:"w"`
	SolarW  *float64  `json:"solar_w"`
	Voltage []float64 `json:"voltage"`
	Hz      *float64  `json:"hz"`
}

func (s statusResponse) toReading(now time.Time) (domain.RealtimeReading, error) {
	if s.W == nil {
		return domain.RealtimeReading{}, &PartialDataError{Field: "w"}
	}
	r := domain.RealtimeReading{
		PowerW:   *s.W,
		VoltageV: s.Voltage,
		ReadAt:   now,
	}
	// Solar and frequency are absent on monitors without those probes.
	if s.SolarW != nil {
		r.SolarW = math.Abs(*s.SolarW)
	}
	if s.Hz != nil {
		r.FrequencyHz = *s.Hz
	}
	return r, nil
}

// ReadInstantaneous returns the freshest realtime reading: a live
// websocket frame when one is recent enough, the REST status endpoint
// otherwise.
func (c *Client) ReadInstantaneous(ctx context.Context) (domain.RealtimeReading, error) {
	if f := c.frame.Load(); f != nil {
		if time.Since(f.receivedAt) <= time.Duration(c.rateLimit.Load()) {
			return f.reading, nil
		}
	}

	_, monitorID, err := c.credentials(ctx)
	if err != nil {
		return domain.RealtimeReading{}, err
	}
	var status statusResponse
	if err := c.apiCall(ctx, fmt.Sprintf("app/monitors/%s/status", monitorID), &status); err != nil {
		return domain.RealtimeReading{}, err
	}
	return status.toReading(time.Now())
}

type trendResponse struct {
	Consumption *struct {
		Total *float64 `json:"total"`
	} `json:"consumption"`
	Production struct {
		Total float64 `json:"total"`
	} `json:"production"`
}

// ReadTrends fetches one roll-up period.
func (c *Client) ReadTrends(ctx context.Context, period domain.TrendPeriod) (domain.TrendReading, error) {
	scale, ok := trendScales[period]
	if !ok {
		return domain.TrendReading{}, fmt.Errorf("unknown trend period %q", period)
	}

	_, monitorID, err := c.credentials(ctx)
	if err != nil {
		return domain.TrendReading{}, err
	}
	var trend trendResponse
	path := fmt.Sprintf("app/history/trends?monitor_id=%s&scale=%s", monitorID, scale)
	if err := c.apiCall(ctx, path, &trend); err != nil {
		return domain.TrendReading{}, err
	}
	if trend.Consumption == nil || trend.Consumption.Total == nil {
		return domain.TrendReading{}, &PartialDataError{Field: "consumption.total"}
	}
	return domain.TrendReading{
		Period:        period,
		UsageKWh:      *trend.Consumption.Total,
		ProductionKWh: trend.Production.Total,
		ReadAt:        time.Now(),
	}, nil
}

type wsPayload struct {
	Type    string         `json:"type"`
	Payload statusResponse `json:"payload"`
}

// RunRealtimeFeed keeps a websocket connection to the monitor's realtime
// feed and caches the latest frame for ReadInstantaneous. Reconnects with
// a flat delay until ctx is done. Optional: polling works without it.
func (c *Client) RunRealtimeFeed(ctx context.Context) {
	for {
		if err := c.readFeedOnce(ctx); err != nil {
			c.log.Debug().Err(err).Msg("realtime feed disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (c *Client) readFeedOnce(ctx context.Context) error {
	token, monitorID, err := c.credentials(ctx)
	if err != nil {
		return err
	}

	url := fmt.Sprintf(c.wsURL, monitorID) + "?access_token=" + token
	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg wsPayload
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type != "realtime_update" {
			continue
		}
		reading, err := msg.Payload.toReading(time.Now())
		if err != nil {
			continue // partial frame, wait for the next one
		}
		c.frame.Store(&wsFrame{reading: reading, receivedAt: time.Now()})
	}
}
