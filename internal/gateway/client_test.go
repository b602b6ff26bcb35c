package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattscope/wattscope/internal/domain"
)

func newTestServer(t *testing.T, status map[string]any, trends map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/authenticate", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"user_id":      7,
			"monitors":     []map[string]any{{"id": 42}},
		})
	})
	mux.HandleFunc("/app/monitors/42/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(status)
	})
	mux.HandleFunc("/app/history/trends", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(trends)
	})
	return httptest.NewServer(mux)
}

func newTestClient(srv *httptest.Server, password string) *Client {
	return NewClient(srv.URL, "ws://unused/%s", "user@example.com", password, 5*time.Second, zerolog.Nop())
}

func TestReadInstantaneous(t *testing.T) {
	srv := newTestServer(t,
		map[string]any{"w": 1234.5, "solar_w": -300.0, "voltage": []float64{119.8, 120.4}, "hz": 60.01},
		nil)
	defer srv.Close()

	c := newTestClient(srv, "hunter2")
	reading, err := c.ReadInstantaneous(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, reading.PowerW, 1e-9)
	assert.InDelta(t, 300.0, reading.SolarW, 1e-9) // abs of signed export
	assert.Len(t, reading.VoltageV, 2)
	assert.InDelta(t, 60.01, reading.FrequencyHz, 1e-9)
}

func TestReadInstantaneousMissingPowerFailsClosed(t *testing.T) {
	srv := newTestServer(t, map[string]any{"voltage": []float64{120}}, nil)
	defer srv.Close()

	c := newTestClient(srv, "hunter2")
	_, err := c.ReadInstantaneous(context.Background())
	require.Error(t, err)
	assert.True(t, IsPartialData(err))
	assert.False(t, IsTransient(err))
}

func TestAuthFailureIsTerminal(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()

	c := newTestClient(srv, "wrong")
	_, err := c.ReadInstantaneous(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	srv.Close() // refuse connections

	c := newTestClient(srv, "hunter2")
	_, err := c.ReadInstantaneous(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestReadTrends(t *testing.T) {
	srv := newTestServer(t, nil, map[string]any{
		"consumption": map[string]any{"total": 18.4},
		"production":  map[string]any{"total": 6.2},
	})
	defer srv.Close()

	c := newTestClient(srv, "hunter2")
	trend, err := c.ReadTrends(context.Background(), domain.TrendDaily)
	require.NoError(t, err)
	assert.Equal(t, domain.TrendDaily, trend.Period)
	assert.InDelta(t, 18.4, trend.UsageKWh, 1e-9)
	assert.InDelta(t, 6.2, trend.ProductionKWh, 1e-9)
}

func TestReadTrendsMissingConsumptionFailsClosed(t *testing.T) {
	srv := newTestServer(t, nil, map[string]any{
		"production": map[string]any{"total": 1.0},
	})
	defer srv.Close()

	c := newTestClient(srv, "hunter2")
	_, err := c.ReadTrends(context.Background(), domain.TrendWeekly)
	require.Error(t, err)
	assert.True(t, IsPartialData(err))
}
