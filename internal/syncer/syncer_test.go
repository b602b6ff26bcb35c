package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/gateway"
)

type fakeGateway struct {
	mu         sync.Mutex
	reading    domain.RealtimeReading
	readingErr error
	trends     map[domain.TrendPeriod]domain.TrendReading
	trendErr   error
	block      chan struct{} // when set, ReadInstantaneous waits for it or ctx
	calls      int
}

func (f *fakeGateway) ReadInstantaneous(ctx context.Context) (domain.RealtimeReading, error) {
	f.mu.Lock()
	block := f.block
	f.calls++
	f.mu.Unlock()
	if block != nil {
		select {
		case <-ctx.Done():
			return domain.RealtimeReading{}, &gateway.TransientError{Err: ctx.Err()}
		case <-block:
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readingErr != nil {
		return domain.RealtimeReading{}, f.readingErr
	}
	return f.reading, nil
}

func (f *fakeGateway) ReadTrends(_ context.Context, period domain.TrendPeriod) (domain.TrendReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trendErr != nil {
		return domain.TrendReading{}, f.trendErr
	}
	r, ok := f.trends[period]
	if !ok {
		return domain.TrendReading{}, &gateway.PartialDataError{Field: "consumption.total"}
	}
	return r, nil
}

func (f *fakeGateway) SetRateLimit(time.Duration) {}

func (f *fakeGateway) setErr(err error) {
	f.mu.Lock()
	f.readingErr = err
	f.mu.Unlock()
}

func newRealtime(gw gateway.Gateway) *RealtimeSync {
	return NewRealtimeSync(gw, 60*time.Second, 5*time.Second, 10, zerolog.Nop())
}

func TestRealtimeSuccessPublishesAndResets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{reading: domain.RealtimeReading{
		PowerW: 1200, SolarW: 300, VoltageV: []float64{119.9, 120.3}, FrequencyHz: 60, ReadAt: now,
	}}
	s := newRealtime(gw)

	var published []domain.RealtimeReading
	s.Subscribe(func(r domain.RealtimeReading) { published = append(published, r) })

	// A prior transient failure must be cleared by the next success.
	gw.setErr(&gateway.TransientError{Err: errors.New("flaky")})
	s.PollNow(context.Background())
	require.Equal(t, 1, s.State().ConsecutiveFailures)

	gw.setErr(nil)
	s.PollNow(context.Background())

	st := s.State()
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.False(t, st.Degraded)
	assert.Equal(t, now, st.LastSuccess)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.InDelta(t, 1200, latest.PowerW, 1e-9)

	require.Len(t, published, 1)
	assert.Equal(t, 1, s.Window(domain.ChannelPower).Snapshot().Count)
	assert.Equal(t, 1, s.Window(domain.ChannelVoltageL2).Snapshot().Count)
}

func TestRealtimeDegradedAfterThreshold(t *testing.T) {
	gw := &fakeGateway{readingErr: &gateway.TransientError{Err: errors.New("timeout")}}
	s := newRealtime(gw)

	for i := 0; i < DefaultDegradedThreshold; i++ {
		assert.Equal(t, pollTransient, s.pollOnce(context.Background()))
	}
	st := s.State()
	assert.True(t, st.Degraded)
	assert.Equal(t, DefaultDegradedThreshold, st.ConsecutiveFailures)
	assert.False(t, st.ReauthRequired)
}

func TestRealtimeAuthFailureIsTerminal(t *testing.T) {
	gw := &fakeGateway{readingErr: &gateway.AuthError{Err: errors.New("token revoked")}}
	s := newRealtime(gw)

	assert.Equal(t, pollTerminal, s.pollOnce(context.Background()))
	st := s.State()
	assert.True(t, st.ReauthRequired)
	assert.False(t, st.Running)
}

func TestRealtimePartialDataIsNoOp(t *testing.T) {
	gw := &fakeGateway{readingErr: &gateway.PartialDataError{Field: "w"}}
	s := newRealtime(gw)

	assert.Equal(t, pollPartial, s.pollOnce(context.Background()))
	st := s.State()
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Zero(t, s.Window(domain.ChannelPower).Snapshot().Count)
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestIntervalChangeDiscardsInFlightPoll(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{
		reading: domain.RealtimeReading{PowerW: 999, ReadAt: time.Now()},
		block:   block,
	}
	s := newRealtime(gw)

	done := make(chan pollOutcome, 1)
	go func() { done <- s.pollOnce(context.Background()) }()

	// Wait for the poll to be in flight, then change the interval.
	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.calls == 1
	}, time.Second, time.Millisecond)

	s.SetInterval(30 * time.Second)
	close(block)

	select {
	case outcome := <-done:
		assert.Equal(t, pollDiscarded, outcome)
	case <-time.After(time.Second):
		t.Fatal("poll did not complete")
	}

	// The late result must not have been applied.
	_, ok := s.Latest()
	assert.False(t, ok)
	assert.Zero(t, s.Window(domain.ChannelPower).Snapshot().Count)
	assert.Equal(t, 0, s.State().ConsecutiveFailures)
	assert.Equal(t, 30*time.Second, s.State().Interval)
}

func TestTrendFailureDoesNotTouchRealtime(t *testing.T) {
	rtGW := &fakeGateway{reading: domain.RealtimeReading{PowerW: 800, ReadAt: time.Now()}}
	rt := newRealtime(rtGW)
	rt.PollNow(context.Background())
	before := rt.State()

	trendGW := &fakeGateway{trendErr: &gateway.TransientError{Err: errors.New("upstream down")}}
	tr := NewTrendSync(trendGW, time.Minute, 5*time.Second, zerolog.Nop())
	assert.Equal(t, pollTransient, tr.PollNow(context.Background()))
	assert.Equal(t, 1, tr.State().ConsecutiveFailures)

	after := rt.State()
	assert.Equal(t, before, after)
}

func TestTrendPollRefreshesAllPeriods(t *testing.T) {
	trends := make(map[domain.TrendPeriod]domain.TrendReading)
	for i, p := range domain.TrendPeriods() {
		trends[p] = domain.TrendReading{Period: p, UsageKWh: float64(i + 1), ReadAt: time.Now()}
	}
	gw := &fakeGateway{trends: trends}
	tr := NewTrendSync(gw, time.Minute, 5*time.Second, zerolog.Nop())

	var seen []domain.TrendPeriod
	tr.Subscribe(func(r domain.TrendReading) { seen = append(seen, r.Period) })

	assert.Equal(t, pollSuccess, tr.PollNow(context.Background()))
	assert.Len(t, tr.All(), 4)
	assert.Equal(t, domain.TrendPeriods(), seen)

	daily, ok := tr.Latest(domain.TrendDaily)
	require.True(t, ok)
	assert.InDelta(t, 1, daily.UsageKWh, 1e-9)
}

func TestTrendPartialKeepsStaleData(t *testing.T) {
	trends := make(map[domain.TrendPeriod]domain.TrendReading)
	for _, p := range domain.TrendPeriods() {
		trends[p] = domain.TrendReading{Period: p, UsageKWh: 10, ReadAt: time.Now()}
	}
	gw := &fakeGateway{trends: trends}
	tr := NewTrendSync(gw, time.Minute, 5*time.Second, zerolog.Nop())
	require.Equal(t, pollSuccess, tr.PollNow(context.Background()))

	// Weekly goes missing upstream; the cached value must survive.
	gw.mu.Lock()
	delete(gw.trends, domain.TrendWeekly)
	gw.mu.Unlock()

	assert.Equal(t, pollSuccess, tr.PollNow(context.Background()))
	weekly, ok := tr.Latest(domain.TrendWeekly)
	require.True(t, ok)
	assert.InDelta(t, 10, weekly.UsageKWh, 1e-9)
}

func TestRealtimeRunStopsOnAuthError(t *testing.T) {
	gw := &fakeGateway{readingErr: &gateway.AuthError{Err: fmt.Errorf("expired")}}
	s := NewRealtimeSync(gw, 5*time.Second, time.Second, 10, zerolog.Nop())
	s.SetInterval(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	// Force an immediate tick instead of waiting out the interval.
	s.PollNow(ctx)
	st := s.State()
	assert.True(t, st.ReauthRequired)
	cancel()
	<-done
}
