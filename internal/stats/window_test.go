package stats

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattscope/wattscope/internal/domain"
)

func TestEmptyWindowSnapshot(t *testing.T) {
	w := NewSampleWindow(domain.ChannelPower, 5)
	snap := w.Snapshot()
	assert.False(t, snap.HasData())
	assert.Equal(t, 0, snap.Count)
	assert.Zero(t, snap.Mean)
	assert.Zero(t, snap.Variance)
}

func TestWindowEvictionScenario(t *testing.T) {
	// Capacity-5 window receiving 100..600 keeps the last five values.
	w := NewSampleWindow(domain.ChannelPower, 5)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range []float64{100, 200, 300, 400, 500, 600} {
		w.Push(v, base.Add(time.Duration(i)*time.Minute))
	}

	snap := w.Snapshot()
	assert.Equal(t, 5, snap.Count)
	assert.InDelta(t, 400, snap.Mean, 1e-9)
	assert.InDelta(t, 200, snap.Min, 1e-9)
	assert.InDelta(t, 600, snap.Max, 1e-9)
	assert.InDelta(t, 600, snap.Latest, 1e-9)
}

func TestWindowCountNeverExceedsCapacity(t *testing.T) {
	w := NewSampleWindow(domain.ChannelPower, 3)
	now := time.Now()
	for i := 0; i < 10; i++ {
		w.Push(float64(i), now)
		want := i + 1
		if want > 3 {
			want = 3
		}
		assert.Equal(t, want, w.Snapshot().Count)
	}
}

func TestWindowMeanMatchesRescanUnderEviction(t *testing.T) {
	// The incremental mean/variance must track a brute-force recompute of
	// the surviving samples within floating-point tolerance.
	const capacity = 16
	w := NewSampleWindow(domain.ChannelPower, capacity)
	rng := rand.New(rand.NewSource(7))
	now := time.Now()

	var pushed []float64
	for i := 0; i < 500; i++ {
		v := 500 + rng.Float64()*2000
		pushed = append(pushed, v)
		w.Push(v, now.Add(time.Duration(i)*time.Second))

		live := pushed
		if len(live) > capacity {
			live = live[len(live)-capacity:]
		}
		wantMean, wantVar := rescan(live)
		wantMin, wantMax := bounds(live)

		snap := w.Snapshot()
		require.Equal(t, len(live), snap.Count)
		assert.InDelta(t, wantMean, snap.Mean, 1e-6)
		assert.InDelta(t, wantVar, snap.Variance, 1e-4)
		assert.InDelta(t, wantMin, snap.Min, 1e-9)
		assert.InDelta(t, wantMax, snap.Max, 1e-9)
	}
}

func TestWindowRecentAverage(t *testing.T) {
	w := NewSampleWindow(domain.ChannelPower, 10)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.Push(100, now.Add(-30*time.Minute))
	w.Push(200, now.Add(-10*time.Minute))
	w.Push(400, now.Add(-5*time.Minute))

	assert.InDelta(t, 300, w.RecentAverage(15*time.Minute, now), 1e-9)
	assert.InDelta(t, (100.0+200+400)/3, w.RecentAverage(time.Hour, now), 1e-9)
	assert.Zero(t, w.RecentAverage(time.Minute, now))
}

func TestWindowSingleSampleVariance(t *testing.T) {
	w := NewSampleWindow(domain.ChannelSolar, 4)
	w.Push(1500, time.Now())
	snap := w.Snapshot()
	assert.Equal(t, 1, snap.Count)
	assert.Zero(t, snap.Variance)
	assert.InDelta(t, 1500, snap.Mean, 1e-9)
	assert.InDelta(t, 1500, snap.Min, 1e-9)
	assert.InDelta(t, 1500, snap.Max, 1e-9)
}

func rescan(values []float64) (mean, variance float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var m2 float64
	for _, v := range values {
		m2 += (v - mean) * (v - mean)
	}
	return mean, m2 / float64(len(values)-1)
}

func bounds(values []float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
