package anomaly

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/stats"
)

type fixedStats struct {
	snap stats.Snapshot
}

func (f fixedStats) Snapshot() stats.Snapshot { return f.snap }

func reading(w float64, at time.Time) domain.RealtimeReading {
	return domain.RealtimeReading{PowerW: w, ReadAt: at}
}

func TestDeviationScoreThreshold(t *testing.T) {
	// Window stddev pinned to 100W, running mean built up to 1000W.
	src := fixedStats{snap: stats.Snapshot{Count: 50, StdDev: 100}}
	d := NewDetector(src, 2.0, time.UTC, zerolog.Nop())

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	const n = 50
	for i := 0; i < n; i++ {
		d.Observe(reading(1000, base.Add(time.Duration(i)*time.Minute)))
	}
	require.InDelta(t, 1000, d.Snapshot().MeanTodayW, 1e-9)
	require.False(t, d.Snapshot().Anomalous)

	// 1250W against mean 1000 and stddev 100: score 2.5, anomalous.
	d.Observe(reading(1250, base.Add(n*time.Minute)))
	snap := d.Snapshot()
	assert.True(t, snap.Anomalous)
	assert.InDelta(t, 2.5, snap.DeviationScore, 1e-9)

	// 1150W: mean has absorbed the 1250 sample, score below 2, normal.
	d.Observe(reading(1150, base.Add((n+1)*time.Minute)))
	snap = d.Snapshot()
	assert.False(t, snap.Anomalous)
	wantMean := (1000.0*n + 1250) / (n + 1)
	wantScore := (1150 - wantMean) / 100
	assert.InDelta(t, wantScore, snap.DeviationScore, 1e-9)
	assert.Less(t, snap.DeviationScore, 2.0)
}

func TestNoEvaluationWithoutHistory(t *testing.T) {
	src := fixedStats{snap: stats.Snapshot{Count: 3, StdDev: 0.001}}
	d := NewDetector(src, 2.0, time.UTC, zerolog.Nop())

	now := time.Now()
	d.Observe(reading(100, now))
	d.Observe(reading(5000, now.Add(time.Minute)))
	assert.False(t, d.Snapshot().Anomalous)
}

func TestDayBoundaryResetSeedsPeakFromFirstSample(t *testing.T) {
	src := fixedStats{snap: stats.Snapshot{Count: 50, StdDev: 100}}
	d := NewDetector(src, 2.0, time.UTC, zerolog.Nop())

	beforeMidnight := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	d.Observe(reading(2000, beforeMidnight))
	require.InDelta(t, 2000, d.Snapshot().PeakTodayW, 1e-9)

	afterMidnight := time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC)
	d.Observe(reading(500, afterMidnight))

	snap := d.Snapshot()
	assert.InDelta(t, 500, snap.PeakTodayW, 1e-9, "peak must seed from the first post-midnight sample")
	assert.Equal(t, 1, snap.SamplesToday)
	assert.InDelta(t, 500, snap.MeanTodayW, 1e-9)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), snap.Day)
}

func TestFlagTransitionNotifiesSubscribers(t *testing.T) {
	src := fixedStats{snap: stats.Snapshot{Count: 50, StdDev: 100}}
	d := NewDetector(src, 2.0, time.UTC, zerolog.Nop())

	var transitions []bool
	d.Subscribe(func(s domain.AnomalySnapshot) { transitions = append(transitions, s.Anomalous) })

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		d.Observe(reading(1000, base.Add(time.Duration(i)*time.Minute)))
	}
	d.Observe(reading(1500, base.Add(21*time.Minute))) // raise
	d.Observe(reading(1020, base.Add(22*time.Minute))) // clear

	assert.Equal(t, []bool{true, false}, transitions)
}

func TestZeroStdDevGuard(t *testing.T) {
	// Flat signal: stddev 0, epsilon prevents a divide-by-zero blowup on
	// an identical sample.
	src := fixedStats{snap: stats.Snapshot{Count: 50, StdDev: 0}}
	d := NewDetector(src, 2.0, time.UTC, zerolog.Nop())

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		d.Observe(reading(1000, base.Add(time.Duration(i)*time.Minute)))
	}
	assert.False(t, d.Snapshot().Anomalous)
	assert.Zero(t, d.Snapshot().DeviationScore)
}
