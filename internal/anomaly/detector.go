// Package anomaly flags deviations in the live power stream and tracks
// per-day peak and mean, resetting at local midnight.
package anomaly

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/domain"
	"github.com/wattscope/wattscope/internal/metrics"
	"github.com/wattscope/wattscope/internal/stats"
)

const (
	// DefaultMultiplier flags a sample deviating more than this many
	// standard deviations from the running mean.
	DefaultMultiplier = 2.0

	// minWindowSamples gates evaluation until the window carries enough
	// history for the deviation score to mean anything.
	minWindowSamples = 10

	epsilon = 1e-6
)

// StatsSource supplies window statistics for the deviation denominator.
// *stats.SampleWindow satisfies it.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// Detector consumes the realtime publish stream. It is the only writer of
// its state; Snapshot hands out copies.
type Detector struct {
	source     StatsSource
	multiplier float64
	loc        *time.Location
	log        zerolog.Logger

	mu        sync.Mutex
	day       time.Time // local calendar date of the current accumulation
	peak      float64
	sum       float64
	count     int
	flag      bool
	deviation float64

	subs []func(domain.AnomalySnapshot)
}

// NewDetector builds a detector reading stddev from source. loc selects
// the local-midnight boundary; nil means time.Local.
func NewDetector(source StatsSource, multiplier float64, loc *time.Location, log zerolog.Logger) *Detector {
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	if loc == nil {
		loc = time.Local
	}
	return &Detector{
		source:     source,
		multiplier: multiplier,
		loc:        loc,
		log:        log.With().Str("component", "anomaly").Logger(),
	}
}

// Subscribe registers a callback invoked on every flag transition.
// Register before the realtime loop starts.
func (d *Detector) Subscribe(fn func(domain.AnomalySnapshot)) {
	d.subs = append(d.subs, fn)
}

// Observe folds one realtime reading into today's state and re-evaluates
// the flag. Called synchronously from the realtime loop.
func (d *Detector) Observe(r domain.RealtimeReading) {
	value := r.PowerW
	localDay := dateOf(r.ReadAt.In(d.loc))

	d.mu.Lock()
	if !localDay.Equal(d.day) {
		// New day: swap in fresh state before folding, so the peak seeds
		// from this sample rather than carrying over or starting at zero.
		if !d.day.IsZero() {
			d.log.Info().Time("day", localDay).Msg("daily statistics reset")
		}
		d.day = localDay
		d.peak = 0
		d.sum = 0
		d.count = 0
		d.flag = false
		d.deviation = 0
	}

	score := d.scoreLocked(value)

	d.sum += value
	d.count++
	if d.count == 1 || value > d.peak {
		d.peak = value
	}

	wasFlagged := d.flag
	d.flag = score > d.multiplier
	d.deviation = score
	transition := d.flag != wasFlagged
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if snap.Anomalous {
		metrics.AnomalyFlag.Set(1)
	} else {
		metrics.AnomalyFlag.Set(0)
	}
	if transition {
		if snap.Anomalous {
			d.log.Warn().Float64("power_w", value).Float64("deviation", score).Msg("anomalous power usage")
		} else {
			d.log.Info().Float64("power_w", value).Msg("power usage back to normal")
		}
		for _, fn := range d.subs {
			fn(snap)
		}
	}
}

// scoreLocked computes |value-mean|/max(stddev, epsilon) against the
// pre-fold running mean. Returns 0 until enough history exists.
func (d *Detector) scoreLocked(value float64) float64 {
	if d.count == 0 {
		return 0
	}
	ws := d.source.Snapshot()
	if ws.Count < minWindowSamples {
		return 0
	}
	mean := d.sum / float64(d.count)
	return math.Abs(value-mean) / math.Max(ws.StdDev, epsilon)
}

// Snapshot returns a copy of the current state.
func (d *Detector) Snapshot() domain.AnomalySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Detector) snapshotLocked() domain.AnomalySnapshot {
	mean := 0.0
	if d.count > 0 {
		mean = d.sum / float64(d.count)
	}
	return domain.AnomalySnapshot{
		Anomalous:      d.flag,
		DeviationScore: d.deviation,
		PeakTodayW:     d.peak,
		MeanTodayW:     mean,
		SamplesToday:   d.count,
		Day:            d.day,
	}
}

func dateOf(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}
