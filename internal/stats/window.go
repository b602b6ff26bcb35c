// Package stats holds the incremental streaming statistics for one
// telemetry channel.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/wattscope/wattscope/internal/domain"
)

// DefaultCapacity matches the monitor's one-sample-per-minute rate: about
// 100 minutes of history.
const DefaultCapacity = 100

// Snapshot is a consistent point-in-time copy of window statistics. A zero
// Count means no data; Mean/Variance/Min/Max are not meaningful then.
type Snapshot struct {
	Count    int       `json:"count"`
	Mean     float64   `json:"mean"`
	Variance float64   `json:"variance"`
	StdDev   float64   `json:"std_dev"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Latest   float64   `json:"latest"`
	LatestAt time.Time `json:"latest_at"`
}

// HasData reports whether any sample has been recorded.
func (s Snapshot) HasData() bool { return s.Count > 0 }

type deqEntry struct {
	seq   uint64
	value float64
}

// SampleWindow is a fixed-capacity ring of samples for one channel.
// Mean and variance are maintained with Welford updates on both insert and
// evict, never by rescanning the window. Min and max are maintained with
// monotonic deques, amortized O(1) per push.
//
// Exactly one sync loop writes a window; Snapshot may be called from any
// goroutine.
type SampleWindow struct {
	mu       sync.Mutex
	channel  domain.Channel
	capacity int

	ring  []domain.Sample
	head  int
	count int
	seq   uint64 // index of the next pushed sample

	mean float64
	m2   float64

	minq []deqEntry
	maxq []deqEntry
}

// NewSampleWindow returns an empty window. Capacity below 1 falls back to
// DefaultCapacity.
func NewSampleWindow(channel domain.Channel, capacity int) *SampleWindow {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &SampleWindow{
		channel:  channel,
		capacity: capacity,
		ring:     make([]domain.Sample, capacity),
	}
}

// Channel returns the channel this window tracks.
func (w *SampleWindow) Channel() domain.Channel { return w.channel }

// Push records a sample, evicting the oldest when the window is full.
func (w *SampleWindow) Push(value float64, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == w.capacity {
		w.evictLocked()
	}

	tail := (w.head + w.count) % w.capacity
	w.ring[tail] = domain.Sample{Channel: w.channel, Value: value, Timestamp: ts}
	w.count++

	// Welford insert.
	delta := value - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (value - w.mean)

	for len(w.maxq) > 0 && w.maxq[len(w.maxq)-1].value <= value {
		w.maxq = w.maxq[:len(w.maxq)-1]
	}
	w.maxq = append(w.maxq, deqEntry{seq: w.seq, value: value})
	for len(w.minq) > 0 && w.minq[len(w.minq)-1].value >= value {
		w.minq = w.minq[:len(w.minq)-1]
	}
	w.minq = append(w.minq, deqEntry{seq: w.seq, value: value})
	w.seq++
}

// evictLocked removes the oldest sample and reverses its Welford
// contribution.
func (w *SampleWindow) evictLocked() {
	old := w.ring[w.head].Value
	oldSeq := w.seq - uint64(w.count)
	w.head = (w.head + 1) % w.capacity
	w.count--

	if w.count == 0 {
		w.mean = 0
		w.m2 = 0
	} else {
		prevMean := w.mean
		w.mean = (prevMean*float64(w.count+1) - old) / float64(w.count)
		w.m2 -= (old - prevMean) * (old - w.mean)
		if w.m2 < 0 {
			w.m2 = 0 // floating-point guard
		}
	}

	if len(w.maxq) > 0 && w.maxq[0].seq == oldSeq {
		w.maxq = w.maxq[1:]
	}
	if len(w.minq) > 0 && w.minq[0].seq == oldSeq {
		w.minq = w.minq[1:]
	}
}

// Snapshot returns current statistics without mutating the window.
func (w *SampleWindow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == 0 {
		return Snapshot{}
	}

	variance := 0.0
	if w.count > 1 {
		variance = w.m2 / float64(w.count-1)
	}
	latest := w.ring[(w.head+w.count-1)%w.capacity]
	return Snapshot{
		Count:    w.count,
		Mean:     w.mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Min:      w.minq[0].value,
		Max:      w.maxq[0].value,
		Latest:   latest.Value,
		LatestAt: latest.Timestamp,
	}
}

// RecentAverage returns the mean of samples newer than now-d, or 0 when
// none qualify.
func (w *SampleWindow) RecentAverage(d time.Duration, now time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-d)
	var sum float64
	var n int
	for i := 0; i < w.count; i++ {
		s := w.ring[(w.head+i)%w.capacity]
		if s.Timestamp.After(cutoff) {
			sum += s.Value
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
