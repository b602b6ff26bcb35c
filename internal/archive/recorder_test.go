package archive

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattscope/wattscope/internal/domain"
)

func TestNilRecorderIsInert(t *testing.T) {
	r, err := Open("", zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, r)

	r.RecordRealtime(domain.RealtimeReading{PowerW: 1200})
	r.RecordTrend(domain.TrendReading{Period: domain.TrendDaily})
	r.Close()
}

func TestRecordNeverBlocksWhenWriterIsStalled(t *testing.T) {
	// No writer goroutine draining: the queue fills after one record and
	// every further call must drop instead of waiting.
	r := &Recorder{
		log:   zerolog.Nop(),
		queue: make(chan record, 1),
		quit:  make(chan struct{}),
	}

	start := time.Now()
	for i := 0; i < 500; i++ {
		r.RecordRealtime(domain.RealtimeReading{PowerW: float64(i), ReadAt: time.Now()})
		r.RecordTrend(domain.TrendReading{Period: domain.TrendDaily, UsageKWh: float64(i)})
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond, "recording must drop, never wait on the database")
	assert.Len(t, r.queue, 1)
}
