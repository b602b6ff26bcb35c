// Package archive optionally persists samples and roll-ups to Postgres.
// Everything here is best effort: the in-memory windows are the source of
// truth and an archive failure never reaches a sync loop's error path.
package archive

import (
	"context"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/domain"
)

const (
	queueDepth   = 256
	writeTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS realtime_readings (
	id BIGSERIAL PRIMARY KEY,
	read_at TIMESTAMPTZ NOT NULL,
	power_w DOUBLE PRECISION NOT NULL,
	solar_w DOUBLE PRECISION NOT NULL,
	frequency_hz DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS trend_rollups (
	period TEXT PRIMARY KEY,
	usage_kwh DOUBLE PRECISION NOT NULL,
	production_kwh DOUBLE PRECISION NOT NULL,
	read_at TIMESTAMPTZ NOT NULL
);`

type record struct {
	realtime *domain.RealtimeReading
	trend    *domain.TrendReading
}

// Recorder writes readings to Postgres through a bounded queue drained by
// its own goroutine, so the sync loops never wait on the database: a full
// queue drops the record. A nil *Recorder is valid and drops everything.
type Recorder struct {
	db  *sqlx.DB
	log zerolog.Logger

	queue chan record
	quit  chan struct{}
	wg    sync.WaitGroup
}

// Open connects, ensures the schema and starts the writer goroutine. An
// empty dsn returns a nil recorder without error.
func Open(dsn string, log zerolog.Logger) (*Recorder, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	r := &Recorder{
		db:    db,
		log:   log.With().Str("component", "archive").Logger(),
		queue: make(chan record, queueDepth),
		quit:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

// RecordRealtime enqueues one instantaneous reading. Never blocks.
func (r *Recorder) RecordRealtime(reading domain.RealtimeReading) {
	if r == nil {
		return
	}
	r.enqueue(record{realtime: &reading})
}

// RecordTrend enqueues one roll-up. Never blocks.
func (r *Recorder) RecordTrend(t domain.TrendReading) {
	if r == nil {
		return
	}
	r.enqueue(record{trend: &t})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		r.log.Debug().Msg("archive queue full, dropping record")
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.quit:
			return
		case rec := <-r.queue:
			r.write(rec)
		}
	}
}

func (r *Recorder) write(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch {
	case rec.realtime != nil:
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO realtime_readings(read_at, power_w, solar_w, frequency_hz) VALUES ($1,$2,$3,$4)`,
			rec.realtime.ReadAt, rec.realtime.PowerW, rec.realtime.SolarW, rec.realtime.FrequencyHz,
		)
	case rec.trend != nil:
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO trend_rollups(period, usage_kwh, production_kwh, read_at) VALUES ($1,$2,$3,$4)
			 ON CONFLICT (period) DO UPDATE SET usage_kwh = $2, production_kwh = $3, read_at = $4`,
			rec.trend.Period, rec.trend.UsageKWh, rec.trend.ProductionKWh, rec.trend.ReadAt,
		)
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("archive write failed")
	}
}

// Close stops the writer and releases the connection pool.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.quit)
	r.wg.Wait()
	r.db.Close()
}
