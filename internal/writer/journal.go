package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/stayspot-realtime/internal/connection"
	"github.com/rickgao/stayspot-realtime/internal/inbox"
)

// DB is the part of *pgxpool.Pool the journal needs.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds journal batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the default journal settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Record is one observed status transition.
type Record struct {
	Status     connection.Status
	RecordedAt time.Time
}

// Metrics counts journal activity.
type Metrics struct {
	Inserts int64 `json:"inserts"`
	Errors  int64 `json:"errors"`
	Flushes int64 `json:"flushes"`
}

type statusRow struct {
	ID           uuid.UUID
	State        string
	Connected    bool
	Attempts     int
	ErrorKind    *string
	Error        *string
	LastActivity *time.Time
	RecordedAt   time.Time
}

const insertStatus = `
	INSERT INTO connection_status (id, session_id, instance, state, connected,
		reconnect_attempts, error_kind, error, last_activity, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING
`

// Journal consumes Records from an inbox and writes them to connection_status.
type Journal struct {
	cfg       Config
	logger    *slog.Logger
	instance  string
	sessionID uuid.UUID

	input *inbox.Ring[Record]
	db    DB

	batch       []statusRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewJournal creates a journal writing rows for instance. Each journal gets a
// fresh session id.
func NewJournal(cfg Config, input *inbox.Ring[Record], db DB, instance string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	sessionID := uuid.New()
	return &Journal{
		cfg:       cfg,
		logger:    logger.With("component", "journal", "session", sessionID),
		instance:  instance,
		sessionID: sessionID,
		input:     input,
		db:        db,
		batch:     make([]statusRow, 0, cfg.BatchSize),
		ctx:       context.Background(),
	}
}

// SessionID identifies the rows written by this journal.
func (w *Journal) SessionID() uuid.UUID {
	return w.sessionID
}

// Start begins consuming records and writing to the database.
func (w *Journal) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("status journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts the journal down and writes whatever is still queued.
func (w *Journal) Stop(ctx context.Context) error {
	w.logger.Info("stopping status journal")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("status journal stop timed out")
	}

	// The run context is canceled; write the tail under the caller's.
	for _, rec := range w.input.DrainTo(0) {
		w.add(rec)
	}
	w.flush(ctx)

	w.logger.Info("status journal stopped")
	return nil
}

// Stats returns current metrics.
func (w *Journal) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *Journal) consumeLoop() {
	defer w.wg.Done()

	for {
		if w.ctx.Err() != nil {
			return
		}

		rec, ok := w.input.TryReceive()
		if !ok {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		if w.add(rec) {
			w.flush(w.ctx)
		}
	}
}

func (w *Journal) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends rec to the batch and reports whether the batch is full.
func (w *Journal) add(rec Record) bool {
	row := transform(rec)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(rec Record) statusRow {
	s := rec.Status
	row := statusRow{
		ID:         uuid.New(),
		State:      s.State.String(),
		Connected:  s.Connected,
		Attempts:   s.ReconnectAttempts,
		RecordedAt: rec.RecordedAt.UTC(),
	}
	if s.ErrorKind != connection.KindNone {
		kind := string(s.ErrorKind)
		row.ErrorKind = &kind
	}
	if s.Error != "" {
		msg := s.Error
		row.Error = &msg
	}
	if !s.LastActivity.IsZero() {
		at := s.LastActivity.UTC()
		row.LastActivity = &at
	}
	return row
}

func (w *Journal) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]statusRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	inserted, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(inserted)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed status rows", "count", len(batch), "duration", time.Since(start))
}

func (w *Journal) batchInsert(ctx context.Context, rows []statusRow) (inserted int, err error) {
	if w.db == nil {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertStatus,
			r.ID, w.sessionID, w.instance, r.State, r.Connected,
			r.Attempts, r.ErrorKind, r.Error, r.LastActivity, r.RecordedAt,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}
