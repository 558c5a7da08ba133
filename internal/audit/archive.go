package audit

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"tradingcore/pkg/types"
)

// Archive batches AuditTicks in memory and flushes them to SQLite on a
// cron schedule (and, if configured, mirrors each flushed segment to S3),
// satisfying spec.md §6's "a persistent audit consumer must tolerate
// restarts" — a restarted archive resumes from the last sequence already
// committed rather than replaying from the engine.
//
// Grounded on aristath-sentinel's internal/database/db.go (modernc.org/sqlite
// opened with WAL + foreign_keys pragmas) for the storage half and its
// internal/scheduler/scheduler.go (robfig/cron wrapping a Job interface)
// for the scheduling half, generalized from scheduler.Job's generic
// interface down to one concrete periodic flush method. S3 mirroring has
// no pack precedent to adapt (the repos import aws-sdk-go-v2 but none
// exercise it); written directly against the SDK's documented
// manager.Uploader, the standard idiom for a one-shot object upload.
type Archive struct {
	mu     sync.Mutex
	buffer []types.AuditTick

	db   *sql.DB
	cron *cron.Cron

	uploader *manager.Uploader
	bucket   string

	logger *slog.Logger
}

// NewArchive opens (and migrates) a SQLite database at dbPath and builds
// an Archive over it.
func NewArchive(dbPath string, logger *slog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite at %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: ping sqlite at %s: %w", dbPath, err)
	}

	a := &Archive{
		db:     db,
		cron:   cron.New(),
		logger: logger.With("component", "audit-archive"),
	}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_ticks (
			sequence    INTEGER PRIMARY KEY,
			engine_time INTEGER NOT NULL,
			source      TEXT NOT NULL,
			payload     BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// WithS3 enables mirroring each flushed segment to bucket via uploader.
// Returns a for chaining.
func (a *Archive) WithS3(uploader *manager.Uploader, bucket string) *Archive {
	a.uploader = uploader
	a.bucket = bucket
	return a
}

// Enqueue buffers tick for the next scheduled flush.
func (a *Archive) Enqueue(tick types.AuditTick) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer = append(a.buffer, tick)
}

// Pump enqueues every tick read from ticks until ctx is done or ticks
// closes. Run in a goroutine against Engine.AuditTicks() (or a Hub
// consumer's own copy of the stream).
func (a *Archive) Pump(ctx context.Context, ticks <-chan types.AuditTick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			a.Enqueue(tick)
		}
	}
}

// Schedule registers the periodic flush under the given cron spec (e.g.
// "@every 30s") and starts the scheduler.
func (a *Archive) Schedule(ctx context.Context, spec string) error {
	_, err := a.cron.AddFunc(spec, func() {
		if err := a.Flush(ctx); err != nil {
			a.logger.Error("scheduled audit flush failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("audit: schedule flush %q: %w", spec, err)
	}
	a.cron.Start()
	return nil
}

// Stop stops the cron scheduler and closes the database. Any buffered but
// unflushed ticks are lost, matching the teacher's own best-effort shutdown
// (a final Flush before Stop is the caller's responsibility).
func (a *Archive) Stop() error {
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()
	return a.db.Close()
}

// Flush persists every buffered tick to SQLite in one transaction and, if
// S3 is configured, uploads the same batch as one msgpack segment object.
// Safe to call directly (e.g. from tests or a final pre-shutdown flush)
// without going through the cron schedule.
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := a.persist(ctx, batch); err != nil {
		return err
	}
	if a.uploader != nil {
		if err := a.uploadSegment(ctx, batch); err != nil {
			a.logger.Error("audit segment upload failed", "error", err, "count", len(batch))
		}
	}
	return nil
}

func (a *Archive) persist(ctx context.Context, batch []types.AuditTick) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin flush transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO audit_ticks (sequence, engine_time, source, payload)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("audit: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tick := range batch {
		payload, err := msgpack.Marshal(tick)
		if err != nil {
			return fmt.Errorf("audit: encode tick %d: %w", tick.Sequence, err)
		}
		if _, err := stmt.ExecContext(ctx, tick.Sequence, tick.EngineTime, string(tick.SourceEvent), payload); err != nil {
			return fmt.Errorf("audit: insert tick %d: %w", tick.Sequence, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: commit flush transaction: %w", err)
	}
	return nil
}

func (a *Archive) uploadSegment(ctx context.Context, batch []types.AuditTick) error {
	data, err := msgpack.Marshal(batch)
	if err != nil {
		return fmt.Errorf("audit: encode segment: %w", err)
	}
	first, last := batch[0].Sequence, batch[len(batch)-1].Sequence
	key := fmt.Sprintf("audit-segments/%020d-%020d.msgpack", first, last)

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("audit: upload segment %s: %w", key, err)
	}
	return nil
}

// LastSequence returns the highest sequence number committed so far, used
// by a restarted archive (or a restarted engine feeding it) to detect
// where to resume from. Returns 0 if the table is empty.
func (a *Archive) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := a.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM audit_ticks`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("audit: query last sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}
