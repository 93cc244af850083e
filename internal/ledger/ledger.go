// ABOUTME: SQLite record of terminal delivery outcomes using modernc.org/sqlite
// ABOUTME: Gives fire-and-forget senders an after-the-fact confirmation trail

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/courier/internal/delivery"
	"github.com/2389/courier/internal/wire"
)

// Entry is one recorded outcome.
type Entry struct {
	MessageID   string
	Type        uint8
	ScopeID     uint32
	Result      string
	Attempts    int
	Error       string
	PayloadHash string
	RecordedAt  time.Time
}

// Ledger persists outcomes in a SQLite database.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the ledger at path. The schema is created if it
// doesn't exist and parent directories are created if needed.
func Open(path string) (*Ledger, error) {
	logger := slog.Default().With("component", "ledger")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	// Enable WAL mode so readers don't block the stream worker
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &Ledger{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("ledger initialized", "path", path)
	return l, nil
}

func (l *Ledger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			message_type INTEGER NOT NULL,
			scope_id INTEGER NOT NULL,
			result TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			last_error TEXT,
			payload_hash TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_result
			ON deliveries(result, recorded_at);

		CREATE INDEX IF NOT EXISTS idx_deliveries_message
			ON deliveries(message_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database connection
func (l *Ledger) Close() error {
	l.logger.Info("closing ledger")
	return l.db.Close()
}

// Record stores the terminal outcome of one delivery sequence.
func (l *Ledger) Record(ctx context.Context, out delivery.Outcome) error {
	var lastErr any
	if out.Err != nil {
		lastErr = out.Err.Error()
	}

	query := `
		INSERT INTO deliveries (message_id, message_type, scope_id, result, attempts, last_error, payload_hash, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		out.Message.ID,
		int(out.Message.Type),
		int64(out.Message.ScopeID),
		out.Result.String(),
		out.Attempts,
		lastErr,
		wire.Sum(out.Message.Payload()).String(),
		l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", out.Message.ID, err)
	}
	return nil
}

// List returns recorded outcomes, newest first. An empty result matches all
// results. If limit is 0 or negative, a default limit of 100 is used.
func (l *Ledger) List(ctx context.Context, result string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT message_id, message_type, scope_id, result, attempts, last_error, payload_hash, recorded_at
		FROM deliveries
		WHERE (? = '' OR result = ?)
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := l.db.QueryContext(ctx, query, result, result, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var msgType int
		var scopeID int64
		var lastErr sql.NullString
		var recordedAt string

		if err := rows.Scan(
			&e.MessageID,
			&msgType,
			&scopeID,
			&e.Result,
			&e.Attempts,
			&lastErr,
			&e.PayloadHash,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}

		e.Type = uint8(msgType)
		e.ScopeID = uint32(scopeID)
		e.Error = lastErr.String
		e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery rows: %w", err)
	}

	return entries, nil
}

// Counts returns the number of recorded outcomes per result.
func (l *Ledger) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT result, COUNT(*) FROM deliveries GROUP BY result`)
	if err != nil {
		return nil, fmt.Errorf("counting deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var result string
		var n int
		if err := rows.Scan(&result, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[result] = n
	}
	return counts, rows.Err()
}

// Observer returns a stream observer that records every outcome. Write
// failures are logged; they never affect delivery.
func Observer(l *Ledger, logger *slog.Logger) func(delivery.Outcome) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(out delivery.Outcome) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Record(ctx, out); err != nil {
			logger.Error("failed to record delivery outcome",
				"message_id", out.Message.ID,
				"result", out.Result.String(),
				"error", err,
			)
		}
	}
}
