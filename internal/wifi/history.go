package wifi

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/wtap-core/internal/infrastructure/database"
)

// DefaultHistoryLimit bounds the rows kept in connect_history.
const DefaultHistoryLimit = 200

// History records connect outcomes.
type History interface {
	Record(ctx context.Context, r ConnectRecord) error
}

// ConnectRecord is one finished connect sequence.
type ConnectRecord struct {
	ID         int64     `json:"id"`
	SSID       string    `json:"ssid"`
	Origin     Origin    `json:"origin"`
	Success    bool      `json:"success"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// SQLHistory keeps connect records in the connect_history table.
type SQLHistory struct {
	db    *database.DB
	limit int
}

// NewSQLHistory returns a History backed by db, trimmed to limit rows
// (DefaultHistoryLimit when limit <= 0).
func NewSQLHistory(db *database.DB, limit int) *SQLHistory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &SQLHistory{db: db, limit: limit}
}

// Record inserts r and drops rows beyond the retention limit.
func (h *SQLHistory) Record(ctx context.Context, r ConnectRecord) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	success := 0
	if r.Success {
		success = 1
	}

	return h.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO connect_history (ssid, origin, success, attempts, error, finished_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.SSID, string(r.Origin), success, r.Attempts, errText,
			r.FinishedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting connect record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM connect_history
			WHERE id NOT IN (SELECT id FROM connect_history ORDER BY id DESC LIMIT ?)`,
			h.limit,
		); err != nil {
			return fmt.Errorf("trimming connect history: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit records, newest first.
func (h *SQLHistory) Recent(ctx context.Context, limit int) ([]ConnectRecord, error) {
	if limit <= 0 || limit > h.limit {
		limit = h.limit
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, ssid, origin, success, attempts, error, finished_at
		FROM connect_history
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying connect history: %w", err)
	}
	defer rows.Close()

	var out []ConnectRecord
	for rows.Next() {
		var (
			r        ConnectRecord
			origin   string
			success  int
			errText  sql.NullString
			finished string
		)
		if err := rows.Scan(&r.ID, &r.SSID, &origin, &success, &r.Attempts, &errText, &finished); err != nil {
			return nil, fmt.Errorf("scanning connect record: %w", err)
		}
		r.Origin = Origin(origin)
		r.Success = success != 0
		r.Error = errText.String
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished) //nolint:errcheck // written by Record
		out = append(out, r)
	}
	return out, rows.Err()
}
