package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_history (
	call_id     TEXT PRIMARY KEY,
	peer_id     TEXT NOT NULL,
	room_id     TEXT NOT NULL,
	direction   TEXT NOT NULL,
	media_kind  TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	ended_at    INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_history_ended_at ON call_history(ended_at);
`

// HistoryRepository is the call log kept after calls leave the live store.
type HistoryRepository struct {
	db *sql.DB
}

func Open(dsn string) (*HistoryRepository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &HistoryRepository{db: db}, nil
}

// Append is idempotent per call ID.
func (r *HistoryRepository) Append(ctx context.Context, e domain.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO call_history
			(call_id, peer_id, room_id, direction, media_kind, outcome, reason, created_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CallID.String(), e.PeerUserID.String(), e.RoomID.String(),
		string(e.Direction), string(e.MediaKind), string(e.Outcome), string(e.Reason),
		e.CreatedAt.UnixMilli(), e.EndedAt.UnixMilli(), e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert call history: %w", err)
	}
	return nil
}

func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT call_id, peer_id, room_id, direction, media_kind, outcome, reason, created_at, ended_at, duration_ms
		FROM call_history
		ORDER BY ended_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query call history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e                                domain.HistoryEntry
			callID, peer, room               string
			direction, kind, outcome, reason string
			createdAt, endedAt               int64
		)
		if err := rows.Scan(&callID, &peer, &room, &direction, &kind, &outcome, &reason, &createdAt, &endedAt, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan call history: %w", err)
		}
		id, err := domain.ParseCallID(callID)
		if err != nil {
			return nil, fmt.Errorf("corrupt call id %q: %w", callID, err)
		}
		e.CallID = id
		e.PeerUserID = domain.UserID(peer)
		e.RoomID = domain.RoomID(room)
		e.Direction = domain.Direction(direction)
		e.MediaKind = domain.MediaKind(kind)
		e.Outcome = domain.CallOutcome(outcome)
		e.Reason = domain.EndReason(reason)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		e.EndedAt = time.UnixMilli(endedAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *HistoryRepository) Close() error {
	return r.db.Close()
}
