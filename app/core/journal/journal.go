package journal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Turn is one processed message: what state the thread was in, what the
// bot decided, and how the dispatch ended.
type Turn struct {
	ID          string `json:"id"`
	ThreadID    string `json:"thread_id"`
	StateBefore string `json:"state_before"`
	StateAfter  string `json:"state_after"`
	Action      string `json:"action"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	CreatedAt   int64  `json:"created_at"`
}

// Turn outcome statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Recorder appends processed turns to the sqlite journal for debugging
// and the journal-tail tool.
type Recorder struct {
	db      *DB
	counter atomic.Int64
}

func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// Append writes one turn. Missing id and timestamp are filled in.
func (r *Recorder) Append(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = r.nextID()
	}
	if turn.CreatedAt == 0 {
		turn.CreatedAt = time.Now().Unix()
	}
	if turn.Status == "" {
		turn.Status = StatusOK
	}

	_, err := r.db.Conn().ExecContext(ctx, `
INSERT INTO turns (id, thread_id, state_before, state_after, action, status, detail, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.ThreadID, turn.StateBefore, turn.StateAfter,
		turn.Action, turn.Status, turn.Detail, turn.DurationMS, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns the newest turns, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Conn().QueryContext(ctx, `
SELECT id, thread_id, state_before, state_after, action, status, detail, duration_ms, created_at
FROM turns ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.ThreadID, &t.StateBefore, &t.StateAfter,
			&t.Action, &t.Status, &t.Detail, &t.DurationMS, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (r *Recorder) nextID() string {
	return fmt.Sprintf("turn-%d-%d", time.Now().UnixNano(), r.counter.Add(1))
}
