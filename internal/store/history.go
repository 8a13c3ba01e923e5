package store

import (
	"database/sql"
	"fmt"
	"time"
)

type Turn struct {
	ID        int64
	Role      string
	Content   string
	CreatedAt time.Time
}

type Decision struct {
	ID         int64
	ApprovalID int64
	Action     string
	Outcome    string
	Message    string
	CreatedAt  time.Time
}

// SaveTurn appends a finalized chat turn to the local history.
func (db *DB) SaveTurn(role, content string, at time.Time) error {
	_, err := db.Exec(
		"INSERT INTO turns (role, content, created_at) VALUES (?, ?, ?)",
		role, content, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// RecentTurns returns the last n turns in chronological order.
func (db *DB) RecentTurns(n int) ([]Turn, error) {
	rows, err := db.Query(
		`SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at FROM turns ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdStr string
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &createdStr); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339, createdStr); err == nil {
			t.CreatedAt = parsed
		}
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

// RecordDecision appends an approve/reject outcome to the local audit log.
func (db *DB) RecordDecision(approvalID int64, action, outcome, message string) error {
	_, err := db.Exec(
		"INSERT INTO decisions (approval_id, action, outcome, message) VALUES (?, ?, ?, ?)",
		approvalID, action, outcome, message,
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}
	return nil
}

// RecentDecisions returns the last n decisions, newest first.
func (db *DB) RecentDecisions(n int) ([]Decision, error) {
	rows, err := db.Query(
		"SELECT id, approval_id, action, outcome, message, created_at FROM decisions ORDER BY id DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		var message sql.NullString
		var createdStr string
		if err := rows.Scan(&d.ID, &d.ApprovalID, &d.Action, &d.Outcome, &message, &createdStr); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Message = message.String
		if parsed, err := time.Parse("2006-01-02 15:04:05", createdStr); err == nil {
			d.CreatedAt = parsed
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}
