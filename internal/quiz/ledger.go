package quiz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Ledger is the durable record of quiz ids this viewer has answered. It
// survives restarts so a quiz presented again after a reload can never be
// answered twice from this device. Scope is deliberately per-device: a
// second device for the same viewer is the server's problem, not ours.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if needed) the answered-quiz ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	if path == "" {
		path = "spectator.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS answered_quizzes (
	quiz_id     TEXT PRIMARY KEY,
	answered_at TIMESTAMP NOT NULL
);`)
	return err
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Has reports whether quizID has already been answered.
func (l *Ledger) Has(quizID string) (bool, error) {
	var one int
	err := l.db.QueryRow(`SELECT 1 FROM answered_quizzes WHERE quiz_id = ?`, quizID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Add records quizID as answered. Idempotent: adding an already-present id
// is a no-op.
func (l *Ledger) Add(quizID string) error {
	_, err := l.db.Exec(
		`INSERT OR IGNORE INTO answered_quizzes (quiz_id, answered_at) VALUES (?, ?)`,
		quizID, time.Now().UTC(),
	)
	return err
}

// Remove deletes quizID from the ledger. A deleted quiz may be re-issued
// by the server and must be answerable again.
func (l *Ledger) Remove(quizID string) error {
	_, err := l.db.Exec(`DELETE FROM answered_quizzes WHERE quiz_id = ?`, quizID)
	return err
}

// All returns the answered quiz ids in the order they were answered.
func (l *Ledger) All() ([]string, error) {
	rows, err := l.db.Query(`SELECT quiz_id FROM answered_quizzes ORDER BY answered_at, quiz_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
