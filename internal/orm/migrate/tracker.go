package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/transaction"
)

// LogTable records every applied synthesis run
const LogTable = "schema_synthesis_log"

// Run is one applied synthesis batch
type Run struct {
	ID         int64
	AppliedAt  time.Time
	Checksum   string
	Statements []string
}

// Tracker manages the synthesis history. Calls run in the transaction carried by ctx, if any.
type Tracker struct {
	db transaction.Executor
}

// NewTracker creates a new tracker
func NewTracker(db transaction.Executor) *Tracker {
	return &Tracker{db: db}
}

const logTableDDL = `CREATE TABLE IF NOT EXISTS ` + LogTable + ` (
  id BIGSERIAL PRIMARY KEY,
  applied_at TIMESTAMP NOT NULL,
  statement_count INTEGER NOT NULL,
  checksum CHAR(64) NOT NULL,
  statements TEXT NOT NULL
)`

// Initialize ensures the log table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	if _, err := transaction.ExecutorFrom(ctx, t.db).ExecContext(ctx, logTableDDL); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", LogTable, err)
	}
	return nil
}

// Checksum fingerprints a batch of statements
func Checksum(statements []string) string {
	sum := sha256.Sum256([]byte(strings.Join(statements, "\n")))
	return hex.EncodeToString(sum[:])
}

// Record stores an applied batch
func (t *Tracker) Record(ctx context.Context, statements []string, at time.Time) error {
	encoded, err := json.Marshal(statements)
	if err != nil {
		return fmt.Errorf("failed to encode statements: %w", err)
	}

	query := `INSERT INTO ` + LogTable + ` (applied_at, statement_count, checksum, statements)
VALUES ($1, $2, $3, $4)`
	_, err = transaction.ExecutorFrom(ctx, t.db).ExecContext(ctx, query,
		at, len(statements), Checksum(statements), string(encoded))
	if err != nil {
		return fmt.Errorf("failed to record synthesis run: %w", err)
	}
	return nil
}

// History returns up to limit runs, most recent first
func (t *Tracker) History(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT id, applied_at, checksum, statements FROM ` + LogTable + `
ORDER BY id DESC
LIMIT $1`
	rows, err := transaction.ExecutorFrom(ctx, t.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query synthesis history: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating synthesis history: %w", err)
	}
	return runs, nil
}

// Last returns the most recent run, or nil when none was recorded
func (t *Tracker) Last(ctx context.Context) (*Run, error) {
	query := `SELECT id, applied_at, checksum, statements FROM ` + LogTable + `
ORDER BY id DESC
LIMIT 1`
	run, err := scanRun(transaction.ExecutorFrom(ctx, t.db).QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var encoded string
	if err := s.Scan(&run.ID, &run.AppliedAt, &run.Checksum, &encoded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan synthesis run: %w", err)
	}
	if err := json.Unmarshal([]byte(encoded), &run.Statements); err != nil {
		return nil, fmt.Errorf("failed to decode statements of run %d: %w", run.ID, err)
	}
	return run, nil
}
