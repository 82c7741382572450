package relationships

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/crud"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// countRows runs a COUNT(*) statement
func (en *Engine) countRows(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	var count int64
	if err := en.exec(ctx).QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count related rows: %w", crud.ConvertDBError(err))
	}
	return count, nil
}

// collectIDs returns the single string column selected by stmt
func (en *Engine) collectIDs(ctx context.Context, stmt string, args ...interface{}) ([]string, error) {
	rows, err := en.exec(ctx).QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query related ids: %w", crud.ConvertDBError(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan related id: %w", err)
		}
		ids = append(ids, strings.TrimSpace(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read related ids: %w", err)
	}
	return ids, nil
}

// execRows runs a statement and returns the number of affected rows
func (en *Engine) execRows(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	result, err := en.exec(ctx).ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, crud.ConvertDBError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// tombstoneIDs stamps deleted_at/deleted_by on every row of table whose id is in ids,
// in a single statement
func (en *Engine) tombstoneIDs(ctx context.Context, table string, ids []string, at time.Time, by interface{}) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s = $1, %s = $2 WHERE %s = ANY($3)",
		table, schema.FieldDeletedAt, schema.FieldDeletedBy, schema.FieldID)
	n, err := en.execRows(ctx, stmt, at, by, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to tombstone %s rows: %w", table, err)
	}
	return n, nil
}

// restoreTombstones clears the tombstones on table rows matching where and stamped with deletedAt.
// where uses $1; deletedAt is bound to $2.
func (en *Engine) restoreTombstones(ctx context.Context, table, where string, arg interface{}, deletedAt time.Time) (int64, error) {
	stmt := fmt.Sprintf("UPDATE %s SET %s = NULL, %s = NULL WHERE %s AND %s = $2",
		table, schema.FieldDeletedAt, schema.FieldDeletedBy, where, schema.FieldDeletedAt)
	n, err := en.execRows(ctx, stmt, arg, deletedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to restore %s rows: %w", table, err)
	}
	return n, nil
}
