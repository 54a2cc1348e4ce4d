package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/store"
)

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `id, type, class, resource_id, source_account_id, payload,
	status, retry_count, last_error, received_at, updated_at, processed_at, replayed_at`

// activeStatuses is the SQL guard shared by every processor-driven update:
// terminal records are never touched.
const activeStatuses = `status IN ('PENDING', 'PROCESSING')`

// defaultListLimit caps ListEvents when the filter sets no limit.
const defaultListLimit = 100

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryIngest(ctx context.Context, db executor, e *model.Event) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO events (
			id, type, class, resource_id, source_account_id, payload,
			status, retry_count, received_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, 0, $8, $8
		)
		ON CONFLICT (id) DO NOTHING`,
		e.ID,
		e.Type,
		string(e.Class),
		nullString(e.ResourceID),
		nullString(e.SourceAccountID),
		jsonbBytes(e.Payload),
		string(model.StatusPending),
		e.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func queryGetEvent(ctx context.Context, db executor, id string) (*model.Event, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func queryListEvents(ctx context.Context, db executor, filter model.EventFilter) ([]*model.Event, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Type) > 0 {
		placeholders := make([]string, len(filter.Type))
		for i, t := range filter.Type {
			placeholders[i] = nextArg()
			args = append(args, t)
		}
		whereClauses = append(whereClauses, "type IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Class) > 0 {
		placeholders := make([]string, len(filter.Class))
		for i, c := range filter.Class {
			placeholders[i] = nextArg()
			args = append(args, string(c))
		}
		whereClauses = append(whereClauses, "class IN ("+strings.Join(placeholders, ", ")+")")
	}

	if !filter.UpdatedBefore.IsZero() {
		whereClauses = append(whereClauses, "updated_at < "+nextArg())
		args = append(args, filter.UpdatedBefore)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY received_at ASC, id ASC LIMIT " + nextArg()
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryMarkProcessing(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE events SET status = 'PROCESSING', updated_at = now()
		WHERE id = $1 AND `+activeStatuses, id)
	return checkUpdate(ctx, db, id, res, err, model.StatusProcessing)
}

func queryMarkProcessed(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE events SET status = 'PROCESSED', last_error = NULL, processed_at = now(), updated_at = now()
		WHERE id = $1 AND `+activeStatuses, id)
	return checkUpdate(ctx, db, id, res, err, model.StatusProcessed)
}

func queryMarkFailed(ctx context.Context, db executor, id, lastErr string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE events SET status = 'FAILED', last_error = $2, updated_at = now()
		WHERE id = $1 AND `+activeStatuses, id, nullString(lastErr))
	return checkUpdate(ctx, db, id, res, err, model.StatusFailed)
}

func queryIncrementRetry(ctx context.Context, db executor, id, lastErr string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		UPDATE events SET retry_count = retry_count + 1, status = 'PENDING', last_error = $2, updated_at = now()
		WHERE id = $1 AND `+activeStatuses+`
		RETURNING retry_count`, id, nullString(lastErr)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := currentStatus(ctx, db, id); err != nil {
			return 0, err
		}
		return 0, store.ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("increment retry %s: %w", id, err)
	}
	return count, nil
}

func queryResetForReplay(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE events SET status = 'PENDING', retry_count = 0, last_error = NULL, replayed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'FAILED'`, id)
	return checkUpdate(ctx, db, id, res, err, "")
}

func queryCountByStatus(ctx context.Context, db executor, class model.JobClass) (map[model.Status]int, error) {
	query := `SELECT status, count(*) FROM events`
	var args []any
	if class != "" {
		query += ` WHERE class = $1`
		args = append(args, string(class))
	}
	query += ` GROUP BY status`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var (
			status model.Status
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// checkUpdate turns a zero-row guarded UPDATE into ErrNotFound or
// ErrConflict. An update to the status the record already has is a no-op,
// which keeps MarkProcessed idempotent for duplicate deliveries.
func checkUpdate(ctx context.Context, db executor, id string, res sql.Result, err error, target model.Status) error {
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	status, err := currentStatus(ctx, db, id)
	if err != nil {
		return err
	}
	if target != "" && status == target {
		return nil
	}
	return fmt.Errorf("%w: %s is %s", store.ErrConflict, id, status)
}

func currentStatus(ctx context.Context, db executor, id string) (model.Status, error) {
	var status model.Status
	err := db.QueryRowContext(ctx, `SELECT status FROM events WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get status %s: %w", id, err)
	}
	return status, nil
}
