package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

const recurringColumns = `id, group_id, payer_id, total, currency, description, category, policy, frequency,
	repeat_every, start_at, end_at, next_at, paused, created_by, created_at, last_run_at`

// CreateRecurring persists a recurring expense template with its shares.
func (s *SQLiteStore) CreateRecurring(ctx context.Context, r *models.RecurringExpense) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	if r.NextAt == 0 {
		r.NextAt = r.StartAt
	}
	if r.Interval <= 0 {
		r.Interval = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var endAt any
	if r.EndAt != 0 {
		endAt = r.EndAt
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO recurring_expenses (id, group_id, payer_id, total, currency, description, category, policy,
			frequency, repeat_every, start_at, end_at, next_at, paused, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.GroupID, r.PayerID, r.Total.Amount, r.Total.Currency, r.Description, nullString(r.Category),
		string(r.Policy), string(r.Frequency), r.Interval, r.StartAt, endAt, r.NextAt, r.Paused,
		r.CreatedBy, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recurring expense: %w", err)
	}

	if err := insertShares(ctx, tx, "recurring_shares", "recurring_id", r.ID, r.Shares); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRecurring retrieves a recurring template by ID.
func (s *SQLiteStore) GetRecurring(ctx context.Context, id string) (*models.RecurringExpense, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recurringColumns+" FROM recurring_expenses WHERE id = ?", id)
	r, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recurring expense %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if r.Shares, err = loadShares(ctx, s.db, "recurring_shares", "recurring_id", r.ID, r.Total.Currency); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecurring returns a group's templates, newest first.
func (s *SQLiteStore) ListRecurring(ctx context.Context, groupID string) ([]models.RecurringExpense, error) {
	return s.listRecurring(ctx, "group_id = ? ORDER BY created_at DESC, id", groupID)
}

// ListDueRecurring returns unpaused templates whose next occurrence is at or before now.
func (s *SQLiteStore) ListDueRecurring(ctx context.Context, now int64) ([]models.RecurringExpense, error) {
	return s.listRecurring(ctx,
		"paused = 0 AND next_at <= ? AND (end_at IS NULL OR next_at <= end_at) ORDER BY next_at, id",
		now,
	)
}

func (s *SQLiteStore) listRecurring(ctx context.Context, where string, args ...any) ([]models.RecurringExpense, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+recurringColumns+" FROM recurring_expenses WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring expenses: %w", err)
	}

	var list []models.RecurringExpense
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recurring expenses: %w", err)
	}

	for i := range list {
		if list[i].Shares, err = loadShares(ctx, s.db, "recurring_shares", "recurring_id", list[i].ID, list[i].Total.Currency); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// UpdateRecurring replaces a template's fields and shares in one transaction.
func (s *SQLiteStore) UpdateRecurring(ctx context.Context, r *models.RecurringExpense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var endAt any
	if r.EndAt != 0 {
		endAt = r.EndAt
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE recurring_expenses SET payer_id = ?, total = ?, currency = ?, description = ?, category = ?,
			policy = ?, frequency = ?, repeat_every = ?, end_at = ?,
			start_at = CASE WHEN last_run_at IS NULL THEN ? ELSE start_at END,
			next_at = CASE WHEN last_run_at IS NULL THEN ? ELSE next_at END
		 WHERE id = ?`,
		r.PayerID, r.Total.Amount, r.Total.Currency, r.Description, nullString(r.Category),
		string(r.Policy), string(r.Frequency), r.Interval, endAt, r.StartAt, r.NextAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recurring expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recurring expense %s: %w", r.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM recurring_shares WHERE recurring_id = ?", r.ID); err != nil {
		return fmt.Errorf("failed to delete shares: %w", err)
	}
	if err := insertShares(ctx, tx, "recurring_shares", "recurring_id", r.ID, r.Shares); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteRecurring removes a template and its shares. Expenses it already
// produced are kept.
func (s *SQLiteStore) DeleteRecurring(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "recurring_expenses", id, false)
}

// SetRecurringPaused pauses or resumes a template.
func (s *SQLiteStore) SetRecurringPaused(ctx context.Context, id string, paused bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE recurring_expenses SET paused = ? WHERE id = ?", paused, id)
	if err != nil {
		return fmt.Errorf("failed to update recurring expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recurring expense %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// AdvanceRecurring moves next_at from `from` to `next`, failing with ErrConflict if
// another runner got there first.
func (s *SQLiteStore) AdvanceRecurring(ctx context.Context, id string, from, next, ranAt int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE recurring_expenses SET next_at = ?, last_run_at = ? WHERE id = ? AND next_at = ?",
		next, ranAt, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to advance recurring expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recurring expense %s already advanced: %w", id, storage.ErrConflict)
	}
	return nil
}

func scanRecurring(sc scanner) (*models.RecurringExpense, error) {
	r := &models.RecurringExpense{}
	var total int64
	var currency, policy, frequency string
	var category sql.NullString
	var endAt, lastRunAt sql.NullInt64

	err := sc.Scan(&r.ID, &r.GroupID, &r.PayerID, &total, &currency, &r.Description, &category, &policy,
		&frequency, &r.Interval, &r.StartAt, &endAt, &r.NextAt, &r.Paused, &r.CreatedBy, &r.CreatedAt, &lastRunAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan recurring expense: %w", err)
	}

	r.Total = money.New(total, currency)
	r.Category = category.String
	r.Policy = models.SplitPolicy(policy)
	r.Frequency = models.Frequency(frequency)
	r.EndAt = endAt.Int64
	r.LastRunAt = lastRunAt.Int64
	return r, nil
}
