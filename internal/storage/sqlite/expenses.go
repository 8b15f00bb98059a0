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

const expenseColumns = `id, group_id, payer_id, total, currency, description, category, policy, state,
	created_by, decided_by, decided_at, occurred_at, created_at, recurring_id`

// CreateExpense persists a new expense and its shares in one transaction.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	// Generate ID if not set
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	if expense.OccurredAt == 0 {
		expense.OccurredAt = expense.CreatedAt
	}
	if expense.State == "" {
		expense.State = models.StatePending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, payer_id, total, currency, description, category, policy, state,
			created_by, occurred_at, created_at, recurring_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.GroupID, expense.PayerID, expense.Total.Amount, expense.Total.Currency,
		expense.Description, nullString(expense.Category), string(expense.Policy), string(expense.State),
		expense.CreatedBy, expense.OccurredAt, expense.CreatedAt, nullString(expense.RecurringID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertShares(ctx, tx, "expense_shares", "expense_id", expense.ID, expense.Shares); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense by ID, including its shares.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expenseID)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	shares, err := loadShares(ctx, s.db, "expense_shares", "expense_id", expenseID, expense.Total.Currency)
	if err != nil {
		return nil, err
	}
	expense.Shares = shares
	return expense, nil
}

// UpdatePendingExpense replaces the editable fields and shares of a pending expense.
func (s *SQLiteStore) UpdatePendingExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET payer_id = ?, total = ?, currency = ?, description = ?, category = ?,
			policy = ?, occurred_at = ?
		 WHERE id = ? AND state = 'pending'`,
		expense.PayerID, expense.Total.Amount, expense.Total.Currency, expense.Description,
		nullString(expense.Category), string(expense.Policy), expense.OccurredAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM expenses WHERE id = ?", expense.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check expense existence: %w", err)
		}
		return fmt.Errorf("expense %s is not pending: %w", expense.ID, storage.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_shares WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete shares: %w", err)
	}
	if err := insertShares(ctx, tx, "expense_shares", "expense_id", expense.ID, expense.Shares); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteExpense removes an expense and, by cascade, its shares.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string, pendingOnly bool) error {
	return s.deleteRow(ctx, "expenses", expenseID, pendingOnly)
}

// ListExpenses retrieves a group's expenses, newest first.
func (s *SQLiteStore) ListExpenses(ctx context.Context, groupID string, filter storage.EntryFilter) ([]models.Expense, error) {
	return listExpenses(ctx, s.db, groupID, filter)
}

// TransitionExpense moves an expense between states if it is currently in from.
func (s *SQLiteStore) TransitionExpense(ctx context.Context, expenseID string, from, to models.State, actor string, at int64) error {
	return s.transition(ctx, "expenses", expenseID, string(from), string(to), actor, at)
}

func listExpenses(ctx context.Context, q querier, groupID string, filter storage.EntryFilter) ([]models.Expense, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+expenseColumns+` FROM expenses
		 WHERE group_id = ? AND (? = '' OR state = ?)
		 ORDER BY created_at DESC, id`,
		groupID, string(filter.State), string(filter.State),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []models.Expense
	index := make(map[string]int)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[e.ID] = len(expenses)
		expenses = append(expenses, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	// Load every share of the matching expenses in one pass.
	shareRows, err := q.QueryContext(ctx,
		`SELECT s.expense_id, s.member_id, s.amount, s.percentage
		 FROM expense_shares s JOIN expenses e ON e.id = s.expense_id
		 WHERE e.group_id = ? AND (? = '' OR e.state = ?)
		 ORDER BY s.expense_id, s.member_id`,
		groupID, string(filter.State), string(filter.State),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer shareRows.Close()

	for shareRows.Next() {
		var expenseID string
		var share models.Share
		var amount int64
		var percentage sql.NullString
		if err := shareRows.Scan(&expenseID, &share.MemberID, &amount, &percentage); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		i, ok := index[expenseID]
		if !ok {
			continue
		}
		share.Amount = money.New(amount, expenses[i].Total.Currency)
		share.Percentage = percentage.String
		expenses[i].Shares = append(expenses[i].Shares, share)
	}
	if err := shareRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}

	return expenses, nil
}

func scanExpense(sc scanner) (*models.Expense, error) {
	e := &models.Expense{}
	var total int64
	var currency, policy, state string
	var category, decidedBy, recurringID sql.NullString
	var decidedAt sql.NullInt64

	err := sc.Scan(&e.ID, &e.GroupID, &e.PayerID, &total, &currency, &e.Description, &category,
		&policy, &state, &e.CreatedBy, &decidedBy, &decidedAt, &e.OccurredAt, &e.CreatedAt, &recurringID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}

	e.Total = money.New(total, currency)
	e.Category = category.String
	e.Policy = models.SplitPolicy(policy)
	e.State = models.State(state)
	e.DecidedBy = decidedBy.String
	e.DecidedAt = decidedAt.Int64
	e.RecurringID = recurringID.String
	return e, nil
}

// insertShares writes shares into table keyed by ownerColumn.
// Used for both expense and recurring template shares.
func insertShares(ctx context.Context, q querier, table, ownerColumn, ownerID string, shares []models.Share) error {
	for _, share := range shares {
		_, err := q.ExecContext(ctx,
			"INSERT INTO "+table+" ("+ownerColumn+", member_id, amount, percentage) VALUES (?, ?, ?, ?)",
			ownerID, share.MemberID, share.Amount.Amount, nullString(share.Percentage),
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}

func loadShares(ctx context.Context, q querier, table, ownerColumn, ownerID, currency string) ([]models.Share, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT member_id, amount, percentage FROM "+table+" WHERE "+ownerColumn+" = ? ORDER BY member_id",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get shares: %w", err)
	}
	defer rows.Close()

	var shares []models.Share
	for rows.Next() {
		var share models.Share
		var amount int64
		var percentage sql.NullString
		if err := rows.Scan(&share.MemberID, &amount, &percentage); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		share.Amount = money.New(amount, currency)
		share.Percentage = percentage.String
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}
	return shares, nil
}
