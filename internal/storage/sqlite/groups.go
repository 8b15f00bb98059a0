package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// CreateGroup persists a new group together with its initial members.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group, members []models.Member) error {
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, currency, created_at) VALUES (?, ?, ?, ?)",
		group.ID, group.Name, group.Currency, group.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("group %s: %w", group.ID, storage.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for i := range members {
		if err := insertMember(ctx, tx, group.ID, &members[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddGroupMember adds one member to an existing group.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID string, member *models.Member) error {
	return insertMember(ctx, s.db, groupID, member)
}

func insertMember(ctx context.Context, q querier, groupID string, member *models.Member) error {
	if member.Role == "" {
		member.Role = models.RoleMember
	}
	if member.JoinedAt == 0 {
		member.JoinedAt = time.Now().Unix()
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO group_members (group_id, member_id, name, email, role, joined_at) VALUES (?, ?, ?, ?, ?, ?)",
		groupID, member.ID, member.Name, nullString(member.Email), string(member.Role), member.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("member %s already in group %s: %w", member.ID, groupID, storage.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, currency, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.Currency, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// ListMembers returns the group's members ordered by ID.
func (s *SQLiteStore) ListMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, name, email, role, joined_at
		 FROM group_members WHERE group_id = ? ORDER BY member_id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// GetMember returns one member of the group.
func (s *SQLiteStore) GetMember(ctx context.Context, groupID, memberID string) (*models.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT member_id, name, email, role, joined_at
		 FROM group_members WHERE group_id = ? AND member_id = ?`,
		groupID, memberID,
	)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %s of group %s: %w", memberID, groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// IsMember reports whether memberID belongs to the group.
func (s *SQLiteStore) IsMember(ctx context.Context, groupID, memberID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM group_members WHERE group_id = ? AND member_id = ?",
		groupID, memberID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(sc scanner) (*models.Member, error) {
	m := &models.Member{}
	var email sql.NullString
	var role string
	if err := sc.Scan(&m.ID, &m.Name, &email, &role, &m.JoinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	m.Email = email.String
	m.Role = models.Role(role)
	return m, nil
}
