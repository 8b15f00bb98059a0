package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

// CreateGroup creates a group with actor as its admin plus the given members.
func (e *Engine) CreateGroup(ctx context.Context, actor, name, currency string, members []models.Member) (*models.Group, []models.Member, error) {
	const op = "CreateGroup"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, invalidf(op, "group name is required")
	}
	currency = strings.ToUpper(currency)
	if !money.Supported(currency) {
		return nil, nil, invalidf(op, "unsupported currency %q", currency)
	}
	if actor == "" {
		return nil, nil, invalidf(op, "actor is required")
	}

	all := []models.Member{{ID: actor, Name: actor, Role: models.RoleAdmin}}
	seen := map[string]bool{actor: true}
	for _, m := range members {
		if m.ID == "" {
			return nil, nil, invalidf(op, "member id is required")
		}
		if m.ID == actor {
			// The creator may supply their own display name and email.
			all[0].Name, all[0].Email = m.Name, m.Email
			continue
		}
		if seen[m.ID] {
			return nil, nil, invalidf(op, "member %s listed more than once", m.ID)
		}
		seen[m.ID] = true
		if m.Role == "" {
			m.Role = models.RoleMember
		}
		if !m.Role.Valid() {
			return nil, nil, invalidf(op, "invalid role %q for %s", m.Role, m.ID)
		}
		all = append(all, m)
	}
	if all[0].Name == "" {
		all[0].Name = actor
	}

	group := &models.Group{Name: name, Currency: currency}
	if err := e.groups.CreateGroup(ctx, group, all); err != nil {
		return nil, nil, fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Group created", "group_id", group.ID, "currency", currency, "members", len(all))
	return group, all, nil
}

// AddMember adds a member to the group. Only admins may add members.
func (e *Engine) AddMember(ctx context.Context, actor, groupID string, member models.Member) (*models.Member, error) {
	const op = "AddMember"

	gc, err := e.loadGroupAs(ctx, op, groupID, actor)
	if err != nil {
		return nil, err
	}
	if !gc.isAdmin(actor) {
		return nil, unauthorizedf(op, "only a group admin can add members")
	}
	if member.ID == "" {
		return nil, invalidf(op, "member id is required")
	}
	if member.Name == "" {
		member.Name = member.ID
	}
	if member.Role == "" {
		member.Role = models.RoleMember
	}
	if !member.Role.Valid() {
		return nil, invalidf(op, "invalid role %q", member.Role)
	}

	if err := e.groups.AddGroupMember(ctx, groupID, &member); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, invalidf(op, "%s is already a member", member.ID)
		}
		return nil, fromStorage(op, err)
	}
	slog.InfoContext(ctx, "Member added", "group_id", groupID, "member_id", member.ID)
	return &member, nil
}

// GetGroup returns the group and its members. The actor must be a member.
func (e *Engine) GetGroup(ctx context.Context, actor, groupID string) (*models.Group, []models.Member, error) {
	gc, err := e.loadGroupAs(ctx, "GetGroup", groupID, actor)
	if err != nil {
		return nil, nil, err
	}
	return gc.group, gc.members, nil
}
