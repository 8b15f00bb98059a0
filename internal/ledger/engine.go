// Package ledger is the balance and settlement engine of a group.
//
// Engine validates and records expenses and payments, moves them through the
// pending -> approved|rejected workflow and derives balances and settlement
// suggestions from the approved entries on every call. It keeps no state of its
// own; storage enforces compare-and-swap on transitions and snapshot reads.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/splitledger/internal/gateway"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
)

// SystemActor decides gateway payments from provider callbacks.
const SystemActor = "system"

// Engine implements the ledger operations.
type Engine struct {
	groups    storage.GroupStore
	ledger    storage.Ledger
	recurring storage.RecurringStore
	gateway   gateway.Gateway
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	now       func() time.Time
	returnURL string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecurringStore enables recurring expense templates.
func WithRecurringStore(s storage.RecurringStore) Option {
	return func(e *Engine) { e.recurring = s }
}

// WithGateway enables online payments through g. returnURL is where the provider
// sends the payer after checkout.
func WithGateway(g gateway.Gateway, returnURL string) Option {
	return func(e *Engine) {
		e.gateway = g
		e.returnURL = returnURL
	}
}

// WithNotifier sends decision notifications through n.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics records engine metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given group registry and ledger storage.
func New(groups storage.GroupStore, ledger storage.Ledger, opts ...Option) *Engine {
	e := &Engine{
		groups: groups,
		ledger: ledger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// groupContext is a group with its current member list, loaded once per operation.
type groupContext struct {
	group   *models.Group
	members []models.Member
}

func (g *groupContext) ids() []string {
	ids := make([]string, len(g.members))
	for i, m := range g.members {
		ids[i] = m.ID
	}
	return ids
}

func (g *groupContext) member(id string) (models.Member, bool) {
	for _, m := range g.members {
		if m.ID == id {
			return m, true
		}
	}
	return models.Member{}, false
}

func (g *groupContext) isAdmin(id string) bool {
	m, ok := g.member(id)
	return ok && m.Role == models.RoleAdmin
}

// loadGroup fetches the group and its members.
func (e *Engine) loadGroup(ctx context.Context, op, groupID string) (*groupContext, error) {
	if groupID == "" {
		return nil, invalidf(op, "group id is required")
	}
	group, err := e.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fromStorage(op, err)
	}
	members, err := e.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return &groupContext{group: group, members: members}, nil
}

// loadGroupAs is loadGroup that also requires actor to be a member.
func (e *Engine) loadGroupAs(ctx context.Context, op, groupID, actor string) (*groupContext, error) {
	gc, err := e.loadGroup(ctx, op, groupID)
	if err != nil {
		return nil, err
	}
	if _, ok := gc.member(actor); !ok {
		return nil, unauthorizedf(op, "%s is not a member of group %s", actor, groupID)
	}
	return gc, nil
}

// loadEntryGroup loads the group owning an entry on behalf of actor. A
// non-member gets entryNotFound rather than ErrUnauthorized.
func (e *Engine) loadEntryGroup(ctx context.Context, op, kind, id, groupID, actor string) (*groupContext, error) {
	gc, err := e.loadGroup(ctx, op, groupID)
	if err != nil {
		return nil, err
	}
	if _, ok := gc.member(actor); !ok {
		return nil, entryNotFound(op, kind, id)
	}
	return gc, nil
}

// notify delivers ev if a notifier is configured. Failures are logged only.
func (e *Engine) notify(ctx context.Context, ev notify.Event) {
	if e.notifier == nil || len(ev.Recipients) == 0 {
		return
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Notification failed", "kind", ev.Kind, "group_id", ev.Group.ID, "error", err)
	}
}

// recipients returns the members among ids, skipping the actor and unknown ids.
func (g *groupContext) recipients(actor string, ids ...string) []models.Member {
	var out []models.Member
	seen := map[string]bool{actor: true}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if m, ok := g.member(id); ok {
			out = append(out, m)
		}
	}
	return out
}
