package models

// Role is a member's permission level within a group.
type Role string

const (
	// RoleAdmin may approve expenses and override deletes.
	RoleAdmin Role = "admin"
	// RoleMember may record expenses and payments.
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Group represents a set of members who share expenses together.
// A group is single-currency: every expense and payment must use Currency.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Trip to Hue").
	Name string

	// Currency is the ISO code all of the group's amounts are kept in.
	Currency string

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// Member is one participant of a group.
// The ledger treats it as an opaque ID with a display label.
type Member struct {
	// ID is the member's identity, shared across groups.
	ID string

	// Name is the display label.
	Name string

	// Email is used for notifications. Optional.
	Email string

	// Role is the member's permission level within the group.
	Role Role

	// JoinedAt is the Unix timestamp when the member joined the group.
	JoinedAt int64
}
