// Package models defines the core domain models for Splitledger.
//
// # Ledger Models
//
//   - Expense: one shared expense with its per-member share breakdown
//   - Payment: one recorded transfer between two members of a group
//   - RecurringExpense: a template that produces expenses on a schedule
//
// Both expenses and payments carry a State. Entries are created pending and
// move exactly once to approved or rejected. Only approved entries take part in
// balance computation.
//
// # Membership Models
//
//   - Group: a set of members sharing expenses in a single currency
//   - Member: one participant of a group with a role
//
// # Design Principles
//
// 1. **Integer money**: all amounts are money.Money minor units, never floats
// 2. **Immutable history**: terminal entries are never edited; corrections are new entries
// 3. **Avoid circular references**: use ID strings instead of pointers for relationships
package models
