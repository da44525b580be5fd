// Package tiers administers membership tiers and resolves the mandatory
// contribution a resident owes.
//
// Resolver is the fee schedule: it answers (amount, ok) for a resident and
// never turns an unresolved tier into a zero amount.
package tiers
