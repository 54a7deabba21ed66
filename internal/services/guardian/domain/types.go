// Package domain defines the types and ports for the guardian service
package domain

import "time"

// Trigger identifies which path requested an unmute
type Trigger string

// Unmute triggers; both run the same code path
const (
	TriggerManual Trigger = "manual"
	TriggerExpiry Trigger = "expiry"
)

// MuteRecord is the durable row for an active mute, keyed by (guild, user).
// ExpiresAt nil means indefinite.
type MuteRecord struct {
	GuildID   string
	UserID    string
	ExpiresAt *time.Time
}

// RoleSnapshot is the durable backup of a member's role grants taken
// immediately before muting. At most one outstanding snapshot per
// (guild, user); a re-mute overwrites it (last mute wins).
type RoleSnapshot struct {
	GuildID string
	UserID  string
	RoleIDs []string
}

// MuteOutcome reports what a mute actually did
type MuteOutcome struct {
	Stripped    int
	Kept        int // grants the bot cannot revoke, reported not fatal
	StripFailed bool
	ExpiresAt   *time.Time
}

// UnmuteOutcome reports what an unmute actually did
type UnmuteOutcome struct {
	Restored      int
	Skipped       int // grants gone, managed, or now outranking the bot
	RestoreFailed bool
	Trigger       Trigger
}
