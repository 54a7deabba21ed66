package domain

import (
	"context"

	"warden/internal/adapters/discord"
)

// Platform is the slice of the chat platform the guardian needs
type Platform interface {
	Me(ctx context.Context) (discord.User, error)
	GuildRoles(ctx context.Context, guildID string) ([]discord.Role, error)
	GuildMember(ctx context.Context, guildID, userID string) (discord.Member, error)
	GuildChannels(ctx context.Context, guildID string) ([]discord.Channel, error)
	EditChannelPermissions(ctx context.Context, channelID string, ow discord.PermissionOverwrite, reason string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error
	ReplaceMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error
	DM(ctx context.Context, userID, content string) error
}

// Storage is the durable store surface for mute and snapshot rows
type Storage interface {
	UpsertMute(ctx context.Context, rec MuteRecord) error
	DeleteMute(ctx context.Context, guildID, userID string) error
	ListTimed(ctx context.Context) ([]MuteRecord, error)

	PutSnapshot(ctx context.Context, snap RoleSnapshot) error
	// TakeSnapshot consumes (reads then deletes) the snapshot in one
	// transaction; returns perr.ErrNotFound when none exists
	TakeSnapshot(ctx context.Context, guildID, userID string) (RoleSnapshot, error)
}

// MutePort is the guardian surface other modules call
type MutePort interface {
	Mute(ctx context.Context, guildID, userID, moderatorID, reason string, d MuteDuration) (MuteOutcome, error)
	Unmute(ctx context.Context, guildID, userID string, trigger Trigger) (UnmuteOutcome, error)
}

// MuteDuration is the requested duration; zero means indefinite
type MuteDuration struct {
	Minutes int
}
