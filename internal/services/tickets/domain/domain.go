// Package domain defines the types and ports for the ticket service
package domain

import (
	"context"

	"warden/internal/adapters/discord"
	"warden/internal/core/actor"
)

// Ticket is the state decoded from a ticket channel's topic sidecar
type Ticket struct {
	ChannelID string
	Name      string
	Kind      string
	OwnerID   string
	ClaimedBy string // "none" encoded as empty
}

// OpenResult reports a freshly created ticket channel
type OpenResult struct {
	ChannelID string
	Name      string
}

// Platform is the slice of the chat platform the ticket service needs
type Platform interface {
	Me(ctx context.Context) (discord.User, error)
	GuildChannels(ctx context.Context, guildID string) ([]discord.Channel, error)
	Channel(ctx context.Context, channelID string) (discord.Channel, error)
	CreateGuildChannel(ctx context.Context, guildID string, p discord.CreateChannelParams, reason string) (discord.Channel, error)
	EditChannelTopic(ctx context.Context, channelID, topic, reason string) error
	DeleteChannel(ctx context.Context, channelID, reason string) error
	ChannelMessages(ctx context.Context, channelID string, limit int, after string) ([]discord.Message, error)
	CreateMessage(ctx context.Context, channelID string, send discord.MessageSend) (discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, edit discord.MessageEdit) (discord.Message, error)
}

// Port is the ticket service surface
type Port interface {
	Open(ctx context.Context, guildID string, actor actor.Actor, kind string) (OpenResult, error)
	Claim(ctx context.Context, channelID string, actor actor.Actor) error
	Close(ctx context.Context, channelID string, actor actor.Actor) error
}
