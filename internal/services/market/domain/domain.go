// Package domain defines the types and ports for the marketplace service
package domain

import (
	"context"

	"warden/internal/adapters/discord"
	"warden/internal/core/actor"
)

// Listing status tags carried in the footer sidecar
const (
	StatusOpen    = "open"
	StatusClaimed = "claimed"
	StatusClosed  = "closed"
)

// Region is a marketplace region: its listings channel, the eligibility
// role members need to trade there, and the staff role that moderates it
type Region struct {
	Key         string
	ChannelID   string
	RoleID      string
	StaffRoleID string
}

// OpenInput is the seller-provided listing content
type OpenInput struct {
	Title       string `validate:"required,max=100"`
	Description string `validate:"required,max=1024"`
	Price       string `validate:"required,max=64"`
}

// Listing is the state decoded from a listing message's footer sidecar
type Listing struct {
	ChannelID string
	MessageID string
	SellerID  string
	Region    string
	ClaimedBy string // "0" encoded as empty
	Status    string
}

// OpenResult reports a freshly posted listing
type OpenResult struct {
	ChannelID string
	MessageID string
}

// Platform is the slice of the chat platform the market needs
type Platform interface {
	Message(ctx context.Context, channelID, messageID string) (discord.Message, error)
	CreateMessage(ctx context.Context, channelID string, send discord.MessageSend) (discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, edit discord.MessageEdit) (discord.Message, error)
}

// Port is the marketplace service surface
type Port interface {
	Open(ctx context.Context, guildID string, a actor.Actor, regionKey string, in OpenInput) (OpenResult, error)
	Contact(ctx context.Context, channelID, messageID string, a actor.Actor) error
	Claim(ctx context.Context, channelID, messageID string, a actor.Actor) error
	Close(ctx context.Context, channelID, messageID string, a actor.Actor) error
}
