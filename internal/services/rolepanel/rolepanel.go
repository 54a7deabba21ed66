// Package rolepanel implements self-assignable roles: a posted panel of
// buttons, one per role, that toggle the role on whoever clicks.
package rolepanel

import (
	"context"
	"strings"

	"warden/internal/adapters/discord"
	"warden/internal/core/actor"
	perr "warden/internal/platform/errors"
	"warden/internal/platform/logger"
)

// ButtonPrefix namespaces the panel's button custom IDs
const ButtonPrefix = "role:"

// Entry is one self-assignable role
type Entry struct {
	RoleID string
	Label  string
}

// Platform is the slice of the chat platform the panel needs
type Platform interface {
	GuildMember(ctx context.Context, guildID, userID string) (discord.Member, error)
	AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error
	CreateMessage(ctx context.Context, channelID string, send discord.MessageSend) (discord.Message, error)
}

// Service implements the role panel
type Service struct {
	platform Platform
	entries  []Entry
	allowed  map[string]bool
	log      logger.Logger
}

// New constructs the panel service
func New(platform Platform, entries []Entry) *Service {
	allowed := make(map[string]bool, len(entries))
	for _, e := range entries {
		allowed[e.RoleID] = true
	}
	return &Service{
		platform: platform,
		entries:  entries,
		allowed:  allowed,
		log:      *logger.Named("rolepanel"),
	}
}

// Panel builds the button panel message
func (s *Service) Panel() (discord.MessageSend, error) {
	if len(s.entries) == 0 {
		return discord.MessageSend{}, perr.NotConfiguredf("no self-assignable roles configured")
	}

	// action rows hold at most five buttons
	var rows []discord.Component
	for start := 0; start < len(s.entries); start += 5 {
		end := min(start+5, len(s.entries))
		var buttons []discord.Component
		for _, e := range s.entries[start:end] {
			buttons = append(buttons, discord.Button(discord.ButtonSecondary, e.Label, ButtonPrefix+e.RoleID))
		}
		rows = append(rows, discord.Row(buttons...))
	}

	return discord.MessageSend{
		Embeds: []discord.Embed{{
			Title:       "Pick your roles",
			Description: "Click a button to toggle the role on or off.",
			Color:       0x9B59B6,
		}},
		Components: rows,
	}, nil
}

// PostPanel posts the button panel into a channel. Staff-gated by the caller.
func (s *Service) PostPanel(ctx context.Context, channelID string) error {
	panel, err := s.Panel()
	if err != nil {
		return err
	}
	if _, err := s.platform.CreateMessage(ctx, channelID, panel); err != nil {
		return perr.WithOp(err, "rolepanel: post panel")
	}
	return nil
}

// Toggle flips the role on the actor. Added reports which way it went.
func (s *Service) Toggle(ctx context.Context, guildID string, a actor.Actor, customID string) (added bool, label string, err error) {
	roleID := strings.TrimPrefix(customID, ButtonPrefix)
	if !s.allowed[roleID] {
		return false, "", perr.InvalidArgf("role is not self-assignable")
	}
	for _, e := range s.entries {
		if e.RoleID == roleID {
			label = e.Label
		}
	}

	member, err := s.platform.GuildMember(ctx, guildID, a.ID)
	if err != nil {
		return false, label, perr.WithOp(err, "rolepanel: fetch member")
	}

	has := false
	for _, id := range member.Roles {
		if id == roleID {
			has = true
			break
		}
	}

	if has {
		if err := s.platform.RemoveMemberRole(ctx, guildID, a.ID, roleID, "role panel"); err != nil {
			return false, label, perr.WithOp(err, "rolepanel: remove role")
		}
		return false, label, nil
	}
	if err := s.platform.AddMemberRole(ctx, guildID, a.ID, roleID, "role panel"); err != nil {
		return false, label, perr.WithOp(err, "rolepanel: add role")
	}
	return true, label, nil
}
