// Package joins watches membership churn: who joined through which invite,
// who left, who was banned. Attribution works by diffing invite use counts
// around each join, so the cache must be primed per guild before the first
// join arrives.
package joins

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"warden/internal/adapters/discord"
	"warden/internal/platform/logger"
	"warden/internal/services/audit"
)

// Config for the joins service
type Config struct {
	// WelcomeChannelID is where welcome cards are posted; empty disables them
	WelcomeChannelID string
}

// Platform is the slice of the chat platform the joins service needs
type Platform interface {
	GuildInvites(ctx context.Context, guildID string) ([]discord.Invite, error)
	GuildVanityURL(ctx context.Context, guildID string) (discord.Invite, error)
	CreateMessage(ctx context.Context, channelID string, send discord.MessageSend) (discord.Message, error)
}

// Service implements join attribution and membership records
type Service struct {
	platform Platform
	rec      audit.Recorder
	cfg      Config

	// uses caches invite use counts per guild; entries live as long as the
	// guild stays visible, one entry per joined guild
	uses *gocache.Cache
	log  logger.Logger
	now  func() time.Time
}

type guildUses struct {
	invites map[string]inviteInfo // by code
	vanity  int
}

type inviteInfo struct {
	uses    int
	inviter string
}

// New constructs the joins service
func New(platform Platform, rec audit.Recorder, cfg Config) *Service {
	if rec == nil {
		rec = audit.Noop{}
	}
	return &Service{
		platform: platform,
		rec:      rec,
		cfg:      cfg,
		uses:     gocache.New(gocache.NoExpiration, 10*time.Minute),
		log:      *logger.Named("joins"),
		now:      time.Now,
	}
}

// Prime snapshots the guild's invite uses. Call on ready and after invite
// create/delete events so the next join diffs against fresh counts.
func (s *Service) Prime(ctx context.Context, guildID string) {
	gu := guildUses{invites: map[string]inviteInfo{}}

	invs, err := s.platform.GuildInvites(ctx, guildID)
	if err != nil {
		s.log.Warn().Err(err).Str("guild", guildID).Msg("invite prime failed")
	}
	for _, inv := range invs {
		info := inviteInfo{uses: inv.Uses}
		if inv.Inviter != nil {
			info.inviter = inv.Inviter.ID
		}
		gu.invites[inv.Code] = info
	}

	if v, err := s.platform.GuildVanityURL(ctx, guildID); err == nil {
		gu.vanity = v.Uses
	}

	s.uses.Set(guildID, gu, gocache.NoExpiration)
}

// Forget drops the cached counts when the bot leaves a guild
func (s *Service) Forget(guildID string) {
	s.uses.Delete(guildID)
}

// MemberJoined attributes the join, posts the welcome card, and records it
func (s *Service) MemberJoined(ctx context.Context, guildID string, user discord.User) {
	method := s.attribute(ctx, guildID)

	if s.cfg.WelcomeChannelID != "" {
		_, err := s.platform.CreateMessage(ctx, s.cfg.WelcomeChannelID, discord.MessageSend{
			Embeds: []discord.Embed{{
				Title:       "Welcome!",
				Description: fmt.Sprintf("<@%s> joined the server.", user.ID),
				Color:       0x2ECC71,
			}},
		})
		if err != nil {
			s.log.Warn().Err(err).Str("user", user.ID).Msg("welcome card failed")
		}
	}

	s.rec.Record(ctx, audit.Event{
		GuildID: guildID,
		Title:   "Member joined",
		Color:   0x2ECC71,
		Fields: []audit.Field{
			{Name: "User", Value: "<@" + user.ID + ">"},
			{Name: "Joined via", Value: method},
			{Name: "Account age", Value: AccountAge(user.ID, s.now())},
		},
	})
}

// MemberLeft records the departure
func (s *Service) MemberLeft(ctx context.Context, guildID string, user discord.User) {
	s.rec.Record(ctx, audit.Event{
		GuildID: guildID,
		Title:   "Member left",
		Color:   0x95A5A6,
		Fields: []audit.Field{
			{Name: "User", Value: "<@" + user.ID + "> (" + user.Username + ")"},
		},
	})
}

// MemberBanned records the ban
func (s *Service) MemberBanned(ctx context.Context, guildID string, user discord.User) {
	s.rec.Record(ctx, audit.Event{
		GuildID: guildID,
		Title:   "Member banned",
		Color:   0xE74C3C,
		Fields: []audit.Field{
			{Name: "User", Value: "<@" + user.ID + "> (" + user.Username + ")"},
		},
	})
}

// attribute diffs current invite uses against the cached snapshot and
// refreshes the cache. Ambiguous or unprimed diffs report unknown rather
// than guessing.
func (s *Service) attribute(ctx context.Context, guildID string) string {
	var prev guildUses
	primed := false
	if v, ok := s.uses.Get(guildID); ok {
		prev = v.(guildUses)
		primed = true
	}

	method := "unknown"

	invs, err := s.platform.GuildInvites(ctx, guildID)
	if err != nil {
		s.log.Warn().Err(err).Str("guild", guildID).Msg("invite diff failed")
		return method
	}
	next := guildUses{invites: map[string]inviteInfo{}}
	for _, inv := range invs {
		info := inviteInfo{uses: inv.Uses}
		if inv.Inviter != nil {
			info.inviter = inv.Inviter.ID
		}
		next.invites[inv.Code] = info
		if primed && method == "unknown" && inv.Uses > prev.invites[inv.Code].uses {
			if info.inviter != "" {
				method = fmt.Sprintf("invite %s by <@%s>", inv.Code, info.inviter)
			} else {
				method = "invite " + inv.Code
			}
		}
	}

	if v, err := s.platform.GuildVanityURL(ctx, guildID); err == nil {
		next.vanity = v.Uses
		if primed && method == "unknown" && v.Uses > prev.vanity {
			method = "vanity URL"
		}
	}

	s.uses.Set(guildID, next, gocache.NoExpiration)
	return method
}

// Platform snowflake epoch, ms since Unix epoch
const snowflakeEpochMS = 1420070400000

// AccountAge renders how old the account behind a snowflake ID is
func AccountAge(id string, now time.Time) string {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return "unknown"
	}
	created := time.UnixMilli(int64(n>>22) + snowflakeEpochMS)
	age := now.Sub(created)
	switch {
	case age < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(age.Hours()))
	case age < 30*24*time.Hour:
		return fmt.Sprintf("%d days", int(age.Hours()/24))
	default:
		return fmt.Sprintf("%d months", int(age.Hours()/(24*30)))
	}
}
