// Package service implements the ticket lifecycle. A ticket is a private
// channel whose topic sidecar is the canonical record of its kind, owner,
// and claimant; there is no ticket table.
package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"warden/internal/adapters/discord"
	"warden/internal/core/actor"
	"warden/internal/core/sidecar"
	perr "warden/internal/platform/errors"
	"warden/internal/platform/logger"
	"warden/internal/services/audit"
	"warden/internal/services/tickets/domain"
)

// Topic sidecar keys
const (
	keyKind      = "ticket_type"
	keyOwner     = "user_id"
	keyClaimedBy = "claimed_by"

	unclaimed = "none"
)

// Button custom IDs dispatched back to this service
const (
	ButtonClaim = "ticket:claim"
	ButtonClose = "ticket:close"
)

const (
	namePrefix = "ticket-"

	// transcript cap; tickets longer than this are truncated from the top
	maxTranscript = 500
	pageSize      = 100
)

// Config for the ticket service
type Config struct {
	// CategoryID is the channel category tickets are created under
	CategoryID string

	// StaffRoleID marks ticket staff; administrators qualify regardless
	StaffRoleID string

	// CloseGrace is the pause between the close announcement and the
	// channel deletion; defaults to 5s
	CloseGrace time.Duration
}

// Service implements domain.Port
type Service struct {
	platform domain.Platform
	rec      audit.Recorder
	cfg      Config
	log      logger.Logger
	sleep    func(time.Duration)
}

// Compile-time assertion
var _ domain.Port = (*Service)(nil)

// New constructs the ticket service
func New(platform domain.Platform, rec audit.Recorder, cfg Config) *Service {
	if rec == nil {
		rec = audit.Noop{}
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = 5 * time.Second
	}
	return &Service{
		platform: platform,
		rec:      rec,
		cfg:      cfg,
		log:      *logger.Named("tickets"),
		sleep:    time.Sleep,
	}
}

func (s *Service) isStaff(a actor.Actor) bool {
	return a.Admin || (s.cfg.StaffRoleID != "" && a.HasRole(s.cfg.StaffRoleID))
}

// Open creates a ticket channel for the actor. One open ticket per member:
// a second open is rejected with a reference to the existing channel.
func (s *Service) Open(ctx context.Context, guildID string, actor actor.Actor, kind string) (domain.OpenResult, error) {
	var res domain.OpenResult

	if s.cfg.CategoryID == "" {
		return res, perr.NotConfiguredf("ticket category is not configured")
	}

	chans, err := s.platform.GuildChannels(ctx, guildID)
	if err != nil {
		return res, perr.WithOp(err, "tickets: list channels")
	}

	for _, ch := range s.ticketChannels(chans) {
		f := sidecar.Decode(ch.Topic, sidecar.TopicDelim)
		if owner, ok := f.Get(keyOwner); ok && owner == actor.ID {
			return res, perr.AlreadyInStatef("you already have an open ticket: <#%s>", ch.ID)
		}
	}

	name := nextTicketName(chans)

	f := sidecar.New()
	f.Set(keyKind, kind)
	f.Set(keyOwner, actor.ID)
	f.Set(keyClaimedBy, unclaimed)

	me, err := s.platform.Me(ctx)
	if err != nil {
		return res, perr.WithOp(err, "tickets: resolve self")
	}

	ch, err := s.platform.CreateGuildChannel(ctx, guildID, discord.CreateChannelParams{
		Name:       name,
		Type:       discord.ChannelTypeGuildText,
		Topic:      sidecar.Encode(f, sidecar.TopicDelim),
		ParentID:   s.cfg.CategoryID,
		Overwrites: s.ticketOverwrites(guildID, actor.ID, me.ID),
	}, "ticket opened by "+actor.ID)
	if err != nil {
		return res, perr.WithOp(err, "tickets: create channel")
	}

	// Status card failure is not worth a half-created ticket; log and go on
	if _, err := s.platform.CreateMessage(ctx, ch.ID, statusCard(kind, actor.ID, unclaimed)); err != nil {
		s.log.Warn().Err(err).Str("channel", ch.ID).Msg("status card post failed")
	}

	s.rec.Record(ctx, audit.Event{
		GuildID: guildID,
		Title:   "Ticket opened",
		Color:   0x3498DB,
		Fields: []audit.Field{
			{Name: "Channel", Value: "<#" + ch.ID + ">"},
			{Name: "Kind", Value: kind},
			{Name: "Owner", Value: "<@" + actor.ID + ">"},
		},
	})

	res.ChannelID = ch.ID
	res.Name = name
	return res, nil
}

// Claim marks the ticket as handled by the actor. The topic is re-read
// immediately before the write; a concurrent claim that lands in between
// wins and this one reports already-claimed on the next read.
func (s *Service) Claim(ctx context.Context, channelID string, actor actor.Actor) error {
	if !s.isStaff(actor) {
		return perr.Forbiddenf("only staff can claim tickets")
	}

	ch, err := s.platform.Channel(ctx, channelID)
	if err != nil {
		return perr.WithOp(err, "tickets: fetch channel")
	}
	t, err := decodeTicket(ch)
	if err != nil {
		return err
	}
	if t.ClaimedBy != "" {
		return perr.AlreadyInStatef("ticket is already claimed by <@%s>", t.ClaimedBy)
	}

	f := sidecar.New()
	f.Set(keyKind, t.Kind)
	f.Set(keyOwner, t.OwnerID)
	f.Set(keyClaimedBy, actor.ID)
	if err := s.platform.EditChannelTopic(ctx, channelID, sidecar.Encode(f, sidecar.TopicDelim), "ticket claimed"); err != nil {
		return perr.WithOp(err, "tickets: rewrite topic")
	}

	s.refreshStatusCard(ctx, channelID, t.Kind, t.OwnerID, actor.ID)
	return nil
}

// Close dumps a transcript to the audit sink, waits out the grace period,
// and deletes the channel. Deletion is terminal; the sidecar goes with it.
func (s *Service) Close(ctx context.Context, channelID string, actor actor.Actor) error {
	ch, err := s.platform.Channel(ctx, channelID)
	if err != nil {
		return perr.WithOp(err, "tickets: fetch channel")
	}
	t, err := decodeTicket(ch)
	if err != nil {
		return err
	}
	if actor.ID != t.OwnerID && !s.isStaff(actor) {
		return perr.Forbiddenf("only the ticket owner or staff can close it")
	}

	transcript, count := s.transcript(ctx, channelID)
	ev := audit.Event{
		GuildID: ch.GuildID,
		Title:   "Ticket closed",
		Color:   0x95A5A6,
		Fields: []audit.Field{
			{Name: "Channel", Value: "#" + ch.Name},
			{Name: "Kind", Value: t.Kind},
			{Name: "Owner", Value: "<@" + t.OwnerID + ">"},
			{Name: "Closed by", Value: "<@" + actor.ID + ">"},
			{Name: "Messages", Value: strconv.Itoa(count)},
		},
	}
	if transcript != "" {
		ev.Attachment = &audit.File{Name: ch.Name + ".txt", Data: []byte(transcript)}
	}
	s.rec.Record(ctx, ev)

	s.sleep(s.cfg.CloseGrace)

	if err := s.platform.DeleteChannel(ctx, channelID, "ticket closed by "+actor.ID); err != nil {
		return perr.WithOp(err, "tickets: delete channel")
	}
	return nil
}

// ticketChannels filters to text channels under the ticket category
func (s *Service) ticketChannels(chans []discord.Channel) []discord.Channel {
	out := make([]discord.Channel, 0, len(chans))
	for _, ch := range chans {
		if ch.Type == discord.ChannelTypeGuildText && ch.ParentID == s.cfg.CategoryID {
			out = append(out, ch)
		}
	}
	return out
}

func (s *Service) ticketOverwrites(guildID, ownerID, botID string) []discord.PermissionOverwrite {
	allow := discord.PermString(discord.PermViewChannel, discord.PermSendMessages, discord.PermReadMessageHistory)
	ows := []discord.PermissionOverwrite{
		// @everyone shares its ID with the guild
		{ID: guildID, Type: discord.OverwriteRole, Deny: discord.PermString(discord.PermViewChannel)},
		{ID: ownerID, Type: discord.OverwriteMember, Allow: allow},
		{ID: botID, Type: discord.OverwriteMember, Allow: discord.PermString(
			discord.PermViewChannel, discord.PermSendMessages,
			discord.PermReadMessageHistory, discord.PermManageChannels,
		)},
	}
	if s.cfg.StaffRoleID != "" {
		ows = append(ows, discord.PermissionOverwrite{
			ID: s.cfg.StaffRoleID, Type: discord.OverwriteRole, Allow: allow,
		})
	}
	return ows
}

// refreshStatusCard rewrites the claimed-by field on the status card.
// Best effort: the topic is the record, the card is presentation.
func (s *Service) refreshStatusCard(ctx context.Context, channelID, kind, ownerID, claimedBy string) {
	msgs, err := s.platform.ChannelMessages(ctx, channelID, 1, "0")
	if err != nil || len(msgs) == 0 || len(msgs[0].Embeds) == 0 {
		s.log.Debug().Err(err).Str("channel", channelID).Msg("status card not found")
		return
	}
	card := statusCard(kind, ownerID, claimedBy)
	if _, err := s.platform.EditMessage(ctx, channelID, msgs[0].ID, discord.MessageEdit{
		Embeds:     &card.Embeds,
		Components: &card.Components,
	}); err != nil {
		s.log.Debug().Err(err).Str("channel", channelID).Msg("status card update failed")
	}
}

// transcript renders the channel history oldest first, capped
func (s *Service) transcript(ctx context.Context, channelID string) (string, int) {
	var b strings.Builder
	count := 0
	after := "0"
	for count < maxTranscript {
		msgs, err := s.platform.ChannelMessages(ctx, channelID, pageSize, after)
		if err != nil {
			s.log.Warn().Err(err).Str("channel", channelID).Msg("transcript page failed")
			break
		}
		if len(msgs) == 0 {
			break
		}
		// history endpoints return newest first; flip to read order.
		// Snowflakes are numeric and time-ordered.
		sort.Slice(msgs, func(i, j int) bool { return snowflakeLess(msgs[i].ID, msgs[j].ID) })
		for _, m := range msgs {
			fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp, m.Author.Username, m.Content)
			count++
			if count >= maxTranscript {
				break
			}
		}
		after = msgs[len(msgs)-1].ID
		if len(msgs) < pageSize {
			break
		}
	}
	return b.String(), count
}

func statusCard(kind, ownerID, claimedBy string) discord.MessageSend {
	claimedLabel := "nobody yet"
	if claimedBy != unclaimed && claimedBy != "" {
		claimedLabel = "<@" + claimedBy + ">"
	}
	return discord.MessageSend{
		Embeds: []discord.Embed{{
			Title: "Ticket",
			Color: 0x3498DB,
			Fields: []discord.EmbedField{
				{Name: "Kind", Value: kind, Inline: true},
				{Name: "Opened by", Value: "<@" + ownerID + ">", Inline: true},
				{Name: "Claimed by", Value: claimedLabel, Inline: true},
			},
		}},
		Components: []discord.Component{discord.Row(
			discord.Button(discord.ButtonPrimary, "Claim", ButtonClaim),
			discord.Button(discord.ButtonDanger, "Close", ButtonClose),
		)},
	}
}

// decodeTicket reads the topic sidecar; a ticket channel without an owner
// field is unusable and is never guessed at
func decodeTicket(ch discord.Channel) (domain.Ticket, error) {
	f := sidecar.Decode(ch.Topic, sidecar.TopicDelim)
	owner, ok := f.Get(keyOwner)
	if !ok || owner == "" {
		return domain.Ticket{}, perr.StaleEntityf("channel <#%s> has no ticket metadata", ch.ID)
	}
	kind, _ := f.Get(keyKind)
	claimed, _ := f.Get(keyClaimedBy)
	if claimed == unclaimed {
		claimed = ""
	}
	return domain.Ticket{
		ChannelID: ch.ID,
		Name:      ch.Name,
		Kind:      kind,
		OwnerID:   owner,
		ClaimedBy: claimed,
	}, nil
}

func snowflakeLess(a, b string) bool {
	x, _ := strconv.ParseUint(a, 10, 64)
	y, _ := strconv.ParseUint(b, 10, 64)
	return x < y
}

// nextTicketName returns the lowest unused ticket-<n>, counting from 1
func nextTicketName(chans []discord.Channel) string {
	used := map[int]bool{}
	for _, ch := range chans {
		if !strings.HasPrefix(ch.Name, namePrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(ch.Name, namePrefix)); err == nil && n > 0 {
			used[n] = true
		}
	}
	n := 1
	for used[n] {
		n++
	}
	return namePrefix + strconv.Itoa(n)
}
