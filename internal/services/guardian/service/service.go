// Package service implements the guardian service: the mute lifecycle.
//
// A mute strips the member's revocable roles after snapshotting them, grants
// the muted role, and records the mute durably. An unmute reverses it from the
// snapshot. Manual and expiry unmutes share one code path.
package service

import (
	"context"
	"fmt"
	"time"

	"warden/internal/adapters/discord"
	perr "warden/internal/platform/errors"
	"warden/internal/platform/logger"
	"warden/internal/services/audit"
	"warden/internal/services/guardian/domain"
)

// Config for the guardian service
type Config struct {
	// MutedRoleID is the sentinel role; empty means muting is not set up
	MutedRoleID string

	// UnmuteChannelID is the one channel muted members may still speak in
	UnmuteChannelID string
}

// Service implements domain.MutePort
type Service struct {
	platform domain.Platform
	storage  domain.Storage
	rec      audit.Recorder
	cfg      Config
	log      logger.Logger
	now      func() time.Time
}

// Compile-time assertion
var _ domain.MutePort = (*Service)(nil)

// New constructs the guardian service
func New(platform domain.Platform, storage domain.Storage, rec audit.Recorder, cfg Config) *Service {
	if rec == nil {
		rec = audit.Noop{}
	}
	return &Service{
		platform: platform,
		storage:  storage,
		rec:      rec,
		cfg:      cfg,
		log:      *logger.Named("guardian"),
		now:      time.Now,
	}
}

// Mute strips the member's roles, grants the muted role, and records the mute.
// The snapshot row is written before any role is touched so a crash mid-strip
// still leaves enough state to restore from.
func (s *Service) Mute(
	ctx context.Context,
	guildID, userID, moderatorID, reason string,
	d domain.MuteDuration,
) (domain.MuteOutcome, error) {
	var out domain.MuteOutcome

	if s.cfg.MutedRoleID == "" {
		return out, perr.NotConfiguredf("muted role is not configured")
	}

	member, err := s.platform.GuildMember(ctx, guildID, userID)
	if err != nil {
		return out, perr.WithOp(err, "guardian: fetch member")
	}
	if hasRole(member, s.cfg.MutedRoleID) {
		return out, perr.AlreadyInStatef("member is already muted")
	}

	// Snapshot first. Overwrites any prior snapshot: last mute wins.
	snap := domain.RoleSnapshot{GuildID: guildID, UserID: userID, RoleIDs: member.Roles}
	if err := s.storage.PutSnapshot(ctx, snap); err != nil {
		return out, err
	}

	roles, botTop, err := s.rolePlane(ctx, guildID)
	if err != nil {
		return out, perr.WithOp(err, "guardian: resolve role plane")
	}

	kept := make([]string, 0, len(member.Roles))
	for _, id := range member.Roles {
		r, ok := roles[id]
		if !ok || r.Managed || r.Position >= botTop {
			kept = append(kept, id)
			continue
		}
		out.Stripped++
	}
	out.Kept = len(kept)

	// Batched strip. Not fatal: the sentinel role below still silences the
	// member even when some grants survive.
	if err := s.platform.ReplaceMemberRoles(ctx, guildID, userID, kept, "mute: "+reason); err != nil {
		s.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Msg("role strip failed")
		out.Stripped = 0
		out.Kept = len(member.Roles)
		out.StripFailed = true
	}

	// Granting the sentinel is the point of the operation; failure aborts.
	// No mute row is written and the snapshot is left behind as an orphan.
	if err := s.platform.AddMemberRole(ctx, guildID, userID, s.cfg.MutedRoleID, "mute: "+reason); err != nil {
		return out, perr.WithOp(err, "guardian: grant muted role")
	}

	rec := domain.MuteRecord{GuildID: guildID, UserID: userID}
	if d.Minutes > 0 {
		t := s.now().Add(time.Duration(d.Minutes) * time.Minute).UTC()
		rec.ExpiresAt = &t
	}
	if err := s.storage.UpsertMute(ctx, rec); err != nil {
		return out, err
	}
	out.ExpiresAt = rec.ExpiresAt

	s.applyChannelDenies(ctx, guildID)

	if err := s.platform.DM(ctx, userID, muteNotice(rec.ExpiresAt, reason)); err != nil {
		s.log.Debug().Err(err).Str("user", userID).Msg("mute dm failed")
	}

	s.rec.Record(ctx, audit.Event{
		GuildID: guildID,
		Title:   "Member muted",
		Color:   0xE74C3C,
		Fields: []audit.Field{
			{Name: "User", Value: "<@" + userID + ">"},
			{Name: "Moderator", Value: "<@" + moderatorID + ">"},
			{Name: "Reason", Value: reason},
			{Name: "Duration", Value: durationLabel(rec.ExpiresAt, s.now())},
		},
	})
	return out, nil
}

// Unmute removes the muted role and restores the snapshotted grants.
// Both the manual command and the expiry sweep land here.
func (s *Service) Unmute(ctx context.Context, guildID, userID string, trigger domain.Trigger) (domain.UnmuteOutcome, error) {
	out := domain.UnmuteOutcome{Trigger: trigger}

	if s.cfg.MutedRoleID == "" {
		return out, perr.NotConfiguredf("muted role is not configured")
	}

	member, err := s.platform.GuildMember(ctx, guildID, userID)
	if err != nil {
		return out, perr.WithOp(err, "guardian: fetch member")
	}
	if !hasRole(member, s.cfg.MutedRoleID) {
		return out, perr.AlreadyInStatef("member is not muted")
	}

	// Sentinel comes off first. On failure the snapshot and mute row stay
	// intact so a retry starts from the same state.
	if err := s.platform.RemoveMemberRole(ctx, guildID, userID, s.cfg.MutedRoleID, "unmute: "+string(trigger)); err != nil {
		return out, perr.WithOp(err, "guardian: remove muted role")
	}

	snap, err := s.storage.TakeSnapshot(ctx, guildID, userID)
	if err != nil && !perr.IsCode(err, perr.ErrorCodeNotFound) {
		return out, err
	}

	roles, botTop, err := s.rolePlane(ctx, guildID)
	if err != nil {
		return out, perr.WithOp(err, "guardian: resolve role plane")
	}

	current := without(member.Roles, s.cfg.MutedRoleID)
	restore := append([]string(nil), current...)
	seen := toSet(current)
	for _, id := range snap.RoleIDs {
		if id == s.cfg.MutedRoleID || seen[id] {
			continue
		}
		r, ok := roles[id]
		if !ok || r.Managed || r.Position >= botTop {
			out.Skipped++
			continue
		}
		restore = append(restore, id)
		out.Restored++
	}

	if out.Restored > 0 {
		if err := s.platform.ReplaceMemberRoles(ctx, guildID, userID, restore, "unmute: restore roles"); err != nil {
			s.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).Msg("role restore failed")
			out.Restored = 0
			out.RestoreFailed = true
		}
	}

	if err := s.storage.DeleteMute(ctx, guildID, userID); err != nil {
		return out, err
	}

	if err := s.platform.DM(ctx, userID, "You have been unmuted."); err != nil {
		s.log.Debug().Err(err).Str("user", userID).Msg("unmute dm failed")
	}

	s.rec.Record(ctx, audit.Event{
		GuildID: guildID,
		Title:   "Member unmuted",
		Color:   0x2ECC71,
		Fields: []audit.Field{
			{Name: "User", Value: "<@" + userID + ">"},
			{Name: "Trigger", Value: string(trigger)},
			{Name: "Roles restored", Value: fmt.Sprintf("%d (%d skipped)", out.Restored, out.Skipped)},
		},
	})
	return out, nil
}

// rolePlane resolves the guild role table and the bot's top role position
func (s *Service) rolePlane(ctx context.Context, guildID string) (map[string]discord.Role, int, error) {
	all, err := s.platform.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, 0, err
	}
	idx := make(map[string]discord.Role, len(all))
	for _, r := range all {
		idx[r.ID] = r
	}

	me, err := s.platform.Me(ctx)
	if err != nil {
		return nil, 0, err
	}
	bot, err := s.platform.GuildMember(ctx, guildID, me.ID)
	if err != nil {
		return nil, 0, err
	}
	top := 0
	for _, id := range bot.Roles {
		if r, ok := idx[id]; ok && r.Position > top {
			top = r.Position
		}
	}
	return idx, top, nil
}

// applyChannelDenies denies the muted role in every text channel except the
// unmute channel. Per-channel failures are ignored; a missing overwrite on
// one channel does not break the mute.
func (s *Service) applyChannelDenies(ctx context.Context, guildID string) {
	chans, err := s.platform.GuildChannels(ctx, guildID)
	if err != nil {
		s.log.Warn().Err(err).Str("guild", guildID).Msg("list channels for mute denies failed")
		return
	}
	deny := discord.PermString(discord.PermSendMessages, discord.PermAddReactions)
	for _, ch := range chans {
		if ch.Type != discord.ChannelTypeGuildText || ch.ID == s.cfg.UnmuteChannelID {
			continue
		}
		ow := discord.PermissionOverwrite{
			ID:   s.cfg.MutedRoleID,
			Type: discord.OverwriteRole,
			Deny: deny,
		}
		if err := s.platform.EditChannelPermissions(ctx, ch.ID, ow, "mute setup"); err != nil {
			s.log.Debug().Err(err).Str("channel", ch.ID).Msg("mute deny skipped")
		}
	}
}

func hasRole(m discord.Member, roleID string) bool {
	for _, id := range m.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func muteNotice(expires *time.Time, reason string) string {
	if expires == nil {
		return "You have been muted. Reason: " + reason
	}
	return fmt.Sprintf("You have been muted until %s. Reason: %s",
		expires.Format(time.RFC1123), reason)
}

func durationLabel(expires *time.Time, now time.Time) string {
	if expires == nil {
		return "indefinite"
	}
	return expires.Sub(now).Round(time.Minute).String()
}
