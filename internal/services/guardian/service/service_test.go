package service

import (
	"context"
	"testing"
	"time"

	"warden/internal/adapters/discord"
	perr "warden/internal/platform/errors"
	"warden/internal/services/guardian/domain"
)

const (
	mutedRole = "muted"
	botUser   = "bot"
	botRole   = "botrole"
)

type fakePlatform struct {
	members  map[string]discord.Member
	roles    []discord.Role
	channels []discord.Channel

	replacedWith []string
	added        []string
	removed      []string
	dms          []string
	denied       []string

	replaceErr error
	addErr     error
	removeErr  error
}

func (f *fakePlatform) Me(context.Context) (discord.User, error) {
	return discord.User{ID: botUser}, nil
}

func (f *fakePlatform) GuildRoles(context.Context, string) ([]discord.Role, error) {
	return f.roles, nil
}

func (f *fakePlatform) GuildMember(_ context.Context, _ string, userID string) (discord.Member, error) {
	m, ok := f.members[userID]
	if !ok {
		return discord.Member{}, perr.NotFoundf("member %s", userID)
	}
	return m, nil
}

func (f *fakePlatform) GuildChannels(context.Context, string) ([]discord.Channel, error) {
	return f.channels, nil
}

func (f *fakePlatform) EditChannelPermissions(_ context.Context, channelID string, _ discord.PermissionOverwrite, _ string) error {
	f.denied = append(f.denied, channelID)
	return nil
}

func (f *fakePlatform) AddMemberRole(_ context.Context, _, userID, roleID, _ string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, roleID)
	m := f.members[userID]
	m.Roles = append(m.Roles, roleID)
	f.members[userID] = m
	return nil
}

func (f *fakePlatform) RemoveMemberRole(_ context.Context, _, userID, roleID, _ string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, roleID)
	m := f.members[userID]
	kept := make([]string, 0, len(m.Roles))
	for _, id := range m.Roles {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	m.Roles = kept
	f.members[userID] = m
	return nil
}

func (f *fakePlatform) ReplaceMemberRoles(_ context.Context, _, userID string, roleIDs []string, _ string) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replacedWith = append([]string(nil), roleIDs...)
	m := f.members[userID]
	m.Roles = append([]string(nil), roleIDs...)
	f.members[userID] = m
	return nil
}

func (f *fakePlatform) DM(_ context.Context, userID, _ string) error {
	f.dms = append(f.dms, userID)
	return nil
}

type snapKey struct{ g, u string }

type fakeStorage struct {
	mutes map[snapKey]domain.MuteRecord
	snaps map[snapKey]domain.RoleSnapshot
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		mutes: map[snapKey]domain.MuteRecord{},
		snaps: map[snapKey]domain.RoleSnapshot{},
	}
}

func (f *fakeStorage) UpsertMute(_ context.Context, rec domain.MuteRecord) error {
	f.mutes[snapKey{rec.GuildID, rec.UserID}] = rec
	return nil
}

func (f *fakeStorage) DeleteMute(_ context.Context, guildID, userID string) error {
	delete(f.mutes, snapKey{guildID, userID})
	return nil
}

func (f *fakeStorage) ListTimed(context.Context) ([]domain.MuteRecord, error) {
	var out []domain.MuteRecord
	for _, rec := range f.mutes {
		if rec.ExpiresAt != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStorage) PutSnapshot(_ context.Context, snap domain.RoleSnapshot) error {
	f.snaps[snapKey{snap.GuildID, snap.UserID}] = snap
	return nil
}

func (f *fakeStorage) TakeSnapshot(_ context.Context, guildID, userID string) (domain.RoleSnapshot, error) {
	k := snapKey{guildID, userID}
	snap, ok := f.snaps[k]
	if !ok {
		return domain.RoleSnapshot{}, perr.ErrNotFound
	}
	delete(f.snaps, k)
	return snap, nil
}

// standard fixture: roles a and b are strippable, c is managed (bot-owned),
// high outranks the bot
func testRoles() []discord.Role {
	return []discord.Role{
		{ID: "a", Name: "alpha", Position: 1},
		{ID: "b", Name: "beta", Position: 2},
		{ID: "c", Name: "gamma", Position: 3, Managed: true},
		{ID: "high", Name: "admin", Position: 50},
		{ID: mutedRole, Name: "Muted", Position: 4},
		{ID: botRole, Name: "warden", Position: 10},
	}
}

func testService(p *fakePlatform, st *fakeStorage) *Service {
	return New(p, st, nil, Config{MutedRoleID: mutedRole, UnmuteChannelID: "unmute-chan"})
}

func TestMuteSnapshotsStripsAndGrants(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{"a", "b", "c"}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
	}
	st := newFakeStorage()
	s := testService(p, st)

	out, err := s.Mute(context.Background(), "g", "u", "mod", "spam", domain.MuteDuration{Minutes: 30})
	if err != nil {
		t.Fatalf("Mute: %v", err)
	}

	snap, ok := st.snaps[snapKey{"g", "u"}]
	if !ok {
		t.Fatal("snapshot not written")
	}
	if len(snap.RoleIDs) != 3 {
		t.Fatalf("snapshot should hold all prior roles, got %v", snap.RoleIDs)
	}

	if out.Stripped != 2 || out.Kept != 1 || out.StripFailed {
		t.Fatalf("unexpected outcome %+v", out)
	}
	// managed role survives the batched strip
	if len(p.replacedWith) != 1 || p.replacedWith[0] != "c" {
		t.Fatalf("strip kept wrong roles: %v", p.replacedWith)
	}
	if len(p.added) != 1 || p.added[0] != mutedRole {
		t.Fatalf("sentinel not granted: %v", p.added)
	}

	rec, ok := st.mutes[snapKey{"g", "u"}]
	if !ok || rec.ExpiresAt == nil {
		t.Fatalf("mute row missing or untimed: %+v", rec)
	}
	if got := time.Until(*rec.ExpiresAt); got < 29*time.Minute || got > 31*time.Minute {
		t.Fatalf("expiry off: %v", got)
	}
	if len(p.dms) != 1 || p.dms[0] != "u" {
		t.Fatalf("expected mute dm, got %v", p.dms)
	}
}

func TestMuteIndefiniteWhenNoDuration(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
	}
	st := newFakeStorage()
	s := testService(p, st)

	out, err := s.Mute(context.Background(), "g", "u", "mod", "spam", domain.MuteDuration{})
	if err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if out.ExpiresAt != nil {
		t.Fatalf("expected indefinite mute, got %v", out.ExpiresAt)
	}
	if rec := st.mutes[snapKey{"g", "u"}]; rec.ExpiresAt != nil {
		t.Fatalf("mute row should be untimed: %+v", rec)
	}
}

func TestMuteAlreadyMutedIsGuarded(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{mutedRole}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
	}
	st := newFakeStorage()
	s := testService(p, st)

	_, err := s.Mute(context.Background(), "g", "u", "mod", "again", domain.MuteDuration{})
	if !perr.IsCode(err, perr.ErrorCodeAlreadyInState) {
		t.Fatalf("want already-in-state, got %v", err)
	}
	if len(st.snaps) != 0 || len(st.mutes) != 0 || len(p.added) != 0 {
		t.Fatal("guarded mute must have no side effects")
	}
}

func TestMuteNotConfigured(t *testing.T) {
	s := New(&fakePlatform{}, newFakeStorage(), nil, Config{})
	_, err := s.Mute(context.Background(), "g", "u", "mod", "x", domain.MuteDuration{})
	if !perr.IsCode(err, perr.ErrorCodeNotConfigured) {
		t.Fatalf("want not-configured, got %v", err)
	}
}

func TestMuteSentinelGrantFailureWritesNoMuteRow(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{"a"}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
		addErr: perr.Forbiddenf("missing manage roles"),
	}
	st := newFakeStorage()
	s := testService(p, st)

	_, err := s.Mute(context.Background(), "g", "u", "mod", "x", domain.MuteDuration{Minutes: 5})
	if !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
	if len(st.mutes) != 0 {
		t.Fatal("mute row must not be written when the sentinel grant fails")
	}
	// the snapshot stays behind; nothing references it until the next mute
	if _, ok := st.snaps[snapKey{"g", "u"}]; !ok {
		t.Fatal("orphan snapshot should remain")
	}
}

func TestMuteStripFailureIsNotFatal(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{"a", "b"}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
		replaceErr: perr.Unavailablef("platform down"),
	}
	st := newFakeStorage()
	s := testService(p, st)

	out, err := s.Mute(context.Background(), "g", "u", "mod", "x", domain.MuteDuration{})
	if err != nil {
		t.Fatalf("Mute should survive a strip failure: %v", err)
	}
	if !out.StripFailed || out.Stripped != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(p.added) != 1 {
		t.Fatal("sentinel must still be granted")
	}
	if _, ok := st.mutes[snapKey{"g", "u"}]; !ok {
		t.Fatal("mute row must still be written")
	}
}

func TestUnmuteRestoresFromSnapshot(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{mutedRole, "c"}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
	}
	st := newFakeStorage()
	st.snaps[snapKey{"g", "u"}] = domain.RoleSnapshot{GuildID: "g", UserID: "u", RoleIDs: []string{"a", "b", "c"}}
	st.mutes[snapKey{"g", "u"}] = domain.MuteRecord{GuildID: "g", UserID: "u"}
	s := testService(p, st)

	out, err := s.Unmute(context.Background(), "g", "u", domain.TriggerManual)
	if err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if len(p.removed) != 1 || p.removed[0] != mutedRole {
		t.Fatalf("sentinel not removed: %v", p.removed)
	}
	if out.Restored != 2 || out.Skipped != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	// c was still held, a and b come back from the snapshot
	want := map[string]bool{"a": true, "b": true, "c": true}
	if len(p.replacedWith) != 3 {
		t.Fatalf("restore set wrong: %v", p.replacedWith)
	}
	for _, id := range p.replacedWith {
		if !want[id] {
			t.Fatalf("unexpected role %q in restore set %v", id, p.replacedWith)
		}
	}
	if len(st.mutes) != 0 {
		t.Fatal("mute row must be deleted")
	}
	if len(st.snaps) != 0 {
		t.Fatal("snapshot must be consumed")
	}
}

func TestUnmuteSkipsDeadManagedAndOutranking(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{mutedRole}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
	}
	st := newFakeStorage()
	// gone: deleted from the guild since the mute; c: managed; high: outranks
	st.snaps[snapKey{"g", "u"}] = domain.RoleSnapshot{
		GuildID: "g", UserID: "u",
		RoleIDs: []string{"a", "gone", "c", "high"},
	}
	s := testService(p, st)

	out, err := s.Unmute(context.Background(), "g", "u", domain.TriggerManual)
	if err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if out.Restored != 1 || out.Skipped != 3 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(p.replacedWith) != 1 || p.replacedWith[0] != "a" {
		t.Fatalf("restore set wrong: %v", p.replacedWith)
	}
}

func TestUnmuteNotMutedIsGuarded(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{"a"}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
	}
	st := newFakeStorage()
	s := testService(p, st)

	_, err := s.Unmute(context.Background(), "g", "u", domain.TriggerManual)
	if !perr.IsCode(err, perr.ErrorCodeAlreadyInState) {
		t.Fatalf("want already-in-state, got %v", err)
	}
	if len(p.removed) != 0 {
		t.Fatal("guarded unmute must have no side effects")
	}
}

func TestUnmuteSentinelRemovalFailureKeepsState(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{mutedRole}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
		removeErr: perr.Unavailablef("platform down"),
	}
	st := newFakeStorage()
	st.snaps[snapKey{"g", "u"}] = domain.RoleSnapshot{GuildID: "g", UserID: "u", RoleIDs: []string{"a"}}
	st.mutes[snapKey{"g", "u"}] = domain.MuteRecord{GuildID: "g", UserID: "u"}
	s := testService(p, st)

	_, err := s.Unmute(context.Background(), "g", "u", domain.TriggerExpiry)
	if !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("want unavailable, got %v", err)
	}
	// retry must find the same durable state
	if _, ok := st.snaps[snapKey{"g", "u"}]; !ok {
		t.Fatal("snapshot must survive an aborted unmute")
	}
	if _, ok := st.mutes[snapKey{"g", "u"}]; !ok {
		t.Fatal("mute row must survive an aborted unmute")
	}
}

func TestUnmuteWithoutSnapshotStillClears(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}, Roles: []string{mutedRole}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
	}
	st := newFakeStorage()
	st.mutes[snapKey{"g", "u"}] = domain.MuteRecord{GuildID: "g", UserID: "u"}
	s := testService(p, st)

	out, err := s.Unmute(context.Background(), "g", "u", domain.TriggerExpiry)
	if err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if out.Restored != 0 {
		t.Fatalf("nothing to restore, got %+v", out)
	}
	if len(st.mutes) != 0 {
		t.Fatal("mute row must be deleted")
	}
}

func TestMuteDeniesChannelsExceptUnmute(t *testing.T) {
	p := &fakePlatform{
		roles: testRoles(),
		members: map[string]discord.Member{
			"u":     {User: discord.User{ID: "u"}},
			botUser: {User: discord.User{ID: botUser}, Roles: []string{botRole}},
		},
		channels: []discord.Channel{
			{ID: "general", Type: discord.ChannelTypeGuildText},
			{ID: "unmute-chan", Type: discord.ChannelTypeGuildText},
			{ID: "cat", Type: discord.ChannelTypeCategory},
		},
	}
	st := newFakeStorage()
	s := testService(p, st)

	if _, err := s.Mute(context.Background(), "g", "u", "mod", "x", domain.MuteDuration{}); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if len(p.denied) != 1 || p.denied[0] != "general" {
		t.Fatalf("expected deny only on general, got %v", p.denied)
	}
}
