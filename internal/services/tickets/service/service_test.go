package service

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"warden/internal/adapters/discord"
	"warden/internal/core/actor"
	perr "warden/internal/platform/errors"
	"warden/internal/services/audit"
)

const (
	category  = "cat"
	staffRole = "staff"
)

type fakePlatform struct {
	channels map[string]discord.Channel
	messages map[string][]discord.Message // by channel, oldest first

	created  []discord.CreateChannelParams
	topics   map[string]string
	posted   map[string][]discord.MessageSend
	edited   []string
	deleted  []string
	nextID   int

	// onChannel, when set, runs after a Channel read returns its snapshot;
	// used to suspend a caller between its read and its write
	onChannel func()
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: map[string]discord.Channel{},
		messages: map[string][]discord.Message{},
		topics:   map[string]string{},
		posted:   map[string][]discord.MessageSend{},
		nextID:   100,
	}
}

func (f *fakePlatform) addChannel(ch discord.Channel) {
	f.channels[ch.ID] = ch
}

func (f *fakePlatform) Me(context.Context) (discord.User, error) {
	return discord.User{ID: "bot"}, nil
}

func (f *fakePlatform) GuildChannels(context.Context, string) ([]discord.Channel, error) {
	out := make([]discord.Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakePlatform) Channel(_ context.Context, channelID string) (discord.Channel, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return discord.Channel{}, perr.NotFoundf("channel %s", channelID)
	}
	if f.onChannel != nil {
		f.onChannel()
	}
	return ch, nil
}

func (f *fakePlatform) CreateGuildChannel(_ context.Context, guildID string, p discord.CreateChannelParams, _ string) (discord.Channel, error) {
	f.created = append(f.created, p)
	f.nextID++
	ch := discord.Channel{
		ID: "ch" + strconv.Itoa(f.nextID), GuildID: guildID,
		Type: p.Type, Name: p.Name, Topic: p.Topic, ParentID: p.ParentID,
	}
	f.channels[ch.ID] = ch
	return ch, nil
}

func (f *fakePlatform) EditChannelTopic(_ context.Context, channelID, topic, _ string) error {
	ch := f.channels[channelID]
	ch.Topic = topic
	f.channels[channelID] = ch
	f.topics[channelID] = topic
	return nil
}

func (f *fakePlatform) DeleteChannel(_ context.Context, channelID, _ string) error {
	delete(f.channels, channelID)
	f.deleted = append(f.deleted, channelID)
	return nil
}

func (f *fakePlatform) ChannelMessages(_ context.Context, channelID string, limit int, after string) ([]discord.Message, error) {
	var out []discord.Message
	for _, m := range f.messages[channelID] {
		if after != "" && !snowflakeLess(after, m.ID) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePlatform) CreateMessage(_ context.Context, channelID string, send discord.MessageSend) (discord.Message, error) {
	f.posted[channelID] = append(f.posted[channelID], send)
	return discord.Message{ID: "m1", ChannelID: channelID}, nil
}

func (f *fakePlatform) EditMessage(_ context.Context, channelID, messageID string, _ discord.MessageEdit) (discord.Message, error) {
	f.edited = append(f.edited, channelID+"/"+messageID)
	return discord.Message{ID: messageID}, nil
}

type captureRecorder struct {
	events []audit.Event
}

func (c *captureRecorder) Record(_ context.Context, ev audit.Event) {
	c.events = append(c.events, ev)
}

func ticketTopic(kind, owner, claimed string) string {
	return "ticket_type=" + kind + " | user_id=" + owner + " | claimed_by=" + claimed
}

func testService(p *fakePlatform, rec audit.Recorder) *Service {
	s := New(p, rec, Config{CategoryID: category, StaffRoleID: staffRole, CloseGrace: time.Nanosecond})
	s.sleep = func(time.Duration) {}
	return s
}

func member(id string, roles ...string) actor.Actor {
	return actor.Actor{ID: id, RoleIDs: roles}
}

func staff(id string) actor.Actor {
	return actor.Actor{ID: id, RoleIDs: []string{staffRole}}
}

func TestOpenCreatesChannelWithSidecarTopic(t *testing.T) {
	p := newFakePlatform()
	s := testService(p, nil)

	res, err := s.Open(context.Background(), "g", member("u"), "report")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if res.Name != "ticket-1" {
		t.Fatalf("want ticket-1, got %q", res.Name)
	}
	if len(p.created) != 1 {
		t.Fatalf("expected one channel created, got %d", len(p.created))
	}
	cp := p.created[0]
	if cp.Topic != ticketTopic("report", "u", "none") {
		t.Fatalf("topic wrong: %q", cp.Topic)
	}
	if cp.ParentID != category {
		t.Fatalf("wrong category: %q", cp.ParentID)
	}

	// @everyone denied, owner + bot + staff allowed
	if len(cp.Overwrites) != 4 {
		t.Fatalf("overwrites: %+v", cp.Overwrites)
	}
	if cp.Overwrites[0].ID != "g" || cp.Overwrites[0].Deny == "" {
		t.Fatalf("everyone must be denied: %+v", cp.Overwrites[0])
	}

	// status card with manage buttons
	cards := p.posted[res.ChannelID]
	if len(cards) != 1 || len(cards[0].Embeds) != 1 || len(cards[0].Components) != 1 {
		t.Fatalf("status card wrong: %+v", cards)
	}
}

func TestOpenRejectsDuplicate(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{
		ID: "existing", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: ticketTopic("report", "u", "none"),
	})
	s := testService(p, nil)

	_, err := s.Open(context.Background(), "g", member("u"), "appeal")
	if !perr.IsCode(err, perr.ErrorCodeAlreadyInState) {
		t.Fatalf("want already-in-state, got %v", err)
	}
	if !strings.Contains(err.Error(), "existing") {
		t.Fatalf("error should reference the existing channel: %v", err)
	}
	if len(p.created) != 0 {
		t.Fatal("duplicate open must not create a channel")
	}

	// a different member is unaffected
	if _, err := s.Open(context.Background(), "g", member("v"), "report"); err != nil {
		t.Fatalf("other member blocked: %v", err)
	}
}

func TestOpenAllocatesLowestFreeName(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "a", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: ticketTopic("x", "a", "none")})
	p.addChannel(discord.Channel{ID: "b", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-3", Topic: ticketTopic("x", "b", "none")})
	s := testService(p, nil)

	res, err := s.Open(context.Background(), "g", member("u"), "report")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if res.Name != "ticket-2" {
		t.Fatalf("want the gap filled with ticket-2, got %q", res.Name)
	}
}

func TestClaimRequiresStaff(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: ticketTopic("report", "u", "none")})
	s := testService(p, nil)

	if err := s.Claim(context.Background(), "c", member("rando")); !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}

	// administrator permission qualifies without the staff role
	if err := s.Claim(context.Background(), "c", actor.Actor{ID: "adm", Admin: true}); err != nil {
		t.Fatalf("admin claim: %v", err)
	}
}

func TestClaimRewritesTopic(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: ticketTopic("report", "u", "none")})
	s := testService(p, nil)

	if err := s.Claim(context.Background(), "c", staff("mod")); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got := p.topics["c"]; got != ticketTopic("report", "u", "mod") {
		t.Fatalf("topic not rewritten: %q", got)
	}
}

func TestClaimAlreadyClaimed(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: ticketTopic("report", "u", "mod1")})
	s := testService(p, nil)

	err := s.Claim(context.Background(), "c", staff("mod2"))
	if !perr.IsCode(err, perr.ErrorCodeAlreadyInState) {
		t.Fatalf("want already-in-state, got %v", err)
	}
	if len(p.topics) != 0 {
		t.Fatal("losing claim must not rewrite the topic")
	}
}

func TestClaimInterleavedLastWriterWins(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: ticketTopic("report", "u", "none")})
	s := testService(p, nil)

	// Suspend the first claimer right after its topic read, run a second
	// claim to completion in the gap, then let the first finish.
	readDone := make(chan struct{})
	resume := make(chan struct{})
	p.onChannel = func() {
		p.onChannel = nil // trap the first read only
		close(readDone)
		<-resume
	}

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Claim(context.Background(), "c", staff("mod1")) }()

	<-readDone
	if err := s.Claim(context.Background(), "c", staff("mod2")); err != nil {
		t.Fatalf("claim in the gap: %v", err)
	}
	close(resume)
	if err := <-firstErr; err != nil {
		t.Fatalf("suspended claim: %v", err)
	}

	// Both read an unclaimed topic, so both report success; the write that
	// lands last wins and the other sidecar fields survive untouched.
	if got := p.topics["c"]; got != ticketTopic("report", "u", "mod1") {
		t.Fatalf("final topic: %q", got)
	}
}

func TestClaimStaleChannel(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: "just words, no metadata"})
	s := testService(p, nil)

	err := s.Claim(context.Background(), "c", staff("mod"))
	if !perr.IsCode(err, perr.ErrorCodeStaleEntity) {
		t.Fatalf("want stale-entity, got %v", err)
	}
}

func TestCloseByOwnerDumpsTranscriptAndDeletes(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", GuildID: "g", Type: discord.ChannelTypeGuildText,
		ParentID: category, Name: "ticket-1", Topic: ticketTopic("report", "u", "mod")})
	p.messages["c"] = []discord.Message{
		{ID: "1", Author: discord.User{Username: "u"}, Content: "hello", Timestamp: "t1"},
		{ID: "2", Author: discord.User{Username: "mod"}, Content: "hi", Timestamp: "t2"},
	}
	rec := &captureRecorder{}
	s := testService(p, rec)

	if err := s.Close(context.Background(), "c", member("u")); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(p.deleted) != 1 || p.deleted[0] != "c" {
		t.Fatalf("channel not deleted: %v", p.deleted)
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Attachment == nil {
		t.Fatal("transcript attachment missing")
	}
	text := string(ev.Attachment.Data)
	if !strings.Contains(text, "u: hello") || !strings.Contains(text, "mod: hi") {
		t.Fatalf("transcript content wrong:\n%s", text)
	}
	if strings.Index(text, "hello") > strings.Index(text, "hi") {
		t.Fatal("transcript must be oldest first")
	}
}

func TestCloseRejectsBystander(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", Type: discord.ChannelTypeGuildText, ParentID: category,
		Name: "ticket-1", Topic: ticketTopic("report", "u", "none")})
	s := testService(p, nil)

	err := s.Close(context.Background(), "c", member("rando"))
	if !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
	if len(p.deleted) != 0 {
		t.Fatal("channel must survive a rejected close")
	}
}

func TestCloseByStaff(t *testing.T) {
	p := newFakePlatform()
	p.addChannel(discord.Channel{ID: "c", GuildID: "g", Type: discord.ChannelTypeGuildText,
		ParentID: category, Name: "ticket-1", Topic: ticketTopic("report", "u", "none")})
	s := testService(p, nil)

	if err := s.Close(context.Background(), "c", staff("mod")); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(p.deleted) != 1 {
		t.Fatal("channel not deleted")
	}
}

func TestNextTicketNameIgnoresForeignChannels(t *testing.T) {
	chans := []discord.Channel{
		{Name: "general"},
		{Name: "ticket-abc"},
		{Name: "ticket-2"},
	}
	if got := nextTicketName(chans); got != "ticket-1" {
		t.Fatalf("want ticket-1, got %q", got)
	}
}
