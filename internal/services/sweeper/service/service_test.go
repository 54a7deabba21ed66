package service

import (
	"context"
	"testing"
	"time"

	perr "warden/internal/platform/errors"
	"warden/internal/services/guardian/domain"
)

type call struct {
	guildID string
	userID  string
	trigger domain.Trigger
}

type fakeMutes struct {
	calls []call
	errs  map[string]error // by user id
}

func (f *fakeMutes) Mute(context.Context, string, string, string, string, domain.MuteDuration) (domain.MuteOutcome, error) {
	panic("sweeper must never mute")
}

func (f *fakeMutes) Unmute(_ context.Context, guildID, userID string, trigger domain.Trigger) (domain.UnmuteOutcome, error) {
	f.calls = append(f.calls, call{guildID, userID, trigger})
	return domain.UnmuteOutcome{Trigger: trigger}, f.errs[userID]
}

type fakeStorage struct {
	rows    []domain.MuteRecord
	deleted []string
	listErr error
}

func (f *fakeStorage) UpsertMute(context.Context, domain.MuteRecord) error { return nil }

func (f *fakeStorage) DeleteMute(_ context.Context, _, userID string) error {
	f.deleted = append(f.deleted, userID)
	return nil
}

func (f *fakeStorage) ListTimed(context.Context) ([]domain.MuteRecord, error) {
	return f.rows, f.listErr
}

func (f *fakeStorage) PutSnapshot(context.Context, domain.RoleSnapshot) error { return nil }

func (f *fakeStorage) TakeSnapshot(context.Context, string, string) (domain.RoleSnapshot, error) {
	return domain.RoleSnapshot{}, perr.ErrNotFound
}

func at(t time.Time) *time.Time { return &t }

func TestSweepUnmutesOnlyExpiredRows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStorage{rows: []domain.MuteRecord{
		{GuildID: "g", UserID: "past", ExpiresAt: at(now.Add(-time.Minute))},
		{GuildID: "g", UserID: "exact", ExpiresAt: at(now)},
		{GuildID: "g", UserID: "future", ExpiresAt: at(now.Add(time.Minute))},
	}}
	m := &fakeMutes{}
	s := New(m, st, Config{})
	s.now = func() time.Time { return now }

	s.Sweep(context.Background())

	if len(m.calls) != 2 {
		t.Fatalf("expected 2 unmutes, got %v", m.calls)
	}
	for _, c := range m.calls {
		if c.trigger != domain.TriggerExpiry {
			t.Fatalf("wrong trigger: %+v", c)
		}
		if c.userID == "future" {
			t.Fatal("future row must not be swept")
		}
	}
}

func TestSweepDropsStaleRows(t *testing.T) {
	now := time.Now()
	st := &fakeStorage{rows: []domain.MuteRecord{
		{GuildID: "g", UserID: "gone", ExpiresAt: at(now.Add(-time.Minute))},
		{GuildID: "g", UserID: "unmuted", ExpiresAt: at(now.Add(-time.Minute))},
	}}
	m := &fakeMutes{errs: map[string]error{
		"gone":    perr.NotFoundf("member left"),
		"unmuted": perr.AlreadyInStatef("not muted"),
	}}
	s := New(m, st, Config{})

	s.Sweep(context.Background())

	if len(st.deleted) != 2 {
		t.Fatalf("stale rows must be deleted, got %v", st.deleted)
	}
}

func TestSweepKeepsRowOnTransientFailure(t *testing.T) {
	now := time.Now()
	st := &fakeStorage{rows: []domain.MuteRecord{
		{GuildID: "g", UserID: "flaky", ExpiresAt: at(now.Add(-time.Minute))},
	}}
	m := &fakeMutes{errs: map[string]error{
		"flaky": perr.Unavailablef("platform down"),
	}}
	s := New(m, st, Config{})

	s.Sweep(context.Background())

	if len(st.deleted) != 0 {
		t.Fatalf("transient failure must keep the row, got deletes %v", st.deleted)
	}
}

func TestSweepOneFailureDoesNotStopTheRest(t *testing.T) {
	now := time.Now()
	st := &fakeStorage{rows: []domain.MuteRecord{
		{GuildID: "g", UserID: "bad", ExpiresAt: at(now.Add(-2 * time.Minute))},
		{GuildID: "g", UserID: "good", ExpiresAt: at(now.Add(-time.Minute))},
	}}
	m := &fakeMutes{errs: map[string]error{
		"bad": perr.Unavailablef("platform down"),
	}}
	s := New(m, st, Config{})

	s.Sweep(context.Background())

	if len(m.calls) != 2 {
		t.Fatalf("both rows must be attempted, got %v", m.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := &fakeStorage{}
	s := New(&fakeMutes{}, st, Config{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
