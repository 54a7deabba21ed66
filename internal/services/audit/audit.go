// Package audit is the log sink: titled records with fields, optionally a
// file attachment, posted to the guild log channel and archived to
// clickhouse when configured. Recording is best-effort by contract; a failed
// audit write must never fail the operation that produced it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"warden/internal/adapters/discord"
	"warden/internal/platform/logger"
	"warden/internal/platform/store"
)

// Field is one name/value pair on a record
type Field struct {
	Name  string
	Value string
}

// File is an optional attachment (ticket transcripts)
type File struct {
	Name string
	Data []byte
}

// Event is a titled audit record
type Event struct {
	GuildID    string
	Title      string
	Color      int
	Fields     []Field
	Attachment *File
}

// Recorder accepts audit events
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Poster is the slice of the platform client the sink needs
type Poster interface {
	CreateMessage(ctx context.Context, channelID string, send discord.MessageSend) (discord.Message, error)
	CreateMessageWithFile(ctx context.Context, channelID string, send discord.MessageSend, filename string, file []byte) (discord.Message, error)
}

// Config for the sink
type Config struct {
	LogChannelID string
	ArchiveTable string
}

// Sink implements Recorder
type Sink struct {
	cfg      Config
	poster   Poster
	ch       store.Clickhouse
	log      logger.Logger
	now      func() time.Time
}

// New constructs a Sink; ch may be nil when archiving is disabled
func New(cfg Config, poster Poster, ch store.Clickhouse) *Sink {
	if cfg.ArchiveTable == "" {
		cfg.ArchiveTable = "audit_events"
	}
	return &Sink{
		cfg:    cfg,
		poster: poster,
		ch:     ch,
		log:    *logger.Named("audit"),
		now:    time.Now,
	}
}

// Record posts the event to the log channel and archives it.
// Failures are logged and swallowed.
func (s *Sink) Record(ctx context.Context, ev Event) {
	if s.cfg.LogChannelID != "" {
		emb := discord.Embed{Title: ev.Title, Color: ev.Color}
		for _, f := range ev.Fields {
			emb.Fields = append(emb.Fields, discord.EmbedField{Name: f.Name, Value: f.Value})
		}
		send := discord.MessageSend{Embeds: []discord.Embed{emb}}

		var err error
		if ev.Attachment != nil {
			_, err = s.poster.CreateMessageWithFile(ctx, s.cfg.LogChannelID, send, ev.Attachment.Name, ev.Attachment.Data)
		} else {
			_, err = s.poster.CreateMessage(ctx, s.cfg.LogChannelID, send)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("title", ev.Title).Msg("audit post failed")
		}
	}

	if s.ch != nil {
		s.archive(ctx, ev)
	}
}

func (s *Sink) archive(ctx context.Context, ev Event) {
	names := make([]string, 0, len(ev.Fields))
	values := make([]string, 0, len(ev.Fields))
	for _, f := range ev.Fields {
		names = append(names, f.Name)
		values = append(values, f.Value)
	}
	err := s.ch.Exec(ctx,
		"INSERT INTO "+s.cfg.ArchiveTable+" (id, at, guild_id, title, field_names, field_values) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.NewString(), s.now().UTC(), ev.GuildID, ev.Title, names, values,
	)
	if err != nil {
		s.log.Warn().Err(err).Str("title", ev.Title).Msg("audit archive failed")
	}
}

// Noop is a Recorder that drops everything (tests, disabled sink)
type Noop struct{}

// Record implements Recorder
func (Noop) Record(context.Context, Event) {}
