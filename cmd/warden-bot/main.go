package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"warden/internal/adapters/discord"
	"warden/internal/interactions"
	"warden/internal/modkit"
	"warden/internal/platform/config"
	"warden/internal/platform/logger"
	phttp "warden/internal/platform/net/http"
	"warden/internal/platform/store"

	"warden/internal/services/audit"
	guardianmod "warden/internal/services/guardian/module"
	"warden/internal/services/joins"
	marketmod "warden/internal/services/market/module"
	"warden/internal/services/rolepanel"
	sweepersvc "warden/internal/services/sweeper/service"
	ticketsmod "warden/internal/services/tickets/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	botCfg := root.Prefix("BOT_")
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{
			Enabled:  true,
			URL:      pgCfg.MustString("DBURL"),
			MaxConns: int32(pgCfg.MayInt("MAX_CONNS", 4)),
		},
		CH: store.CHConfig{
			Enabled: chCfg.MayString("ADDR", "") != "",
			Addr:    chCfg.MayString("ADDR", ""),
			DB:      chCfg.MayString("DB", "warden"),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	if err := st.Guard(ctx); err != nil {
		l.Panic().Err(err).Msg("store not ready")
	}

	client := discord.NewClient(discord.Options{
		Token: botCfg.MustString("TOKEN"),
	})

	sink := audit.New(audit.Config{
		LogChannelID: botCfg.MayString("LOG_CHANNEL_ID", ""),
		ArchiveTable: chCfg.MayString("AUDIT_TABLE", ""),
	}, client, st.CH)

	deps := modkit.Deps{Cfg: root, PG: st.PG, CH: st.CH, Log: *l}

	gm := guardianmod.New(deps, client, sink)
	tm := ticketsmod.New(deps, client, sink)
	mm := marketmod.New(deps, client, sink)

	membership := joins.New(client, sink, joins.Config{
		WelcomeChannelID: botCfg.MayString("WELCOME_CHANNEL_ID", ""),
	})

	roles := rolepanel.New(client, parseRoleEntries(botCfg.MayCSV("SELF_ROLES", nil)))

	sweeper := sweepersvc.New(gm.Ports().Mutes, gm.Ports().Storage, sweepersvc.Config{
		Interval: botCfg.MayDuration("SWEEP_INTERVAL", 0),
	})

	handler := interactions.New(
		gm.Ports().Mutes,
		tm.Ports().Tickets,
		mm.Ports().Market,
		roles,
		interactions.Config{
			PublicKey:   botCfg.MustString("PUBLIC_KEY"),
			StaffRoleID: botCfg.MayString("STAFF_ROLE_ID", ""),
			TicketKinds: botCfg.MayCSV("TICKET_KINDS", nil),
		},
	)

	srv := phttp.NewServer(botCfg, func(m *chi.Mux) {
		m.Mount("/", handler.Router())
	})

	session := discord.NewSession(discord.GatewayOptions{
		Token: botCfg.MustString("TOKEN"),
		Intents: discord.IntentGuilds | discord.IntentGuildMembers |
			discord.IntentGuildBans | discord.IntentGuildInvites,
	}, dispatchEvents(membership))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(context.Background())
	})
	g.Go(func() error { return session.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		l.Fatal().Err(err).Msg("bot stopped")
	}
	l.Info().Msg("bot shut down")
}

// parseRoleEntries reads "role_id:Label" pairs
func parseRoleEntries(entries []string) []rolepanel.Entry {
	out := make([]rolepanel.Entry, 0, len(entries))
	for _, e := range entries {
		id, label, ok := strings.Cut(e, ":")
		if !ok {
			logger.Get().Warn().Str("entry", e).Msg("malformed self role entry; skipping")
			continue
		}
		out = append(out, rolepanel.Entry{RoleID: id, Label: label})
	}
	return out
}

// dispatchEvents routes gateway dispatches to the membership service
func dispatchEvents(membership *joins.Service) discord.EventHandler {
	log := logger.Named("events")
	return func(ctx context.Context, event string, data json.RawMessage) {
		switch event {
		case "READY":
			var ready struct {
				Guilds []struct {
					ID string `json:"id"`
				} `json:"guilds"`
			}
			if err := json.Unmarshal(data, &ready); err != nil {
				log.Warn().Err(err).Msg("ready decode failed")
				return
			}
			for _, gld := range ready.Guilds {
				membership.Prime(ctx, gld.ID)
			}

		case "GUILD_CREATE":
			var gld struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(data, &gld) == nil && gld.ID != "" {
				membership.Prime(ctx, gld.ID)
			}

		case "GUILD_DELETE":
			var gld struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(data, &gld) == nil && gld.ID != "" {
				membership.Forget(gld.ID)
			}

		case "INVITE_CREATE", "INVITE_DELETE":
			var inv struct {
				GuildID string `json:"guild_id"`
			}
			if json.Unmarshal(data, &inv) == nil && inv.GuildID != "" {
				membership.Prime(ctx, inv.GuildID)
			}

		case "GUILD_MEMBER_ADD":
			var ev struct {
				GuildID string       `json:"guild_id"`
				User    discord.User `json:"user"`
			}
			if json.Unmarshal(data, &ev) == nil {
				membership.MemberJoined(ctx, ev.GuildID, ev.User)
			}

		case "GUILD_MEMBER_REMOVE":
			var ev struct {
				GuildID string       `json:"guild_id"`
				User    discord.User `json:"user"`
			}
			if json.Unmarshal(data, &ev) == nil {
				membership.MemberLeft(ctx, ev.GuildID, ev.User)
			}

		case "GUILD_BAN_ADD":
			var ev struct {
				GuildID string       `json:"guild_id"`
				User    discord.User `json:"user"`
			}
			if json.Unmarshal(data, &ev) == nil {
				membership.MemberBanned(ctx, ev.GuildID, ev.User)
			}
		}
	}
}
