// Package interactions exposes the HTTP webhook the platform calls for
// slash commands and button clicks, and dispatches them to the services.
package interactions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"warden/internal/adapters/discord"
	"warden/internal/core/actor"
	"warden/internal/platform/logger"
	guardiandom "warden/internal/services/guardian/domain"
	marketdom "warden/internal/services/market/domain"
	marketsvc "warden/internal/services/market/service"
	"warden/internal/services/rolepanel"
	ticketsdom "warden/internal/services/tickets/domain"
	ticketsvc "warden/internal/services/tickets/service"
)

// Config for the endpoint
type Config struct {
	// PublicKey is the hex ed25519 application key used to verify requests
	PublicKey string

	// StaffRoleID gates the panel setup commands; administrators qualify
	StaffRoleID string

	// TicketKinds are the ticket categories offered on the ticket panel
	TicketKinds []string

	// CloseTimeout bounds the detached ticket close; defaults to 30s
	CloseTimeout time.Duration
}

// Handler dispatches interactions to the lifecycle services
type Handler struct {
	mutes   guardiandom.MutePort
	tickets ticketsdom.Port
	market  marketdom.Port
	roles   *rolepanel.Service
	cfg     Config
	log     logger.Logger
}

// New constructs the handler
func New(mutes guardiandom.MutePort, tickets ticketsdom.Port, market marketdom.Port, roles *rolepanel.Service, cfg Config) *Handler {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 30 * time.Second
	}
	if len(cfg.TicketKinds) == 0 {
		cfg.TicketKinds = []string{"support"}
	}
	return &Handler{
		mutes:   mutes,
		tickets: tickets,
		market:  market,
		roles:   roles,
		cfg:     cfg,
		log:     *logger.Named("interactions"),
	}
}

// Router builds the webhook router with signature verification in front
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"POST"},
		AllowedHeaders: []string{"Content-Type", "X-Signature-Ed25519", "X-Signature-Timestamp"},
	}))
	r.With(VerifySignature(h.cfg.PublicKey)).Post("/interactions", h.serve)
	return r
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	var in Interaction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	var resp Response
	switch in.Type {
	case TypePing:
		resp = pong()
	case TypeCommand:
		resp = h.command(r.Context(), in)
	case TypeComponent:
		resp = h.component(r.Context(), in)
	default:
		resp = ephemeral("Unsupported interaction.")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Warn().Err(err).Msg("response encode failed")
	}
}

func (h *Handler) command(ctx context.Context, in Interaction) Response {
	a := actorFrom(in)

	switch in.Data.Name {
	case "mute":
		if !h.isStaff(a) {
			return ephemeral("Only staff can mute members.")
		}
		target := in.Data.StringOption("user")
		reason := in.Data.StringOption("reason")
		if reason == "" {
			reason = "no reason given"
		}
		out, err := h.mutes.Mute(ctx, in.GuildID, target, a.ID, reason,
			guardiandom.MuteDuration{Minutes: in.Data.IntOption("minutes")})
		if err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral(muteSummary(out, target))

	case "unmute":
		if !h.isStaff(a) {
			return ephemeral("Only staff can unmute members.")
		}
		target := in.Data.StringOption("user")
		out, err := h.mutes.Unmute(ctx, in.GuildID, target, guardiandom.TriggerManual)
		if err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral(fmt.Sprintf("Unmuted <@%s>; restored %d roles (%d skipped).",
			target, out.Restored, out.Skipped))

	case "ticket":
		res, err := h.tickets.Open(ctx, in.GuildID, a, in.Data.StringOption("kind"))
		if err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral("Your ticket is ready: <#" + res.ChannelID + ">")

	case "market":
		res, err := h.market.Open(ctx, in.GuildID, a, in.Data.StringOption("region"), marketdom.OpenInput{
			Title:       in.Data.StringOption("title"),
			Description: in.Data.StringOption("description"),
			Price:       in.Data.StringOption("price"),
		})
		if err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral("Listing posted in <#" + res.ChannelID + ">")

	case "ticketpanel":
		if !h.isStaff(a) {
			return ephemeral("Only staff can post panels.")
		}
		return public(h.ticketPanel())

	case "rolepanel":
		if !h.isStaff(a) {
			return ephemeral("Only staff can post panels.")
		}
		panel, err := h.roles.Panel()
		if err != nil {
			return ephemeral(renderError(err))
		}
		return public(panel)
	}
	return ephemeral("Unknown command.")
}

func (h *Handler) component(ctx context.Context, in Interaction) Response {
	a := actorFrom(in)
	id := in.Data.CustomID

	switch {
	case strings.HasPrefix(id, ticketOpenPrefix):
		res, err := h.tickets.Open(ctx, in.GuildID, a, strings.TrimPrefix(id, ticketOpenPrefix))
		if err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral("Your ticket is ready: <#" + res.ChannelID + ">")

	case id == ticketsvc.ButtonClaim:
		if err := h.tickets.Claim(ctx, in.ChannelID, a); err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral("Ticket claimed.")

	case id == ticketsvc.ButtonClose:
		// acknowledge first; the close waits out its grace period detached
		// from the webhook request
		go h.closeTicket(in.ChannelID, a)
		return ephemeral("Closing this ticket shortly. A transcript will be kept.")

	case id == marketsvc.ButtonContact:
		if in.Message == nil {
			return ephemeral("Something went wrong.")
		}
		if err := h.market.Contact(ctx, in.ChannelID, in.Message.ID, a); err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral("The seller has been pinged.")

	case id == marketsvc.ButtonClaim:
		if in.Message == nil {
			return ephemeral("Something went wrong.")
		}
		if err := h.market.Claim(ctx, in.ChannelID, in.Message.ID, a); err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral("Listing claimed; arrange the trade with the seller.")

	case id == marketsvc.ButtonClose:
		if in.Message == nil {
			return ephemeral("Something went wrong.")
		}
		if err := h.market.Close(ctx, in.ChannelID, in.Message.ID, a); err != nil {
			return ephemeral(renderError(err))
		}
		return ephemeral("Listing closed.")

	case strings.HasPrefix(id, rolepanel.ButtonPrefix):
		added, label, err := h.roles.Toggle(ctx, in.GuildID, a, id)
		if err != nil {
			return ephemeral(renderError(err))
		}
		if added {
			return ephemeral("Added **" + label + "**.")
		}
		return ephemeral("Removed **" + label + "**.")
	}
	return ephemeral("Unknown button.")
}

func (h *Handler) closeTicket(channelID string, a actor.Actor) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CloseTimeout)
	defer cancel()
	if err := h.tickets.Close(ctx, channelID, a); err != nil {
		h.log.Warn().Err(err).Str("channel", channelID).Msg("detached ticket close failed")
	}
}

const ticketOpenPrefix = "ticket:open:"

func (h *Handler) ticketPanel() discord.MessageSend {
	var buttons []discord.Component
	for _, kind := range h.cfg.TicketKinds {
		buttons = append(buttons, discord.Button(discord.ButtonPrimary, titleCase(kind), ticketOpenPrefix+kind))
	}
	return discord.MessageSend{
		Embeds: []discord.Embed{{
			Title:       "Need help?",
			Description: "Open a ticket and staff will be with you.",
			Color:       0x3498DB,
		}},
		Components: []discord.Component{discord.Row(buttons...)},
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (h *Handler) isStaff(a actor.Actor) bool {
	return a.Admin || (h.cfg.StaffRoleID != "" && a.HasRole(h.cfg.StaffRoleID))
}

func muteSummary(out guardiandom.MuteOutcome, target string) string {
	msg := fmt.Sprintf("Muted <@%s>; stripped %d roles", target, out.Stripped)
	if out.Kept > 0 {
		msg += fmt.Sprintf(", kept %d the bot cannot revoke", out.Kept)
	}
	if out.StripFailed {
		msg += " (role strip failed, the muted role still applies)"
	}
	if out.ExpiresAt != nil {
		msg += "; expires " + out.ExpiresAt.UTC().Format(time.RFC1123)
	}
	return msg + "."
}

// actorFrom resolves the acting member from the payload
func actorFrom(in Interaction) actor.Actor {
	if in.Member == nil {
		return actor.Actor{}
	}
	perms, _ := strconv.ParseInt(in.Member.Permissions, 10, 64)
	return actor.Actor{
		ID:      in.Member.User.ID,
		RoleIDs: in.Member.Roles,
		Admin:   perms&discord.PermAdministrator != 0,
	}
}
