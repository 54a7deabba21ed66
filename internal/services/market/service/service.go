// Package service implements the marketplace listing lifecycle. A listing is
// a message whose embed footer sidecar is the canonical record of its seller,
// region, claimant, and status; the embed fields mirror it for readers.
package service

import (
	"context"

	"github.com/go-playground/validator/v10"

	"warden/internal/adapters/discord"
	"warden/internal/core/actor"
	"warden/internal/core/sidecar"
	perr "warden/internal/platform/errors"
	"warden/internal/platform/logger"
	"warden/internal/services/audit"
	"warden/internal/services/market/domain"
)

// Footer sidecar keys
const (
	keySeller    = "seller"
	keyRegion    = "region"
	keyClaimedBy = "claimed_by"
	keyStatus    = "status"

	unclaimed = "0"
)

// Button custom IDs dispatched back to this service
const (
	ButtonContact = "market:contact"
	ButtonClaim   = "market:claim"
	ButtonClose   = "market:close"
)

// Service implements domain.Port
type Service struct {
	platform domain.Platform
	rec      audit.Recorder
	regions  map[string]domain.Region
	validate *validator.Validate
	log      logger.Logger
}

// Compile-time assertion
var _ domain.Port = (*Service)(nil)

// New constructs the market service
func New(platform domain.Platform, rec audit.Recorder, regions []domain.Region) *Service {
	if rec == nil {
		rec = audit.Noop{}
	}
	idx := make(map[string]domain.Region, len(regions))
	for _, r := range regions {
		idx[r.Key] = r
	}
	return &Service{
		platform: platform,
		rec:      rec,
		regions:  idx,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      *logger.Named("market"),
	}
}

// Open posts a listing card into the region's listings channel
func (s *Service) Open(ctx context.Context, guildID string, a actor.Actor, regionKey string, in domain.OpenInput) (domain.OpenResult, error) {
	var res domain.OpenResult

	region, ok := s.regions[regionKey]
	if !ok {
		return res, perr.NotConfiguredf("region %q is not configured", regionKey)
	}
	if !a.Admin && !a.HasRole(region.RoleID) {
		return res, perr.Forbiddenf("you need the %s region role to post listings there", regionKey)
	}
	if err := s.validate.Struct(in); err != nil {
		return res, perr.Wrap(err, perr.ErrorCodeValidation, "invalid listing")
	}

	f := sidecar.New()
	f.Set(keySeller, a.ID)
	f.Set(keyRegion, regionKey)
	f.Set(keyClaimedBy, unclaimed)
	f.Set(keyStatus, domain.StatusOpen)

	card := listingCard(in, a.ID, domain.StatusOpen, "")
	card.Footer = &discord.EmbedFooter{Text: sidecar.Encode(f, sidecar.FooterDelim)}
	msg, err := s.platform.CreateMessage(ctx, region.ChannelID, discord.MessageSend{
		Embeds:     []discord.Embed{card},
		Components: listingButtons(),
	})
	if err != nil {
		return res, perr.WithOp(err, "market: post listing")
	}

	s.rec.Record(ctx, audit.Event{
		GuildID: guildID,
		Title:   "Listing opened",
		Color:   0xF1C40F,
		Fields: []audit.Field{
			{Name: "Seller", Value: "<@" + a.ID + ">"},
			{Name: "Region", Value: regionKey},
			{Name: "Item", Value: in.Title},
		},
	})

	res.ChannelID = region.ChannelID
	res.MessageID = msg.ID
	return res, nil
}

// Contact pings the seller on the listing. No state mutation.
func (s *Service) Contact(ctx context.Context, channelID, messageID string, a actor.Actor) error {
	l, _, err := s.fetch(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if l.Status == domain.StatusClosed {
		return perr.AlreadyInStatef("listing is closed")
	}
	if a.ID == l.SellerID {
		return perr.InvalidArgf("you cannot contact yourself")
	}

	_, err = s.platform.CreateMessage(ctx, channelID, discord.MessageSend{
		Content: "<@" + l.SellerID + "> — <@" + a.ID + "> is interested in your listing.",
	})
	if err != nil {
		return perr.WithOp(err, "market: contact ping")
	}

	s.rec.Record(ctx, audit.Event{
		Title: "Listing contact",
		Color: 0xF1C40F,
		Fields: []audit.Field{
			{Name: "Seller", Value: "<@" + l.SellerID + ">"},
			{Name: "Buyer", Value: "<@" + a.ID + ">"},
			{Name: "Region", Value: l.Region},
		},
	})
	return nil
}

// Claim marks the listing as claimed by the actor. The status field and the
// footer record move in one message edit so readers never see them disagree.
// The message is re-read immediately before the edit; a concurrent claim that
// lands in between wins, last writer.
func (s *Service) Claim(ctx context.Context, channelID, messageID string, a actor.Actor) error {
	l, msg, err := s.fetch(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if l.Status == domain.StatusClosed {
		return perr.AlreadyInStatef("listing is closed")
	}
	if l.ClaimedBy != "" {
		return perr.AlreadyInStatef("listing is already claimed by <@%s>", l.ClaimedBy)
	}
	if a.ID == l.SellerID {
		return perr.InvalidArgf("you cannot claim your own listing")
	}
	region, ok := s.regions[l.Region]
	if !ok {
		return perr.StaleEntityf("listing region %q is no longer configured", l.Region)
	}
	if !a.Admin && !a.HasRole(region.RoleID) {
		return perr.Forbiddenf("you need the %s region role to claim listings there", l.Region)
	}

	return s.rewrite(ctx, l, msg, a.ID, domain.StatusClaimed, false)
}

// Close ends the listing. Terminal: every later mutation reports already-closed.
func (s *Service) Close(ctx context.Context, channelID, messageID string, a actor.Actor) error {
	l, msg, err := s.fetch(ctx, channelID, messageID)
	if err != nil {
		return err
	}
	if l.Status == domain.StatusClosed {
		return perr.AlreadyInStatef("listing is already closed")
	}
	region, ok := s.regions[l.Region]
	if !ok {
		return perr.StaleEntityf("listing region %q is no longer configured", l.Region)
	}
	staff := a.Admin || (region.StaffRoleID != "" && a.HasRole(region.StaffRoleID))
	if a.ID != l.SellerID && !staff {
		return perr.Forbiddenf("only the seller or region staff can close a listing")
	}

	if err := s.rewrite(ctx, l, msg, l.ClaimedBy, domain.StatusClosed, true); err != nil {
		return err
	}

	s.rec.Record(ctx, audit.Event{
		Title: "Listing closed",
		Color: 0x95A5A6,
		Fields: []audit.Field{
			{Name: "Seller", Value: "<@" + l.SellerID + ">"},
			{Name: "Closed by", Value: "<@" + a.ID + ">"},
			{Name: "Region", Value: l.Region},
		},
	})
	return nil
}

// fetch reads the listing message and decodes the footer record
func (s *Service) fetch(ctx context.Context, channelID, messageID string) (domain.Listing, discord.Message, error) {
	msg, err := s.platform.Message(ctx, channelID, messageID)
	if err != nil {
		return domain.Listing{}, msg, perr.WithOp(err, "market: fetch listing")
	}
	l, err := decodeListing(msg)
	if err != nil {
		return domain.Listing{}, msg, err
	}
	l.ChannelID = channelID
	return l, msg, nil
}

// rewrite pushes claimant and status into the embed and footer in one edit
func (s *Service) rewrite(ctx context.Context, l domain.Listing, msg discord.Message, claimedBy, status string, disable bool) error {
	f := sidecar.New()
	f.Set(keySeller, l.SellerID)
	f.Set(keyRegion, l.Region)
	if claimedBy == "" {
		claimedBy = unclaimed
	}
	f.Set(keyClaimedBy, claimedBy)
	f.Set(keyStatus, status)

	emb := msg.Embeds[0]
	emb.Footer = &discord.EmbedFooter{Text: sidecar.Encode(f, sidecar.FooterDelim)}
	setStatusField(&emb, statusLabel(status, claimedBy))

	embeds := []discord.Embed{emb}
	edit := discord.MessageEdit{Embeds: &embeds}
	if disable {
		disabled := discord.DisableAll(msg.Components)
		edit.Components = &disabled
	}
	if _, err := s.platform.EditMessage(ctx, l.ChannelID, l.MessageID, edit); err != nil {
		return perr.WithOp(err, "market: rewrite listing")
	}
	return nil
}

func statusLabel(status, claimedBy string) string {
	if status == domain.StatusClaimed && claimedBy != unclaimed && claimedBy != "" {
		return "claimed by <@" + claimedBy + ">"
	}
	return status
}

func listingCard(in domain.OpenInput, sellerID, status, claimedBy string) discord.Embed {
	return discord.Embed{
		Title:       in.Title,
		Description: in.Description,
		Color:       0xF1C40F,
		Fields: []discord.EmbedField{
			{Name: "Price", Value: in.Price, Inline: true},
			{Name: "Seller", Value: "<@" + sellerID + ">", Inline: true},
			{Name: "Status", Value: statusLabel(status, claimedBy), Inline: true},
		},
	}
}

func listingButtons() []discord.Component {
	return []discord.Component{discord.Row(
		discord.Button(discord.ButtonPrimary, "Contact seller", ButtonContact),
		discord.Button(discord.ButtonSuccess, "Claim", ButtonClaim),
		discord.Button(discord.ButtonDanger, "Close", ButtonClose),
	)}
}

// setStatusField rewrites the Status field in place
func setStatusField(emb *discord.Embed, value string) {
	for i := range emb.Fields {
		if emb.Fields[i].Name == "Status" {
			emb.Fields[i].Value = value
			return
		}
	}
	emb.Fields = append(emb.Fields, discord.EmbedField{Name: "Status", Value: value, Inline: true})
}

// decodeListing reads the footer sidecar; a listing message without a seller
// field is unusable and is never guessed at
func decodeListing(msg discord.Message) (domain.Listing, error) {
	if len(msg.Embeds) == 0 || msg.Embeds[0].Footer == nil {
		return domain.Listing{}, perr.StaleEntityf("message %s has no listing record", msg.ID)
	}
	f := sidecar.Decode(msg.Embeds[0].Footer.Text, sidecar.FooterDelim)
	seller, ok := f.Get(keySeller)
	if !ok || seller == "" {
		return domain.Listing{}, perr.StaleEntityf("message %s has no listing record", msg.ID)
	}
	region, _ := f.Get(keyRegion)
	claimed, _ := f.Get(keyClaimedBy)
	if claimed == unclaimed {
		claimed = ""
	}
	status, ok := f.Get(keyStatus)
	if !ok {
		status = domain.StatusOpen
	}
	return domain.Listing{
		MessageID: msg.ID,
		SellerID:  seller,
		Region:    region,
		ClaimedBy: claimed,
		Status:    status,
	}, nil
}
