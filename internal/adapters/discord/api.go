package discord

// Typed endpoint wrappers. Paths follow the REST v10 layout.

import (
	"context"
	"net/url"
	"strconv"
)

// Me returns the bot's own user
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, "GET", "/users/@me", nil, &u, "")
	return u, err
}

// GuildRoles lists all roles of a guild
func (c *Client) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	err := c.do(ctx, "GET", "/guilds/"+guildID+"/roles", nil, &roles, "")
	return roles, err
}

// GuildMember fetches a member with their role grants
func (c *Client) GuildMember(ctx context.Context, guildID, userID string) (Member, error) {
	var m Member
	err := c.do(ctx, "GET", "/guilds/"+guildID+"/members/"+userID, nil, &m, "")
	return m, err
}

// GuildChannels lists all channels of a guild
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	var chs []Channel
	err := c.do(ctx, "GET", "/guilds/"+guildID+"/channels", nil, &chs, "")
	return chs, err
}

// Channel fetches a single channel (topic included)
func (c *Client) Channel(ctx context.Context, channelID string) (Channel, error) {
	var ch Channel
	err := c.do(ctx, "GET", "/channels/"+channelID, nil, &ch, "")
	return ch, err
}

// CreateGuildChannel creates a channel with overwrites and topic
func (c *Client) CreateGuildChannel(ctx context.Context, guildID string, p CreateChannelParams, reason string) (Channel, error) {
	var ch Channel
	err := c.do(ctx, "POST", "/guilds/"+guildID+"/channels", p, &ch, reason)
	return ch, err
}

// EditChannelTopic rewrites only the topic field of a channel
func (c *Client) EditChannelTopic(ctx context.Context, channelID, topic, reason string) error {
	body := struct {
		Topic string `json:"topic"`
	}{Topic: topic}
	return c.do(ctx, "PATCH", "/channels/"+channelID, body, nil, reason)
}

// EditChannelPermissions upserts one permission overwrite on a channel
func (c *Client) EditChannelPermissions(ctx context.Context, channelID string, ow PermissionOverwrite, reason string) error {
	return c.do(ctx, "PUT", "/channels/"+channelID+"/permissions/"+ow.ID, ow, nil, reason)
}

// DeleteChannel deletes a channel permanently
func (c *Client) DeleteChannel(ctx context.Context, channelID, reason string) error {
	return c.do(ctx, "DELETE", "/channels/"+channelID, nil, nil, reason)
}

// ChannelMessages pages through message history. after="" starts at the
// oldest retrievable page when paging forward with ascending IDs.
func (c *Client) ChannelMessages(ctx context.Context, channelID string, limit int, after string) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		q.Set("after", after)
	}
	path := "/channels/" + channelID + "/messages"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var msgs []Message
	err := c.do(ctx, "GET", path, nil, &msgs, "")
	return msgs, err
}

// Message fetches a single message (embeds and components included)
func (c *Client) Message(ctx context.Context, channelID, messageID string) (Message, error) {
	var m Message
	err := c.do(ctx, "GET", "/channels/"+channelID+"/messages/"+messageID, nil, &m, "")
	return m, err
}

// CreateMessage posts a message
func (c *Client) CreateMessage(ctx context.Context, channelID string, send MessageSend) (Message, error) {
	var m Message
	err := c.do(ctx, "POST", "/channels/"+channelID+"/messages", send, &m, "")
	return m, err
}

// CreateMessageWithFile posts a message with one file attachment
func (c *Client) CreateMessageWithFile(ctx context.Context, channelID string, send MessageSend, filename string, file []byte) (Message, error) {
	var m Message
	err := c.doMultipart(ctx, "POST", "/channels/"+channelID+"/messages", send, filename, file, &m)
	return m, err
}

// EditMessage edits content, embeds, and components in one call
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, edit MessageEdit) (Message, error) {
	var m Message
	err := c.do(ctx, "PATCH", "/channels/"+channelID+"/messages/"+messageID, edit, &m, "")
	return m, err
}

// AddMemberRole grants one role to a member
func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return c.do(ctx, "PUT", "/guilds/"+guildID+"/members/"+userID+"/roles/"+roleID, nil, nil, reason)
}

// RemoveMemberRole revokes one role from a member
func (c *Client) RemoveMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return c.do(ctx, "DELETE", "/guilds/"+guildID+"/members/"+userID+"/roles/"+roleID, nil, nil, reason)
}

// ReplaceMemberRoles replaces a member's full role set in one batched call
func (c *Client) ReplaceMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	body := struct {
		Roles []string `json:"roles"`
	}{Roles: roleIDs}
	return c.do(ctx, "PATCH", "/guilds/"+guildID+"/members/"+userID, body, nil, reason)
}

// GuildInvites lists a guild's invites with use counts
func (c *Client) GuildInvites(ctx context.Context, guildID string) ([]Invite, error) {
	var invs []Invite
	err := c.do(ctx, "GET", "/guilds/"+guildID+"/invites", nil, &invs, "")
	return invs, err
}

// GuildVanityURL returns the vanity invite use count, if the guild has one
func (c *Client) GuildVanityURL(ctx context.Context, guildID string) (Invite, error) {
	var inv Invite
	err := c.do(ctx, "GET", "/guilds/"+guildID+"/vanity-url", nil, &inv, "")
	return inv, err
}

// Invite is an invite code with its use count
type Invite struct {
	Code    string `json:"code"`
	Uses    int    `json:"uses"`
	Inviter *User  `json:"inviter,omitempty"`
}

// DM sends a direct message, creating the DM channel on demand
func (c *Client) DM(ctx context.Context, userID, content string) error {
	body := struct {
		RecipientID string `json:"recipient_id"`
	}{RecipientID: userID}
	var ch Channel
	if err := c.do(ctx, "POST", "/users/@me/channels", body, &ch, ""); err != nil {
		return err
	}
	_, err := c.CreateMessage(ctx, ch.ID, MessageSend{Content: content})
	return err
}

// PermString joins permission bits into the decimal string the API expects
func PermString(bits ...int64) string {
	var v int64
	for _, b := range bits {
		v |= b
	}
	return strconv.FormatInt(v, 10)
}
