package discord

// Wire types for the subset of the platform REST API the bot touches.
// IDs are snowflakes and stay strings end to end.

// User is a platform account
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// Member is a user's guild-scoped profile with their role grants
type Member struct {
	User  User     `json:"user"`
	Nick  string   `json:"nick,omitempty"`
	Roles []string `json:"roles"`

	// Permissions is only populated on interaction payloads
	Permissions string `json:"permissions,omitempty"`
}

// Role is a guild capability grant
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Managed  bool   `json:"managed"`
}

// Channel types we care about
const (
	ChannelTypeGuildText = 0
	ChannelTypeDM        = 1
	ChannelTypeCategory  = 4
)

// Channel is a conversation channel; Topic carries ticket sidecar metadata
type Channel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id,omitempty"`
	Type     int    `json:"type"`
	Name     string `json:"name,omitempty"`
	Topic    string `json:"topic,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// Overwrite target kinds
const (
	OverwriteRole   = 0
	OverwriteMember = 1
)

// PermissionOverwrite is a channel-level allow/deny pair for a role or member
type PermissionOverwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

// Permission bits (subset)
const (
	PermManageChannels     int64 = 1 << 4
	PermAddReactions       int64 = 1 << 6
	PermViewChannel        int64 = 1 << 10
	PermSendMessages       int64 = 1 << 11
	PermReadMessageHistory int64 = 1 << 16
	PermAdministrator      int64 = 1 << 3
)

// Message is a posted message; the first embed's footer carries listing
// sidecar metadata
type Message struct {
	ID         string      `json:"id"`
	ChannelID  string      `json:"channel_id"`
	Author     User        `json:"author"`
	Content    string      `json:"content"`
	Timestamp  string      `json:"timestamp,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Embed is a rich status card
type Embed struct {
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Color       int           `json:"color,omitempty"`
	Fields      []EmbedField  `json:"fields,omitempty"`
	Footer      *EmbedFooter  `json:"footer,omitempty"`
	Thumbnail   *EmbedMedia   `json:"thumbnail,omitempty"`
	Image       *EmbedMedia   `json:"image,omitempty"`
}

// EmbedField is a titled value inside an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter carries the message sidecar text
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedMedia is a thumbnail or image reference
type EmbedMedia struct {
	URL string `json:"url,omitempty"`
}

// Component types
const (
	ComponentActionRow = 1
	ComponentButton    = 2
)

// Button styles
const (
	ButtonPrimary   = 1
	ButtonSecondary = 2
	ButtonSuccess   = 3
	ButtonDanger    = 4
)

// Component is an action row or button; rows nest buttons
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Disabled   bool        `json:"disabled,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Row wraps buttons into an action row
func Row(buttons ...Component) Component {
	return Component{Type: ComponentActionRow, Components: buttons}
}

// Button builds a button component
func Button(style int, label, customID string) Component {
	return Component{Type: ComponentButton, Style: style, Label: label, CustomID: customID}
}

// DisableAll returns a deep copy of rows with every button disabled
func DisableAll(rows []Component) []Component {
	out := make([]Component, len(rows))
	for i, r := range rows {
		c := r
		c.Components = make([]Component, len(r.Components))
		for j, b := range r.Components {
			b.Disabled = true
			c.Components[j] = b
		}
		if c.Type == ComponentButton {
			c.Disabled = true
		}
		out[i] = c
	}
	return out
}

// MessageSend is the body for posting a message
type MessageSend struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// MessageEdit is the body for editing a message; nil fields are left untouched
type MessageEdit struct {
	Content    *string      `json:"content,omitempty"`
	Embeds     *[]Embed     `json:"embeds,omitempty"`
	Components *[]Component `json:"components,omitempty"`
}

// CreateChannelParams is the body for creating a guild channel
type CreateChannelParams struct {
	Name       string                `json:"name"`
	Type       int                   `json:"type"`
	Topic      string                `json:"topic,omitempty"`
	ParentID   string                `json:"parent_id,omitempty"`
	Overwrites []PermissionOverwrite `json:"permission_overwrites,omitempty"`
}
