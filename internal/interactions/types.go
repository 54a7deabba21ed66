package interactions

import (
	"encoding/json"

	"warden/internal/adapters/discord"
)

// Interaction types the endpoint handles
const (
	TypePing      = 1
	TypeCommand   = 2
	TypeComponent = 3
)

// Response types
const (
	RespPong    = 1
	RespMessage = 4
)

// FlagEphemeral makes the reply visible only to the actor
const FlagEphemeral = 1 << 6

// Interaction is the inbound webhook payload (subset)
type Interaction struct {
	ID        string           `json:"id"`
	Type      int              `json:"type"`
	Token     string           `json:"token"`
	GuildID   string           `json:"guild_id,omitempty"`
	ChannelID string           `json:"channel_id,omitempty"`
	Member    *discord.Member  `json:"member,omitempty"`
	Message   *discord.Message `json:"message,omitempty"`
	Data      InteractionData  `json:"data"`
}

// InteractionData carries the command name or component custom id
type InteractionData struct {
	Name     string   `json:"name,omitempty"`
	CustomID string   `json:"custom_id,omitempty"`
	Options  []Option `json:"options,omitempty"`
}

// Option is one command argument; Value's JSON type depends on the option kind
type Option struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// StringOption returns a string argument by name
func (d InteractionData) StringOption(name string) string {
	for _, o := range d.Options {
		if o.Name == name {
			var s string
			if json.Unmarshal(o.Value, &s) == nil {
				return s
			}
		}
	}
	return ""
}

// IntOption returns an integer argument by name
func (d InteractionData) IntOption(name string) int {
	for _, o := range d.Options {
		if o.Name == name {
			var n int
			if json.Unmarshal(o.Value, &n) == nil {
				return n
			}
		}
	}
	return 0
}

// Response is the webhook reply
type Response struct {
	Type int           `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

// ResponseData is the message body of a response
type ResponseData struct {
	Content    string              `json:"content,omitempty"`
	Embeds     []discord.Embed     `json:"embeds,omitempty"`
	Components []discord.Component `json:"components,omitempty"`
	Flags      int                 `json:"flags,omitempty"`
}

func pong() Response {
	return Response{Type: RespPong}
}

func ephemeral(content string) Response {
	return Response{Type: RespMessage, Data: &ResponseData{Content: content, Flags: FlagEphemeral}}
}

func public(send discord.MessageSend) Response {
	return Response{Type: RespMessage, Data: &ResponseData{
		Content:    send.Content,
		Embeds:     send.Embeds,
		Components: send.Components,
	}}
}
