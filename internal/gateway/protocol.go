package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/whisper/modbot/internal/platform"
)

// ---------------------------------------------------------------------------
// Subjects
// ---------------------------------------------------------------------------

// Inbound events published by the platform bridge.
const (
	SubjectEvents = "platform.events"
)

// Request/reply subjects served by the platform bridge.
const (
	SubjectGuildGet      = "platform.guild.get"
	SubjectChannelGet    = "platform.channel.get"
	SubjectMessageGet    = "platform.message.get"
	SubjectMessageWindow = "platform.message.window"
	SubjectMessageDelete = "platform.message.delete"
	SubjectUserBan       = "platform.user.ban"
)

// Fire-and-forget outbound subjects.
const (
	SubjectSendChannel = "platform.send.channel"
	SubjectSendUser    = "platform.send.user"
)

// ---------------------------------------------------------------------------
// Event envelope
// ---------------------------------------------------------------------------

// Event types carried on SubjectEvents.
const (
	TypeMessageCreate = "message_create"
	TypeMessageDelete = "message_delete"
)

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("gateway: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("gateway: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// MessageCreate is a new message observed by the bridge.
type MessageCreate struct {
	Type    string           `json:"type"`
	Message platform.Message `json:"message"`
}

// MessageDelete reports a deleted message.
type MessageDelete struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// Event is a decoded inbound event. Exactly one of Created or Deleted is set.
type Event struct {
	Created *platform.Message
	Deleted *MessageDelete
}

// DecodeEvent parses a raw event payload.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, err
	}
	switch env.Type {
	case TypeMessageCreate:
		var mc MessageCreate
		if err := json.Unmarshal(env.Raw, &mc); err != nil {
			return Event{}, fmt.Errorf("gateway: decode %s: %w", env.Type, err)
		}
		if err := ValidateMessage(mc.Message); err != nil {
			return Event{}, err
		}
		return Event{Created: &mc.Message}, nil
	case TypeMessageDelete:
		var md MessageDelete
		if err := json.Unmarshal(env.Raw, &md); err != nil {
			return Event{}, fmt.Errorf("gateway: decode %s: %w", env.Type, err)
		}
		if md.ChannelID == "" || md.MessageID == "" {
			return Event{}, errors.New("gateway: message_delete missing ids")
		}
		return Event{Deleted: &md}, nil
	}
	return Event{}, fmt.Errorf("gateway: unknown event type %q", env.Type)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

const (
	MaxContentBytes = 16384
	MaxContentChars = 4000
)

// ValidateMessage checks that an inbound message is well formed.
func ValidateMessage(m platform.Message) error {
	if m.ID == "" || m.ChannelID == "" || m.AuthorID == "" {
		return errors.New("gateway: message is missing ids")
	}
	if len(m.Content) == 0 && len(m.Attachments) == 0 {
		return errors.New("gateway: message has no content or attachments")
	}
	if len(m.Content) > MaxContentBytes {
		return fmt.Errorf("gateway: message exceeds %d byte limit", MaxContentBytes)
	}
	if !utf8.ValidString(m.Content) {
		return errors.New("gateway: message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(m.Content) > MaxContentChars {
		return fmt.Errorf("gateway: message exceeds %d character limit", MaxContentChars)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Requests and replies
// ---------------------------------------------------------------------------

// ErrCodeNotFound is the reply error code for a missing resource.
const ErrCodeNotFound = "not_found"

// Reply is the envelope every request/reply subject answers with.
type Reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// GuildRequest asks for a guild by id.
type GuildRequest struct {
	GuildID string `json:"guild_id"`
}

// ChannelRequest asks for a channel inside a guild.
type ChannelRequest struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

// MessageRequest identifies one message. Size is only used by window
// requests.
type MessageRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Size      int    `json:"size,omitempty"`
}

// DeleteRequest removes a message. RequestID lets the bridge drop replays.
type DeleteRequest struct {
	RequestID string `json:"request_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// BanRequest bans a user from a guild.
type BanRequest struct {
	RequestID string `json:"request_id"`
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason,omitempty"`
}

// SendRequest delivers text to a channel or a user.
type SendRequest struct {
	RequestID string `json:"request_id"`
	ChannelID string `json:"channel_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Text      string `json:"text"`
}

// decodeReply unpacks a reply, mapping not_found to notFound and decoding
// Data into out when out is non-nil.
func decodeReply(data []byte, notFound error, out any) error {
	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("gateway: decode reply: %w", err)
	}
	if !r.OK {
		if r.Error == ErrCodeNotFound && notFound != nil {
			return notFound
		}
		return fmt.Errorf("gateway: remote error: %s", r.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("gateway: decode reply data: %w", err)
	}
	return nil
}
