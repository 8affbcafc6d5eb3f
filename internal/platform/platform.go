// Package platform defines the narrow contract the moderation core expects
// from the chat platform: identifier lookups, message retrieval, and the
// handful of outbound actions (send, delete, ban) the review tree triggers.
// The concrete bridge lives in package gateway.
package platform

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Resource lookup failures. Implementations wrap one of these so callers can
// match with errors.Is.
var (
	ErrUnknownGuild   = errors.New("platform: unknown guild")
	ErrUnknownChannel = errors.New("platform: unknown channel")
	ErrUnknownMessage = errors.New("platform: unknown message")
)

// JumpURLBase is the prefix of a message permalink.
const JumpURLBase = "https://discord.com/channels"

// Attachment is a file attached to a message.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// IsImage reports whether the attachment looks like an image, either by its
// declared content type or by its file extension.
func (a Attachment) IsImage() bool {
	if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
		return true
	}
	name := a.Filename
	if name == "" {
		name = a.URL
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
	}
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// Message is a single chat message. GuildID is empty for direct messages.
type Message struct {
	ID          string       `json:"id"`
	GuildID     string       `json:"guild_id,omitempty"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name"`
	AuthorBot   bool         `json:"author_bot,omitempty"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsDirect reports whether the message was sent in a direct conversation.
func (m Message) IsDirect() bool { return m.GuildID == "" }

// JumpURL returns the permalink to the message.
func (m Message) JumpURL() string {
	return fmt.Sprintf("%s/%s/%s/%s", JumpURLBase, m.GuildID, m.ChannelID, m.ID)
}

// Guild is a server the bot is a member of.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is a text channel inside a guild.
type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
}

// Resolver looks up guilds, channels and messages.
type Resolver interface {
	Guild(ctx context.Context, guildID string) (Guild, error)
	Channel(ctx context.Context, guildID, channelID string) (Channel, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
	// FetchWindow returns up to size messages surrounding messageID in
	// chronological order, including the message itself.
	FetchWindow(ctx context.Context, channelID, messageID string, size int) ([]Message, error)
}

// Sender delivers text to a channel or directly to a user.
type Sender interface {
	SendChannel(ctx context.Context, channelID, text string) error
	SendUser(ctx context.Context, userID, text string) error
}

// Enforcer performs moderation actions on the platform.
type Enforcer interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	BanUser(ctx context.Context, guildID, userID, reason string) error
}

// Gateway is the full messaging channel collaborator.
type Gateway interface {
	Resolver
	Sender
	Enforcer
}
