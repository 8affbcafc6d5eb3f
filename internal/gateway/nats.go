// Package gateway bridges the bot to the chat platform over NATS. A
// platform adapter process owns the real platform connection; this package
// talks to it with request/reply for lookups and enforcement and with plain
// publishes for outbound text.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/platform"
)

// Config holds NATS connection settings.
type Config struct {
	URL            string        // nats://localhost:4222
	Name           string        // client name for identification
	ReconnectWait  time.Duration // time between reconnect attempts
	MaxReconnects  int           // max reconnect attempts (-1 for infinite)
	RequestTimeout time.Duration // upper bound on a single request/reply
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		Name:           "modbot",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		RequestTimeout: 5 * time.Second,
	}
}

// Client implements platform.Gateway on top of a NATS connection.
type Client struct {
	conn    *nats.Conn
	timeout time.Duration
	log     logrus.FieldLogger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

var _ platform.Gateway = (*Client)(nil)

// Connect dials NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func Connect(config Config, log logrus.FieldLogger) (*Client, error) {
	log = log.WithField("component", "nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("disconnected")
			} else {
				log.Warn("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.WithField("url", nc.ConnectedUrl()).Info("connected")

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().RequestTimeout
	}
	return &Client{
		conn:    nc,
		timeout: timeout,
		log:     log,
		subs:    make(map[string]*nats.Subscription),
	}, nil
}

// Conn exposes the underlying connection for health checks.
func (c *Client) Conn() *nats.Conn { return c.conn }

// ---------------------------------------------------------------------------
// platform.Resolver
// ---------------------------------------------------------------------------

func (c *Client) Guild(ctx context.Context, guildID string) (platform.Guild, error) {
	var g platform.Guild
	err := c.request(ctx, SubjectGuildGet, GuildRequest{GuildID: guildID}, platform.ErrUnknownGuild, &g)
	return g, err
}

func (c *Client) Channel(ctx context.Context, guildID, channelID string) (platform.Channel, error) {
	var ch platform.Channel
	err := c.request(ctx, SubjectChannelGet, ChannelRequest{GuildID: guildID, ChannelID: channelID}, platform.ErrUnknownChannel, &ch)
	return ch, err
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (platform.Message, error) {
	var m platform.Message
	err := c.request(ctx, SubjectMessageGet, MessageRequest{ChannelID: channelID, MessageID: messageID}, platform.ErrUnknownMessage, &m)
	return m, err
}

// FetchWindow returns up to size messages around messageID, oldest first.
func (c *Client) FetchWindow(ctx context.Context, channelID, messageID string, size int) ([]platform.Message, error) {
	var window []platform.Message
	err := c.request(ctx, SubjectMessageWindow, MessageRequest{ChannelID: channelID, MessageID: messageID, Size: size}, platform.ErrUnknownMessage, &window)
	return window, err
}

// ---------------------------------------------------------------------------
// platform.Enforcer
// ---------------------------------------------------------------------------

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	req := DeleteRequest{RequestID: uuid.NewString(), ChannelID: channelID, MessageID: messageID}
	return c.request(ctx, SubjectMessageDelete, req, platform.ErrUnknownMessage, nil)
}

func (c *Client) BanUser(ctx context.Context, guildID, userID, reason string) error {
	req := BanRequest{RequestID: uuid.NewString(), GuildID: guildID, UserID: userID, Reason: reason}
	return c.request(ctx, SubjectUserBan, req, platform.ErrUnknownGuild, nil)
}

// ---------------------------------------------------------------------------
// platform.Sender
// ---------------------------------------------------------------------------

func (c *Client) SendChannel(_ context.Context, channelID, text string) error {
	return c.publish(SubjectSendChannel, SendRequest{RequestID: uuid.NewString(), ChannelID: channelID, Text: text})
}

func (c *Client) SendUser(_ context.Context, userID, text string) error {
	return c.publish(SubjectSendUser, SendRequest{RequestID: uuid.NewString(), UserID: userID, Text: text})
}

// ---------------------------------------------------------------------------
// Inbound events
// ---------------------------------------------------------------------------

// SubscribeEvents registers handler for inbound platform events. Malformed
// events and bot-authored messages are dropped before handler sees them.
func (c *Client) SubscribeEvents(handler func(Event)) error {
	return c.Subscribe(SubjectEvents, func(msg *nats.Msg) {
		ev, err := DecodeEvent(msg.Data)
		if err != nil {
			c.log.WithError(err).Debug("dropping malformed event")
			return
		}
		if ev.Created != nil && ev.Created.AuthorBot {
			return
		}
		handler(ev)
	})
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// StopEvents drains all subscriptions but keeps the connection open, so
// handlers still running can reply.
func (c *Client) StopEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.log.WithError(err).WithField("subject", subject).Warn("drain failed")
		}
	}
	c.subs = make(map[string]*nats.Subscription)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.StopEvents()
	if err := c.conn.Drain(); err != nil {
		c.log.WithError(err).Warn("connection drain failed")
	}
	c.log.Info("client closed")
}

func (c *Client) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gateway: encode %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, subject string, req any, notFound error, out any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("gateway: encode %s: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("nats request %s: %w", subject, err)
	}
	return decodeReply(msg.Data, notFound, out)
}
