// Package controller routes inbound platform messages to reporter sessions,
// the moderator review and monitored-channel scoring. It owns the
// process-wide state: active reports, the triage queue and the single active
// review.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/ban"
	"github.com/whisper/modbot/internal/enrich"
	"github.com/whisper/modbot/internal/flow"
	"github.com/whisper/modbot/internal/history"
	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/platform"
	"github.com/whisper/modbot/internal/ratelimit"
	"github.com/whisper/modbot/internal/report"
	"github.com/whisper/modbot/internal/review"
	"github.com/whisper/modbot/internal/triage"
)

const (
	msgDMHelp     = "Use the `report` command to begin the reporting process.\nUse the `cancel` command to cancel the report process.\n"
	msgBanned     = "You have been banned from reporting."
	msgThrottled  = "You have started too many reports recently. Please try again later."
	msgModHelp    = "Use the `review` command to begin the review process.\n"
	msgNoReports  = "No reports to review."
	msgAutoQueued = "A message in a monitored channel was flagged (severity %.2f) and added to the review queue: %s"
)

// DefaultAutoReportThreshold is the severity above which a monitored
// message is reported automatically.
const DefaultAutoReportThreshold = 0.5

// Pipeline is the enrichment surface the controller needs.
type Pipeline interface {
	report.Enricher
	Run(ctx context.Context, target platform.Message, window []platform.Message) enrich.Result
	DisplayLanguage() string
}

// Classifier picks a reason for an automatically detected message.
type Classifier interface {
	Classify(ctx context.Context, target platform.Message, window []platform.Message, scores map[enrich.Category]float64) report.Candidate
}

// Archive persists reviewed reports.
type Archive interface {
	Create(ctx context.Context, rec *report.Record) error
}

// Limiter throttles report starts.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Config holds routing and policy settings.
type Config struct {
	ModChannels         []string
	UserChannels        []string
	AutoReportThreshold float64
	// WaitTimeout bounds each enrichment join. Zero waits without limit.
	WaitTimeout time.Duration
	// ReportBanDuration applies to reporters banned for adversarial
	// reports. Zero is permanent.
	ReportBanDuration time.Duration
	RateRule          ratelimit.Rule
}

// Deps are the controller's collaborators. Archive and Limiter are
// optional.
type Deps struct {
	Gateway   platform.Gateway
	Pipeline  Pipeline
	Assistant Classifier
	Bans      ban.List
	Archive   Archive
	Limiter   Limiter
	History   *history.Buffer
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

// Controller is the moderation core's event router.
type Controller struct {
	cfg  Config
	deps Deps
	log  logrus.FieldLogger

	modChannels  map[string]bool
	userChannels map[string]bool

	queue *triage.Queue[*report.Session]
	lanes *Mailbox

	mu      sync.Mutex
	reports map[string]*report.Session
	review  *review.Review
}

// New creates a Controller.
func New(cfg Config, deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		deps.Logger = l
	}
	if deps.History == nil {
		deps.History = history.NewBuffer()
	}
	if deps.Bans == nil {
		deps.Bans = ban.NewMemStore()
	}
	if cfg.RateRule.Key == "" {
		cfg.RateRule = ratelimit.RuleReportStart
	}
	log := deps.Logger.WithField("component", "controller")

	c := &Controller{
		cfg:          cfg,
		deps:         deps,
		log:          log,
		modChannels:  make(map[string]bool, len(cfg.ModChannels)),
		userChannels: make(map[string]bool, len(cfg.UserChannels)),
		queue:        triage.New[*report.Session]().WithMetrics(),
		lanes:        NewMailbox(log),
		reports:      make(map[string]*report.Session),
	}
	for _, id := range cfg.ModChannels {
		c.modChannels[id] = true
	}
	for _, id := range cfg.UserChannels {
		c.userChannels[id] = true
	}
	return c
}

// Submit queues msg for handling on its lane: one lane per reporter, one per
// monitored channel and one shared by every moderator channel. Messages
// outside those routes are dropped.
func (c *Controller) Submit(ctx context.Context, msg platform.Message) {
	key := c.laneKey(msg)
	if key == "" {
		return
	}
	c.lanes.Submit(key, func() { c.Handle(ctx, msg) })
}

// Wait blocks until all submitted messages have been handled.
func (c *Controller) Wait() { c.lanes.Wait() }

// Deleted evicts a deleted message from the monitored-channel history.
func (c *Controller) Deleted(channelID, messageID string) {
	c.deps.History.Remove(channelID, messageID)
}

// Queue returns the queued reports in priority order.
func (c *Controller) Queue() []*report.Session { return c.queue.Snapshot() }

// ActiveReports returns the number of in-progress reporter conversations.
func (c *Controller) ActiveReports() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func (c *Controller) laneKey(msg platform.Message) string {
	switch {
	case msg.IsDirect():
		return "dm:" + msg.AuthorID
	case c.modChannels[msg.ChannelID]:
		return "mod"
	case c.userChannels[msg.ChannelID]:
		return "chan:" + msg.ChannelID
	}
	return ""
}

// Handle routes one message synchronously. Callers must not handle two
// messages for the same lane concurrently; Submit guarantees that.
func (c *Controller) Handle(ctx context.Context, msg platform.Message) {
	if msg.AuthorBot {
		return
	}
	switch {
	case msg.IsDirect():
		c.handleDM(ctx, msg)
	case c.modChannels[msg.ChannelID]:
		c.handleMod(ctx, msg)
	case c.userChannels[msg.ChannelID]:
		c.handleMonitored(ctx, msg)
	}
}

// ---------------------------------------------------------------------------
// Reporter DMs
// ---------------------------------------------------------------------------

func (c *Controller) handleDM(ctx context.Context, msg platform.Message) {
	author := msg.AuthorID
	input := flow.Normalize(msg.Content)
	log := c.log.WithField("reporter_id", author)

	c.mu.Lock()
	sess := c.reports[author]
	c.mu.Unlock()

	if sess == nil && input == flow.KeywordHelp {
		c.reply(ctx, msg.ChannelID, msgDMHelp)
		return
	}

	banned, reason, err := c.deps.Bans.IsBanned(ctx, author)
	if err != nil {
		log.WithError(err).Warn("report-ban lookup failed, allowing")
	}
	if banned {
		log.WithField("ban_reason", reason).Info("rejected banned reporter")
		metrics.ReportsTotal.WithLabelValues("rejected").Inc()
		c.reply(ctx, msg.ChannelID, msgBanned)
		return
	}

	if sess == nil {
		if !strings.HasPrefix(input, report.StartKeyword) {
			return
		}
		if c.deps.Limiter != nil {
			if ok, _ := c.deps.Limiter.Allow(ctx, author, c.cfg.RateRule); !ok {
				metrics.ReportsTotal.WithLabelValues("throttled").Inc()
				c.reply(ctx, msg.ChannelID, msgThrottled)
				return
			}
		}
		sess = report.New(author, report.Deps{
			Resolver:    c.deps.Gateway,
			Enricher:    c.deps.Pipeline,
			WaitTimeout: c.cfg.WaitTimeout,
			Now:         c.deps.Now,
			Logger:      c.deps.Logger,
		})
		c.mu.Lock()
		c.reports[author] = sess
		c.mu.Unlock()
		metrics.ActiveReports.Inc()
		log.WithField("report_id", sess.ID).Info("report started")
	}

	c.reply(ctx, msg.ChannelID, sess.Handle(ctx, msg.Content)...)

	if !sess.Done() {
		return
	}
	c.mu.Lock()
	delete(c.reports, author)
	c.mu.Unlock()
	metrics.ActiveReports.Dec()

	if !sess.Submitted() {
		metrics.ReportsTotal.WithLabelValues("cancelled").Inc()
		log.WithField("report_id", sess.ID).Info("report cancelled")
		return
	}
	metrics.ReportsTotal.WithLabelValues("submitted").Inc()
	c.enqueue(sess)
}

func (c *Controller) enqueue(sess *report.Session) {
	log := c.log.WithFields(logrus.Fields{
		"report_id": sess.ID,
		"minor":     sess.IsMinor(),
		"nudity":    sess.HasNudity(),
		"severity":  sess.SeverityScore(),
		"auto":      sess.Auto(),
	})
	if err := c.queue.Push(sess); err != nil {
		log.WithError(err).Error("failed to queue report")
		return
	}
	log.Info("report queued")
}

// ---------------------------------------------------------------------------
// Moderator channels
// ---------------------------------------------------------------------------

func (c *Controller) handleMod(ctx context.Context, msg platform.Message) {
	input := flow.Normalize(msg.Content)
	if input == flow.KeywordHelp {
		c.reply(ctx, msg.ChannelID, msgModHelp)
		return
	}

	c.mu.Lock()
	rv := c.review
	if rv == nil {
		if !strings.HasPrefix(input, review.StartKeyword) {
			c.mu.Unlock()
			return
		}
		head, ok := c.queue.PeekHighest()
		if !ok {
			c.mu.Unlock()
			c.reply(ctx, msg.ChannelID, msgNoReports)
			return
		}
		rv = review.New(head, c.deps.Pipeline.DisplayLanguage())
		c.review = rv
		c.log.WithFields(logrus.Fields{"report_id": head.ID, "moderator_id": msg.AuthorID}).Info("review started")
	}
	c.mu.Unlock()

	d := rv.Handle(msg.Content)
	c.apply(ctx, d.Commands)
	c.reply(ctx, msg.ChannelID, d.Replies...)

	if d.Done {
		c.finishReview(ctx, rv)
	}
}

// apply executes review commands in order. A failed command is logged and
// does not stop the rest.
func (c *Controller) apply(ctx context.Context, cmds []review.Command) {
	for _, cmd := range cmds {
		log := c.log.WithField("command", cmd.Kind.String())
		var err error
		switch cmd.Kind {
		case review.DeleteMessage:
			err = c.deps.Gateway.DeleteMessage(ctx, cmd.ChannelID, cmd.MessageID)
			c.deps.History.Remove(cmd.ChannelID, cmd.MessageID)
			if errors.Is(err, platform.ErrUnknownMessage) {
				log.WithField("message_id", cmd.MessageID).Info("message already gone")
				continue
			}
		case review.BanUser:
			err = c.deps.Gateway.BanUser(ctx, cmd.GuildID, cmd.UserID, cmd.Reason)
		case review.ReportBan:
			err = c.deps.Bans.Ban(ctx, cmd.UserID, c.cfg.ReportBanDuration, cmd.Reason)
		}
		if err != nil {
			log.WithError(err).Error("review command failed")
		}
	}
}

func (c *Controller) finishReview(ctx context.Context, rv *review.Review) {
	sess := rv.Report()
	outcome := rv.State().String()

	c.mu.Lock()
	c.review = nil
	c.mu.Unlock()
	c.queue.Remove(sess)

	metrics.ReviewsTotal.WithLabelValues(outcome).Inc()
	log := c.log.WithFields(logrus.Fields{"report_id": sess.ID, "outcome": outcome})
	log.Info("review completed")

	if c.deps.Archive == nil {
		return
	}
	if err := c.deps.Archive.Create(ctx, report.RecordOf(sess, outcome, c.deps.Now())); err != nil {
		log.WithError(err).Error("failed to archive reviewed report")
	}
}

// ---------------------------------------------------------------------------
// Monitored channels
// ---------------------------------------------------------------------------

func (c *Controller) handleMonitored(ctx context.Context, msg platform.Message) {
	c.deps.History.Add(msg)
	window := c.deps.History.Get(msg.ChannelID)

	risk := c.deps.Pipeline.Run(ctx, msg, window)
	if risk.Severity <= c.cfg.AutoReportThreshold {
		return
	}

	cand := c.deps.Assistant.Classify(ctx, msg, window, risk.Scores)
	sess := report.Synthesize(msg, window, cand.Reason, cand.Subtype, risk, c.deps.Now())
	metrics.AutoReportsTotal.Inc()
	c.log.WithFields(logrus.Fields{
		"report_id":  sess.ID,
		"channel_id": msg.ChannelID,
		"message_id": msg.ID,
		"label":      cand.Label,
	}).Info("auto report synthesized")
	c.enqueue(sess)

	notice := fmt.Sprintf(msgAutoQueued, risk.Severity, msg.JumpURL())
	for _, ch := range c.cfg.ModChannels {
		c.reply(ctx, ch, notice)
	}
}

func (c *Controller) reply(ctx context.Context, channelID string, texts ...string) {
	for _, t := range texts {
		if err := c.deps.Gateway.SendChannel(ctx, channelID, t); err != nil {
			c.log.WithError(err).WithField("channel_id", channelID).Warn("send failed")
		}
	}
}
