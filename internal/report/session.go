// Package report implements the reporter conversation: a linear state machine
// that collects the reported message, a reason and optional specifics, then
// joins with background risk enrichment before the report is finalized.
// Reviewed reports can be archived to PostgreSQL via Store.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/enrich"
	"github.com/whisper/modbot/internal/flow"
	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/platform"
)

// StartKeyword opens a new report conversation.
const StartKeyword = "report"

// WindowSize is the number of messages captured around the reported one.
const WindowSize = 15

// linkPattern matches the guild/channel/message tail of a message link.
var linkPattern = regexp.MustCompile(`/(\d+)/(\d+)/(\d+)`)

// State is a step of the reporter conversation.
type State int

const (
	Start State = iota
	AwaitingLink
	AwaitingReason
	AwaitingSubtype
	AwaitingMinorFlag
	AwaitingConfirmation
	AwaitingBlockDecision
	Complete
)

var stateNames = [...]string{
	Start:                 "start",
	AwaitingLink:          "awaiting_link",
	AwaitingReason:        "awaiting_reason",
	AwaitingSubtype:       "awaiting_subtype",
	AwaitingMinorFlag:     "awaiting_minor_flag",
	AwaitingConfirmation:  "awaiting_confirmation",
	AwaitingBlockDecision: "awaiting_block_decision",
	Complete:              "complete",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Tristate is a yes/no answer that may not have been given yet.
type Tristate int8

const (
	Unset Tristate = iota
	Yes
	No
)

// TristateOf converts a bool into Yes or No.
func TristateOf(v bool) Tristate {
	if v {
		return Yes
	}
	return No
}

// Bool reports whether t is Yes. Unset counts as false.
func (t Tristate) Bool() bool { return t == Yes }

func (t Tristate) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "unset"
}

// Enricher starts background risk enrichment for a reported message.
type Enricher interface {
	Start(ctx context.Context, target platform.Message, window []platform.Message) *enrich.Future
}

// Deps are the collaborators a Session needs.
type Deps struct {
	Resolver platform.Resolver
	Enricher Enricher
	// WaitTimeout bounds each join on enrichment. Zero waits without limit.
	WaitTimeout time.Duration
	Now         func() time.Time
	Logger      logrus.FieldLogger
}

// snapshot is the single-slot undo record.
type snapshot struct {
	state   State
	reason  int
	subtype int
	minor   Tristate
}

// Session is one reporter's conversation. It is not safe for concurrent use;
// callers serialize events per reporter.
type Session struct {
	ID         string
	ReporterID string

	state   State
	target  platform.Message
	window  []platform.Message
	reason  int
	subtype int
	minor   Tristate
	blocked Tristate
	prev    *snapshot

	future   *enrich.Future
	risk     enrich.Result
	nudity   Tristate
	resolved bool

	submittedAt time.Time
	auto        bool
	cancelled   bool

	deps Deps
	log  logrus.FieldLogger
}

// New creates a session for reporterID in the Start state.
func New(reporterID string, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	id := ulid.Make().String()
	return &Session{
		ID:         id,
		ReporterID: reporterID,
		state:      Start,
		reason:     -1,
		subtype:    -1,
		deps:       deps,
		log:        deps.Logger.WithFields(logrus.Fields{"report_id": id, "reporter_id": reporterID}),
	}
}

// Synthesize builds a completed, already-enriched report without a reporter
// conversation. It is used for risky messages detected in monitored
// channels. subtype is -1 when the reason has none.
func Synthesize(target platform.Message, window []platform.Message, reason, subtype int, risk enrich.Result, now time.Time) *Session {
	return &Session{
		ID:          ulid.Make().String(),
		state:       Complete,
		target:      target,
		window:      window,
		reason:      reason,
		subtype:     subtype,
		future:      enrich.Resolved(risk),
		risk:        risk,
		nudity:      TristateOf(risk.Nudity),
		resolved:    true,
		submittedAt: now,
		auto:        true,
		deps:        Deps{Now: time.Now},
		log:         discardLogger(),
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// State returns the current step.
func (s *Session) State() State { return s.state }

// Done reports whether the conversation has ended, either submitted or
// cancelled.
func (s *Session) Done() bool { return s.state == Complete }

// Submitted reports whether the session completed without cancellation and
// may be queued for review.
func (s *Session) Submitted() bool { return s.state == Complete && !s.cancelled }

// Cancelled reports whether the reporter abandoned the report.
func (s *Session) Cancelled() bool { return s.cancelled }

// Auto reports whether the session was synthesized automatically.
func (s *Session) Auto() bool { return s.auto }

// Target returns the reported message.
func (s *Session) Target() platform.Message { return s.target }

// Window returns the captured conversation around the target.
func (s *Session) Window() []platform.Message { return s.window }

// Reason returns the chosen reason, if any.
func (s *Session) Reason() (Reason, bool) {
	if s.reason < 0 || s.reason >= len(Reasons) {
		return Reason{}, false
	}
	return Reasons[s.reason], true
}

// Subtype returns the chosen subtype, if any.
func (s *Session) Subtype() (Subtype, bool) {
	r, ok := s.Reason()
	if !ok || s.subtype < 0 || s.subtype >= len(r.Subtypes) {
		return Subtype{}, false
	}
	return r.Subtypes[s.subtype], true
}

// Minor returns the reporter's answer to the minor question.
func (s *Session) Minor() Tristate { return s.minor }

// Blocked returns whether the reporter chose to block the reported user.
func (s *Session) Blocked() Tristate { return s.blocked }

// Risk returns the enrichment result the session was finalized with.
func (s *Session) Risk() enrich.Result { return s.risk }

// SubmittedAt returns the finalization time, zero until Complete.
func (s *Session) SubmittedAt() time.Time { return s.submittedAt }

// IsMinor reports the ordering value of the minor flag. Unset sorts as false.
func (s *Session) IsMinor() bool { return s.minor.Bool() }

// HasNudity reports the nudity-in-context flag.
func (s *Session) HasNudity() bool { return s.nudity.Bool() }

// NudityResolved reports whether the nudity flag is no longer pending.
func (s *Session) NudityResolved() bool { return s.nudity != Unset }

// SeverityScore returns the composite severity, zero while unknown.
func (s *Session) SeverityScore() float64 { return s.risk.Severity }

// Handle processes one inbound message and returns the replies to send.
func (s *Session) Handle(ctx context.Context, input string) []string {
	if s.state == Complete {
		return nil
	}

	switch flow.Normalize(input) {
	case flow.KeywordHelp:
		return append([]string(nil), HelpText...)
	case flow.KeywordCancel:
		s.cancel()
		return []string{msgCancelled}
	case flow.KeywordBack:
		if err := s.Back(); err != nil {
			return []string{msgNoBack}
		}
		return s.prompt()
	}

	switch s.state {
	case Start:
		s.state = AwaitingLink
		return []string{msgStart}
	case AwaitingLink:
		return s.handleLink(ctx, input)
	case AwaitingReason:
		return s.handleReason(input)
	case AwaitingSubtype:
		return s.handleSubtype(input)
	case AwaitingMinorFlag:
		s.save()
		s.minor = TristateOf(flow.IsYes(input))
		return s.toConfirmation()
	case AwaitingConfirmation:
		return s.handleConfirmation(ctx, input)
	case AwaitingBlockDecision:
		return s.handleBlockDecision(ctx, input)
	}
	return nil
}

// Back restores the stored snapshot. It returns flow.ErrIllegalTransition
// when there is none; the snapshot is consumed so a second Back fails.
func (s *Session) Back() error {
	if s.prev == nil || s.state == Complete {
		return flow.ErrIllegalTransition
	}
	p := s.prev
	s.prev = nil
	s.state = p.state
	s.reason = p.reason
	s.subtype = p.subtype
	s.minor = p.minor
	return nil
}

func (s *Session) save() {
	s.prev = &snapshot{state: s.state, reason: s.reason, subtype: s.subtype, minor: s.minor}
}

func (s *Session) cancel() {
	s.state = Complete
	s.cancelled = true
	s.prev = nil
}

// prompt re-asks the question of the current state.
func (s *Session) prompt() []string {
	switch s.state {
	case AwaitingLink:
		return []string{msgStart}
	case AwaitingReason:
		return []string{s.reasonPrompt()}
	case AwaitingSubtype:
		return []string{s.subtypePrompt()}
	case AwaitingMinorFlag:
		return []string{msgMinorQuestion}
	case AwaitingConfirmation:
		return s.confirmationPrompt()
	case AwaitingBlockDecision:
		return []string{msgBlockQuestion}
	}
	return nil
}

func (s *Session) handleLink(ctx context.Context, input string) []string {
	m := linkPattern.FindStringSubmatch(input)
	if m == nil {
		return []string{msgBadLink}
	}
	guildID, channelID, messageID := m[1], m[2], m[3]

	if _, err := s.deps.Resolver.Guild(ctx, guildID); err != nil {
		s.logLookup(err, "guild", guildID)
		return []string{msgUnknownGuild}
	}
	if _, err := s.deps.Resolver.Channel(ctx, guildID, channelID); err != nil {
		s.logLookup(err, "channel", channelID)
		return []string{msgUnknownChannel}
	}
	target, err := s.deps.Resolver.FetchMessage(ctx, channelID, messageID)
	if err != nil {
		s.logLookup(err, "message", messageID)
		return []string{msgUnknownMessage}
	}
	if target.GuildID == "" {
		target.GuildID = guildID
	}

	window, err := s.deps.Resolver.FetchWindow(ctx, channelID, messageID, WindowSize)
	if err != nil || len(window) == 0 {
		if err != nil {
			s.log.WithError(err).Warn("fetch history window failed, using target only")
		}
		window = []platform.Message{target}
	}

	s.target = target
	s.window = window
	s.future = s.deps.Enricher.Start(ctx, target, window)
	s.risk = enrich.Result{}
	s.nudity = Unset
	s.resolved = false

	s.save()
	s.state = AwaitingReason
	return []string{s.reasonPrompt()}
}

func (s *Session) logLookup(err error, kind, id string) {
	entry := s.log.WithError(err).WithField(kind+"_id", id)
	if errors.Is(err, platform.ErrUnknownGuild) || errors.Is(err, platform.ErrUnknownChannel) || errors.Is(err, platform.ErrUnknownMessage) {
		entry.Debug("report link did not resolve")
		return
	}
	entry.Warn("report link lookup failed")
}

func (s *Session) handleReason(input string) []string {
	i, err := flow.ParseChoice(input, len(Reasons))
	if err != nil {
		return []string{msgInvalidReason}
	}
	s.save()
	s.reason = i
	s.subtype = -1
	s.minor = Unset
	if len(Reasons[i].Subtypes) == 0 {
		return s.toConfirmation()
	}
	s.state = AwaitingSubtype
	return []string{s.subtypePrompt()}
}

func (s *Session) handleSubtype(input string) []string {
	r := Reasons[s.reason]
	i, err := flow.ParseChoice(input, len(r.Subtypes))
	if err != nil {
		return []string{msgInvalidSubtype}
	}
	s.save()
	s.subtype = i
	s.minor = Unset
	if !r.Subtypes[i].AsksMinor {
		return s.toConfirmation()
	}
	s.state = AwaitingMinorFlag
	return []string{msgMinorQuestion}
}

func (s *Session) toConfirmation() []string {
	s.state = AwaitingConfirmation
	return s.confirmationPrompt()
}

func (s *Session) handleConfirmation(ctx context.Context, input string) []string {
	if flow.Normalize(input) != keywordConfirm {
		return []string{msgInvalidConfirm}
	}
	s.join(ctx)
	s.save()
	s.state = AwaitingBlockDecision

	var replies []string
	if s.minor == Yes {
		replies = append(replies, msgMinorPolicy)
	}
	return append(replies, msgSubmitted, msgBlockQuestion)
}

func (s *Session) handleBlockDecision(ctx context.Context, input string) []string {
	block, err := flow.ParseYesNo(input)
	if err != nil {
		return []string{msgInvalidYesNo}
	}
	s.join(ctx)
	s.blocked = TristateOf(block)
	s.submittedAt = s.deps.Now()
	s.state = Complete
	s.prev = nil
	if block {
		return []string{msgBlocked}
	}
	return []string{msgNotBlocked}
}

// join blocks on the enrichment future. If the wait is abandoned the
// fail-open values are used, and a later join may still pick up the real
// result.
func (s *Session) join(ctx context.Context) {
	if s.resolved {
		return
	}
	res, ok := s.future.Wait(ctx, s.deps.WaitTimeout)
	if !ok {
		metrics.EnrichmentWaitTimeouts.Inc()
		s.log.Warn("enrichment did not resolve in time, using fail-open defaults")
		if s.nudity == Unset {
			s.risk = enrich.Result{}
			s.nudity = No
		}
		return
	}
	s.risk = res
	s.nudity = TristateOf(res.Nudity)
	s.resolved = true
}
