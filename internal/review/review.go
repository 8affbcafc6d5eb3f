// Package review implements the moderator decision tree for a finalized
// report. Each state declares its yes/no edges and a fixed predecessor for
// back; there is no generic undo stack. Handling input is pure: side
// effects come back as Commands for the caller to execute.
package review

import (
	"fmt"

	"github.com/whisper/modbot/internal/flow"
	"github.com/whisper/modbot/internal/report"
)

// StartKeyword begins reviewing the queue head.
const StartKeyword = "review"

// State is a node of the decision tree.
type State int

const (
	// Complete is the entry state inherited from the finished report.
	Complete State = iota
	NonconsensualQ
	NudityQ
	MinorQ
	GuidelinesQ
	AdversarialQ

	// Terminal states.
	EscalatedChildSafety
	EscalatedLawEnforcement
	EscalatedPlatform
	ReporterBanned
	NoAction
)

var stateNames = [...]string{
	Complete:                "complete",
	NonconsensualQ:          "nonconsensual_q",
	NudityQ:                 "nudity_q",
	MinorQ:                  "minor_q",
	GuidelinesQ:             "guidelines_q",
	AdversarialQ:            "adversarial_q",
	EscalatedChildSafety:    "escalated_child_safety",
	EscalatedLawEnforcement: "escalated_law_enforcement",
	EscalatedPlatform:       "escalated_platform",
	ReporterBanned:          "reporter_banned",
	NoAction:                "no_action",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends the review.
func (s State) Terminal() bool { return s >= EscalatedChildSafety }

// CommandKind names a side effect.
type CommandKind int

const (
	// DeleteMessage removes the reported message. Irreversible.
	DeleteMessage CommandKind = iota
	// BanUser bans the reported author from the guild.
	BanUser
	// ReportBan bars the reporter from filing further reports.
	ReportBan
)

func (k CommandKind) String() string {
	switch k {
	case DeleteMessage:
		return "delete_message"
	case BanUser:
		return "ban_user"
	case ReportBan:
		return "report_ban"
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one side effect requested by a transition.
type Command struct {
	Kind      CommandKind
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Reason    string
}

// Decision is the result of handling one moderator message. Commands must
// be executed before Replies are sent.
type Decision struct {
	Replies  []string
	Commands []Command
	// Done is set when the tree reached a terminal state.
	Done bool
}

type edge struct {
	next         State
	effects      []CommandKind
	replies      []string
	irreversible bool
}

type node struct {
	prompt  string
	back    State
	hasBack bool
	yes, no edge
}

const (
	promptNonconsensual = "Is there a threat of nonconsensual sharing of intimate images? Reply `yes` or `no`."
	promptNudity        = "Does the reported content contain nudity? Reply `yes` or `no`."
	promptMinor         = "Is the person depicted or threatened a minor? Reply `yes` or `no`."
	promptGuidelines    = "Does the content violate the community guidelines in a way that needs platform escalation? Reply `yes` or `no`."
	promptAdversarial   = "Does this report appear to be adversarial or filed in bad faith? Reply `yes` or `no`."

	msgDeleted        = "The reported message has been deleted."
	msgChildSafety    = "Escalate this report to the child-safety authority (NCMEC) and to law enforcement."
	msgLawEnforcement = "Escalate this report to law enforcement."
	msgUserBanned     = "The reported user has been banned."
	msgPlatform       = "Escalate this report to the platform trust and safety team."
	msgReporterBanned = "The reporter has been banned from filing further reports."
	msgNoAction       = "No further action taken."
	msgReviewDone     = "Review complete."

	msgInvalid     = "Invalid input. Please reply `yes` or `no`."
	msgNoBack      = "There is no previous question to go back to."
	msgBackBlocked = "The reported message has already been deleted, so this review cannot go back past that step."
	msgResume      = "Reply `review` to continue reviewing this report."
)

// tree is the explicit transition map. Back targets are fixed per state.
var tree = map[State]node{
	NonconsensualQ: {
		prompt: promptNonconsensual, back: Complete, hasBack: true,
		yes: edge{next: NudityQ},
		no:  edge{next: GuidelinesQ},
	},
	NudityQ: {
		prompt: promptNudity, back: NonconsensualQ, hasBack: true,
		yes: edge{next: MinorQ, effects: []CommandKind{DeleteMessage}, replies: []string{msgDeleted}, irreversible: true},
		no:  edge{next: MinorQ},
	},
	MinorQ: {
		prompt: promptMinor, back: NudityQ, hasBack: true,
		yes: edge{next: EscalatedChildSafety, effects: []CommandKind{BanUser}, replies: []string{msgChildSafety, msgUserBanned}},
		no:  edge{next: EscalatedLawEnforcement, effects: []CommandKind{BanUser}, replies: []string{msgLawEnforcement, msgUserBanned}},
	},
	GuidelinesQ: {
		prompt: promptGuidelines, back: NonconsensualQ, hasBack: true,
		yes: edge{next: EscalatedPlatform, replies: []string{msgPlatform}},
		no:  edge{next: AdversarialQ},
	},
	AdversarialQ: {
		prompt: promptAdversarial, back: GuidelinesQ, hasBack: true,
		yes: edge{next: ReporterBanned, effects: []CommandKind{ReportBan}, replies: []string{msgReporterBanned}},
		no:  edge{next: NoAction, replies: []string{msgNoAction}},
	},
}

// Review walks one report through the decision tree. It is not safe for
// concurrent use.
type Review struct {
	report      *report.Session
	state       State
	committed   bool
	displayLang string
}

// New wraps a finalized report. displayLang is the reviewer language used to
// decide whether to show a translation.
func New(s *report.Session, displayLang string) *Review {
	return &Review{report: s, state: Complete, displayLang: displayLang}
}

// Report returns the wrapped report.
func (r *Review) Report() *report.Session { return r.report }

// State returns the current node.
func (r *Review) State() State { return r.state }

// Done reports whether the review reached a terminal state.
func (r *Review) Done() bool { return r.state.Terminal() }

// Handle processes one moderator message.
func (r *Review) Handle(input string) Decision {
	if r.state.Terminal() {
		return Decision{Done: true}
	}
	if r.state == Complete {
		if flow.Normalize(input) == flow.KeywordBack {
			return Decision{Replies: []string{msgNoBack}}
		}
		r.state = NonconsensualQ
		return Decision{Replies: []string{r.Summary(), promptNonconsensual}}
	}

	n := tree[r.state]
	if flow.Normalize(input) == flow.KeywordBack {
		return r.back()
	}

	yes, err := flow.ParseYesNo(input)
	if err != nil {
		return Decision{Replies: []string{msgInvalid}}
	}
	e := n.no
	if yes {
		e = n.yes
	}

	d := Decision{Commands: r.commands(e.effects)}
	if e.irreversible {
		r.committed = true
	}
	r.state = e.next
	d.Replies = append(d.Replies, e.replies...)
	if r.state.Terminal() {
		d.Replies = append(d.Replies, msgReviewDone)
		d.Done = true
		return d
	}
	d.Replies = append(d.Replies, tree[r.state].prompt)
	return d
}

// Back moves to the current state's declared predecessor. It fails with
// flow.ErrIllegalTransition when the state declares none or when an
// irreversible effect has already run.
func (r *Review) Back() error {
	n, ok := tree[r.state]
	if !ok || !n.hasBack || r.committed {
		return flow.ErrIllegalTransition
	}
	r.state = n.back
	return nil
}

func (r *Review) back() Decision {
	if r.committed {
		return Decision{Replies: []string{msgBackBlocked}}
	}
	if err := r.Back(); err != nil {
		return Decision{Replies: []string{msgNoBack}}
	}
	if r.state == Complete {
		return Decision{Replies: []string{r.Summary(), msgResume}}
	}
	return Decision{Replies: []string{tree[r.state].prompt}}
}

func (r *Review) commands(kinds []CommandKind) []Command {
	target := r.report.Target()
	var out []Command
	for _, k := range kinds {
		switch k {
		case DeleteMessage:
			out = append(out, Command{Kind: k, GuildID: target.GuildID, ChannelID: target.ChannelID, MessageID: target.ID})
		case BanUser:
			out = append(out, Command{Kind: k, GuildID: target.GuildID, UserID: target.AuthorID, Reason: r.banReason()})
		case ReportBan:
			if r.report.ReporterID == "" {
				continue
			}
			out = append(out, Command{Kind: k, UserID: r.report.ReporterID, Reason: "adversarial report"})
		}
	}
	return out
}

func (r *Review) banReason() string {
	if reason, ok := r.report.Reason(); ok {
		return "moderator review: " + reason.Name
	}
	return "moderator review"
}
