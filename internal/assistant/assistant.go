// Package assistant picks the most likely report reason for an automatically
// detected message. A language model chooses among the fixed candidate
// labels; when it is unavailable or answers off-list, a spam heuristic or the
// reason implied by the heaviest text risk category is used instead.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/enrich"
	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/platform"
	"github.com/whisper/modbot/internal/report"
)

// ErrNoLabel is returned when an answer matches none of the candidates.
var ErrNoLabel = errors.New("assistant: answer matches no candidate label")

// Selector chooses exactly one of labels for a transcript.
type Selector interface {
	Select(ctx context.Context, transcript string, labels []string) (string, error)
}

// categoryLabels maps a dominant text category to a candidate label.
var categoryLabels = map[enrich.Category]string{
	enrich.SexuallyExplicit: "Nudity and Sexual Content: Contains explicit content",
	enrich.Threat:           "Harassment and Abuse: Targeted Harassment",
	enrich.IdentityAttack:   "Harassment and Abuse: Hate Speech",
	enrich.Flirtation:       "Harassment and Abuse: Sexual Harassment",
	enrich.SevereToxicity:   "Offensive Content",
	enrich.Toxicity:         "Offensive Content",
	enrich.Insult:           "Offensive Content",
	enrich.Profanity:        "Offensive Content",
}

const defaultLabel = "Offensive Content"

// FallbackLabel returns the label implied by the heaviest weighted category.
func FallbackLabel(scores map[enrich.Category]float64) string {
	if c, ok := enrich.TopCategory(scores); ok {
		if l, ok := categoryLabels[c]; ok {
			return l
		}
	}
	return defaultLabel
}

// Transcript renders messages one per line as "author: content", marking
// the target with ">>".
func Transcript(window []platform.Message, targetID string) string {
	var b strings.Builder
	for _, m := range window {
		if m.ID == targetID {
			b.WriteString(">> ")
		}
		fmt.Fprintf(&b, "%s: %s\n", m.AuthorName, m.Content)
	}
	return b.String()
}

// Match resolves a free-form answer to one of labels. A bare 1-based number
// selects by position; otherwise the answer must name a label, ignoring case
// and surrounding punctuation.
func Match(answer string, labels []string) (string, error) {
	a := strings.Trim(strings.TrimSpace(answer), ".`*\"'")
	if n, err := strconv.Atoi(a); err == nil {
		if n >= 1 && n <= len(labels) {
			return labels[n-1], nil
		}
		return "", fmt.Errorf("%w: index %d", ErrNoLabel, n)
	}
	for _, l := range labels {
		if strings.EqualFold(a, l) {
			return l, nil
		}
	}
	// Longest contained label wins so "X: Y" beats "X".
	best := ""
	lower := strings.ToLower(a)
	for _, l := range labels {
		if strings.Contains(lower, strings.ToLower(l)) && len(l) > len(best) {
			best = l
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %q", ErrNoLabel, answer)
	}
	return best, nil
}

// Classifier combines a Selector with the category fallback.
type Classifier struct {
	sel Selector // may be nil
	log logrus.FieldLogger
}

// NewClassifier creates a Classifier. sel may be nil to always use the
// fallback.
func NewClassifier(sel Selector, log logrus.FieldLogger) *Classifier {
	return &Classifier{sel: sel, log: log.WithField("component", "assistant")}
}

// Classify picks a report candidate for target given its window and text
// risk scores.
func (c *Classifier) Classify(ctx context.Context, target platform.Message, window []platform.Message, scores map[enrich.Category]float64) report.Candidate {
	cands := report.Candidates()
	labels := make([]string, len(cands))
	for i, cd := range cands {
		labels[i] = cd.Label
	}

	label := FallbackLabel(scores)
	if check, ok := SpamPattern(target.Content); ok {
		c.log.WithFields(logrus.Fields{"message_id": target.ID, "check": check}).Debug("spam pattern matched")
		label = spamLabel
	}
	if c.sel != nil {
		chosen, err := c.sel.Select(ctx, Transcript(window, target.ID), labels)
		if err != nil {
			metrics.ClassifierCalls.WithLabelValues("assistant", "error").Inc()
			c.log.WithError(err).WithField("message_id", target.ID).Warn("reasoning assistant failed, using category fallback")
		} else {
			metrics.ClassifierCalls.WithLabelValues("assistant", "ok").Inc()
			label = chosen
		}
	}

	cd, ok := report.CandidateByLabel(label)
	if !ok {
		cd, _ = report.CandidateByLabel(defaultLabel)
	}
	return cd
}
