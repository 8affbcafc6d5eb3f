// Package enrich computes the risk signals attached to a report: a weighted
// severity score from a text classifier, a nudity-in-context flag from a
// visual classifier run over the surrounding conversation, and a translation
// of the reported message for reviewers.
//
// Every signal fails open. A classifier that errors, times out, or returns
// garbage contributes its least alarming value and the pipeline carries on.
package enrich

import (
	"context"
	"sort"
)

// Category is a named text risk category.
type Category string

// Text risk categories understood by the severity score.
const (
	SexuallyExplicit Category = "SEXUALLY_EXPLICIT"
	Threat           Category = "THREAT"
	SevereToxicity   Category = "SEVERE_TOXICITY"
	IdentityAttack   Category = "IDENTITY_ATTACK"
	Toxicity         Category = "TOXICITY"
	Insult           Category = "INSULT"
	Profanity        Category = "PROFANITY"
	Flirtation       Category = "FLIRTATION"
)

// Weights is the fixed contribution of each category to the composite
// severity. The weights sum to one so the score stays in [0,1].
var Weights = map[Category]float64{
	SexuallyExplicit: 0.30,
	Threat:           0.25,
	SevereToxicity:   0.15,
	IdentityAttack:   0.10,
	Toxicity:         0.10,
	Insult:           0.05,
	Profanity:        0.025,
	Flirtation:       0.025,
}

// Categories returns the weighted categories, heaviest first.
func Categories() []Category {
	out := make([]Category, 0, len(Weights))
	for c := range Weights {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if Weights[out[i]] != Weights[out[j]] {
			return Weights[out[i]] > Weights[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// ExplicitLabel is the visual label that marks nudity.
const ExplicitLabel = "explicit"

// ExplicitThreshold is the probability above which an image counts as
// explicit.
const ExplicitThreshold = 0.5

// TextClassifier scores raw text. Scores are keyed by category name and lie
// in [0,1].
type TextClassifier interface {
	Score(ctx context.Context, text string) (map[Category]float64, error)
}

// Label is one (label, probability) pair returned by a visual classifier.
type Label struct {
	Name        string  `json:"label"`
	Probability float64 `json:"probability"`
}

// VisualClassifier labels an image reference.
type VisualClassifier interface {
	Classify(ctx context.Context, imageURL string) ([]Label, error)
}

// Translation is translated text plus the detected source language code.
type Translation struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang,omitempty"`
}

// Translator converts text into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (Translation, error)
}

// Result is the outcome of one enrichment run. The zero value is the
// fail-open result.
type Result struct {
	Severity    float64              `json:"severity"`
	Scores      map[Category]float64 `json:"scores,omitempty"`
	Nudity      bool                 `json:"nudity"`
	Translation Translation          `json:"translation"`
}

// Composite folds per-category scores into the weighted severity. Categories
// without a weight contribute nothing; scores outside [0,1] are clamped.
func Composite(scores map[Category]float64) float64 {
	var total float64
	for c, v := range scores {
		w, ok := Weights[c]
		if !ok {
			continue
		}
		switch {
		case v < 0:
			v = 0
		case v > 1:
			v = 1
		}
		total += w * v
	}
	return total
}

// TopCategory returns the category with the largest weighted contribution.
// It returns false when no weighted category scored above zero.
func TopCategory(scores map[Category]float64) (Category, bool) {
	var (
		best  Category
		value float64
	)
	for _, c := range Categories() {
		if v := scores[c] * Weights[c]; v > value {
			best, value = c, v
		}
	}
	return best, value > 0
}
