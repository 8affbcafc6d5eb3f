package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/whisper/modbot/internal/enrich"
)

// DefaultPerspectiveURL is the public Perspective comment analyzer endpoint.
const DefaultPerspectiveURL = "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze"

// Perspective scores text with the Perspective comment analyzer.
type Perspective struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewPerspective creates a client. An empty endpoint uses
// DefaultPerspectiveURL.
func NewPerspective(endpoint, apiKey string) *Perspective {
	if endpoint == "" {
		endpoint = DefaultPerspectiveURL
	}
	return &Perspective{endpoint: endpoint, apiKey: apiKey, client: newHTTPClient()}
}

type perspectiveRequest struct {
	Comment struct {
		Text string `json:"text"`
	} `json:"comment"`
	Languages           []string            `json:"languages"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	DoNotStore          bool                `json:"doNotStore"`
}

type perspectiveResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

// Score requests every weighted category for text.
func (p *Perspective) Score(ctx context.Context, text string) (map[enrich.Category]float64, error) {
	var req perspectiveRequest
	req.Comment.Text = text
	req.Languages = []string{"en"}
	req.DoNotStore = true
	req.RequestedAttributes = make(map[string]struct{}, len(enrich.Weights))
	for c := range enrich.Weights {
		req.RequestedAttributes[string(c)] = struct{}{}
	}

	u := p.endpoint
	if p.apiKey != "" {
		u += "?key=" + url.QueryEscape(p.apiKey)
	}

	var resp perspectiveResponse
	if err := postJSON(ctx, p.client, "perspective", u, nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.AttributeScores == nil {
		return nil, errors.New("perspective: response has no attributeScores")
	}

	scores := make(map[enrich.Category]float64, len(resp.AttributeScores))
	for name, s := range resp.AttributeScores {
		v := s.SummaryScore.Value
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("perspective: score %s=%v out of range", name, v)
		}
		scores[enrich.Category(name)] = v
	}
	return scores, nil
}
