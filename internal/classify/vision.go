package classify

import (
	"context"
	"errors"
	"net/http"

	"github.com/whisper/modbot/internal/enrich"
)

// Vision labels images through an HTTP endpoint that accepts
// {"image_url": "..."} and answers {"labels": [{"label", "probability"}]}.
type Vision struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewVision creates a visual classifier client. apiKey, if set, is sent as a
// bearer token.
func NewVision(endpoint, apiKey string) *Vision {
	return &Vision{endpoint: endpoint, apiKey: apiKey, client: newHTTPClient()}
}

type visionRequest struct {
	ImageURL string `json:"image_url"`
}

type visionResponse struct {
	Labels []enrich.Label `json:"labels"`
}

// Classify returns the labels for the image at imageURL.
func (v *Vision) Classify(ctx context.Context, imageURL string) ([]enrich.Label, error) {
	var header http.Header
	if v.apiKey != "" {
		header = http.Header{"Authorization": {"Bearer " + v.apiKey}}
	}

	var resp visionResponse
	if err := postJSON(ctx, v.client, "vision", v.endpoint, header, visionRequest{ImageURL: imageURL}, &resp); err != nil {
		return nil, err
	}
	if resp.Labels == nil {
		return nil, errors.New("vision: response has no labels")
	}
	return resp.Labels, nil
}
