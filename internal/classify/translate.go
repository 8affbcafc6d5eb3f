package classify

import (
	"context"
	"errors"
	"html"
	"net/http"
	"net/url"

	"github.com/whisper/modbot/internal/enrich"
)

// DefaultTranslateURL is the Google Cloud Translation v2 endpoint.
const DefaultTranslateURL = "https://translation.googleapis.com/language/translate/v2"

// Translate is a Cloud Translation v2 client.
type Translate struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewTranslate creates a translator. An empty endpoint uses
// DefaultTranslateURL.
func NewTranslate(endpoint, apiKey string) *Translate {
	if endpoint == "" {
		endpoint = DefaultTranslateURL
	}
	return &Translate{endpoint: endpoint, apiKey: apiKey, client: newHTTPClient()}
}

type translateRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate converts text into targetLang and reports the detected source
// language.
func (t *Translate) Translate(ctx context.Context, text, targetLang string) (enrich.Translation, error) {
	u := t.endpoint
	if t.apiKey != "" {
		u += "?key=" + url.QueryEscape(t.apiKey)
	}

	var resp translateResponse
	req := translateRequest{Q: text, Target: targetLang, Format: "text"}
	if err := postJSON(ctx, t.client, "translate", u, nil, req, &resp); err != nil {
		return enrich.Translation{}, err
	}
	if len(resp.Data.Translations) == 0 {
		return enrich.Translation{}, errors.New("translate: response has no translations")
	}
	tr := resp.Data.Translations[0]
	return enrich.Translation{
		Text:       html.UnescapeString(tr.TranslatedText),
		SourceLang: tr.DetectedSourceLanguage,
	}, nil
}
