package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/modbot/internal/enrich"
	"github.com/whisper/modbot/internal/platform"
)

var labels = []string{"Spam", "Harassment and Abuse", "Harassment and Abuse: Hate Speech"}

func TestMatch(t *testing.T) {
	tests := []struct {
		answer  string
		want    string
		wantErr bool
	}{
		{"1", "Spam", false},
		{" 3. ", "Harassment and Abuse: Hate Speech", false},
		{"spam", "Spam", false},
		{"I think Harassment and Abuse: Hate Speech fits", "Harassment and Abuse: Hate Speech", false},
		{"`Harassment and Abuse`", "Harassment and Abuse", false},
		{"4", "", true},
		{"graphic", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, err := Match(tt.answer, labels)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoLabel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFallbackLabel(t *testing.T) {
	assert.Equal(t, "Nudity and Sexual Content: Contains explicit content",
		FallbackLabel(map[enrich.Category]float64{enrich.SexuallyExplicit: 0.9, enrich.Toxicity: 0.9}))
	assert.Equal(t, "Harassment and Abuse: Hate Speech",
		FallbackLabel(map[enrich.Category]float64{enrich.IdentityAttack: 1}))
	assert.Equal(t, defaultLabel, FallbackLabel(nil))
}

func TestTranscript(t *testing.T) {
	window := []platform.Message{
		{ID: "1", AuthorName: "a", Content: "hi"},
		{ID: "2", AuthorName: "b", Content: "bad"},
	}
	assert.Equal(t, "a: hi\n>> b: bad\n", Transcript(window, "2"))
}

type stubSelector struct {
	label string
	err   error
}

func (s stubSelector) Select(context.Context, string, []string) (string, error) {
	return s.label, s.err
}

func TestClassifier(t *testing.T) {
	log, hook := test.NewNullLogger()
	target := platform.Message{ID: "t"}

	c := NewClassifier(stubSelector{label: "Spam"}, log)
	cd := c.Classify(context.Background(), target, nil, nil)
	assert.Equal(t, "Spam", cd.Label)
	assert.Equal(t, -1, cd.Subtype)

	c = NewClassifier(stubSelector{err: errors.New("down")}, log)
	cd = c.Classify(context.Background(), target, nil, map[enrich.Category]float64{enrich.Threat: 1})
	assert.Equal(t, "Harassment and Abuse: Targeted Harassment", cd.Label)
	assert.Equal(t, 1, cd.Reason)
	assert.NotEmpty(t, hook.Entries)

	c = NewClassifier(nil, log)
	cd = c.Classify(context.Background(), target, nil, nil)
	assert.Equal(t, defaultLabel, cd.Label)

	spam := platform.Message{ID: "s", Content: "free stuff at http://evil.com"}
	cd = c.Classify(context.Background(), spam, nil, map[enrich.Category]float64{enrich.Threat: 1})
	assert.Equal(t, "Spam", cd.Label)
}

func TestClaudeSelect(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "3"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 1}
		}`))
	}))
	defer srv.Close()

	c := NewClaude("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	got, err := c.Select(context.Background(), ">> u: hateful words\n", labels)
	require.NoError(t, err)
	assert.Equal(t, "Harassment and Abuse: Hate Speech", got)
	assert.Equal(t, "claude-test", gotBody["model"])
}

func TestClaudeSelect_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	c := NewClaude("k", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.Select(context.Background(), "x", labels)
	assert.Error(t, err)
}
