package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/modbot/internal/enrich"
	"github.com/whisper/modbot/internal/platform"
	"github.com/whisper/modbot/internal/report"
)

type fakeSource struct {
	queue  []*report.Session
	active int
}

func (f fakeSource) Queue() []*report.Session { return f.queue }
func (f fakeSource) ActiveReports() int       { return f.active }

func newTestAPI(t *testing.T, src QueueSource, checks map[string]Check) http.Handler {
	t.Helper()
	log, _ := test.NewNullLogger()
	return New(log, src, checks).Handler()
}

func TestHealth(t *testing.T) {
	h := newTestAPI(t, fakeSource{}, map[string]Check{
		"nats": func(context.Context) error { return nil },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["nats"])
}

func TestHealth_Degraded(t *testing.T) {
	h := newTestAPI(t, fakeSource{}, map[string]Check{
		"nats":  func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestQueue(t *testing.T) {
	target := platform.Message{ID: "3", GuildID: "1", ChannelID: "2", AuthorID: "u9", Content: "x"}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := report.Synthesize(target, nil, 1, 4, enrich.Result{Severity: 0.8}, now)
	second := report.Synthesize(target, nil, 4, -1, enrich.Result{Severity: 0.6}, now)

	h := newTestAPI(t, fakeSource{queue: []*report.Session{first, second}, active: 2}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body queueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.ActiveReports)
	require.Len(t, body.Reports, 2)

	assert.Equal(t, 1, body.Reports[0].Position)
	assert.Equal(t, first.ID, body.Reports[0].ReportID)
	assert.Equal(t, "Harassment and Abuse", body.Reports[0].Reason)
	assert.Equal(t, "Targeted Harassment", body.Reports[0].Subtype)
	assert.True(t, body.Reports[0].Auto)
	assert.Equal(t, "https://discord.com/channels/1/2/3", body.Reports[0].MessageURL)

	assert.Equal(t, "Spam", body.Reports[1].Reason)
	assert.Empty(t, body.Reports[1].Subtype)
}

func TestMetricsRoute(t *testing.T) {
	h := newTestAPI(t, fakeSource{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modbot_triage_queue_size")
}
