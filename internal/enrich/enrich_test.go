package enrich

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/whisper/modbot/internal/platform"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeText struct {
	scores map[Category]float64
	err    error
}

func (f *fakeText) Score(_ context.Context, _ string) (map[Category]float64, error) {
	return f.scores, f.err
}

type fakeVisual struct {
	mu     sync.Mutex
	labels map[string][]Label
	errs   map[string]error
	calls  []string
}

func (f *fakeVisual) Classify(_ context.Context, url string) ([]Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.labels[url], nil
}

type fakeTranslator struct {
	out Translation
	err error
}

func (f *fakeTranslator) Translate(_ context.Context, _, _ string) (Translation, error) {
	return f.out, f.err
}

type blockingText struct{ release chan struct{} }

func (b *blockingText) Score(ctx context.Context, _ string) (map[Category]float64, error) {
	select {
	case <-b.release:
		return map[Category]float64{Threat: 1}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestPipeline(cfg Config) *Pipeline {
	log, _ := test.NewNullLogger()
	cfg.Logger = log
	return NewPipeline(cfg)
}

func img(url string) platform.Attachment {
	return platform.Attachment{URL: url, ContentType: "image/png"}
}

// ---------------------------------------------------------------------------
// Severity
// ---------------------------------------------------------------------------

func TestComposite(t *testing.T) {
	tests := []struct {
		name   string
		scores map[Category]float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", map[Category]float64{SexuallyExplicit: 1}, 0.3},
		{"all max", map[Category]float64{
			SexuallyExplicit: 1, Threat: 1, SevereToxicity: 1, IdentityAttack: 1,
			Toxicity: 1, Insult: 1, Profanity: 1, Flirtation: 1,
		}, 1},
		{"unknown ignored", map[Category]float64{"SPAM": 1, Threat: 0.4}, 0.1},
		{"clamped", map[Category]float64{Threat: 3, Insult: -1}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Composite(tt.scores)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Composite(%v) = %v, want %v", tt.scores, got, tt.want)
			}
		})
	}
}

func TestTopCategory(t *testing.T) {
	c, ok := TopCategory(map[Category]float64{Toxicity: 0.9, Threat: 0.5, Insult: 1})
	require.True(t, ok)
	assert.Equal(t, Threat, c)

	_, ok = TopCategory(map[Category]float64{"UNKNOWN": 1})
	assert.False(t, ok)
}

func TestSeverity_FailsOpen(t *testing.T) {
	p := newTestPipeline(Config{Text: &fakeText{err: errors.New("boom")}})
	sev, scores := p.Severity(context.Background(), "hello")
	assert.Zero(t, sev)
	assert.Nil(t, scores)
}

func TestSeverity_NoClassifier(t *testing.T) {
	p := newTestPipeline(Config{})
	sev, _ := p.Severity(context.Background(), "hello")
	assert.Zero(t, sev)
}

// ---------------------------------------------------------------------------
// Nudity scan
// ---------------------------------------------------------------------------

func TestScanNudity_ShortCircuits(t *testing.T) {
	visual := &fakeVisual{labels: map[string][]Label{
		"a.png": {{Name: "explicit", Probability: 0.2}},
		"b.png": {{Name: "explicit", Probability: 0.9}},
		"c.png": {{Name: "explicit", Probability: 0.99}},
	}}
	p := newTestPipeline(Config{Visual: visual})
	window := []platform.Message{
		{ID: "1", Attachments: []platform.Attachment{img("a.png")}},
		{ID: "2", Content: "no images"},
		{ID: "3", Attachments: []platform.Attachment{{URL: "doc.pdf", Filename: "doc.pdf"}, img("b.png")}},
		{ID: "4", Attachments: []platform.Attachment{img("c.png")}},
	}

	require.True(t, p.ScanNudity(context.Background(), window))
	assert.Equal(t, []string{"a.png", "b.png"}, visual.calls)
}

func TestScanNudity_ThresholdIsExclusive(t *testing.T) {
	visual := &fakeVisual{labels: map[string][]Label{
		"a.png": {{Name: "explicit", Probability: 0.5}, {Name: "safe", Probability: 0.99}},
	}}
	p := newTestPipeline(Config{Visual: visual})
	window := []platform.Message{{Attachments: []platform.Attachment{img("a.png")}}}
	assert.False(t, p.ScanNudity(context.Background(), window))
}

func TestScanNudity_AllErrorsResolveFalse(t *testing.T) {
	visual := &fakeVisual{errs: map[string]error{
		"a.png": errors.New("timeout"),
		"b.png": errors.New("bad json"),
	}}
	p := newTestPipeline(Config{Visual: visual})
	window := []platform.Message{
		{Attachments: []platform.Attachment{img("a.png")}},
		{Attachments: []platform.Attachment{img("b.png")}},
	}
	assert.False(t, p.ScanNudity(context.Background(), window))
	assert.Len(t, visual.calls, 2)
}

// ---------------------------------------------------------------------------
// Translation
// ---------------------------------------------------------------------------

func TestTranslate(t *testing.T) {
	p := newTestPipeline(Config{Translator: &fakeTranslator{out: Translation{Text: "hello", SourceLang: "es"}}})
	assert.Equal(t, Translation{Text: "hello", SourceLang: "es"}, p.Translate(context.Background(), "hola"))

	p = newTestPipeline(Config{Translator: &fakeTranslator{err: errors.New("quota")}})
	assert.Equal(t, Translation{Text: "hola"}, p.Translate(context.Background(), "hola"))
}

// ---------------------------------------------------------------------------
// Pipeline and future
// ---------------------------------------------------------------------------

func TestStart_ResolvesAllSignals(t *testing.T) {
	p := newTestPipeline(Config{
		Text:       &fakeText{scores: map[Category]float64{SexuallyExplicit: 1, Threat: 1}},
		Visual:     &fakeVisual{labels: map[string][]Label{"n.png": {{Name: "Explicit", Probability: 0.8}}}},
		Translator: &fakeTranslator{out: Translation{Text: "hi", SourceLang: "fr"}},
	})
	target := platform.Message{ID: "t", Content: "salut"}
	window := []platform.Message{target, {ID: "n", Attachments: []platform.Attachment{img("n.png")}}}

	f := p.Start(context.Background(), target, window)
	res, ok := f.Wait(context.Background(), time.Second)
	require.True(t, ok)
	assert.InDelta(t, 0.55, res.Severity, 1e-9)
	assert.True(t, res.Nudity)
	assert.Equal(t, "fr", res.Translation.SourceLang)
}

func TestStart_SurvivesCallerCancellation(t *testing.T) {
	p := newTestPipeline(Config{Text: &fakeText{scores: map[Category]float64{Threat: 1}}})
	ctx, cancel := context.WithCancel(context.Background())
	f := p.Start(ctx, platform.Message{Content: "x"}, nil)
	cancel()

	res, ok := f.Wait(context.Background(), time.Second)
	require.True(t, ok)
	assert.InDelta(t, 0.25, res.Severity, 1e-9)
}

func TestFutureWait_TimeoutFailsOpen(t *testing.T) {
	bt := &blockingText{release: make(chan struct{})}
	defer close(bt.release)
	p := newTestPipeline(Config{Text: bt})

	f := p.Start(context.Background(), platform.Message{Content: "x"}, nil)
	res, ok := f.Wait(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, Result{}, res)
	assert.False(t, f.Ready())
}

func TestFutureWait_NoTimeoutWaits(t *testing.T) {
	bt := &blockingText{release: make(chan struct{})}
	p := newTestPipeline(Config{Text: bt})
	f := p.Start(context.Background(), platform.Message{Content: "x"}, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(bt.release)
	}()
	res, ok := f.Wait(context.Background(), 0)
	require.True(t, ok)
	assert.InDelta(t, 0.25, res.Severity, 1e-9)
}

func TestResolved(t *testing.T) {
	f := Resolved(Result{Severity: 0.7})
	require.True(t, f.Ready())
	res, ok := f.Wait(context.Background(), 0)
	assert.True(t, ok)
	assert.Equal(t, 0.7, res.Severity)

	var nilFuture *Future
	_, ok = nilFuture.Wait(context.Background(), 0)
	assert.False(t, ok)
}

func TestRun_CreatesSpans(t *testing.T) {
	// Not parallel: swaps the global OTel tracer provider.
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	p := newTestPipeline(Config{
		Text:       &fakeText{scores: map[Category]float64{Insult: 1}},
		Visual:     &fakeVisual{},
		Translator: &fakeTranslator{out: Translation{Text: "x", SourceLang: "en"}},
	})
	p.Run(context.Background(), platform.Message{ID: "m", Content: "x"}, nil)

	counts := make(map[string]int)
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++
	}
	for _, name := range []string{"enrich.run", "classifier.text", "classifier.visual", "classifier.translate"} {
		if counts[name] != 1 {
			t.Errorf("%s spans = %d, want 1", name, counts[name])
		}
	}
}
