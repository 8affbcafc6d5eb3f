package enrich

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/whisper/modbot/internal/metrics"
	"github.com/whisper/modbot/internal/platform"
)

const tracerName = "github.com/whisper/modbot/internal/enrich"

// DefaultDisplayLanguage is the language reviewers read.
const DefaultDisplayLanguage = "en"

// Config wires the pipeline's collaborators. Any classifier may be nil, in
// which case its signal resolves to the fail-open default.
type Config struct {
	Text            TextClassifier
	Visual          VisualClassifier
	Translator      Translator
	DisplayLanguage string
	Logger          logrus.FieldLogger
}

// Pipeline runs the three enrichment signals concurrently.
type Pipeline struct {
	text       TextClassifier
	visual     VisualClassifier
	translator Translator
	lang       string
	log        logrus.FieldLogger
}

// NewPipeline creates a pipeline from cfg.
func NewPipeline(cfg Config) *Pipeline {
	lang := cfg.DisplayLanguage
	if lang == "" {
		lang = DefaultDisplayLanguage
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Pipeline{
		text:       cfg.Text,
		visual:     cfg.Visual,
		translator: cfg.Translator,
		lang:       lang,
		log:        log.WithField("component", "enrich"),
	}
}

// DisplayLanguage returns the language translations target.
func (p *Pipeline) DisplayLanguage() string { return p.lang }

// Start launches enrichment for target and its surrounding window in the
// background and returns immediately. The run is detached from ctx
// cancellation so that a finished request does not abort the work.
func (p *Pipeline) Start(ctx context.Context, target platform.Message, window []platform.Message) *Future {
	f := newFuture()
	bg := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.WithField("message_id", target.ID).Errorf("panic in enrichment: %v", r)
				f.resolve(Result{})
			}
		}()
		f.resolve(p.Run(bg, target, window))
	}()
	return f
}

// Run computes every signal and blocks until all have resolved.
func (p *Pipeline) Run(ctx context.Context, target platform.Message, window []platform.Message) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "enrich.run")
	defer span.End()
	start := time.Now()

	var res Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Severity, res.Scores = p.Severity(gctx, target.Content)
		return nil
	})
	g.Go(func() error {
		res.Nudity = p.ScanNudity(gctx, window)
		return nil
	})
	g.Go(func() error {
		res.Translation = p.Translate(gctx, target.Content)
		return nil
	})
	_ = g.Wait()

	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("message.id", target.ID),
		attribute.Float64("enrich.severity", res.Severity),
		attribute.Bool("enrich.nudity", res.Nudity),
		attribute.String("enrich.source_lang", res.Translation.SourceLang),
	)
	return res
}

// Severity scores text and returns the weighted composite together with the
// raw category scores. Failures yield zero.
func (p *Pipeline) Severity(ctx context.Context, text string) (float64, map[Category]float64) {
	if p.text == nil || strings.TrimSpace(text) == "" {
		return 0, nil
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "classifier.text")
	defer span.End()

	scores, err := p.text.Score(ctx, text)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("text", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.WithError(err).Warn("text classifier failed, using zero severity")
		return 0, nil
	}
	metrics.ClassifierCalls.WithLabelValues("text", "ok").Inc()
	return Composite(scores), scores
}

// ScanNudity walks the window in order and stops at the first image the
// visual classifier labels explicit above ExplicitThreshold. Failed calls are
// skipped.
func (p *Pipeline) ScanNudity(ctx context.Context, window []platform.Message) bool {
	if p.visual == nil {
		return false
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "classifier.visual")
	defer span.End()

	scanned := 0
	for _, m := range window {
		for _, a := range m.Attachments {
			if !a.IsImage() {
				continue
			}
			if ctx.Err() != nil {
				return false
			}
			scanned++
			labels, err := p.visual.Classify(ctx, a.URL)
			if err != nil {
				metrics.ClassifierCalls.WithLabelValues("visual", "error").Inc()
				p.log.WithError(err).WithField("url", a.URL).Warn("visual classifier failed, skipping image")
				continue
			}
			metrics.ClassifierCalls.WithLabelValues("visual", "ok").Inc()
			if explicit(labels) {
				span.SetAttributes(attribute.Int("images.scanned", scanned), attribute.Bool("nudity", true))
				return true
			}
		}
	}
	span.SetAttributes(attribute.Int("images.scanned", scanned), attribute.Bool("nudity", false))
	return false
}

func explicit(labels []Label) bool {
	for _, l := range labels {
		if strings.EqualFold(l.Name, ExplicitLabel) && l.Probability > ExplicitThreshold {
			return true
		}
	}
	return false
}

// Translate converts text into the display language. On failure the
// original text is returned with no detected language.
func (p *Pipeline) Translate(ctx context.Context, text string) Translation {
	fallback := Translation{Text: text}
	if p.translator == nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "classifier.translate")
	defer span.End()

	tr, err := p.translator.Translate(ctx, text, p.lang)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("translate", "error").Inc()
		span.RecordError(err)
		p.log.WithError(err).Warn("translator failed, keeping original text")
		return fallback
	}
	metrics.ClassifierCalls.WithLabelValues("translate", "ok").Inc()
	return tr
}
