// Package pipeline orchestrates the drafting stages that turn a diarized
// transcript into a structured clinical record.
//
// The flow is fixed: normalize the turns, route them to a template and
// extract a partial record from the rule tables, draft the full record with
// the LLM (falling back to the extracted partial when the model is missing,
// fails, or returns garbage), canonicalize, then retrieve evidence-backed
// suggestions. Every result carries an outcome tag so callers can tell a
// model draft from a rule fallback.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/canon"
	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
	"github.com/Escorpio024/scribe-ia-aurora/internal/extract"
	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/normalize"
	"github.com/Escorpio024/scribe-ia-aurora/internal/observe"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/internal/router"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
)

// Status summarizes how a draft was produced.
type Status string

const (
	// StatusOK means the LLM drafted the record.
	StatusOK Status = "ok"

	// StatusDegraded means the record was drafted but a supporting stage
	// (routing boost, evidence retrieval) worked on partial information.
	StatusDegraded Status = "degraded"

	// StatusFallback means the record came from rule extraction because the
	// LLM path was unavailable or unusable.
	StatusFallback Status = "fallback"
)

// Reason codes attached to non-ok outcomes.
const (
	ReasonLLMUnavailable  = "llm_unavailable"
	ReasonLLMError        = "llm_error"
	ReasonLLMInvalidJSON  = "llm_invalid_json"
	ReasonRoutingDegraded = "routing_degraded"
	ReasonFastPath        = "fast_path"
)

// Outcome tags a result with how it was produced.
type Outcome struct {
	Status  Status   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

// Result is one full pipeline run.
type Result struct {
	// Record is the canonicalized clinical record.
	Record record.Record `json:"json_clinico"`

	// Decision is the routing decision the draft was prompted with.
	Decision router.Decision `json:"decision"`

	// Augmented holds evidence-derived suggestions and their provenance.
	// Suggestions are offered alongside the record, never merged into it.
	Augmented *evidence.Augmented `json:"augmented,omitempty"`

	// Outcome tags the run.
	Outcome Outcome `json:"outcome"`

	// Model names the LLM that drafted the record, empty on fallback.
	Model string `json:"model,omitempty"`
}

// Augmenter proposes evidence-backed fills for a record. Implemented by
// [evidence.Retriever].
type Augmenter interface {
	Augment(rec record.Record, templateID string, topK int, bias evidence.Bias) evidence.Augmented
}

var _ Augmenter = (*evidence.Retriever)(nil)

// Generator runs the drafting pipeline. Construct with [New]; safe for
// concurrent use.
type Generator struct {
	router    *router.Router
	llm       llm.Provider
	augmenter Augmenter
	topK      int
	bias      evidence.Bias
	maxTokens int
	metrics   *observe.Metrics
	log       *slog.Logger
	fast      *Fast
}

// Option configures a Generator.
type Option func(*Generator)

// WithLLM sets the drafting model. Without one every run falls back to rule
// extraction.
func WithLLM(p llm.Provider) Option {
	return func(g *Generator) { g.llm = p }
}

// WithRouter replaces the default rule-only router.
func WithRouter(r *router.Router) Option {
	return func(g *Generator) { g.router = r }
}

// WithAugmenter enables evidence-backed suggestions on every run.
func WithAugmenter(a Augmenter) Option {
	return func(g *Generator) { g.augmenter = a }
}

// WithTopK sets how many similar cases the augmenter retrieves. Default: 3.
func WithTopK(k int) Option {
	return func(g *Generator) {
		if k > 0 {
			g.topK = k
		}
	}
}

// WithBias overrides the default augmentation bias.
func WithBias(b evidence.Bias) Option {
	return func(g *Generator) { g.bias = b }
}

// WithMaxTokens caps the draft completion length. Zero uses the provider
// default.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithMetrics enables stage and token metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// New returns a Generator with the given options applied.
func New(opts ...Option) *Generator {
	g := &Generator{
		router: router.New(),
		topK:   3,
		bias:   evidence.DefaultBias(),
		log:    slog.Default(),
		fast:   NewFast(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs the full pipeline over the transcript.
func (g *Generator) Generate(ctx context.Context, turns []ingest.Turn) Result {
	turns = normalizeTurns(turns)

	start := time.Now()
	dec := g.router.Route(ctx, turns)
	g.recordStage(ctx, "route", start)

	start = time.Now()
	extracted := extract.FromTurns(turns)
	g.recordStage(ctx, "extract", start)

	var res Result
	res.Decision = dec

	start = time.Now()
	rec, outcome, model := g.draft(ctx, dec.TemplateID, turns, extracted)
	g.recordStage(ctx, "draft", start)
	res.Model = model

	start = time.Now()
	res.Record = canon.Apply(rec)
	g.recordStage(ctx, "canonicalize", start)

	if g.augmenter != nil {
		start = time.Now()
		aug := g.augmenter.Augment(res.Record, dec.TemplateID, g.topK, g.bias)
		res.Augmented = &aug
		if g.metrics != nil {
			g.metrics.RecordRetrieval(ctx, dec.TemplateID, time.Since(start).Seconds(), len(aug.Provenance))
		}
	}

	if dec.Degraded {
		outcome.Reasons = append(outcome.Reasons, ReasonRoutingDegraded)
		if outcome.Status == StatusOK {
			outcome.Status = StatusDegraded
		}
	}
	res.Outcome = outcome

	if g.metrics != nil {
		g.metrics.RecordDraft(ctx, string(outcome.Status), dec.TemplateID)
	}
	g.log.InfoContext(ctx, "record generated",
		"template", dec.TemplateID,
		"status", outcome.Status,
		"reasons", outcome.Reasons,
	)
	return res
}

// GenerateFast runs the heuristic path: no routing boost, no LLM, results
// cached by transcript hash.
func (g *Generator) GenerateFast(ctx context.Context, turns []ingest.Turn) Result {
	turns = normalizeTurns(turns)

	rec, cached := g.fast.Generate(turns)
	res := Result{
		Record:  canon.Apply(rec),
		Outcome: Outcome{Status: StatusOK, Reasons: []string{ReasonFastPath}},
	}
	res.Decision.TemplateID = router.DefaultTemplate

	if g.metrics != nil {
		g.metrics.RecordDraft(ctx, string(res.Outcome.Status), res.Decision.TemplateID)
	}
	g.log.InfoContext(ctx, "record generated",
		"template", res.Decision.TemplateID,
		"status", res.Outcome.Status,
		"reasons", res.Outcome.Reasons,
		"cached", cached,
	)
	return res
}

// draft asks the LLM for the full record and merges the extracted partial
// underneath it. Any failure on the model path returns the extracted record
// alone, tagged as a fallback.
func (g *Generator) draft(ctx context.Context, templateID string, turns []ingest.Turn, extracted record.Record) (record.Record, Outcome, string) {
	if g.llm == nil {
		return extracted, Outcome{Status: StatusFallback, Reasons: []string{ReasonLLMUnavailable}}, ""
	}

	req := llm.CompletionRequest{
		Messages:    buildMessages(templateID, turns),
		Temperature: draftTemperature,
		MaxTokens:   g.maxTokens,
	}
	resp, err := g.llm.Complete(ctx, req)
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordProviderError(ctx, g.llm.Model(), "llm")
		}
		g.log.WarnContext(ctx, "llm draft failed, using rule extraction", "err", err)
		return extracted, Outcome{Status: StatusFallback, Reasons: []string{ReasonLLMError}}, ""
	}
	if g.metrics != nil {
		g.metrics.RecordProviderRequest(ctx, g.llm.Model(), "llm", "ok")
		g.metrics.RecordLLMTokens(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	rec, err := record.FromModelOutput(resp.Content)
	if err != nil {
		g.log.WarnContext(ctx, "llm output unusable, using rule extraction", "err", err)
		return extracted, Outcome{Status: StatusFallback, Reasons: []string{ReasonLLMInvalidJSON}}, ""
	}

	// The draft wins; extraction only fills what the model left empty.
	return record.Merge(rec, extracted), Outcome{Status: StatusOK}, g.llm.Model()
}

// normalizeTurns applies the misheard dictionary to each turn and drops
// turns whose text normalizes to nothing.
func normalizeTurns(turns []ingest.Turn) []ingest.Turn {
	out := make([]ingest.Turn, 0, len(turns))
	for _, t := range turns {
		t.Text = normalize.Text(t.Text)
		if t.Text == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (g *Generator) recordStage(ctx context.Context, stage string, start time.Time) {
	if g.metrics != nil {
		g.metrics.RecordStage(ctx, stage, time.Since(start).Seconds())
	}
}
