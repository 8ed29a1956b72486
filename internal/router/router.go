// Package router picks the clinical template for an encounter from its
// dialogue.
//
// Scoring is rule based: each template carries weighted regular-expression
// tiers (any, bonus, strong) that are counted over a normalized concatenation
// of the dialogue, with doctor speech slightly over-weighted because it
// anchors clinical terminology. The two best candidates can additionally be
// boosted by a literature count source, with soft saturation so the evidence
// signal never dominates the clinical one.
package router

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/normalize"
)

// DefaultTemplate receives every encounter that no specific template claims.
const DefaultTemplate = "consulta_general"

const (
	// minScore is the rule-score threshold below which the router falls
	// back to the default template.
	minScore = 1.2

	// countSaturation is the literature count treated as "plenty": counts
	// at or above it yield the full boost.
	countSaturation = 200

	defaultMaxBoost   = 0.35
	boostedCandidates = 2
)

// CountSource reports how many literature hits a query has. Implementations
// are expected to be fast; the router queries only the top candidates.
type CountSource interface {
	Count(ctx context.Context, query string) (int, error)
}

// template is one routing rule set.
type template struct {
	id     string
	weight float64
	anyRx  []*regexp.Regexp
	bonus  []*regexp.Regexp
	strong []*regexp.Regexp
	query  string
}

func rx(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// templates holds the routing rules, matched against lower-cased text.
var templates = []template{
	{
		id:     DefaultTemplate,
		weight: 1.0,
		anyRx: rx(`\bconsulta\b`, `\bcontrol\b`, `\bchequeo\b`,
			`\bmalestar\b`, `\bfiebre\b`, `\bdolor\b`),
		bonus: rx(`\bcefale[ao]s?\b`, `\bdiarrea\b`, `\bv[oó]mitos?\b`,
			`\bresfriado\b`, `\banorexia\b`, `\bastenia\b`),
		query: "primary care general symptoms fever pain",
	},
	{
		id:     "respiratoria_aguda",
		weight: 1.35,
		anyRx: rx(`\btos\b`, `\btos seca\b`, `\bdisnea\b`, `\bsaturaci[oó]n\b`,
			`\brespirar\b`, `\bneumon[ií]a\b`, `\bt[óo]rax\b`),
		bonus: rx(`\bcrepitantes?\b`, `\bsibilancias?\b`, `\bauscultaci[oó]n\b`,
			`\brales?\b`, `\b(?:base|l[óo]bulo)\s+(?:derecha|izquierda)\b`,
			`\bradiograf[ií]a\s+de\s+t[óo]rax\b`, `\bhemograma\b`),
		strong: rx(`\bneumon[ií]a\b`, `\bsat(?:uraci[oó]n)?\s*\d{2}\s*%?\b`),
		query:  "community acquired pneumonia acute cough dyspnea guideline",
	},
	{
		id:     "dolor_toracico",
		weight: 1.45,
		anyRx: rx(`\bdolor\s+(?:\p{L}+\s+)?(?:en\s+)?(?:el\s+)?pecho\b`,
			`\bopresi[oó]n\s+tor[áa]cica\b`,
			`\bangina\b`, `\btaquicardia\b`,
			`\bdisnea\s+de\s+esfuerzo\b`),
		bonus: rx(`\becg\b`, `\btroponina\b`, `\btimi\b`, `\bheart\b`,
			`\birradia(?:do)?\s+(?:a\s+)?(?:brazo|mand[ií]bula)\b`),
		strong: rx(`\bdolor\s+tor[áa]cico\s+opresivo\b`, `\becg\b`, `\btroponina\b`),
		query:  "chest pain risk stratification troponin HEART TIMI",
	},
	{
		id:     "diabetes_control",
		weight: 1.25,
		anyRx: rx(`\bglucosa\b`, `\bhiperglic?emia\b`, `\bmetformina\b`,
			`\binsulina\b`, `\bhb ?a1c\b`, `\bhemoglobina\s+glicosilada\b`),
		bonus: rx(`\bretinopat[ií]a\b`, `\bnefropat[ií]a\b`, `\bneuropat[ií]a\b`,
			`\bada\b`, `\bpie\s+diab[eé]tico\b`),
		strong: rx(`\bhb ?a1c\s*\d`, `\buso\s+de\s+insulina\b`),
		query:  "type 2 diabetes outpatient control A1c guideline ADA",
	},
}

// aliases covers transcription variants the shared misheard dictionary does
// not, so rule patterns see a single spelling.
var aliases = []struct {
	rx  *regexp.Regexp
	rep string
}{
	{regexp.MustCompile(`\brespiratoriales?\b`), "respiratoria"},
	{regexp.MustCompile(`\belectrocardiograma\b`), "ecg"},
	{regexp.MustCompile(`\btroponinas\b`), "troponina"},
	{regexp.MustCompile(`\bopresi[oó]n\s+(?:tor[áa]cica|pecho)\b`), "opresión torácica"},
	{regexp.MustCompile(`\bdolor\s+opresivo\s+(?:en\s+)?(?:el\s+)?pecho\b`), "dolor torácico opresivo"},
	{regexp.MustCompile(`\bangor\b`), "angina"},
	{regexp.MustCompile(`\b3\s*d[ií]as\b`), "tres días"},
}

// Candidate is one template's standing in the ranking.
type Candidate struct {
	TemplateID    string  `json:"template_id"`
	Score         float64 `json:"score"`
	Any           int     `json:"any"`
	Bonus         int     `json:"bonus"`
	Strong        int     `json:"strong"`
	Weight        float64 `json:"weight"`
	EvidenceCount int     `json:"evidence_count,omitempty"`
	Boost         float64 `json:"boost,omitempty"`
}

// Decision is the routing outcome.
type Decision struct {
	TemplateID string      `json:"template_id"`
	Score      float64     `json:"score"`
	Reason     string      `json:"reason"`
	Ranking    []Candidate `json:"ranking"`
	Boosted    bool        `json:"boosted"`

	// Degraded is set when at least one evidence-count lookup failed and
	// the decision was taken on rule scores alone for that candidate.
	Degraded bool `json:"degraded,omitempty"`
}

// Router scores dialogue against the template rules.
type Router struct {
	counts   CountSource
	maxBoost float64
}

// Option configures a Router.
type Option func(*Router)

// WithCountSource enables the literature boost for the top candidates.
func WithCountSource(src CountSource) Option {
	return func(r *Router) { r.counts = src }
}

// WithMaxBoost caps the score a fully saturated literature count can add.
func WithMaxBoost(max float64) Option {
	return func(r *Router) { r.maxBoost = max }
}

// New returns a Router. Without a count source it routes on rules alone.
func New(opts ...Option) *Router {
	r := &Router{maxBoost: defaultMaxBoost}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decides the template for the dialogue. It never fails: lookup errors
// only mark the decision degraded.
func (r *Router) Route(ctx context.Context, turns []ingest.Turn) Decision {
	text := normalizeDialogue(turns)

	ranking := make([]Candidate, len(templates))
	for i, tpl := range templates {
		ranking[i] = scoreTemplate(text, tpl)
	}
	sortRanking(ranking)

	var dec Decision
	if r.counts != nil {
		dec.Boosted = true
		dec.Degraded = r.applyBoosts(ctx, ranking)
		sortRanking(ranking)
	}

	best := ranking[0]
	dec.TemplateID = best.TemplateID
	dec.Score = best.Score
	dec.Ranking = ranking
	if best.Score < minScore {
		dec.TemplateID = DefaultTemplate
	}
	dec.Reason = fmt.Sprintf("score=%.3f, threshold=%.1f", dec.Score, minScore)
	return dec
}

// normalizeDialogue concatenates the turns into the matching text. Doctor
// turns contribute an extra tenth of their text to anchor clinical terms.
func normalizeDialogue(turns []ingest.Turn) string {
	var parts []string
	for _, t := range turns {
		txt := strings.TrimSpace(t.Text)
		if txt == "" {
			continue
		}
		parts = append(parts, txt)
		if t.Speaker == ingest.Doctor {
			runes := []rune(txt)
			parts = append(parts, string(runes[:len(runes)/10]))
		}
	}
	text := normalize.ScanText(strings.Join(parts, " "))
	for _, a := range aliases {
		text = a.rx.ReplaceAllString(text, a.rep)
	}
	return text
}

func scoreTemplate(text string, tpl template) Candidate {
	c := Candidate{TemplateID: tpl.id, Weight: tpl.weight}
	for _, p := range tpl.anyRx {
		if p.MatchString(text) {
			c.Any++
		}
	}
	for _, p := range tpl.bonus {
		if p.MatchString(text) {
			c.Bonus++
		}
	}
	for _, p := range tpl.strong {
		if p.MatchString(text) {
			c.Strong++
		}
	}
	c.Score = (float64(c.Any) + 0.5*float64(c.Bonus) + 1.5*float64(c.Strong)) * tpl.weight
	return c
}

// applyBoosts queries the count source for the leading candidates in
// parallel and adds the saturated boost to their scores. Reports whether any
// lookup failed.
func (r *Router) applyBoosts(ctx context.Context, ranking []Candidate) (degraded bool) {
	n := boostedCandidates
	if n > len(ranking) {
		n = len(ranking)
	}
	failed := make([]bool, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			q := templateQuery(ranking[i].TemplateID)
			if q == "" {
				return nil
			}
			count, err := r.counts.Count(gctx, q)
			if err != nil {
				failed[i] = true
				return nil
			}
			ratio := float64(count) / countSaturation
			if ratio > 1 {
				ratio = 1
			}
			ranking[i].EvidenceCount = count
			ranking[i].Boost = ratio * r.maxBoost
			ranking[i].Score += ranking[i].Boost
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failed {
		if f {
			return true
		}
	}
	return false
}

func templateQuery(id string) string {
	for _, tpl := range templates {
		if tpl.id == id {
			return tpl.query
		}
	}
	return ""
}

func sortRanking(ranking []Candidate) {
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Score > ranking[j].Score
	})
}

// Query returns the literature query string associated with a template, or
// the empty string for unknown templates.
func Query(templateID string) string { return templateQuery(templateID) }

// TemplateIDs lists the known templates in rule order.
func TemplateIDs() []string {
	out := make([]string, len(templates))
	for i, tpl := range templates {
		out[i] = tpl.id
	}
	return out
}
