// Package cds produces contextual clinical decision support suggestions
// from a drafted record.
//
// Suggestions come from scenario rules (chest pain, pediatric asthma, adult
// community acquired pneumonia), each backed by literature references when an
// evidence source is configured. A language model can optionally re-rank the
// candidates; when it is absent or fails, the rule order stands. The engine
// never proposes a default analgesic: diagnostic priorities come first.
package cds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
)

// Suggestion types.
const (
	TypeGuideline  = "guideline"
	TypeMedication = "medication"
	TypeOrder      = "order"
	TypeInfo       = "info"
)

const rerankLimit = 3

// Evidence is one literature reference attached to a suggestion.
type Evidence struct {
	PMID  string `json:"pmid"`
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
}

// Suggestion is one decision support proposal.
type Suggestion struct {
	Type        string     `json:"type"`
	Message     string     `json:"message"`
	Proposed    string     `json:"proposed,omitempty"`
	PMIDs       []string   `json:"pmids,omitempty"`
	Evidence    []Evidence `json:"evidence,omitempty"`
	SafetyNotes []string   `json:"safety_notes"`
}

// Context is the condensed clinical picture the rules evaluate.
type Context struct {
	ChiefComplaint string              `json:"chief_complaint"`
	Diagnosis      string              `json:"diagnosis"`
	Diagnoses      []string            `json:"dx"`
	Text           string              `json:"texto"`
	Age            *int                `json:"age,omitempty"`
	Allergies      []string            `json:"alergias,omitempty"`
	Vitals         record.PhysicalExam `json:"vitals"`
}

// EvidenceSource finds references for a query. Failures degrade to no
// evidence, never to a failed suggestion.
type EvidenceSource interface {
	Find(ctx context.Context, query string, k int) ([]Evidence, error)
}

// Engine evaluates the scenario rules.
type Engine struct {
	source   EvidenceSource
	reranker llm.Provider
	perQuery int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvidenceSource attaches literature references to suggestions.
func WithEvidenceSource(src EvidenceSource) Option {
	return func(e *Engine) { e.source = src }
}

// WithReranker lets a language model pick the best candidates.
func WithReranker(p llm.Provider) Option {
	return func(e *Engine) { e.reranker = p }
}

// WithEvidencePerQuery caps references fetched per suggestion.
func WithEvidencePerQuery(k int) Option {
	return func(e *Engine) { e.perQuery = k }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns a rules-only engine unless options add evidence or
// re-ranking.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{perQuery: 3, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildContext condenses a record into the rule context.
func BuildContext(rec record.Record) Context {
	var dx []string
	for _, d := range rec.Impressions {
		if t := strings.TrimSpace(d); t != "" {
			dx = append(dx, strings.ToLower(t))
		}
	}
	diagnosis := ""
	if len(dx) > 0 {
		diagnosis = dx[0]
	}

	text := strings.Join([]string{
		rec.ChiefComplaint,
		rec.PresentIllness.String(),
		strings.Join(rec.Impressions, " "),
		rec.Exam.BP, rec.Exam.Temp, rec.Exam.HR, rec.Exam.RR, rec.Exam.SpO2,
		rec.Exam.Findings,
	}, " ")

	return Context{
		ChiefComplaint: rec.ChiefComplaint,
		Diagnosis:      diagnosis,
		Diagnoses:      dx,
		Text:           strings.ToLower(strings.TrimSpace(text)),
		Age:            rec.Age,
		Vitals:         rec.Exam,
	}
}

// Suggest evaluates the rules for a record.
func (e *Engine) Suggest(ctx context.Context, rec record.Record) []Suggestion {
	return e.SuggestFromContext(ctx, BuildContext(rec))
}

// SuggestFromContext evaluates the rules for an already built context.
func (e *Engine) SuggestFromContext(ctx context.Context, c Context) []Suggestion {
	if s := e.chestPain(ctx, c); s != nil {
		return e.rerank(ctx, c, s)
	}
	if s := e.pediatricAsthma(ctx, c); s != nil {
		return e.rerank(ctx, c, s)
	}
	if s := e.adultPneumonia(ctx, c); s != nil {
		return e.rerank(ctx, c, s)
	}
	return []Suggestion{{
		Type:        TypeInfo,
		Message:     "Sin sugerencias automáticas para este caso.",
		SafetyNotes: []string{},
	}}
}

// chestPain prioritizes the acute coronary syndrome workup and deliberately
// suggests no analgesia.
func (e *Engine) chestPain(ctx context.Context, c Context) []Suggestion {
	if !hasDx(c, "dolor torácico") && !hasTerm(c, "dolor torácico", "opresivo en el pecho") {
		return nil
	}
	s := Suggestion{
		Type:        TypeGuideline,
		Message:     "Dolor torácico: priorizar protocolo de SCA — ECG y troponinas, monitorización y derivación si inestabilidad.",
		SafetyNotes: []string{"No retrasar evaluación de SCA por analgesia."},
	}
	e.attachEvidence(ctx, &s, "chest pain emergency guideline troponin ECG")
	return []Suggestion{s}
}

func (e *Engine) pediatricAsthma(ctx context.Context, c Context) []Suggestion {
	if !isPediatric(c) {
		return nil
	}
	if !hasDx(c, "asma") && !hasTerm(c, "sibilancias", "asma pediátrica", "tos nocturna") {
		return nil
	}
	saba := "Salbutamol (SABA) 100 mcg inhalado: 2–4 inhalaciones con cámara, repetir cada 20 min × 1 h si síntomas; luego según respuesta."
	med := Suggestion{
		Type:        TypeMedication,
		Message:     saba,
		Proposed:    saba,
		SafetyNotes: []string{"Revisar técnica de inhalación y uso de cámara espaciadora."},
	}
	e.attachEvidence(ctx, &med, "pediatric asthma acute exacerbation SABA guideline")

	education := Suggestion{
		Type:        TypeOrder,
		Message:     "Educar a cuidadores: plan de acción para asma, disparadores, técnica de inhalador.",
		SafetyNotes: []string{},
	}
	return []Suggestion{med, education}
}

func (e *Engine) adultPneumonia(ctx context.Context, c Context) []Suggestion {
	if !hasDx(c, "neumonía", "neumonia", "nac") && !(hasFever(c) && hasTerm(c, "tos", "esputo")) {
		return nil
	}
	guide := Suggestion{
		Type:        TypeGuideline,
		Message:     "En NAC ambulatoria sin criterios de gravedad: control sintomático, hidratación, signos de alarma y reevaluación si empeora.",
		SafetyNotes: []string{"Derivar si SatO2 baja, taquipnea marcada, hipotensión o alteración del estado mental."},
	}
	e.attachEvidence(ctx, &guide, "community acquired pneumonia outpatient guideline adult")
	out := []Suggestion{guide}

	// Antipyretic only with documented fever and no contraindication hints.
	if hasFever(c) && !hasTerm(c, "alergia a paracetamol", "hepatopatía") {
		par := "Antitérmico/analgésico: paracetamol 500–1000 mg VO cada 8 h según necesidad (máx. 3 g/día en adulto)."
		out = append(out, Suggestion{
			Type:        TypeMedication,
			Message:     par,
			Proposed:    par,
			SafetyNotes: []string{"Ajustar en hepatopatía, embarazo, o consumo crónico de alcohol."},
		})
	}
	return out
}

func (e *Engine) attachEvidence(ctx context.Context, s *Suggestion, query string) {
	if e.source == nil {
		return
	}
	ev, err := e.source.Find(ctx, query, e.perQuery)
	if err != nil {
		e.logger.Warn("cds evidence lookup failed", "query", query, "error", err)
		return
	}
	s.Evidence = ev
	for _, item := range ev {
		if item.PMID != "" {
			s.PMIDs = append(s.PMIDs, item.PMID)
		}
	}
}

func hasDx(c Context, terms ...string) bool {
	joined := strings.Join(c.Diagnoses, " ")
	for _, t := range terms {
		if strings.Contains(joined, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func hasTerm(c Context, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(c.Text, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func isPediatric(c Context) bool {
	return c.Age != nil && *c.Age < evidence.AdultAgeThreshold
}

var feverTempRx = regexp.MustCompile(`\b(38[.,]\d|3[89])\b`)

func hasFever(c Context) bool {
	if strings.Contains(c.Text, "fiebre") {
		return true
	}
	return c.Vitals.Temp != "" && feverTempRx.MatchString(c.Vitals.Temp)
}

var jsonArrayRx = regexp.MustCompile(`(?s)\[.*\]`)

// rerank asks the model to pick the best candidates. Any failure keeps the
// rule order, truncated to the limit.
func (e *Engine) rerank(ctx context.Context, c Context, candidates []Suggestion) []Suggestion {
	fallback := candidates
	if len(fallback) > rerankLimit {
		fallback = fallback[:rerankLimit]
	}
	if e.reranker == nil || len(candidates) < 2 {
		return fallback
	}

	resp, err := e.reranker.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Eres un asistente clínico. No inventes. Mantén formato JSON.",
		Messages:     []llm.Message{{Role: "user", Content: rerankPrompt(c, candidates)}},
		Temperature:  0.2,
	})
	if err != nil {
		e.logger.Warn("cds rerank failed", "error", err)
		return fallback
	}

	raw := jsonArrayRx.FindString(resp.Content)
	if raw == "" {
		return fallback
	}
	var picked []struct {
		Type     string `json:"type"`
		Message  string `json:"message"`
		Proposed string `json:"proposed"`
	}
	if err := json.Unmarshal([]byte(raw), &picked); err != nil || len(picked) == 0 {
		return fallback
	}

	byText := make(map[string]Suggestion, len(candidates))
	for _, cand := range candidates {
		byText[candidateKey(cand.Message, cand.Proposed)] = cand
	}
	var out []Suggestion
	for _, p := range picked {
		if cand, ok := byText[candidateKey(p.Message, p.Proposed)]; ok {
			out = append(out, cand)
		} else {
			out = append(out, Suggestion{Type: p.Type, Message: p.Message, Proposed: p.Proposed, SafetyNotes: []string{}})
		}
		if len(out) == rerankLimit {
			break
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func candidateKey(message, proposed string) string {
	if m := strings.TrimSpace(message); m != "" {
		return m
	}
	return strings.TrimSpace(proposed)
}

func rerankPrompt(c Context, candidates []Suggestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contexto clínico breve:\n- CC: %s\n- DX: %s\n", c.ChiefComplaint, strings.Join(c.Diagnoses, ", "))
	if c.Age != nil {
		fmt.Fprintf(&b, "- Edad: %d\n", *c.Age)
	}
	fmt.Fprintf(&b, "- Vitals: TA %s, Temp %s, FC %s, FR %s, SatO2 %s\n\n",
		c.Vitals.BP, c.Vitals.Temp, c.Vitals.HR, c.Vitals.RR, c.Vitals.SpO2)
	b.WriteString("Candidatos (elige los 3 mejores como lista JSON, con igual formato):\n")
	for i, cand := range candidates {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, cand.Type, candidateKey(cand.Message, cand.Proposed))
	}
	b.WriteString("\nResponde SOLO un array JSON con los mejores candidatos (máximo 3).")
	return b.String()
}
