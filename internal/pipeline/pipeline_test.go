package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/pipeline"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/internal/router"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
	llmmock "github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm/mock"
)

const draftJSON = `{
  "motivo_consulta": "Dolor torácico opresivo",
  "enfermedad_actual": "Dolor opresivo de dos horas de evolución",
  "impresion_dx": ["Síndrome coronario agudo en estudio"],
  "ordenes": [{"detalle": "Electrocardiograma y troponinas"}]
}`

func chestPainTurns() []ingest.Turn {
	return []ingest.Turn{
		{Speaker: ingest.Doctor, Text: "Buenos días, ¿qué le trae hoy?"},
		{Speaker: ingest.Patient, Text: "Tengo dolor opresivo en el pecho desde hace dos horas."},
		{Speaker: ingest.Doctor, Text: "A la revisión, SatO2: 88 y taquicardia."},
	}
}

func TestGenerate_VitalsLineAndChestPainComplaint(t *testing.T) {
	t.Parallel()
	gen := pipeline.New()

	res := gen.Generate(context.Background(), []ingest.Turn{
		{Speaker: ingest.Doctor, Text: "Signos: TA 160/95, FC 105, FR 20, Temp 36.8, SatO2 90%"},
		{Speaker: ingest.Patient, Text: "Dolor opresivo en el pecho desde hace 2 horas"},
	})

	if res.Decision.TemplateID != "dolor_toracico" {
		t.Fatalf("template = %q, want dolor_toracico (ranking %+v)", res.Decision.TemplateID, res.Decision.Ranking)
	}
	exam := res.Record.Exam
	if exam.BP != "160/95" || exam.HR != "105" || exam.RR != "20" {
		t.Errorf("exam = %+v, want TA 160/95, FC 105, FR 20", exam)
	}
	if exam.Temp != "36.8" {
		t.Errorf("Temp = %q, want 36.8", exam.Temp)
	}
	if exam.SpO2 != "90" {
		t.Errorf("SatO2 = %q, want 90", exam.SpO2)
	}
	// 90 sits on the boundary; the below-90 alert must not fire.
	if len(res.Record.Alerts) != 0 {
		t.Errorf("Alerts = %v, want none", res.Record.Alerts)
	}
}

func TestGenerate_LLMDraft(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: draftJSON,
			Usage:   llm.Usage{PromptTokens: 900, CompletionTokens: 120},
		},
		ModelName: "gpt-4o-mini",
	}
	gen := pipeline.New(pipeline.WithLLM(p))

	res := gen.Generate(context.Background(), chestPainTurns())

	if res.Outcome.Status != pipeline.StatusOK {
		t.Fatalf("status = %q (%v), want ok", res.Outcome.Status, res.Outcome.Reasons)
	}
	if res.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", res.Model)
	}
	if res.Record.ChiefComplaint != "Dolor torácico opresivo" {
		t.Errorf("motivo = %q", res.Record.ChiefComplaint)
	}
	if len(res.Record.Impressions) != 1 || res.Record.Impressions[0] != "Síndrome coronario agudo en estudio" {
		t.Errorf("impresion_dx = %v", res.Record.Impressions)
	}
	// The draft carries no exam, so the extracted saturation fills it in.
	if res.Record.Exam.SpO2 != "88" {
		t.Errorf("SatO2 = %q, want merged from extraction", res.Record.Exam.SpO2)
	}
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times", len(p.CompleteCalls))
	}
}

func TestGenerate_PromptShape(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: draftJSON},
	}
	gen := pipeline.New(pipeline.WithLLM(p), pipeline.WithMaxTokens(1200))

	gen.Generate(context.Background(), chestPainTurns())

	req := p.CompleteCalls[0].Req
	if req.Temperature != 0.3 {
		t.Errorf("temperature = %v", req.Temperature)
	}
	if req.MaxTokens != 1200 {
		t.Errorf("max tokens = %d", req.MaxTokens)
	}
	if len(req.Messages) != 4 {
		t.Fatalf("messages = %d, want system + few-shot + hint + prompt", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "Esquema requerido") {
		t.Errorf("first message = %+v", req.Messages[0])
	}
	if !strings.Contains(req.Messages[1].Content, "[TRANSCRIPT]") {
		t.Error("second message should carry the worked example")
	}
	last := req.Messages[3].Content
	if !strings.Contains(last, "Schema detectado: ") {
		t.Errorf("user prompt missing template line:\n%s", last)
	}
	if !strings.Contains(last, "- PACIENTE: Tengo dolor opresivo") {
		t.Errorf("user prompt missing transcript lines:\n%s", last)
	}
	if !strings.HasSuffix(last, "Responde SOLO con el JSON final.") {
		t.Errorf("user prompt should close with the JSON reminder:\n%s", last)
	}
}

func TestGenerate_NoLLMFallsBackToExtraction(t *testing.T) {
	t.Parallel()
	gen := pipeline.New()

	res := gen.Generate(context.Background(), chestPainTurns())

	if res.Outcome.Status != pipeline.StatusFallback {
		t.Fatalf("status = %q", res.Outcome.Status)
	}
	if len(res.Outcome.Reasons) != 1 || res.Outcome.Reasons[0] != pipeline.ReasonLLMUnavailable {
		t.Errorf("reasons = %v", res.Outcome.Reasons)
	}
	if res.Model != "" {
		t.Errorf("model = %q, want empty on fallback", res.Model)
	}
	if res.Record.Exam.SpO2 != "88" {
		t.Errorf("SatO2 = %q", res.Record.Exam.SpO2)
	}
	if !containsString(res.Record.Alerts, "SatO2 < 90%") {
		t.Errorf("alerts = %v, want low saturation flag", res.Record.Alerts)
	}
}

func TestGenerate_LLMErrorFallsBack(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteErr: errors.New("upstream 503")}
	gen := pipeline.New(pipeline.WithLLM(p))

	res := gen.Generate(context.Background(), chestPainTurns())

	if res.Outcome.Status != pipeline.StatusFallback {
		t.Fatalf("status = %q", res.Outcome.Status)
	}
	if !containsString(res.Outcome.Reasons, pipeline.ReasonLLMError) {
		t.Errorf("reasons = %v", res.Outcome.Reasons)
	}
	if res.Record.Exam.SpO2 != "88" {
		t.Errorf("SatO2 = %q, extraction should still land", res.Record.Exam.SpO2)
	}
}

func TestGenerate_UnusableOutputFallsBack(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Lo siento, no puedo generar la historia."},
	}
	gen := pipeline.New(pipeline.WithLLM(p))

	res := gen.Generate(context.Background(), chestPainTurns())

	if res.Outcome.Status != pipeline.StatusFallback {
		t.Fatalf("status = %q", res.Outcome.Status)
	}
	if !containsString(res.Outcome.Reasons, pipeline.ReasonLLMInvalidJSON) {
		t.Errorf("reasons = %v", res.Outcome.Reasons)
	}
}

// stubAugmenter records its arguments and returns a fixed augmentation.
type stubAugmenter struct {
	calls      int
	templateID string
	topK       int
	out        evidence.Augmented
}

func (s *stubAugmenter) Augment(rec record.Record, templateID string, topK int, bias evidence.Bias) evidence.Augmented {
	s.calls++
	s.templateID = templateID
	s.topK = topK
	return s.out
}

func TestGenerate_AugmenterSuggestionsStaySeparate(t *testing.T) {
	t.Parallel()
	stub := &stubAugmenter{
		out: evidence.Augmented{
			Suggestions: evidence.Suggestions{Impressions: []string{"neumonia"}},
			Provenance:  []evidence.Reference{{PMID: "12345", Title: "CAP guideline", Score: 0.5}},
		},
	}
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: draftJSON}}
	gen := pipeline.New(pipeline.WithLLM(p), pipeline.WithAugmenter(stub), pipeline.WithTopK(5))

	res := gen.Generate(context.Background(), chestPainTurns())

	if stub.calls != 1 {
		t.Fatalf("augmenter called %d times", stub.calls)
	}
	if stub.topK != 5 {
		t.Errorf("topK = %d", stub.topK)
	}
	if stub.templateID != res.Decision.TemplateID {
		t.Errorf("augmenter template = %q, decision = %q", stub.templateID, res.Decision.TemplateID)
	}
	if res.Augmented == nil || len(res.Augmented.Provenance) != 1 {
		t.Fatalf("augmented = %+v", res.Augmented)
	}
	// Suggested impressions are offered, not written into the record.
	if containsString(res.Record.Impressions, "neumonia") {
		t.Errorf("suggestion merged into record: %v", res.Record.Impressions)
	}
}

// failingCounts is a literature count source that is always down.
type failingCounts struct{}

func (failingCounts) Count(ctx context.Context, query string) (int, error) {
	return 0, errors.New("pubmed unreachable")
}

func TestGenerate_DegradedRoutingMarksOutcome(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: draftJSON}}
	r := router.New(router.WithCountSource(failingCounts{}))
	gen := pipeline.New(pipeline.WithLLM(p), pipeline.WithRouter(r))

	res := gen.Generate(context.Background(), chestPainTurns())

	if !res.Decision.Degraded {
		t.Fatal("decision should be degraded when every count lookup fails")
	}
	if res.Outcome.Status != pipeline.StatusDegraded {
		t.Errorf("status = %q", res.Outcome.Status)
	}
	if !containsString(res.Outcome.Reasons, pipeline.ReasonRoutingDegraded) {
		t.Errorf("reasons = %v", res.Outcome.Reasons)
	}
}

func TestGenerateFast_BypassesLLM(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: draftJSON}}
	gen := pipeline.New(pipeline.WithLLM(p))

	turns := []ingest.Turn{
		{Speaker: ingest.Doctor, Text: "¿Qué le pasa?"},
		{Speaker: ingest.Patient, Text: "Llevo dos días con diarrea y vómitos, tengo las mucosas secas."},
	}
	res := gen.GenerateFast(context.Background(), turns)

	if len(p.CompleteCalls) != 0 {
		t.Fatal("fast path must not call the LLM")
	}
	if res.Outcome.Status != pipeline.StatusOK || !containsString(res.Outcome.Reasons, pipeline.ReasonFastPath) {
		t.Errorf("outcome = %+v", res.Outcome)
	}
	if res.Decision.TemplateID != router.DefaultTemplate {
		t.Errorf("template = %q", res.Decision.TemplateID)
	}
	if !containsString(res.Record.Impressions, "Gastroenteritis aguda") {
		t.Errorf("impresion_dx = %v", res.Record.Impressions)
	}
	if !containsString(res.Record.Impressions, "Deshidratación (sospecha)") {
		t.Errorf("impresion_dx = %v, want dehydration suspicion", res.Record.Impressions)
	}
}

func TestGenerate_EmptyDialogue(t *testing.T) {
	t.Parallel()
	gen := pipeline.New()

	res := gen.Generate(context.Background(), nil)

	if res.Outcome.Status != pipeline.StatusFallback {
		t.Errorf("status = %q", res.Outcome.Status)
	}
	if res.Decision.TemplateID != router.DefaultTemplate {
		t.Errorf("template = %q", res.Decision.TemplateID)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
