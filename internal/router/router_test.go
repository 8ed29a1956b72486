package router

import (
	"context"
	"errors"
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
)

type stubCounts struct {
	counts map[string]int
	err    error
	calls  int
}

func (s *stubCounts) Count(_ context.Context, q string) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.counts[q], nil
}

func dialogue(texts ...string) []ingest.Turn {
	out := make([]ingest.Turn, len(texts))
	for i, txt := range texts {
		spk := ingest.Doctor
		if i%2 == 1 {
			spk = ingest.Patient
		}
		out[i] = ingest.Turn{Speaker: spk, Text: txt, Clinical: true}
	}
	return out
}

func TestRoute_RespiratoryDialogue(t *testing.T) {
	t.Parallel()

	dec := New().Route(context.Background(), dialogue(
		"tiene tos seca y disnea, a la auscultación crepitantes",
		"me cuesta respirar, saturación 88 %",
	))

	if dec.TemplateID != "respiratoria_aguda" {
		t.Fatalf("TemplateID = %s, want respiratoria_aguda (ranking %+v)", dec.TemplateID, dec.Ranking)
	}
	if dec.Score < minScore {
		t.Errorf("Score = %v, want >= %v", dec.Score, minScore)
	}
	top := dec.Ranking[0]
	if top.Strong == 0 {
		t.Errorf("saturation figure should count as a strong match: %+v", top)
	}
}

func TestRoute_ChestPainStrongSignals(t *testing.T) {
	t.Parallel()

	dec := New().Route(context.Background(), dialogue(
		"dolor torácico opresivo de dos horas, pedimos ecg y troponina",
	))
	if dec.TemplateID != "dolor_toracico" {
		t.Errorf("TemplateID = %s, want dolor_toracico (ranking %+v)", dec.TemplateID, dec.Ranking)
	}
}

func TestRoute_ChestPainWithInterveningAdjective(t *testing.T) {
	t.Parallel()

	// The complaint arrives as "dolor opresivo en el pecho", with the
	// adjective between "dolor" and "pecho". Routing must not fall through
	// to the general template.
	dec := New().Route(context.Background(), dialogue(
		"Signos: TA 160/95, FC 105, FR 20, Temp 36.8, SatO2 90%",
		"Dolor opresivo en el pecho desde hace 2 horas",
	))
	if dec.TemplateID != "dolor_toracico" {
		t.Fatalf("TemplateID = %s, want dolor_toracico (ranking %+v)", dec.TemplateID, dec.Ranking)
	}
	if dec.Score < minScore {
		t.Errorf("Score = %v, want >= %v", dec.Score, minScore)
	}
	for _, c := range dec.Ranking {
		if c.TemplateID == DefaultTemplate && c.Score >= dec.Score {
			t.Errorf("general template scored %v, want strictly below winner %v", c.Score, dec.Score)
		}
	}

	// Other adjectives ride the same pattern.
	dec = New().Route(context.Background(), dialogue(
		"¿Qué lo trae hoy?",
		"Tengo dolor fuerte en el pecho al caminar",
	))
	if dec.TemplateID != "dolor_toracico" {
		t.Errorf("TemplateID = %s, want dolor_toracico (ranking %+v)", dec.TemplateID, dec.Ranking)
	}
}

func TestRoute_WeakSignalFallsBack(t *testing.T) {
	t.Parallel()

	dec := New().Route(context.Background(), dialogue("buenas tardes", "buenas"))
	if dec.TemplateID != DefaultTemplate {
		t.Errorf("TemplateID = %s, want %s", dec.TemplateID, DefaultTemplate)
	}
	if dec.Score >= minScore {
		t.Errorf("Score = %v, want below threshold", dec.Score)
	}
}

func TestRoute_MisheardTermsStillRoute(t *testing.T) {
	t.Parallel()

	dec := New().Route(context.Background(), dialogue(
		"presenta toseca y disneya desde hace tres días",
		"me ahogo al respirar",
	))
	if dec.TemplateID != "respiratoria_aguda" {
		t.Errorf("TemplateID = %s, want respiratoria_aguda (ranking %+v)", dec.TemplateID, dec.Ranking)
	}
}

func TestRoute_EvidenceBoostReordersRanking(t *testing.T) {
	t.Parallel()

	src := &stubCounts{counts: map[string]int{
		Query("respiratoria_aguda"): 400,
	}}
	r := New(WithCountSource(src), WithMaxBoost(5))

	// General complaint scores 3.0; the respiratory template scores 0 but
	// sits second in the preliminary ranking and gets the full boost.
	dec := r.Route(context.Background(), dialogue("consulta por fiebre y dolor"))

	if !dec.Boosted || dec.Degraded {
		t.Fatalf("Boosted = %v, Degraded = %v", dec.Boosted, dec.Degraded)
	}
	if dec.TemplateID != "respiratoria_aguda" {
		t.Errorf("TemplateID = %s, want boost winner respiratoria_aguda (ranking %+v)", dec.TemplateID, dec.Ranking)
	}
	if src.calls != boostedCandidates {
		t.Errorf("count lookups = %d, want %d", src.calls, boostedCandidates)
	}
}

func TestRoute_BoostSaturates(t *testing.T) {
	t.Parallel()

	src := &stubCounts{counts: map[string]int{
		Query(DefaultTemplate): 100000,
	}}
	dec := New(WithCountSource(src)).Route(context.Background(), dialogue("consulta por fiebre y dolor"))

	var top Candidate
	for _, c := range dec.Ranking {
		if c.TemplateID == DefaultTemplate {
			top = c
		}
	}
	if top.Boost != defaultMaxBoost {
		t.Errorf("Boost = %v, want cap %v", top.Boost, defaultMaxBoost)
	}
	if top.EvidenceCount != 100000 {
		t.Errorf("EvidenceCount = %d", top.EvidenceCount)
	}
}

func TestRoute_CountFailureDegradesOnly(t *testing.T) {
	t.Parallel()

	src := &stubCounts{err: errors.New("upstream down")}
	dec := New(WithCountSource(src)).Route(context.Background(), dialogue("consulta por fiebre y dolor"))

	if !dec.Degraded {
		t.Error("Degraded = false, want true after count failures")
	}
	if dec.TemplateID != DefaultTemplate {
		t.Errorf("TemplateID = %s, want %s on rule score alone", dec.TemplateID, DefaultTemplate)
	}
	if dec.Score != 3.0 {
		t.Errorf("Score = %v, want unboosted 3.0", dec.Score)
	}
}

func TestTemplateIDs_StableOrder(t *testing.T) {
	t.Parallel()

	ids := TemplateIDs()
	want := []string{DefaultTemplate, "respiratoria_aguda", "dolor_toracico", "diabetes_control"}
	if len(ids) != len(want) {
		t.Fatalf("TemplateIDs = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("TemplateIDs[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}
