package canon

import (
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

func TestApply_VitalsValidated(t *testing.T) {
	t.Parallel()

	rec := record.Record{Exam: record.PhysicalExam{
		BP:   "160 sobre 95",
		HR:   "FC de 104",
		RR:   "22",
		Temp: "37,8",
		SpO2: "92%",
	}}
	got := Apply(rec).Exam

	if got.BP != "160/95" {
		t.Errorf("BP = %q, want 160/95", got.BP)
	}
	if got.HR != "104" {
		t.Errorf("HR = %q, want 104", got.HR)
	}
	if got.RR != "22" {
		t.Errorf("RR = %q, want 22", got.RR)
	}
	if got.Temp != "37.8" {
		t.Errorf("Temp = %q, want 37.8", got.Temp)
	}
	if got.SpO2 != "92" {
		t.Errorf("SpO2 = %q, want 92", got.SpO2)
	}
}

func TestApply_ImplausibleVitalsDropped(t *testing.T) {
	t.Parallel()

	rec := record.Record{Exam: record.PhysicalExam{
		BP:   "300/95",
		HR:   "260",
		RR:   "3",
		Temp: "45",
		SpO2: "40",
	}}
	got := Apply(rec).Exam
	if !got.IsZero() {
		t.Errorf("implausible vitals survived: %+v", got)
	}
}

func TestParseBloodPressure_SpokenForms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		sys, dia float64
		ok       bool
	}{
		{"130/85", 130, 85, true},
		{"130 sobre 85", 130, 85, true},
		{"130 x 85", 130, 85, true},
		{"130-85", 130, 85, true},
		{"130 85", 130, 85, true},
		{"300/95", 0, 0, false},
		{"texto sin cifras", 0, 0, false},
	}
	for _, tc := range cases {
		sys, dia, ok := ParseBloodPressure(tc.in)
		if ok != tc.ok || sys != tc.sys || dia != tc.dia {
			t.Errorf("ParseBloodPressure(%q) = %v/%v %v, want %v/%v %v",
				tc.in, sys, dia, ok, tc.sys, tc.dia, tc.ok)
		}
	}
}

func TestApply_OrderCanonicalization(t *testing.T) {
	t.Parallel()

	rec := record.Record{Orders: []record.Order{
		{Detail: "pedir radiografia de torax urgente"},
		{Detail: "hemograma completo"},
		{Detail: "Radiografía de tórax"},
	}}
	got := Apply(rec).Orders

	if len(got) != 2 {
		t.Fatalf("orders = %+v, want 2 after canon + dedupe", got)
	}
	if got[0].Detail != "Radiografía de tórax" {
		t.Errorf("orders[0] = %q", got[0].Detail)
	}
	if got[1].Detail != "Hemograma" {
		t.Errorf("orders[1] = %q", got[1].Detail)
	}
}

func TestApply_MedicationRelocatedToPrescriptions(t *testing.T) {
	t.Parallel()

	rec := record.Record{Orders: []record.Order{
		{Detail: "paracetamol si fiebre"},
		{Detail: "hemograma"},
	}}
	got := Apply(rec)

	if len(got.Orders) != 1 || got.Orders[0].Detail != "Hemograma" {
		t.Errorf("orders = %+v, want only Hemograma", got.Orders)
	}
	want := "Paracetamol 1 g cada 8 horas por 5 días"
	if len(got.Prescriptions) != 1 || got.Prescriptions[0].Detail != want {
		t.Errorf("prescriptions = %+v, want %q", got.Prescriptions, want)
	}
}

func TestApply_MotivoEnrichedWhenVague(t *testing.T) {
	t.Parallel()

	rec := record.Record{
		ChiefComplaint: "dolor",
		PresentIllness: &record.Narrative{Text: "Refiere dolor en el pecho y tos seca desde anoche, con fiebre de 38."},
	}
	got := Apply(rec).ChiefComplaint
	if got != "Dolor en el pecho, tos seca, fiebre" {
		t.Errorf("ChiefComplaint = %q", got)
	}
}

func TestApply_MotivoKeptWhenSpecific(t *testing.T) {
	t.Parallel()

	rec := record.Record{
		ChiefComplaint: "Dolor torácico opresivo de dos horas",
		PresentIllness: &record.Narrative{Text: "También tos seca."},
	}
	got := Apply(rec).ChiefComplaint
	if got != "Dolor torácico opresivo de dos horas" {
		t.Errorf("ChiefComplaint = %q, should be untouched", got)
	}
}

func TestApply_ListsDedupedCaseInsensitive(t *testing.T) {
	t.Parallel()

	rec := record.Record{Impressions: []string{"Neumonía adquirida", "neumonía adquirida", "Asma"}}
	got := Apply(rec).Impressions
	if len(got) != 2 || got[0] != "Neumonía adquirida" || got[1] != "Asma" {
		t.Errorf("Impressions = %v", got)
	}
}

func TestApply_MisheardTermsFixedInLeaves(t *testing.T) {
	t.Parallel()

	rec := record.Record{
		ChiefComplaint: "presenta disneya intensa",
		Exam:           record.PhysicalExam{Findings: "asculpación con crepitantes en vaso derecha"},
	}
	got := Apply(rec)
	if got.ChiefComplaint != "Presenta disnea intensa" {
		t.Errorf("ChiefComplaint = %q", got.ChiefComplaint)
	}
	if got.Exam.Findings != "Auscultación con crepitantes en base derecha" {
		t.Errorf("Findings = %q", got.Exam.Findings)
	}
}

func TestApply_EmptyNarrativeDropped(t *testing.T) {
	t.Parallel()

	rec := record.Record{PresentIllness: &record.Narrative{Text: "   "}}
	if got := Apply(rec).PresentIllness; got != nil {
		t.Errorf("PresentIllness = %+v, want nil", got)
	}
}
