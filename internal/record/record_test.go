package record

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMerge_FirstWriterWins(t *testing.T) {
	t.Parallel()

	age := 45
	base := Record{
		ChiefComplaint: "Dolor en el pecho",
		Impressions:    []string{"Angina inestable"},
		Exam:           PhysicalExam{BP: "160/95"},
	}
	fill := Record{
		ChiefComplaint: "Otro motivo",
		Impressions:    []string{"Neumonía"},
		History:        []string{"Hipertensión arterial"},
		Exam:           PhysicalExam{BP: "120/80", HR: "88"},
		Age:            &age,
	}

	got := Merge(base, fill)

	if got.ChiefComplaint != "Dolor en el pecho" {
		t.Errorf("ChiefComplaint overwritten: %q", got.ChiefComplaint)
	}
	if len(got.Impressions) != 1 || got.Impressions[0] != "Angina inestable" {
		t.Errorf("Impressions overwritten: %v", got.Impressions)
	}
	if len(got.History) != 1 || got.History[0] != "Hipertensión arterial" {
		t.Errorf("History not filled: %v", got.History)
	}
	if got.Exam.BP != "160/95" {
		t.Errorf("Exam.BP overwritten: %q", got.Exam.BP)
	}
	if got.Exam.HR != "88" {
		t.Errorf("Exam.HR not filled: %q", got.Exam.HR)
	}
	if got.Age == nil || *got.Age != 45 {
		t.Errorf("Age not filled: %v", got.Age)
	}
}

func TestMerge_AppendsExamFindings(t *testing.T) {
	t.Parallel()

	base := Record{Exam: PhysicalExam{Findings: "Murmullo vesicular conservado."}}
	fill := Record{Exam: PhysicalExam{Findings: "Crepitantes bibasales."}}
	got := Merge(base, fill)
	want := "Murmullo vesicular conservado. Crepitantes bibasales."
	if got.Exam.Findings != want {
		t.Errorf("Findings = %q, want %q", got.Exam.Findings, want)
	}

	// Identical findings are not duplicated.
	again := Merge(got, fill)
	if again.Exam.Findings != want {
		t.Errorf("Findings duplicated: %q", again.Exam.Findings)
	}
}

func TestNarrative_StringOrObject(t *testing.T) {
	t.Parallel()

	var n Narrative
	if err := json.Unmarshal([]byte(`"Tos seca de tres días"`), &n); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if n.Text != "Tos seca de tres días" || len(n.Sections) != 0 {
		t.Errorf("unexpected narrative: %+v", n)
	}

	if err := json.Unmarshal([]byte(`{"sintomas":"tos y fiebre","inicio":"hace 3 días","vacio":""}`), &n); err != nil {
		t.Fatalf("object form: %v", err)
	}
	if n.Text != "" {
		t.Errorf("Text should be empty for object form, got %q", n.Text)
	}
	// Sections are sorted by name and the blank one is dropped.
	if len(n.Sections) != 2 || n.Sections[0].Name != "inicio" || n.Sections[1].Name != "sintomas" {
		t.Errorf("unexpected sections: %+v", n.Sections)
	}
	if got := n.String(); got != "hace 3 días tos y fiebre" {
		t.Errorf("String() = %q", got)
	}
}

func TestFromModelOutput(t *testing.T) {
	t.Parallel()

	out := "Claro, aquí está el registro:\n```json\n" +
		`{"motivo_consulta": "Tos seca", "impresion_dx": ["Neumonía adquirida en comunidad"], "edad": 45}` +
		"\n```"
	rec, err := FromModelOutput(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ChiefComplaint != "Tos seca" {
		t.Errorf("ChiefComplaint = %q", rec.ChiefComplaint)
	}
	if rec.Age == nil || *rec.Age != 45 {
		t.Errorf("Age = %v", rec.Age)
	}
}

func TestFromModelOutput_Repairs(t *testing.T) {
	t.Parallel()

	out := `{“motivo_consulta”: “Fiebre”, "alertas": ["Cianosis",],}`
	rec, err := FromModelOutput(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ChiefComplaint != "Fiebre" {
		t.Errorf("ChiefComplaint = %q", rec.ChiefComplaint)
	}
	if len(rec.Alerts) != 1 || rec.Alerts[0] != "Cianosis" {
		t.Errorf("Alerts = %v", rec.Alerts)
	}
}

func TestFromModelOutput_NoObject(t *testing.T) {
	t.Parallel()

	for _, out := range []string{"", "no hay registro", "{rotura total"} {
		if _, err := FromModelOutput(out); !errors.Is(err, ErrNoRecord) {
			t.Errorf("FromModelOutput(%q): expected ErrNoRecord, got %v", out, err)
		}
	}
}

func TestRecordJSON_RoundTripKeys(t *testing.T) {
	t.Parallel()

	age := 8
	rec := Record{
		ChiefComplaint: "Fiebre",
		Exam:           PhysicalExam{Temp: "38.5", SpO2: "93"},
		Orders:         []Order{{Detail: "Radiografía de tórax"}},
		Age:            &age,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"motivo_consulta"`, `"examen_fisico"`, `"Temp"`, `"SatO2"`, `"ordenes"`, `"detalle"`, `"edad"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("marshalled record missing %s: %s", key, data)
		}
	}
	if strings.Contains(string(data), `"recetas"`) {
		t.Errorf("empty list should be omitted: %s", data)
	}
}
