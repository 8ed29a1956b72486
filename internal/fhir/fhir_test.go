package fhir

import (
	"testing"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	}
}

func countResources(b Bundle) map[string]int {
	out := map[string]int{}
	for _, e := range b.Entry {
		out[e.Request.URL]++
	}
	return out
}

func TestBundle_BaseEntriesAlwaysPresent(t *testing.T) {
	t.Parallel()

	b := NewBuilder(WithClock(fixedClock())).Bundle("p-1", "d-1", record.Record{})

	if b.ResourceType != "Bundle" || b.Type != "transaction" {
		t.Errorf("bundle header = %s/%s", b.ResourceType, b.Type)
	}
	if len(b.Entry) != 3 {
		t.Fatalf("empty record should produce exactly patient, practitioner, encounter: %d entries", len(b.Entry))
	}
	if b.Entry[0].Request.Method != "PUT" || b.Entry[0].Request.URL != "Patient/p-1" {
		t.Errorf("entry 0 = %+v", b.Entry[0].Request)
	}
	enc, ok := b.Entry[2].Resource.(Encounter)
	if !ok {
		t.Fatalf("entry 2 resource = %T", b.Entry[2].Resource)
	}
	if enc.Period.Start != "2026-03-14T10:30:00Z" {
		t.Errorf("period start = %q", enc.Period.Start)
	}
	if enc.Subject.Reference != "Patient/p-1" {
		t.Errorf("subject = %q", enc.Subject.Reference)
	}
}

func TestBundle_FullRecord(t *testing.T) {
	t.Parallel()

	rec := record.Record{
		Exam: record.PhysicalExam{
			BP: "160/95", HR: "104", RR: "22", Temp: "37.8", SpO2: "92",
		},
		Impressions:   []string{"Neumonía adquirida en la comunidad", ""},
		Orders:        []record.Order{{Detail: "Radiografía de tórax"}, {Detail: "Hemograma"}},
		Prescriptions: []record.Prescription{{Detail: "Paracetamol 1 g cada 8 horas por 5 días"}},
		Alerts:        []string{"SatO2 < 90%"},
	}
	b := NewBuilder(WithClock(fixedClock())).Bundle("p-1", "d-1", rec)

	counts := countResources(b)
	if counts["Observation"] != 5 {
		t.Errorf("observations = %d, want 5 (BP panel + 4 vitals)", counts["Observation"])
	}
	if counts["Condition"] != 1 {
		t.Errorf("conditions = %d, want 1 (blank impression skipped)", counts["Condition"])
	}
	if counts["ServiceRequest"] != 2 {
		t.Errorf("service requests = %d", counts["ServiceRequest"])
	}
	if counts["MedicationRequest"] != 1 {
		t.Errorf("medication requests = %d", counts["MedicationRequest"])
	}
	if counts["Flag"] != 1 {
		t.Errorf("flags = %d", counts["Flag"])
	}
}

func TestBundle_BloodPressurePanel(t *testing.T) {
	t.Parallel()

	rec := record.Record{Exam: record.PhysicalExam{BP: "130 sobre 85"}}
	b := NewBuilder(WithClock(fixedClock())).Bundle("p-1", "d-1", rec)

	var obs *Observation
	for _, e := range b.Entry {
		if o, ok := e.Resource.(Observation); ok {
			obs = &o
			break
		}
	}
	if obs == nil {
		t.Fatal("no observation in bundle")
	}
	if len(obs.Code.Coding) == 0 || obs.Code.Coding[0].Code != "85354-9" {
		t.Errorf("code = %+v", obs.Code)
	}
	if len(obs.Component) != 2 {
		t.Fatalf("components = %+v", obs.Component)
	}
	if obs.Component[0].ValueQuantity.Value != 130 || obs.Component[1].ValueQuantity.Value != 85 {
		t.Errorf("values = %v / %v", obs.Component[0].ValueQuantity.Value, obs.Component[1].ValueQuantity.Value)
	}
}

func TestBundle_UnparseableVitalsSkipped(t *testing.T) {
	t.Parallel()

	rec := record.Record{Exam: record.PhysicalExam{
		BP:   "no se midió",
		HR:   "rápido",
		Temp: "37,8",
	}}
	b := NewBuilder(WithClock(fixedClock())).Bundle("p-1", "d-1", rec)

	counts := countResources(b)
	if counts["Observation"] != 1 {
		t.Fatalf("observations = %d, want only the temperature", counts["Observation"])
	}
	for _, e := range b.Entry {
		if o, ok := e.Resource.(Observation); ok {
			if o.ValueQuantity == nil || o.ValueQuantity.Value != 37.8 {
				t.Errorf("temperature observation = %+v", o)
			}
		}
	}
}
