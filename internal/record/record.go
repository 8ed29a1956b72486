// Package record defines the clinical record schema shared by every pipeline
// stage.
//
// The wire format keeps the Spanish field names the downstream HC/FHIR
// tooling expects (motivo_consulta, enfermedad_actual, examen_fisico, ...)
// while the Go types stay closed and tagged: a stage can only write fields
// the schema names, and a field is either present with its declared shape or
// absent.
package record

import "strings"

// Record is the structured clinical note for one encounter.
type Record struct {
	// ChiefComplaint is the reason for the visit (motivo_consulta).
	ChiefComplaint string `json:"motivo_consulta,omitempty"`

	// PresentIllness narrates the current illness. The LLM sometimes returns
	// it as a plain string and sometimes as a sectioned object; Narrative
	// accepts both.
	PresentIllness *Narrative `json:"enfermedad_actual,omitempty"`

	// History holds antecedent findings: medications in course, known
	// pathologies, allergies.
	History []string `json:"antecedentes,omitempty"`

	// SystemsReview holds positive review-of-systems findings.
	SystemsReview []string `json:"revision_sistemas,omitempty"`

	// Exam carries vital signs and physical findings.
	Exam PhysicalExam `json:"examen_fisico,omitzero"`

	// Impressions lists diagnostic impressions (impresion_dx).
	Impressions []string `json:"impresion_dx,omitempty"`

	// Orders lists requested studies and procedures.
	Orders []Order `json:"ordenes,omitempty"`

	// Prescriptions lists medication prescriptions.
	Prescriptions []Prescription `json:"recetas,omitempty"`

	// Alerts lists danger signs flagged during the encounter.
	Alerts []string `json:"alertas,omitempty"`

	// Plan is the free-text management plan.
	Plan string `json:"plan,omitempty"`

	// ReadableText is the human-readable summary of the note.
	ReadableText string `json:"texto_legible,omitempty"`

	// Age is the patient age in years, when stated. Pointer because zero is a
	// valid age and absence matters for the evidence age gate.
	Age *int `json:"edad,omitempty"`
}

// PhysicalExam carries vital signs as strings in their documented clinical
// notation ("120/80", "37.8") plus free-text findings. Empty string means
// not recorded.
type PhysicalExam struct {
	BP       string `json:"TA,omitempty"`
	Temp     string `json:"Temp,omitempty"`
	HR       string `json:"FC,omitempty"`
	RR       string `json:"FR,omitempty"`
	SpO2     string `json:"SatO2,omitempty"`
	Findings string `json:"hallazgos,omitempty"`
	Other    string `json:"otros,omitempty"`
}

// IsZero reports whether no exam field is set. Used by the omitzero tag.
func (e PhysicalExam) IsZero() bool { return e == PhysicalExam{} }

// Order is a requested study or procedure.
type Order struct {
	Code   string `json:"codigo,omitempty"`
	Detail string `json:"detalle"`
}

// Prescription is a prescribed medication with its formulation.
type Prescription struct {
	Detail string `json:"detalle"`
}

// Merge fills the empty fields of base from fill and returns the result.
// Base always wins when it already carries a value (first-writer-wins);
// list fields are taken from fill only when base has none, so the drafter's
// ordering is never disturbed by the rule extractor.
func Merge(base, fill Record) Record {
	out := base
	if out.ChiefComplaint == "" {
		out.ChiefComplaint = fill.ChiefComplaint
	}
	if out.PresentIllness.empty() {
		out.PresentIllness = fill.PresentIllness
	}
	if len(out.History) == 0 {
		out.History = fill.History
	}
	if len(out.SystemsReview) == 0 {
		out.SystemsReview = fill.SystemsReview
	}
	out.Exam = mergeExam(out.Exam, fill.Exam)
	if len(out.Impressions) == 0 {
		out.Impressions = fill.Impressions
	}
	if len(out.Orders) == 0 {
		out.Orders = fill.Orders
	}
	if len(out.Prescriptions) == 0 {
		out.Prescriptions = fill.Prescriptions
	}
	if len(out.Alerts) == 0 {
		out.Alerts = fill.Alerts
	}
	if out.Plan == "" {
		out.Plan = fill.Plan
	}
	if out.ReadableText == "" {
		out.ReadableText = fill.ReadableText
	}
	if out.Age == nil {
		out.Age = fill.Age
	}
	return out
}

// mergeExam merges vitals field by field; each vital is independently
// first-writer-wins.
func mergeExam(base, fill PhysicalExam) PhysicalExam {
	if base.BP == "" {
		base.BP = fill.BP
	}
	if base.Temp == "" {
		base.Temp = fill.Temp
	}
	if base.HR == "" {
		base.HR = fill.HR
	}
	if base.RR == "" {
		base.RR = fill.RR
	}
	if base.SpO2 == "" {
		base.SpO2 = fill.SpO2
	}
	if base.Findings == "" {
		base.Findings = fill.Findings
	} else if fill.Findings != "" && !strings.Contains(base.Findings, fill.Findings) {
		base.Findings = strings.TrimSpace(base.Findings + " " + fill.Findings)
	}
	if base.Other == "" {
		base.Other = fill.Other
	}
	return base
}

func (n *Narrative) empty() bool {
	return n == nil || (n.Text == "" && len(n.Sections) == 0)
}
