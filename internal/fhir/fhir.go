// Package fhir renders a clinical record as a FHIR R4 transaction bundle
// ready to POST to a FHIR server.
//
// The bundle upserts the Patient and Practitioner, creates the Encounter,
// one Observation per validated vital sign (LOINC-coded blood pressure
// panel), a Condition per diagnostic impression, a ServiceRequest per order,
// a MedicationRequest per prescription, and a Flag per active alert. Vitals
// that fail to parse are skipped rather than guessed.
package fhir

import (
	"strconv"
	"strings"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/canon"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// Coding is one code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a coded or free-text concept.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Quantity is a measured value.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Reference points at another resource.
type Reference struct {
	Reference string `json:"reference"`
}

// HumanName is a structured person name.
type HumanName struct {
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

// Period is a start/end time range.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Request is the transaction instruction for one bundle entry.
type Request struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Entry pairs a resource with its transaction instruction.
type Entry struct {
	Request  Request `json:"request"`
	Resource any     `json:"resource"`
}

// Bundle is a FHIR transaction bundle.
type Bundle struct {
	ResourceType string  `json:"resourceType"`
	Type         string  `json:"type"`
	Entry        []Entry `json:"entry"`
}

// Patient is a minimal Patient resource.
type Patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Name         []HumanName `json:"name,omitempty"`
}

// Practitioner is a minimal Practitioner resource.
type Practitioner struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Name         []HumanName `json:"name,omitempty"`
}

// Participant links a practitioner to an encounter.
type Participant struct {
	Individual Reference `json:"individual"`
}

// Encounter is an ambulatory Encounter resource.
type Encounter struct {
	ResourceType string        `json:"resourceType"`
	Status       string        `json:"status"`
	Class        Coding        `json:"class"`
	Subject      Reference     `json:"subject"`
	Participant  []Participant `json:"participant,omitempty"`
	Period       Period        `json:"period"`
}

// ObservationComponent is one component of a panel observation.
type ObservationComponent struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity Quantity        `json:"valueQuantity"`
}

// Observation is a vital-sign Observation resource.
type Observation struct {
	ResourceType      string                 `json:"resourceType"`
	Status            string                 `json:"status"`
	Category          []CodeableConcept      `json:"category,omitempty"`
	Code              CodeableConcept        `json:"code"`
	Subject           Reference              `json:"subject"`
	EffectiveDateTime string                 `json:"effectiveDateTime"`
	ValueQuantity     *Quantity              `json:"valueQuantity,omitempty"`
	Component         []ObservationComponent `json:"component,omitempty"`
}

// Condition is a diagnostic impression resource.
type Condition struct {
	ResourceType       string          `json:"resourceType"`
	ClinicalStatus     CodeableConcept `json:"clinicalStatus"`
	VerificationStatus CodeableConcept `json:"verificationStatus"`
	Subject            Reference       `json:"subject"`
	RecordedDate       string          `json:"recordedDate"`
	Code               CodeableConcept `json:"code"`
}

// ServiceRequest is a study or procedure order resource.
type ServiceRequest struct {
	ResourceType string          `json:"resourceType"`
	Status       string          `json:"status"`
	Intent       string          `json:"intent"`
	AuthoredOn   string          `json:"authoredOn"`
	Subject      Reference       `json:"subject"`
	Requester    Reference       `json:"requester"`
	Code         CodeableConcept `json:"code"`
}

// MedicationRequest is a prescription resource.
type MedicationRequest struct {
	ResourceType              string            `json:"resourceType"`
	Status                    string            `json:"status"`
	Intent                    string            `json:"intent"`
	AuthoredOn                string            `json:"authoredOn"`
	Subject                   Reference         `json:"subject"`
	Requester                 Reference         `json:"requester"`
	MedicationCodeableConcept CodeableConcept   `json:"medicationCodeableConcept"`
	DosageInstruction         []DosageComponent `json:"dosageInstruction,omitempty"`
}

// DosageComponent is one dosage instruction line.
type DosageComponent struct {
	Text string `json:"text"`
}

// Flag is an active safety alert resource.
type Flag struct {
	ResourceType string          `json:"resourceType"`
	Status       string          `json:"status"`
	Code         CodeableConcept `json:"code"`
	Subject      Reference       `json:"subject"`
	Period       Period          `json:"period"`
}

var vitalSignsCategory = []CodeableConcept{{
	Coding: []Coding{{
		System:  "http://terminology.hl7.org/CodeSystem/observation-category",
		Code:    "vital-signs",
		Display: "Vital Signs",
	}},
}}

// Builder assembles transaction bundles. The clock is injectable so bundles
// are reproducible in tests.
type Builder struct {
	now func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder returns a Builder stamping bundles with the current UTC time.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bundle renders the record as a transaction bundle for the given
// participant IDs.
func (b *Builder) Bundle(patientID, practitionerID string, rec record.Record) Bundle {
	ts := b.now().UTC().Format("2006-01-02T15:04:05Z")
	patientRef := Reference{Reference: "Patient/" + patientID}
	practitionerRef := Reference{Reference: "Practitioner/" + practitionerID}

	entries := []Entry{
		{
			Request: Request{Method: "PUT", URL: "Patient/" + patientID},
			Resource: Patient{
				ResourceType: "Patient",
				ID:           patientID,
				Name:         []HumanName{{Family: "Prueba", Given: []string{"Paciente"}}},
			},
		},
		{
			Request: Request{Method: "PUT", URL: "Practitioner/" + practitionerID},
			Resource: Practitioner{
				ResourceType: "Practitioner",
				ID:           practitionerID,
				Name:         []HumanName{{Family: "Prueba", Given: []string{"Doctor"}}},
			},
		},
		{
			Request: Request{Method: "POST", URL: "Encounter"},
			Resource: Encounter{
				ResourceType: "Encounter",
				Status:       "finished",
				Class: Coding{
					System:  "http://terminology.hl7.org/CodeSystem/v3-ActCode",
					Code:    "AMB",
					Display: "Ambulatory",
				},
				Subject:     patientRef,
				Participant: []Participant{{Individual: practitionerRef}},
				Period:      Period{Start: ts, End: ts},
			},
		},
	}

	if obs := bloodPressureObservation(rec.Exam.BP, patientRef, ts); obs != nil {
		entries = append(entries, Entry{Request: Request{Method: "POST", URL: "Observation"}, Resource: *obs})
	}
	for _, v := range []struct {
		display, unit, value string
	}{
		{"Heart rate", "beats/min", rec.Exam.HR},
		{"Respiratory rate", "breaths/min", rec.Exam.RR},
		{"Body temperature", "°C", rec.Exam.Temp},
		{"Oxygen saturation", "%", rec.Exam.SpO2},
	} {
		if obs := vitalObservation(v.display, v.value, v.unit, patientRef, ts); obs != nil {
			entries = append(entries, Entry{Request: Request{Method: "POST", URL: "Observation"}, Resource: *obs})
		}
	}

	for _, dx := range rec.Impressions {
		if strings.TrimSpace(dx) == "" {
			continue
		}
		entries = append(entries, Entry{
			Request: Request{Method: "POST", URL: "Condition"},
			Resource: Condition{
				ResourceType: "Condition",
				ClinicalStatus: CodeableConcept{Coding: []Coding{{
					System: "http://terminology.hl7.org/CodeSystem/condition-clinical",
					Code:   "active",
				}}},
				VerificationStatus: CodeableConcept{Coding: []Coding{{
					System: "http://terminology.hl7.org/CodeSystem/condition-ver-status",
					Code:   "unconfirmed",
				}}},
				Subject:      patientRef,
				RecordedDate: ts,
				Code:         CodeableConcept{Text: dx},
			},
		})
	}

	for _, o := range rec.Orders {
		if strings.TrimSpace(o.Detail) == "" {
			continue
		}
		entries = append(entries, Entry{
			Request: Request{Method: "POST", URL: "ServiceRequest"},
			Resource: ServiceRequest{
				ResourceType: "ServiceRequest",
				Status:       "active",
				Intent:       "order",
				AuthoredOn:   ts,
				Subject:      patientRef,
				Requester:    practitionerRef,
				Code:         CodeableConcept{Text: o.Detail},
			},
		})
	}

	for _, p := range rec.Prescriptions {
		if strings.TrimSpace(p.Detail) == "" {
			continue
		}
		entries = append(entries, Entry{
			Request: Request{Method: "POST", URL: "MedicationRequest"},
			Resource: MedicationRequest{
				ResourceType:              "MedicationRequest",
				Status:                    "active",
				Intent:                    "order",
				AuthoredOn:                ts,
				Subject:                   patientRef,
				Requester:                 practitionerRef,
				MedicationCodeableConcept: CodeableConcept{Text: p.Detail},
				DosageInstruction:         []DosageComponent{{Text: p.Detail}},
			},
		})
	}

	for _, alert := range rec.Alerts {
		if strings.TrimSpace(alert) == "" {
			continue
		}
		entries = append(entries, Entry{
			Request: Request{Method: "POST", URL: "Flag"},
			Resource: Flag{
				ResourceType: "Flag",
				Status:       "active",
				Code:         CodeableConcept{Text: alert},
				Subject:      patientRef,
				Period:       Period{Start: ts},
			},
		})
	}

	return Bundle{ResourceType: "Bundle", Type: "transaction", Entry: entries}
}

// bloodPressureObservation builds the LOINC blood pressure panel, or nil
// when the text does not parse as a plausible reading.
func bloodPressureObservation(bp string, subject Reference, ts string) *Observation {
	sys, dia, ok := canon.ParseBloodPressure(bp)
	if !ok {
		return nil
	}
	return &Observation{
		ResourceType: "Observation",
		Status:       "final",
		Category:     vitalSignsCategory,
		Code: CodeableConcept{
			Coding: []Coding{{System: "http://loinc.org", Code: "85354-9", Display: "Blood pressure panel"}},
			Text:   "Blood Pressure",
		},
		Subject:           subject,
		EffectiveDateTime: ts,
		Component: []ObservationComponent{
			{
				Code:          CodeableConcept{Coding: []Coding{{System: "http://loinc.org", Code: "8480-6", Display: "Systolic"}}},
				ValueQuantity: Quantity{Value: sys, Unit: "mmHg"},
			},
			{
				Code:          CodeableConcept{Coding: []Coding{{System: "http://loinc.org", Code: "8462-4", Display: "Diastolic"}}},
				ValueQuantity: Quantity{Value: dia, Unit: "mmHg"},
			},
		},
	}
}

// vitalObservation builds a simple quantity observation from the first
// numeric token of value, or nil when it does not parse.
func vitalObservation(display, value, unit string, subject Reference, ts string) *Observation {
	fields := strings.Fields(strings.TrimSpace(value))
	if len(fields) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil {
		return nil
	}
	return &Observation{
		ResourceType:      "Observation",
		Status:            "final",
		Category:          vitalSignsCategory,
		Code:              CodeableConcept{Text: display},
		Subject:           subject,
		EffectiveDateTime: ts,
		ValueQuantity:     &Quantity{Value: v, Unit: unit},
	}
}
