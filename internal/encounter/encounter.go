// Package encounter keeps the clinical context of a consultation: dialogue
// turns, findings, medication mentions, decisions with their evidence, and
// alerts. It is the agent's working memory from the first utterance until
// the encounter is closed.
package encounter

import (
	"context"
	"errors"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// ErrNotFound is returned when an encounter ID is unknown.
var ErrNotFound = errors.New("encounter not found")

// Finding types.
const (
	FindingSymptom   = "symptom"
	FindingSign      = "sign"
	FindingVital     = "vital"
	FindingLab       = "lab"
	FindingDiagnosis = "diagnosis"
)

// Medication statuses.
const (
	MedicationProposed   = "proposed"
	MedicationPrescribed = "prescribed"
	MedicationRejected   = "rejected"
	MedicationCurrent    = "current"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Finding is one clinical observation surfaced during the consultation.
type Finding struct {
	Time        time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Severity    string    `json:"severity,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Medication is a medication mentioned, proposed, or prescribed.
type Medication struct {
	Time             time.Time `json:"timestamp"`
	Name             string    `json:"name"`
	Dose             string    `json:"dose,omitempty"`
	Frequency        string    `json:"frequency,omitempty"`
	Route            string    `json:"route,omitempty"`
	Indication       string    `json:"indication,omitempty"`
	Status           string    `json:"status"`
	ValidationStatus string    `json:"validation_status,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// Decision is a clinical decision with its supporting evidence.
type Decision struct {
	Time        time.Time            `json:"timestamp"`
	Type        string               `json:"type"`
	Description string               `json:"description"`
	Rationale   string               `json:"rationale,omitempty"`
	Evidence    []evidence.Reference `json:"evidence,omitempty"`
	Confidence  string               `json:"confidence,omitempty"`
}

// Alert is a safety flag raised during the consultation. Alerts stay active
// until acknowledged.
type Alert struct {
	Time           time.Time `json:"timestamp"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Details        string    `json:"details,omitempty"`
	ActionRequired bool      `json:"action_required"`
	Acknowledged   bool      `json:"acknowledged"`
}

// PatientContext is what is known about the patient independent of this
// encounter's dialogue.
type PatientContext struct {
	ChiefComplaint string   `json:"chief_complaint,omitempty"`
	Age            *int     `json:"age,omitempty"`
	Allergies      []string `json:"allergies,omitempty"`
}

// Encounter is the full state of one consultation.
type Encounter struct {
	ID        string     `json:"encounter_id"`
	PatientID string     `json:"patient_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	Patient     PatientContext `json:"patient_context"`
	Turns       []ingest.Turn  `json:"conversation_turns,omitempty"`
	Findings    []Finding      `json:"clinical_findings,omitempty"`
	Medications []Medication   `json:"medications_mentioned,omitempty"`
	Decisions   []Decision     `json:"decisions_made,omitempty"`
	Alerts      []Alert        `json:"alerts_triggered,omitempty"`

	// Record is the latest drafted clinical record for this encounter.
	Record *record.Record `json:"record,omitempty"`
}

// Summary is the compact view of an encounter injected into prompts and
// returned by the context endpoint.
type Summary struct {
	EncounterID        string         `json:"encounter_id"`
	PatientID          string         `json:"patient_id,omitempty"`
	Patient            PatientContext `json:"patient_context"`
	CurrentMedications []Medication   `json:"current_medications"`
	Diagnoses          []string       `json:"diagnoses"`
	Symptoms           []string       `json:"symptoms"`
	ActiveAlerts       []Alert        `json:"active_alerts"`
	TurnCount          int            `json:"conversation_turns_count"`
}

// Store persists encounters. Implementations must be safe for concurrent
// use.
type Store interface {
	// Open creates the encounter, generating an ID and start time when the
	// caller left them zero, and returns the stored value.
	Open(ctx context.Context, enc Encounter) (*Encounter, error)

	// Get returns a snapshot of the encounter, or ErrNotFound.
	Get(ctx context.Context, id string) (*Encounter, error)

	// List returns snapshots of all encounters that are not closed.
	List(ctx context.Context) ([]Encounter, error)

	// CloseEncounter marks the encounter finished. Closing twice is not an
	// error.
	CloseEncounter(ctx context.Context, id string) error

	// Delete removes the encounter entirely. Deleting an unknown ID is not
	// an error.
	Delete(ctx context.Context, id string) error

	// SetPatient replaces the patient context.
	SetPatient(ctx context.Context, id string, patient PatientContext) error

	// AppendTurn adds a dialogue turn.
	AppendTurn(ctx context.Context, id string, turn ingest.Turn) error

	// AddFinding, AddMedication, AddDecision, and AddAlert append clinical
	// events, stamping the current time when the event's Time is zero.
	AddFinding(ctx context.Context, id string, f Finding) error
	AddMedication(ctx context.Context, id string, m Medication) error
	AddDecision(ctx context.Context, id string, d Decision) error
	AddAlert(ctx context.Context, id string, a Alert) error

	// ValidateMedication updates the validation status of the most recent
	// medication with the given name, case-insensitively.
	ValidateMedication(ctx context.Context, id, name, status string, warnings []string) error

	// AcknowledgeAlert marks the alert at index acknowledged. Out-of-range
	// indexes are ignored.
	AcknowledgeAlert(ctx context.Context, id string, index int) error

	// SetRecord stores the latest drafted record.
	SetRecord(ctx context.Context, id string, rec record.Record) error

	// Summarize builds the compact context view, or ErrNotFound.
	Summarize(ctx context.Context, id string) (*Summary, error)
}

// Summarize derives the compact view from a snapshot. Shared by store
// implementations so the summary shape never diverges between backends.
func Summarize(enc *Encounter) *Summary {
	s := &Summary{
		EncounterID:        enc.ID,
		PatientID:          enc.PatientID,
		Patient:            enc.Patient,
		CurrentMedications: []Medication{},
		Diagnoses:          []string{},
		Symptoms:           []string{},
		ActiveAlerts:       []Alert{},
		TurnCount:          len(enc.Turns),
	}
	for _, m := range enc.Medications {
		switch m.Status {
		case MedicationProposed, MedicationPrescribed, MedicationCurrent:
			s.CurrentMedications = append(s.CurrentMedications, m)
		}
	}
	for _, f := range enc.Findings {
		switch f.Type {
		case FindingDiagnosis:
			s.Diagnoses = append(s.Diagnoses, f.Description)
		case FindingSymptom:
			s.Symptoms = append(s.Symptoms, f.Description)
		}
	}
	for _, a := range enc.Alerts {
		if !a.Acknowledged {
			s.ActiveAlerts = append(s.ActiveAlerts, a)
		}
	}
	return s
}
