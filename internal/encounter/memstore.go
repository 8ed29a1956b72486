package encounter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// MemStore is the in-memory Store used in single-node deployments and tests.
type MemStore struct {
	mu         sync.RWMutex
	encounters map[string]*Encounter
	now        func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		encounters: make(map[string]*Encounter),
		now:        time.Now,
	}
}

// Open implements Store.
func (s *MemStore) Open(_ context.Context, enc Encounter) (*Encounter, error) {
	if enc.ID == "" {
		enc.ID = uuid.NewString()
	}
	if enc.StartedAt.IsZero() {
		enc.StartedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := enc
	s.encounters[enc.ID] = &stored
	snap := cloneEncounter(&stored)
	return &snap, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id string) (*Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enc, ok := s.encounters[id]
	if !ok {
		return nil, ErrNotFound
	}
	snap := cloneEncounter(enc)
	return &snap, nil
}

// List implements Store.
func (s *MemStore) List(_ context.Context) ([]Encounter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Encounter, 0, len(s.encounters))
	for _, enc := range s.encounters {
		if enc.ClosedAt != nil {
			continue
		}
		out = append(out, cloneEncounter(enc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// CloseEncounter implements Store.
func (s *MemStore) CloseEncounter(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, ok := s.encounters[id]
	if !ok {
		return ErrNotFound
	}
	if enc.ClosedAt == nil {
		t := s.now()
		enc.ClosedAt = &t
	}
	return nil
}

// Delete implements Store.
func (s *MemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.encounters, id)
	return nil
}

// SetPatient implements Store.
func (s *MemStore) SetPatient(_ context.Context, id string, patient PatientContext) error {
	return s.update(id, func(enc *Encounter) {
		enc.Patient = patient
	})
}

// AppendTurn implements Store.
func (s *MemStore) AppendTurn(_ context.Context, id string, turn ingest.Turn) error {
	return s.update(id, func(enc *Encounter) {
		enc.Turns = append(enc.Turns, turn)
	})
}

// AddFinding implements Store.
func (s *MemStore) AddFinding(_ context.Context, id string, f Finding) error {
	return s.update(id, func(enc *Encounter) {
		if f.Time.IsZero() {
			f.Time = s.now()
		}
		enc.Findings = append(enc.Findings, f)
	})
}

// AddMedication implements Store.
func (s *MemStore) AddMedication(_ context.Context, id string, m Medication) error {
	return s.update(id, func(enc *Encounter) {
		if m.Time.IsZero() {
			m.Time = s.now()
		}
		if m.Status == "" {
			m.Status = MedicationProposed
		}
		enc.Medications = append(enc.Medications, m)
	})
}

// AddDecision implements Store.
func (s *MemStore) AddDecision(_ context.Context, id string, d Decision) error {
	return s.update(id, func(enc *Encounter) {
		if d.Time.IsZero() {
			d.Time = s.now()
		}
		enc.Decisions = append(enc.Decisions, d)
	})
}

// AddAlert implements Store.
func (s *MemStore) AddAlert(_ context.Context, id string, a Alert) error {
	return s.update(id, func(enc *Encounter) {
		if a.Time.IsZero() {
			a.Time = s.now()
		}
		enc.Alerts = append(enc.Alerts, a)
	})
}

// ValidateMedication implements Store.
func (s *MemStore) ValidateMedication(_ context.Context, id, name, status string, warnings []string) error {
	return s.update(id, func(enc *Encounter) {
		for i := len(enc.Medications) - 1; i >= 0; i-- {
			if strings.EqualFold(enc.Medications[i].Name, name) {
				enc.Medications[i].ValidationStatus = status
				enc.Medications[i].Warnings = warnings
				return
			}
		}
	})
}

// AcknowledgeAlert implements Store.
func (s *MemStore) AcknowledgeAlert(_ context.Context, id string, index int) error {
	return s.update(id, func(enc *Encounter) {
		if index >= 0 && index < len(enc.Alerts) {
			enc.Alerts[index].Acknowledged = true
		}
	})
}

// SetRecord implements Store.
func (s *MemStore) SetRecord(_ context.Context, id string, rec record.Record) error {
	return s.update(id, func(enc *Encounter) {
		enc.Record = &rec
	})
}

// Summarize implements Store.
func (s *MemStore) Summarize(ctx context.Context, id string) (*Summary, error) {
	enc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Summarize(enc), nil
}

func (s *MemStore) update(id string, fn func(*Encounter)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, ok := s.encounters[id]
	if !ok {
		return ErrNotFound
	}
	fn(enc)
	return nil
}

// cloneEncounter returns a snapshot that shares no slices with the stored
// value.
func cloneEncounter(enc *Encounter) Encounter {
	out := *enc
	out.Turns = append([]ingest.Turn(nil), enc.Turns...)
	out.Findings = append([]Finding(nil), enc.Findings...)
	out.Medications = append([]Medication(nil), enc.Medications...)
	out.Decisions = append([]Decision(nil), enc.Decisions...)
	out.Alerts = append([]Alert(nil), enc.Alerts...)
	if enc.Record != nil {
		rec := *enc.Record
		out.Record = &rec
	}
	return out
}
