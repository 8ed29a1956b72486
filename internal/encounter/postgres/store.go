// Package postgres persists encounters in PostgreSQL so consultations
// survive process restarts and can be shared between replicas.
//
// Each encounter is stored as a JSONB document alongside the columns needed
// for listing and lifecycle queries. Mutations run in a transaction with a
// row lock, so concurrent appends from the streaming and REST surfaces never
// lose events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Escorpio024/scribe-ia-aurora/internal/encounter"
	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// Store is the PostgreSQL-backed encounter store.
type Store struct {
	pool *pgxpool.Pool
}

var _ encounter.Store = (*Store)(nil)

// NewStore connects to the database at dsn, verifies the connection, and
// ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("encounter store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("encounter store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("encounter store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("encounter store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Pool exposes the connection pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Open implements encounter.Store.
func (s *Store) Open(ctx context.Context, enc encounter.Encounter) (*encounter.Encounter, error) {
	if enc.ID == "" {
		enc.ID = uuid.NewString()
	}
	if enc.StartedAt.IsZero() {
		enc.StartedAt = time.Now()
	}
	doc, err := json.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("encode encounter: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO encounters (id, patient_id, started_at, closed_at, doc)
		VALUES ($1, $2, $3, NULL, $4)
		ON CONFLICT (id) DO UPDATE SET patient_id = $2, started_at = $3, doc = $4`,
		enc.ID, enc.PatientID, enc.StartedAt, doc)
	if err != nil {
		return nil, fmt.Errorf("insert encounter: %w", err)
	}
	return &enc, nil
}

// Get implements encounter.Store.
func (s *Store) Get(ctx context.Context, id string) (*encounter.Encounter, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM encounters WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, encounter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select encounter: %w", err)
	}
	var enc encounter.Encounter
	if err := json.Unmarshal(doc, &enc); err != nil {
		return nil, fmt.Errorf("decode encounter %s: %w", id, err)
	}
	return &enc, nil
}

// List implements encounter.Store.
func (s *Store) List(ctx context.Context) ([]encounter.Encounter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM encounters WHERE closed_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	out := []encounter.Encounter{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan encounter: %w", err)
		}
		var enc encounter.Encounter
		if err := json.Unmarshal(doc, &enc); err != nil {
			continue
		}
		out = append(out, enc)
	}
	return out, rows.Err()
}

// CloseEncounter implements encounter.Store.
func (s *Store) CloseEncounter(ctx context.Context, id string) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		if enc.ClosedAt == nil {
			t := time.Now()
			enc.ClosedAt = &t
		}
	})
}

// Delete implements encounter.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM encounters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete encounter: %w", err)
	}
	return nil
}

// SetPatient implements encounter.Store.
func (s *Store) SetPatient(ctx context.Context, id string, patient encounter.PatientContext) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		enc.Patient = patient
	})
}

// AppendTurn implements encounter.Store.
func (s *Store) AppendTurn(ctx context.Context, id string, turn ingest.Turn) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		enc.Turns = append(enc.Turns, turn)
	})
}

// AddFinding implements encounter.Store.
func (s *Store) AddFinding(ctx context.Context, id string, f encounter.Finding) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		if f.Time.IsZero() {
			f.Time = time.Now()
		}
		enc.Findings = append(enc.Findings, f)
	})
}

// AddMedication implements encounter.Store.
func (s *Store) AddMedication(ctx context.Context, id string, m encounter.Medication) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		if m.Time.IsZero() {
			m.Time = time.Now()
		}
		if m.Status == "" {
			m.Status = encounter.MedicationProposed
		}
		enc.Medications = append(enc.Medications, m)
	})
}

// AddDecision implements encounter.Store.
func (s *Store) AddDecision(ctx context.Context, id string, d encounter.Decision) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		if d.Time.IsZero() {
			d.Time = time.Now()
		}
		enc.Decisions = append(enc.Decisions, d)
	})
}

// AddAlert implements encounter.Store.
func (s *Store) AddAlert(ctx context.Context, id string, a encounter.Alert) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		if a.Time.IsZero() {
			a.Time = time.Now()
		}
		enc.Alerts = append(enc.Alerts, a)
	})
}

// ValidateMedication implements encounter.Store.
func (s *Store) ValidateMedication(ctx context.Context, id, name, status string, warnings []string) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		for i := len(enc.Medications) - 1; i >= 0; i-- {
			if strings.EqualFold(enc.Medications[i].Name, name) {
				enc.Medications[i].ValidationStatus = status
				enc.Medications[i].Warnings = warnings
				return
			}
		}
	})
}

// AcknowledgeAlert implements encounter.Store.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string, index int) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		if index >= 0 && index < len(enc.Alerts) {
			enc.Alerts[index].Acknowledged = true
		}
	})
}

// SetRecord implements encounter.Store.
func (s *Store) SetRecord(ctx context.Context, id string, rec record.Record) error {
	return s.update(ctx, id, func(enc *encounter.Encounter) {
		enc.Record = &rec
	})
}

// Summarize implements encounter.Store.
func (s *Store) Summarize(ctx context.Context, id string) (*encounter.Summary, error) {
	enc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return encounter.Summarize(enc), nil
}

// update applies fn to the encounter document under a row lock.
func (s *Store) update(ctx context.Context, id string, fn func(*encounter.Encounter)) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM encounters WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return encounter.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock encounter: %w", err)
	}

	var enc encounter.Encounter
	if err := json.Unmarshal(doc, &enc); err != nil {
		return fmt.Errorf("decode encounter %s: %w", id, err)
	}
	fn(&enc)

	out, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("encode encounter: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE encounters SET doc = $2, patient_id = $3, closed_at = $4 WHERE id = $1`,
		id, out, enc.PatientID, enc.ClosedAt)
	if err != nil {
		return fmt.Errorf("write encounter: %w", err)
	}
	return tx.Commit(ctx)
}
