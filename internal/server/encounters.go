package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Escorpio024/scribe-ia-aurora/internal/canon"
	"github.com/Escorpio024/scribe-ia-aurora/internal/encounter"
	"github.com/Escorpio024/scribe-ia-aurora/internal/extract"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

type openEncounterRequest struct {
	PatientID string                   `json:"patient_id"`
	Patient   encounter.PatientContext `json:"patient_context"`
}

func (s *Server) encounterOpen(c *gin.Context) {
	// An empty body opens an anonymous encounter.
	var req openEncounterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	enc, err := s.deps.Store.Open(c.Request.Context(), encounter.Encounter{
		PatientID: req.PatientID,
		Patient:   req.Patient,
	})
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.OpenEncounters.Add(c.Request.Context(), 1)
	}
	s.log.InfoContext(c.Request.Context(), "encounter opened", "encounter_id", enc.ID)
	c.JSON(http.StatusCreated, enc)
}

func (s *Server) encounterList(c *gin.Context) {
	encs, err := s.deps.Store.List(c.Request.Context())
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if encs == nil {
		encs = []encounter.Encounter{}
	}
	c.JSON(http.StatusOK, gin.H{"encounters": encs})
}

func (s *Server) encounterGet(c *gin.Context) {
	enc, err := s.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		encounterError(c, err)
		return
	}
	c.JSON(http.StatusOK, enc)
}

func (s *Server) encounterDelete(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	// Snapshot first so the open-encounter gauge only drops for encounters
	// that were still open.
	enc, err := s.deps.Store.Get(ctx, id)
	stillOpen := err == nil && enc.ClosedAt == nil

	if err := s.deps.Store.Delete(ctx, id); err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if stillOpen && s.deps.Metrics != nil {
		s.deps.Metrics.OpenEncounters.Add(ctx, -1)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) encounterClose(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	enc, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		encounterError(c, err)
		return
	}
	wasOpen := enc.ClosedAt == nil

	if err := s.deps.Store.CloseEncounter(ctx, id); err != nil {
		encounterError(c, err)
		return
	}
	if wasOpen && s.deps.Metrics != nil {
		s.deps.Metrics.OpenEncounters.Add(ctx, -1)
	}
	enc, err = s.deps.Store.Get(ctx, id)
	if err != nil {
		encounterError(c, err)
		return
	}
	c.JSON(http.StatusOK, enc)
}

func (s *Server) encounterSummary(c *gin.Context) {
	sum, err := s.deps.Store.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		encounterError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type turnResponse struct {
	EncounterID string        `json:"encounter_id"`
	TurnCount   int           `json:"turn_count"`
	Extraction  record.Record `json:"extraction"`
}

// encounterTurn appends one dialogue turn and returns the rule extraction
// over the conversation so far.
func (s *Server) encounterTurn(c *gin.Context) {
	var req turnPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		abortError(c, http.StatusBadRequest, "text is required")
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	turn := toTurns([]turnPayload{req})[0]
	if err := s.deps.Store.AppendTurn(ctx, id, turn); err != nil {
		encounterError(c, err)
		return
	}

	enc, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		encounterError(c, err)
		return
	}
	partial := canon.Apply(extract.FromTurns(enc.Turns))
	c.JSON(http.StatusOK, turnResponse{
		EncounterID: id,
		TurnCount:   len(enc.Turns),
		Extraction:  partial,
	})
}

type cdsRequest struct {
	Record record.Record `json:"json_clinico"`
}

func (s *Server) cdsSuggest(c *gin.Context) {
	if s.deps.CDS == nil {
		abortError(c, http.StatusServiceUnavailable, "decision support is not configured")
		return
	}
	var req cdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": s.deps.CDS.Suggest(c.Request.Context(), req.Record)})
}

type fhirRequest struct {
	PatientID      string        `json:"patient_id"`
	PractitionerID string        `json:"practitioner_id"`
	Record         record.Record `json:"json_clinico"`
}

func (s *Server) fhirBundle(c *gin.Context) {
	var req fhirRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	bundle := s.deps.FHIR.Bundle(req.PatientID, req.PractitionerID, canon.Apply(req.Record))
	c.JSON(http.StatusOK, bundle)
}

func encounterError(c *gin.Context, err error) {
	if errors.Is(err, encounter.ErrNotFound) {
		abortError(c, http.StatusNotFound, "encounter not found")
		return
	}
	abortError(c, http.StatusInternalServerError, err.Error())
}
