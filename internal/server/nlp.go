package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// turnPayload is one dialogue turn on the wire.
type turnPayload struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// toTurns maps wire turns onto dialogue turns. Any speaker label starting
// with "PAC" is the patient; everything else is the clinician.
func toTurns(payload []turnPayload) []ingest.Turn {
	turns := make([]ingest.Turn, 0, len(payload))
	for _, p := range payload {
		sp := ingest.Doctor
		if strings.HasPrefix(strings.ToUpper(p.Speaker), "PAC") {
			sp = ingest.Patient
		}
		turns = append(turns, ingest.Turn{Speaker: sp, Text: p.Text})
	}
	return turns
}

type generateRequest struct {
	Transcript []turnPayload `json:"transcript"`

	// SchemaID is accepted for caller compatibility; routing is decided
	// from the dialogue itself.
	SchemaID string `json:"schema_id"`

	// Fast selects the cached heuristic path that skips the LLM.
	Fast bool `json:"fast"`
}

func (s *Server) nlpGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Transcript) == 0 {
		abortError(c, http.StatusBadRequest, "transcript is empty")
		return
	}

	turns := toTurns(req.Transcript)
	if req.Fast {
		c.JSON(http.StatusOK, s.deps.Generator.GenerateFast(c.Request.Context(), turns))
		return
	}
	c.JSON(http.StatusOK, s.deps.Generator.Generate(c.Request.Context(), turns))
}

type augmentRequest struct {
	Record   record.Record `json:"json_clinico"`
	SchemaID string        `json:"schema_id"`
}

func (s *Server) nlpAugment(c *gin.Context) {
	var req augmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	topK, bias := s.tuning.get()
	aug := s.deps.Retriever.Augment(req.Record, req.SchemaID, topK, bias)
	c.JSON(http.StatusOK, aug)
}
