package server

import (
	"errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/Escorpio024/scribe-ia-aurora/internal/canon"
	"github.com/Escorpio024/scribe-ia-aurora/internal/encounter"
	"github.com/Escorpio024/scribe-ia-aurora/internal/extract"
)

// streamError is pushed to the client before an abnormal close.
type streamError struct {
	Error string `json:"error"`
}

// encounterStream upgrades to a websocket and accepts dialogue turns as
// JSON messages. Each turn is appended to the encounter and answered with
// the incremental rule extraction, so a consultation UI can show the record
// taking shape while the visit is still running.
func (s *Server) encounterStream(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := s.deps.Store.Get(ctx, id); err != nil {
		encounterError(c, err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.deps.CORSOrigins,
	})
	if err != nil {
		// Accept already wrote the HTTP error.
		s.log.WarnContext(ctx, "websocket accept failed", "encounter_id", id, "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveStreams.Add(ctx, 1)
		defer s.deps.Metrics.ActiveStreams.Add(ctx, -1)
	}
	s.log.InfoContext(ctx, "transcript stream opened", "encounter_id", id)

	for {
		var msg turnPayload
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.log.WarnContext(ctx, "transcript stream read failed", "encounter_id", id, "err", err)
			conn.Close(websocket.StatusInvalidFramePayloadData, "expected a JSON turn")
			return
		}
		if msg.Text == "" {
			_ = wsjson.Write(ctx, conn, streamError{Error: "text is required"})
			continue
		}

		turn := toTurns([]turnPayload{msg})[0]
		if err := s.deps.Store.AppendTurn(ctx, id, turn); err != nil {
			if errors.Is(err, encounter.ErrNotFound) {
				conn.Close(websocket.StatusPolicyViolation, "encounter deleted")
				return
			}
			s.log.ErrorContext(ctx, "append turn failed", "encounter_id", id, "err", err)
			conn.Close(websocket.StatusInternalError, "store failure")
			return
		}

		enc, err := s.deps.Store.Get(ctx, id)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "store failure")
			return
		}
		resp := turnResponse{
			EncounterID: id,
			TurnCount:   len(enc.Turns),
			Extraction:  canon.Apply(extract.FromTurns(enc.Turns)),
		}
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			s.log.WarnContext(ctx, "transcript stream write failed", "encounter_id", id, "err", err)
			return
		}
	}
}
