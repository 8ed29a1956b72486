package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt/whisper"
)

// maxUploadBytes bounds one recording upload (~10 minutes of 16-bit 16 kHz
// stereo WAV).
const maxUploadBytes = 64 << 20

type uploadResponse struct {
	Turns      []ingest.Turn `json:"turns"`
	Transcript string        `json:"transcript"`
	Segments   int           `json:"segments"`
}

// ingestUpload transcribes a multipart WAV upload and diarizes it into
// speaker turns.
func (s *Server) ingestUpload(c *gin.Context) {
	if s.deps.STT == nil {
		abortError(c, http.StatusServiceUnavailable, "no speech-to-text provider configured")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		abortError(c, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	if fh.Size > maxUploadBytes {
		abortError(c, http.StatusRequestEntityTooLarge, "recording exceeds the upload limit")
		return
	}

	f, err := fh.Open()
	if err != nil {
		abortError(c, http.StatusBadRequest, "cannot open upload: "+err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		abortError(c, http.StatusBadRequest, "cannot read upload: "+err.Error())
		return
	}

	samples, err := whisper.DecodeWAV(data)
	if err != nil {
		abortError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	start := time.Now()
	segments, err := s.deps.STT.Transcribe(c.Request.Context(), samples)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "transcription failed", "err", err)
		abortError(c, http.StatusBadGateway, "transcription failed")
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.TranscribeDuration.Record(c.Request.Context(), time.Since(start).Seconds())
	}

	turns := s.deps.Diarizer.Turns(segments)
	c.JSON(http.StatusOK, uploadResponse{
		Turns:      turns,
		Transcript: ingest.FormatTranscript(turns),
		Segments:   len(segments),
	})
}
