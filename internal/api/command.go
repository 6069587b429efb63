package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/wtap-core/internal/dispatch"
	"github.com/nerrad567/wtap-core/internal/pipeline"
)

// commandReply is one pipeline reply copied out of the request buffer.
type commandReply struct {
	status  dispatch.Status
	payload []byte
}

// handleCommand runs one envelope through the pipeline and writes its
// reply, waiting for deferred commands to complete.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.pipeline.Pool().Capacity())
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeRaw(w, http.StatusRequestEntityTooLarge, dispatch.StatusBadRequest.Frame())
			return
		}
		writeBadRequest(w, "reading request body")
		return
	}

	done := make(chan commandReply, 1)
	err = s.pipeline.Handle(r.Context(), body, func(st dispatch.Status, payload []byte) {
		done <- commandReply{status: st, payload: bytes.Clone(payload)}
	})
	if errors.Is(err, pipeline.ErrFrameTooLarge) {
		s.logger.Debug("command body too large", "size", len(body), "limit", limit)
		writeRaw(w, http.StatusRequestEntityTooLarge, dispatch.StatusBadRequest.Frame())
		return
	}
	if err != nil {
		writeRaw(w, http.StatusInternalServerError, dispatch.StatusInternalError.Frame())
		return
	}

	timer := time.NewTimer(s.replyTimeout)
	defer timer.Stop()

	select {
	case rep := <-done:
		writeRaw(w, httpStatus(rep.status), rep.payload)
	case <-timer.C:
		// The reply is still delivered into done later and dropped.
		s.logger.Warn("command reply timed out", "timeout", s.replyTimeout)
		writeRaw(w, http.StatusServiceUnavailable, dispatch.StatusBusy.Frame())
	case <-r.Context().Done():
	}
}
