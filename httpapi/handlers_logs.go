package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/open-runtimes/executor/apierrors"
	"github.com/open-runtimes/executor/constants"
)

// handleLogs streams build or runtime logs as text/event-stream until the
// requested timeout elapses or the runtime's lifecycle ends the stream.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	runtimeID := chi.URLParam(r, "runtimeId")

	timeout := int(constants.DefaultBuildTimeout)
	if v := r.URL.Query().Get("timeout"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		apierrors.WriteJSON(w, apierrors.GeneralUnknown("Streaming unsupported by this connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(chunk string) {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}

	if apiErr := s.streamer.Stream(r.Context(), runtimeID, time.Duration(timeout)*time.Second, emit); apiErr != nil {
		emit(fmt.Sprintf(`{"type":%q,"message":%q}`, apiErr.Type, apiErr.Message))
	}
}
