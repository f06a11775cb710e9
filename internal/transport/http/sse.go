package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
)

// sseStream writes named server-sent event frames. Once a write fails the
// stream is marked dead and later sends become no-ops, so a dropped
// client never aborts the batch that is feeding the stream.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	dead    bool
}

// newSSEStream upgrades the response to an event stream and flushes the
// headers immediately so the client sees the channel open before the
// first event is ready.
func newSSEStream(w http.ResponseWriter) (*sseStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseStream{w: w, flusher: flusher}, nil
}

// Send writes one event frame: `event: <name>` then `data: <json>`.
func (s *sseStream) Send(ev domain.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead {
		return
	}

	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, payload); err != nil {
		s.dead = true
		return
	}
	s.flusher.Flush()
}
