package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// SSEEvent is one Server-Sent Event frame.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
	Retry int
}

// SSEWriter writes Server-Sent Event frames to an http.ResponseWriter,
// flushing after every write so the client sees each frame as it's
// produced rather than buffered.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the SSE response headers on w and returns a writer for
// it. It returns an error if w does not support http.Flusher, since
// streaming is impossible without it.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("server: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent writes one SSE frame, splitting multi-line Data across
// repeated "data:" lines per the SSE wire format.
func (sw *SSEWriter) WriteEvent(event SSEEvent) error {
	var b strings.Builder
	if event.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", event.ID)
	}
	if event.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", event.Event)
	}
	if event.Retry > 0 {
		fmt.Fprintf(&b, "retry: %s\n", strconv.Itoa(event.Retry))
	}
	for _, line := range strings.Split(event.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := sw.w.Write([]byte(b.String())); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// WriteHeartbeat writes an SSE comment line, keeping idle connections alive
// through intermediaries that time out on silence.
func (sw *SSEWriter) WriteHeartbeat() error {
	if _, err := sw.w.Write([]byte(": heartbeat\n\n")); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
