package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// handleEventStream serves GET /v1/events/stream as server-sent events.
//
// Query parameters: topics, a comma-separated topicFilter; since, an event
// id to resume after for clients that cannot send Last-Event-ID.
func (s *GraphServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	lastID, resume := resumeID(r)
	sub, missed := s.hub.subscribe(parseTopicFilter(r.URL.Query().Get("topics")), lastID, resume)
	defer s.hub.unsubscribe(sub)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, evt := range missed {
		writeStreamEvent(w, evt)
	}
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream not flushable", "err", err)
		return
	}

	ticker := time.NewTicker(s.hub.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.hub.done:
			return
		case evt := <-sub.ch:
			writeStreamEvent(w, evt)
		case <-ticker.C:
			io.WriteString(w, ":keepalive\n\n")
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// resumeID reads the id a reconnecting client last saw.
func resumeID(r *http.Request) (uint64, bool) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("since")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	return id, err == nil
}

func writeStreamEvent(w io.Writer, evt streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
