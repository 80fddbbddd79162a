package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/micro-nova/callaudio-go/internal/models"
)

// sseEvents streams routing notifications. Clients first receive the current
// audio state, then every notification as it is published.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	id := uuid.New().String()
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id)

	current := h.router.Status().Audio
	sendSSE(w, flusher, models.Notification{Type: models.NotifyAudioState, New: &current})

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			sendSSE(w, flusher, n)
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, n models.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data)
	flusher.Flush()
}
