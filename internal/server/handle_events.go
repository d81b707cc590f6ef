package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/huntworks/huntops/internal/team"
)

func handleEvents(broker *Broker, teams *team.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		ch := broker.Subscribe()
		defer broker.Unsubscribe(ch)

		// Initial snapshot so a new dashboard renders without waiting for
		// the first mutation.
		if roster, err := teams.List(r.Context()); err == nil {
			data, _ := json.Marshal(RosterEvent{Type: "snapshot", Teams: roster})
			fmt.Fprintf(w, "event: roster\ndata: %s\n\n", data)
			flusher.Flush()
		}

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				fmt.Fprintf(w, "event: roster\ndata: %s\n\n", data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
