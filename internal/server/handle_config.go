package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/huntworks/huntops/internal/publish"
)

func handleConfigGet(publisher *publish.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := publisher.Load(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func handleConfigPublishes(publisher *publish.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := publisher.History(r.Context(), 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if history == nil {
			history = []publish.Result{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

func handleConfigDeleteImage(publisher *publish.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imageName := chi.URLParam(r, "imageName")

		res, err := publisher.Delete(r.Context(), imageName)
		if errors.Is(err, publish.ErrNotFound) {
			writeError(w, http.StatusNotFound, "treasure record not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
