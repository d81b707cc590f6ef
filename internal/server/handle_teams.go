package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/huntworks/huntops/internal/team"
)

// PhysicalScoreRequest is a partial-field update of the volunteer-owned
// score.
type PhysicalScoreRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// ScoreEntryRequest appends one unfinalized ledger entry.
type ScoreEntryRequest struct {
	Score     int    `json:"score"`
	Volunteer string `json:"volunteer"`
	Benchmark string `json:"benchmark"`
}

// TeamDetailResponse is one team with its scoring ledger.
type TeamDetailResponse struct {
	Team    team.Team                 `json:"team"`
	Entries []team.PhysicalScoreEntry `json:"entries"`
	Net     int                       `json:"netPhysicalScore"`
}

func handleTeamList(teams *team.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roster, err := teams.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, roster)
	}
}

func handleTeamGet(teams *team.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")

		t, err := teams.Get(r.Context(), uid)
		if errors.Is(err, team.ErrNotFound) {
			writeError(w, http.StatusNotFound, "team not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		entries, err := teams.ListEntries(r.Context(), uid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		net, err := teams.NetPhysicalScore(r.Context(), uid)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, TeamDetailResponse{Team: t, Entries: entries, Net: net})
	}
}

func handleTeamUpsert(teams *team.Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")

		var req team.UpsertInput
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		t, err := teams.Upsert(r.Context(), uid, req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		notifyRoster(r, teams, broker, "team_updated")
		writeJSON(w, http.StatusOK, t)
	}
}

func handlePhysicalScore(teams *team.Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")

		var req PhysicalScoreRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err := teams.UpdatePhysicalScore(r.Context(), uid, req.Score, req.Comment)
		if errors.Is(err, team.ErrNotFound) {
			writeError(w, http.StatusNotFound, "team not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		notifyRoster(r, teams, broker, "physical_score_updated")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleScoreEntryAdd(teams *team.Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")

		var req ScoreEntryRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		entry, err := teams.AddEntry(r.Context(), uid, req.Score, req.Volunteer, req.Benchmark)
		if errors.Is(err, team.ErrNotFound) {
			writeError(w, http.StatusNotFound, "team not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		notifyRoster(r, teams, broker, "score_entry_added")
		writeJSON(w, http.StatusCreated, entry)
	}
}

func handleScoreEntryFinalize(teams *team.Store, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")
		entryID := chi.URLParam(r, "entryID")

		err := teams.FinalizeEntry(r.Context(), uid, entryID)
		if errors.Is(err, team.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entry not found or already finalized")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		notifyRoster(r, teams, broker, "score_entry_finalized")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// notifyRoster pushes the freshly re-fetched roster to all dashboard
// subscribers.
func notifyRoster(r *http.Request, teams *team.Store, broker *Broker, eventType string) {
	roster, err := teams.List(r.Context())
	if err != nil {
		return
	}
	broker.Publish(RosterEvent{Type: eventType, Teams: roster})
}
