package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/huntworks/huntops/internal/marker"
	"github.com/huntworks/huntops/internal/publish"
	"github.com/huntworks/huntops/internal/treasure"
)

// StartSessionRequest starts an authoring session. Quota 0 uses the
// configured default.
type StartSessionRequest struct {
	Quota int `json:"quota"`
}

// ReadyRequest signals that the frontman's device finished Setup. Camera is
// mandatory; a missing GPS fix only degrades the session.
type ReadyRequest struct {
	Camera bool `json:"camera"`
	GPS    bool `json:"gps"`
}

// NameRequest confirms the marker label.
type NameRequest struct {
	Name string `json:"name"`
}

// CropRequest confirms the crop region, in display coordinates when display
// dimensions are given.
type CropRequest struct {
	Region        marker.Region `json:"region"`
	DisplayWidth  int           `json:"displayWidth"`
	DisplayHeight int           `json:"displayHeight"`
}

// NextRequest is the operator's choice after a save.
type NextRequest struct {
	AuthorAnother bool `json:"authorAnother"`
}

// SaveResponse reports the appended record plus how the publish saga settled.
type SaveResponse struct {
	Record  treasure.Record   `json:"record"`
	Publish publish.Result    `json:"publish"`
	Session treasure.Snapshot `json:"session"`
}

func handleSessionStart(sessions *treasure.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartSessionRequest
		if r.ContentLength > 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		s := sessions.Start(req.Quota)
		writeJSON(w, http.StatusCreated, s.Snapshot())
	}
}

func handleSessionState(sessions *treasure.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Active()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active authoring session")
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func handleSessionEnd(sessions *treasure.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.End()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
	}
}

func handleReady(sessions *treasure.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReadyRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s, err := sessions.Active()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active authoring session")
			return
		}
		if err := s.Ready(req.Camera, req.GPS); err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func handleCapture(sessions *treasure.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Active()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active authoring session")
			return
		}

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}

		frame, _, err := r.FormFile("frame")
		if err != nil {
			writeError(w, http.StatusBadRequest, "frame file part required")
			return
		}
		defer frame.Close()

		lat, _ := strconv.ParseFloat(r.FormValue("latitude"), 64)
		lon, _ := strconv.ParseFloat(r.FormValue("longitude"), 64)

		if err := s.Capture(frame, lat, lon); err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func handleName(sessions *treasure.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NameRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s, err := sessions.Active()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active authoring session")
			return
		}
		if err := s.Name(req.Name); err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

func handleCrop(sessions *treasure.Manager, ev treasure.Evaluator, up treasure.Uploader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CropRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s, err := sessions.Active()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active authoring session")
			return
		}

		outcome, err := s.Crop(r.Context(), req.Region, req.DisplayWidth, req.DisplayHeight, ev, up)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Outcome treasure.CropOutcome `json:"outcome"`
			Session treasure.Snapshot    `json:"session"`
		}{outcome, s.Snapshot()})
	}
}

func handleSave(sessions *treasure.Manager, publisher *publish.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req treasure.SaveInput
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s, err := sessions.Active()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active authoring session")
			return
		}

		// Per-request adapter so the handler can report the saga outcome
		// alongside the record.
		ad := &publishAdapter{publisher: publisher}
		rec, err := s.Save(r.Context(), req, ad)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, SaveResponse{
			Record:  rec,
			Publish: ad.result,
			Session: s.Snapshot(),
		})
	}
}

func handleNext(sessions *treasure.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NextRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s, err := sessions.Active()
		if err != nil {
			writeError(w, http.StatusNotFound, "no active authoring session")
			return
		}
		if err := s.Next(req.AuthorAnother); err != nil {
			writeWorkflowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

// publishAdapter implements treasure.Publisher over the saga publisher and
// keeps the per-step Result for the HTTP response.
type publishAdapter struct {
	publisher *publish.Publisher
	result    publish.Result
}

func (a *publishAdapter) Publish(ctx context.Context, records []treasure.Record) error {
	res, err := a.publisher.Publish(ctx, records)
	a.result = res
	return err
}

// writeWorkflowError maps workflow sentinels to HTTP statuses. Input
// validation blocks the transition with 400; ordering violations and the
// re-entrancy guard answer 409 so the client can re-sync and retry.
func writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, treasure.ErrBusy):
		writeError(w, http.StatusConflict, "an async step is still in progress")
	case errors.Is(err, treasure.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, treasure.ErrDuplicateName):
		writeError(w, http.StatusConflict, "image name already used in this session")
	case errors.Is(err, treasure.ErrCameraRequired):
		writeError(w, http.StatusBadRequest, "camera stream required")
	case errors.Is(err, treasure.ErrClueTextRequired):
		writeError(w, http.StatusBadRequest, "clue text is required")
	case errors.Is(err, treasure.ErrPhysicalGameFields):
		writeError(w, http.StatusBadRequest, "physical game instruction and secret code are required")
	case errors.Is(err, marker.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "marker name is required")
	case errors.Is(err, marker.ErrCaptureUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "no usable frame captured")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
