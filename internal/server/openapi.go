package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/huntworks/huntops/internal/publish"
	"github.com/huntworks/huntops/internal/team"
	"github.com/huntworks/huntops/internal/treasure"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "HuntOps API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Event-operations backend for the scavenger hunt: treasure authoring, configuration publishing, and live team scoring.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(map[string]struct {
		Status string `json:"status"`
	}{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getHealthz)

	// POST /api/authoring/session
	postSession, _ := r.NewOperationContext(http.MethodPost, "/api/authoring/session")
	postSession.SetSummary("Start authoring session")
	postSession.SetDescription("Starts a new authoring session, ending any previous one. Quota 0 uses the configured default.")
	postSession.AddReqStructure(StartSessionRequest{})
	postSession.AddRespStructure(treasure.Snapshot{}, openapi.WithHTTPStatus(http.StatusCreated))
	_ = r.AddOperation(postSession)

	// GET /api/authoring/session
	getSession, _ := r.NewOperationContext(http.MethodGet, "/api/authoring/session")
	getSession.SetSummary("Get session state")
	getSession.AddRespStructure(treasure.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	getSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getSession)

	// DELETE /api/authoring/session
	delSession, _ := r.NewOperationContext(http.MethodDelete, "/api/authoring/session")
	delSession.SetSummary("End session")
	delSession.SetDescription("Ends the session, discarding any unsaved in-progress record. Published records are not rolled back.")
	delSession.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(delSession)

	// POST /api/authoring/session/ready
	postReady, _ := r.NewOperationContext(http.MethodPost, "/api/authoring/session/ready")
	postReady.SetSummary("Signal setup complete")
	postReady.SetDescription("Camera acquisition is mandatory; a missing GPS fix degrades the session instead of failing it.")
	postReady.AddReqStructure(ReadyRequest{})
	postReady.AddRespStructure(treasure.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postReady.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postReady)

	// POST /api/authoring/session/capture
	postCapture, _ := r.NewOperationContext(http.MethodPost, "/api/authoring/session/capture")
	postCapture.SetSummary("Capture a camera frame")
	postCapture.SetDescription("Multipart upload: frame (image), latitude, longitude.")
	postCapture.AddRespStructure(treasure.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postCapture.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	postCapture.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postCapture)

	// POST /api/authoring/session/name
	postName, _ := r.NewOperationContext(http.MethodPost, "/api/authoring/session/name")
	postName.SetSummary("Confirm marker label")
	postName.AddReqStructure(NameRequest{})
	postName.AddRespStructure(treasure.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	postName.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postName)

	// POST /api/authoring/session/crop
	postCrop, _ := r.NewOperationContext(http.MethodPost, "/api/authoring/session/crop")
	postCrop.SetSummary("Confirm crop region")
	postCrop.SetDescription("Crops the frame, runs the external quality validator, and on a passing score uploads the marker image.")
	postCrop.AddReqStructure(CropRequest{})
	postCrop.AddRespStructure(treasure.CropOutcome{}, openapi.WithHTTPStatus(http.StatusOK))
	postCrop.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postCrop)

	// POST /api/authoring/session/save
	postSave, _ := r.NewOperationContext(http.MethodPost, "/api/authoring/session/save")
	postSave.SetSummary("Save treasure record")
	postSave.SetDescription("Appends the record and publishes the configuration before further transitions are accepted.")
	postSave.AddReqStructure(treasure.SaveInput{})
	postSave.AddRespStructure(SaveResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	postSave.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postSave)

	// POST /api/authoring/session/next
	postNext, _ := r.NewOperationContext(http.MethodPost, "/api/authoring/session/next")
	postNext.SetSummary("Continue or complete")
	postNext.AddReqStructure(NextRequest{})
	postNext.AddRespStructure(treasure.Snapshot{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postNext)

	// GET /api/config
	getConfig, _ := r.NewOperationContext(http.MethodGet, "/api/config")
	getConfig.SetSummary("Current treasure configuration")
	getConfig.SetDescription("The local document is the source of truth; the remote copy is a best-effort mirror.")
	getConfig.AddRespStructure(treasure.Configuration{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getConfig)

	// GET /api/config/publishes
	getPublishes, _ := r.NewOperationContext(http.MethodGet, "/api/config/publishes")
	getPublishes.SetSummary("Publish history")
	getPublishes.SetDescription("Per-step outcomes of recent publish attempts, newest first, for detecting partial publishes.")
	getPublishes.AddRespStructure([]publish.Result{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getPublishes)

	// DELETE /api/config/images/{imageName}
	delImage, _ := r.NewOperationContext(http.MethodDelete, "/api/config/images/{imageName}")
	delImage.SetSummary("Delete a treasure record")
	delImage.SetDescription("Read-modify-write against the authoritative remote copy; local deletion proceeds even when the remote is unreachable. Requires admin session.")
	delImage.AddRespStructure(publish.Result{}, openapi.WithHTTPStatus(http.StatusOK))
	delImage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	delImage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(delImage)

	// GET /api/teams
	getTeams, _ := r.NewOperationContext(http.MethodGet, "/api/teams")
	getTeams.SetSummary("List teams")
	getTeams.SetDescription("Full roster sorted by ascending team number.")
	getTeams.AddRespStructure([]team.Team{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getTeams)

	// GET /api/teams/{uid}
	getTeam, _ := r.NewOperationContext(http.MethodGet, "/api/teams/{uid}")
	getTeam.SetSummary("Get team detail")
	getTeam.AddRespStructure(TeamDetailResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getTeam.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getTeam)

	// PUT /api/teams/{uid}
	putTeam, _ := r.NewOperationContext(http.MethodPut, "/api/teams/{uid}")
	putTeam.SetSummary("Upsert team (upstream ingest)")
	putTeam.SetDescription("Accepts upstream session sub-objects in any historical field spelling.")
	putTeam.AddReqStructure(team.UpsertInput{})
	putTeam.AddRespStructure(team.Team{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(putTeam)

	// PATCH /api/teams/{uid}/physical-score
	patchScore, _ := r.NewOperationContext(http.MethodPatch, "/api/teams/{uid}/physical-score")
	patchScore.SetSummary("Update physical score")
	patchScore.AddReqStructure(PhysicalScoreRequest{})
	patchScore.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	patchScore.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(patchScore)

	// POST /api/teams/{uid}/entries
	postEntry, _ := r.NewOperationContext(http.MethodPost, "/api/teams/{uid}/entries")
	postEntry.SetSummary("Add score entry")
	postEntry.SetDescription("Appends an unfinalized ledger entry; it does not count toward the net score until finalized.")
	postEntry.AddReqStructure(ScoreEntryRequest{})
	postEntry.AddRespStructure(team.PhysicalScoreEntry{}, openapi.WithHTTPStatus(http.StatusCreated))
	postEntry.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postEntry)

	// POST /api/teams/{uid}/entries/{entryID}/finalize
	postFinalize, _ := r.NewOperationContext(http.MethodPost, "/api/teams/{uid}/entries/{entryID}/finalize")
	postFinalize.SetSummary("Finalize score entry")
	postFinalize.SetDescription("Marks the entry as added and folds the new net into the team's physical score. Requires admin session.")
	postFinalize.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	postFinalize.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postFinalize)

	// GET /api/teams/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/teams/events")
	getEvents.SetSummary("SSE roster stream")
	getEvents.SetDescription("Server-Sent Events stream delivering the full roster after every team mutation.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(data)
	}
}
