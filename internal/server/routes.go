package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/huntworks/huntops/internal/publish"
	"github.com/huntworks/huntops/internal/team"
	"github.com/huntworks/huntops/internal/treasure"
)

// Deps is the wiring for the HTTP surface.
type Deps struct {
	DB        *sql.DB
	Teams     *team.Store
	Publisher *publish.Publisher
	Sessions  *treasure.Manager
	Evaluator treasure.Evaluator
	Uploader  treasure.Uploader
	StaticDir string
}

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	broker := NewBroker()

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("HuntOps API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, deps.DB))

	// Admin auth.
	r.Post("/api/admin/login", handleAdminLogin(deps.DB))
	r.Post("/api/admin/logout", handleAdminLogout(deps.DB))
	r.Get("/api/admin/me", handleAdminMe(deps.DB))

	// Frontman authoring workflow.
	r.Route("/api/authoring/session", func(r chi.Router) {
		r.Post("/", handleSessionStart(deps.Sessions))
		r.Get("/", handleSessionState(deps.Sessions))
		r.Delete("/", handleSessionEnd(deps.Sessions))
		r.Post("/ready", handleReady(deps.Sessions))
		r.Post("/capture", handleCapture(deps.Sessions))
		r.Post("/name", handleName(deps.Sessions))
		r.Post("/crop", handleCrop(deps.Sessions, deps.Evaluator, deps.Uploader))
		r.Post("/save", handleSave(deps.Sessions, deps.Publisher))
		r.Post("/next", handleNext(deps.Sessions))
	})

	// Exported treasure configuration.
	r.Get("/api/config", handleConfigGet(deps.Publisher))
	r.Get("/api/config/publishes", handleConfigPublishes(deps.Publisher))
	r.Route("/api/config/images", func(r chi.Router) {
		r.Use(adminAuthMiddleware(deps.DB))
		r.Delete("/{imageName}", handleConfigDeleteImage(deps.Publisher))
	})

	// Team roster and physical scoring.
	r.Get("/api/teams", handleTeamList(deps.Teams))
	r.Get("/api/teams/events", handleEvents(broker, deps.Teams))
	r.Get("/api/teams/{uid}", handleTeamGet(deps.Teams))
	r.Put("/api/teams/{uid}", handleTeamUpsert(deps.Teams, broker))
	r.Patch("/api/teams/{uid}/physical-score", handlePhysicalScore(deps.Teams, broker))
	r.Post("/api/teams/{uid}/entries", handleScoreEntryAdd(deps.Teams, broker))
	r.Route("/api/teams/{uid}/entries/{entryID}", func(r chi.Router) {
		r.Use(adminAuthMiddleware(deps.DB))
		r.Post("/finalize", handleScoreEntryFinalize(deps.Teams, broker))
	})

	// Same-origin mirror of the published configuration.
	if deps.StaticDir != "" {
		if info, err := os.Stat(deps.StaticDir); err == nil && info.IsDir() {
			logger.Info("serving static mirror", "dir", deps.StaticDir)
			r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir))))
		}
	}
}
