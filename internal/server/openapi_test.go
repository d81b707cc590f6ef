package server

import (
	"net/http"
	"strings"
	"testing"
)

func TestOpenAPISpec(t *testing.T) {
	e := setupEnv(t, 90)

	w := e.do(t, http.MethodGet, "/openapi.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("openapi.json: %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`"openapi"`,
		"/healthz",
		"/api/authoring/session/crop",
		"/api/config/images/{imageName}",
		"/api/teams/{uid}/entries/{entryID}/finalize",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("spec missing %q", want)
		}
	}
}
