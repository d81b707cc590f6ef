package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huntworks/huntops/internal/database"
	"github.com/huntworks/huntops/internal/migrations"
	"github.com/huntworks/huntops/internal/treasure"
)

func testPublisher(t *testing.T, baseURL string) *Publisher {
	t.Helper()
	dir := t.TempDir()
	p := New(filepath.Join(dir, "treasure-config.json"), filepath.Join(dir, "static"), baseURL, nil, nil, nil)
	return p
}

func records(names ...string) []treasure.Record {
	recs := make([]treasure.Record, len(names))
	for i, n := range names {
		recs[i] = treasure.Record{
			ImageName: n,
			FileName:  n + ".jpg",
			ClueIndex: i,
			ClueName:  n,
			ClueText:  "find " + n,
		}
	}
	return recs
}

func TestPublishWritesLocalAndMirror(t *testing.T) {
	p := testPublisher(t, "")

	res, err := p.Publish(context.Background(), records("Lighthouse"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if res.Local != StepOK || res.Mirror != StepOK {
		t.Errorf("expected local and mirror ok, got %+v", res)
	}
	if res.Remote != StepSkipped {
		t.Errorf("expected remote skipped without base URL, got %s", res.Remote)
	}
	if res.TotalTreasures != 1 {
		t.Errorf("expected totalTreasures 1, got %d", res.TotalTreasures)
	}

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TotalTreasures != 1 || len(cfg.Images) != 1 {
		t.Errorf("unexpected loaded configuration: %+v", cfg)
	}

	mirror, err := os.ReadFile(filepath.Join(p.MirrorDir, "treasure-config.json"))
	if err != nil {
		t.Fatalf("reading mirror: %v", err)
	}
	local, _ := os.ReadFile(p.Path)
	if !bytes.Equal(mirror, local) {
		t.Error("mirror must match the local document")
	}
}

func TestPublishIdempotentExceptLastUpdated(t *testing.T) {
	p := testPublisher(t, "")

	p.Now = func() time.Time { return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) }
	if _, err := p.Publish(context.Background(), records("A", "B")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	first, _ := os.ReadFile(p.Path)

	p.Now = func() time.Time { return time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC) }
	res, err := p.Publish(context.Background(), records("A", "B"))
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	second, _ := os.ReadFile(p.Path)

	if res.TotalTreasures != 2 {
		t.Errorf("expected totalTreasures 2, got %d", res.TotalTreasures)
	}

	var a, b treasure.Configuration
	if err := json.Unmarshal(first, &a); err != nil {
		t.Fatalf("decoding first: %v", err)
	}
	if err := json.Unmarshal(second, &b); err != nil {
		t.Fatalf("decoding second: %v", err)
	}
	if a.LastUpdated == b.LastUpdated {
		t.Error("expected lastUpdated to differ")
	}
	a.LastUpdated, b.LastUpdated = "", ""
	ra, _ := json.Marshal(a)
	rb, _ := json.Marshal(b)
	if !bytes.Equal(ra, rb) {
		t.Error("documents must be identical except for lastUpdated")
	}
}

func TestPublishRemotePush(t *testing.T) {
	var got treasure.Configuration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload-web-config" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	p := testPublisher(t, srv.URL)
	res, err := p.Publish(context.Background(), records("Lighthouse"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if res.Remote != StepOK {
		t.Errorf("expected remote ok, got %+v", res)
	}
	if got.TotalTreasures != 1 {
		t.Errorf("remote did not receive the document: %+v", got)
	}
}

func TestPublishRemoteFailureDoesNotAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := testPublisher(t, srv.URL)
	res, err := p.Publish(context.Background(), records("Lighthouse"))
	if err != nil {
		t.Fatalf("publish must succeed when only the remote fails: %v", err)
	}

	if res.Local != StepOK {
		t.Errorf("expected local ok, got %s", res.Local)
	}
	if res.Remote != StepFailed {
		t.Errorf("expected remote failed, got %s", res.Remote)
	}
	if res.Detail == "" {
		t.Error("expected a distinguishable failure detail")
	}
}

func TestDeleteRoundTrip(t *testing.T) {
	p := testPublisher(t, "")
	if _, err := p.Publish(context.Background(), records("A", "B", "C")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	res, err := p.Delete(context.Background(), "B")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.TotalTreasures != 2 {
		t.Errorf("expected totalTreasures 2 after delete, got %d", res.TotalTreasures)
	}

	cfg, _ := p.Load(context.Background())
	if len(cfg.Images) != 2 || cfg.TotalTreasures != 2 {
		t.Errorf("expected 2 records after delete, got %+v", cfg)
	}
	for _, rec := range cfg.Images {
		if rec.ImageName == "B" {
			t.Error("deleted record still present")
		}
	}
}

func TestDeleteUnknownRecord(t *testing.T) {
	p := testPublisher(t, "")
	if _, err := p.Publish(context.Background(), records("A")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_, err := p.Delete(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDivergesWhenRemoteFetchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/config" {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	p := testPublisher(t, srv.URL)
	if _, err := p.Publish(context.Background(), records("A", "B")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	res, err := p.Delete(context.Background(), "A")
	if err != nil {
		t.Fatalf("local delete must proceed when the remote fetch fails: %v", err)
	}
	if !res.Diverged {
		t.Error("expected diverged flag when remote delete was skipped")
	}

	cfg, _ := p.Load(context.Background())
	if len(cfg.Images) != 1 || cfg.Images[0].ImageName != "B" {
		t.Errorf("expected only B locally, got %+v", cfg.Images)
	}
}

func TestDeleteRemovesRemoteImage(t *testing.T) {
	var deletedFile string
	var pushed treasure.Configuration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/config":
			json.NewEncoder(w).Encode(treasure.Configuration{
				Images:         records("A", "B"),
				TotalTreasures: 2,
			})
		case "/upload-web-config":
			json.NewDecoder(r.Body).Decode(&pushed)
		case "/delete-image":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			deletedFile = body["fileName"]
		}
	}))
	defer srv.Close()

	p := testPublisher(t, srv.URL)
	if _, err := p.Publish(context.Background(), records("A", "B")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, err := p.Delete(context.Background(), "A"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if deletedFile != "A.jpg" {
		t.Errorf("expected remote delete of A.jpg, got %q", deletedFile)
	}
	if pushed.TotalTreasures != 1 {
		t.Errorf("expected remote republish with 1 record, got %+v", pushed)
	}
}

func TestPublishHistoryRecorded(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	p := testPublisher(t, "")
	p.DB = db

	if _, err := p.Publish(ctx, records("A")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := p.Publish(ctx, records("A", "B")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	history, err := p.History(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	for _, h := range history {
		if h.Local != StepOK {
			t.Errorf("expected local ok in history, got %+v", h)
		}
	}
}
