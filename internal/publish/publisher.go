// Package publish owns the exported treasure configuration. It is the sole
// writer of the document: every publish recomputes the derived fields, writes
// the local file durably, then mirrors remotely and locally best-effort.
package publish

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/huntworks/huntops/internal/treasure"
)

// ErrNotFound is returned when a deletion targets an imageName absent from
// the local configuration.
var ErrNotFound = errors.New("treasure record not found")

// Step outcomes. A publish is a three-step saga with no rollback: callers
// inspect per-step status rather than a single boolean.
const (
	StepOK      = "ok"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// Result reports how each step of one publish settled. Only a failed Local
// step fails the publish as a whole.
type Result struct {
	ID             string `json:"id"`
	TotalTreasures int    `json:"totalTreasures"`
	LastUpdated    string `json:"lastUpdated"`
	Local          string `json:"local"`
	Remote         string `json:"remote"`
	Mirror         string `json:"mirror"`
	Detail         string `json:"detail,omitempty"`

	// Diverged is set when a deletion could not reach the authoritative
	// remote copy: local and remote disagree until the next full publish.
	Diverged bool `json:"diverged,omitempty"`
}

// Publisher persists treasure configurations. DB, when set, records one row
// per publish attempt for operator repair.
type Publisher struct {
	Path       string
	MirrorDir  string
	BaseURL    string
	Headers    map[string]string
	HTTPClient *http.Client
	DB         *sql.DB
	Logger     *slog.Logger

	// Now is split out so tests can pin the timestamp.
	Now func() time.Time
}

func New(path, mirrorDir, baseURL string, headers map[string]string, db *sql.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		Path:       path,
		MirrorDir:  mirrorDir,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Headers:    headers,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		DB:         db,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Publish recomputes the document and performs the three writes in order:
// durable local file, remote config push, local mirror copy. Remote and
// mirror failures are reported in the Result but never abort the publish.
func (p *Publisher) Publish(ctx context.Context, records []treasure.Record) (Result, error) {
	if records == nil {
		records = []treasure.Record{}
	}
	cfg := treasure.Configuration{
		Images:         records,
		LastUpdated:    p.Now().UTC().Format(time.RFC3339),
		TotalTreasures: len(records),
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encoding configuration: %w", err)
	}

	res := Result{
		ID:             uuid.NewString(),
		TotalTreasures: cfg.TotalTreasures,
		LastUpdated:    cfg.LastUpdated,
		Remote:         StepSkipped,
		Mirror:         StepSkipped,
	}

	var details []string

	// Step 1: durable local persistence. This is the source of truth and
	// the only step that can fail the publish.
	if err := writeFileAtomic(p.Path, data); err != nil {
		res.Local = StepFailed
		res.Detail = err.Error()
		p.record(ctx, res)
		return res, fmt.Errorf("writing local configuration: %w", err)
	}
	res.Local = StepOK

	// Step 2: best-effort remote push.
	if p.BaseURL != "" {
		if err := p.pushRemote(ctx, data); err != nil {
			res.Remote = StepFailed
			details = append(details, "remote: "+err.Error())
			p.logger().Warn("remote config push failed", "error", err)
		} else {
			res.Remote = StepOK
		}
	}

	// Step 3: best-effort mirror for same-origin retrieval.
	if p.MirrorDir != "" {
		mirror := filepath.Join(p.MirrorDir, filepath.Base(p.Path))
		if err := writeFileAtomic(mirror, data); err != nil {
			res.Mirror = StepFailed
			details = append(details, "mirror: "+err.Error())
			p.logger().Warn("config mirror write failed", "error", err)
		} else {
			res.Mirror = StepOK
		}
	}

	res.Detail = strings.Join(details, "; ")
	p.record(ctx, res)
	return res, nil
}

// Load reads the current local configuration. A missing file is an empty
// configuration, not an error.
func (p *Publisher) Load(_ context.Context) (treasure.Configuration, error) {
	data, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return treasure.Configuration{Images: []treasure.Record{}}, nil
	}
	if err != nil {
		return treasure.Configuration{}, fmt.Errorf("reading local configuration: %w", err)
	}

	var cfg treasure.Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return treasure.Configuration{}, fmt.Errorf("decoding local configuration: %w", err)
	}
	if cfg.Images == nil {
		cfg.Images = []treasure.Record{}
	}
	return cfg, nil
}

// Delete removes one record by imageName. The remote side is a
// read-modify-write against the authoritative remote copy; if that fetch
// fails, the remote deletion is skipped and the stores diverge until the
// next successful full publish. The local deletion always proceeds.
func (p *Publisher) Delete(ctx context.Context, imageName string) (Result, error) {
	local, err := p.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	var deleted *treasure.Record
	kept := make([]treasure.Record, 0, len(local.Images))
	for _, rec := range local.Images {
		if rec.ImageName == imageName {
			r := rec
			deleted = &r
			continue
		}
		kept = append(kept, rec)
	}
	if deleted == nil {
		return Result{}, fmt.Errorf("%w: %q", ErrNotFound, imageName)
	}

	diverged := false
	if p.BaseURL != "" {
		remote, err := p.fetchRemote(ctx)
		if err != nil {
			// Acknowledged consistency gap: remote copy untouched.
			diverged = true
			p.logger().Warn("authoritative config fetch failed, skipping remote delete", "error", err)
		} else {
			remoteKept := make([]treasure.Record, 0, len(remote.Images))
			for _, rec := range remote.Images {
				if rec.ImageName != imageName {
					remoteKept = append(remoteKept, rec)
				}
			}
			remoteCfg := treasure.Configuration{
				Images:         remoteKept,
				LastUpdated:    p.Now().UTC().Format(time.RFC3339),
				TotalTreasures: len(remoteKept),
			}
			data, _ := json.Marshal(remoteCfg)
			if err := p.pushRemote(ctx, data); err != nil {
				diverged = true
				p.logger().Warn("remote config push failed during delete", "error", err)
			}
			if err := p.deleteRemoteImage(ctx, deleted.FileName); err != nil {
				p.logger().Warn("remote image delete failed", "fileName", deleted.FileName, "error", err)
			}
		}
	}

	res, err := p.Publish(ctx, kept)
	res.Diverged = res.Diverged || diverged
	return res, err
}

// History returns the most recent publish attempts, newest first.
func (p *Publisher) History(ctx context.Context, limit int) ([]Result, error) {
	if p.DB == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.DB.QueryContext(ctx, `
		SELECT id, total_treasures, local_status, remote_status, mirror_status, detail, published_at
		FROM publishes
		ORDER BY published_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.TotalTreasures, &r.Local, &r.Remote, &r.Mirror, &r.Detail, &r.LastUpdated); err != nil {
			return nil, err
		}
		history = append(history, r)
	}
	return history, rows.Err()
}

func (p *Publisher) pushRemote(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/upload-web-config", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range p.Headers {
		req.Header.Set(name, value)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (p *Publisher) fetchRemote(ctx context.Context) (treasure.Configuration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/config", nil)
	if err != nil {
		return treasure.Configuration{}, err
	}
	for name, value := range p.Headers {
		req.Header.Set(name, value)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return treasure.Configuration{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return treasure.Configuration{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var cfg treasure.Configuration
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&cfg); err != nil {
		return treasure.Configuration{}, fmt.Errorf("decoding remote configuration: %w", err)
	}
	return cfg, nil
}

func (p *Publisher) deleteRemoteImage(ctx context.Context, fileName string) error {
	body, _ := json.Marshal(map[string]string{"fileName": fileName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/delete-image", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range p.Headers {
		req.Header.Set(name, value)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (p *Publisher) record(ctx context.Context, res Result) {
	if p.DB == nil {
		return
	}
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO publishes (id, total_treasures, local_status, remote_status, mirror_status, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, res.ID, res.TotalTreasures, res.Local, res.Remote, res.Mirror, res.Detail)
	if err != nil {
		p.logger().Warn("recording publish attempt failed", "error", err)
	}
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a torn document.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
