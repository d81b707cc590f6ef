// Package team adapts the live team roster store: CRUD plus itemized
// physical scoring for volunteers, with upstream session shapes normalized
// at this boundary.
package team

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the identified team or ledger entry does not
// exist. Callers get the error, never a silently defaulted team.
var ErrNotFound = errors.New("team not found")

// Team is one roster entry as served to dashboards. Score is awarded by the
// game and read-only here; the physical score is owned by volunteers.
type Team struct {
	UID                  string  `json:"uid"`
	TeamNumber           int     `json:"teamNumber"`
	Name                 string  `json:"name"`
	Captain              string  `json:"captain,omitempty"`
	MemberCount          int     `json:"memberCount"`
	Score                int     `json:"score"`
	PhysicalScore        int     `json:"physicalScore"`
	PhysicalScoreComment string  `json:"physicalScoreComment,omitempty"`
	Session              Session `json:"session"`
	UpdatedAt            string  `json:"updatedAt"`
}

// PhysicalScoreEntry is one row of the itemized scoring ledger. Only
// finalized entries (IsAdded) count toward the team's net physical score.
type PhysicalScoreEntry struct {
	ID        string `json:"id"`
	TeamUID   string `json:"teamUid"`
	Score     int    `json:"score"`
	Volunteer string `json:"volunteer"`
	Benchmark string `json:"benchmark,omitempty"`
	IsAdded   bool   `json:"isAdded"`
	CreatedAt string `json:"createdAt"`
}

// UpsertInput is the shape the upstream game backend writes. Session is kept
// raw and normalized on read, since its field names drift between writers.
type UpsertInput struct {
	TeamNumber  int             `json:"teamNumber"`
	Name        string          `json:"name"`
	Captain     string          `json:"captain"`
	MemberCount int             `json:"memberCount"`
	Score       int             `json:"score"`
	Session     json.RawMessage `json:"session"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// List returns the full roster sorted by ascending team number.
func (s *Store) List(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uid, team_number, name, captain, member_count, score,
			physical_score, physical_score_comment, session_raw, updated_at
		FROM teams
		ORDER BY team_number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// Get returns one team by UID.
func (s *Store) Get(ctx context.Context, uid string) (Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uid, team_number, name, captain, member_count, score,
			physical_score, physical_score_comment, session_raw, updated_at
		FROM teams
		WHERE uid = ?
	`, uid)

	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	return t, err
}

// Upsert ingests an upstream write for a team, creating it if needed. The
// session sub-object is stored verbatim.
func (s *Store) Upsert(ctx context.Context, uid string, in UpsertInput) (Team, error) {
	sessionRaw := "{}"
	if len(in.Session) > 0 {
		sessionRaw = string(in.Session)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (uid, team_number, name, captain, member_count, score, session_raw)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			team_number = excluded.team_number,
			name = excluded.name,
			captain = excluded.captain,
			member_count = excluded.member_count,
			score = excluded.score,
			session_raw = excluded.session_raw,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, uid, in.TeamNumber, in.Name, in.Captain, in.MemberCount, in.Score, sessionRaw)
	if err != nil {
		return Team{}, fmt.Errorf("upserting team: %w", err)
	}
	return s.Get(ctx, uid)
}

// UpdatePhysicalScore is a partial-field update of the volunteer-owned
// score and comment.
func (s *Store) UpdatePhysicalScore(ctx context.Context, uid string, score int, comment string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE teams
		SET physical_score = ?, physical_score_comment = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE uid = ?
	`, score, comment, uid)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddEntry appends an unfinalized ledger entry. It does not count toward
// the net score until finalized.
func (s *Store) AddEntry(ctx context.Context, uid string, score int, volunteer, benchmark string) (PhysicalScoreEntry, error) {
	if _, err := s.Get(ctx, uid); err != nil {
		return PhysicalScoreEntry{}, err
	}

	entry := PhysicalScoreEntry{
		ID:        uuid.NewString(),
		TeamUID:   uid,
		Score:     score,
		Volunteer: volunteer,
		Benchmark: benchmark,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO physical_score_entries (id, team_uid, score, volunteer, benchmark)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at
	`, entry.ID, uid, score, volunteer, benchmark).Scan(&entry.CreatedAt)
	if err != nil {
		return PhysicalScoreEntry{}, fmt.Errorf("inserting score entry: %w", err)
	}
	return entry, nil
}

// FinalizeEntry marks an entry as added and folds the new net into the
// team's physical score. Finalized entries are no longer editable.
func (s *Store) FinalizeEntry(ctx context.Context, uid, entryID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE physical_score_entries SET is_added = 1
		WHERE id = ? AND team_uid = ? AND is_added = 0
	`, entryID, uid)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}

	net, err := s.NetPhysicalScore(ctx, uid)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE teams SET physical_score = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE uid = ?
	`, net, uid)
	return err
}

// ListEntries returns the ledger for one team, oldest first.
func (s *Store) ListEntries(ctx context.Context, uid string) ([]PhysicalScoreEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_uid, score, volunteer, benchmark, is_added, created_at
		FROM physical_score_entries
		WHERE team_uid = ?
		ORDER BY created_at ASC
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []PhysicalScoreEntry{}
	for rows.Next() {
		var e PhysicalScoreEntry
		var isAdded int
		if err := rows.Scan(&e.ID, &e.TeamUID, &e.Score, &e.Volunteer, &e.Benchmark, &isAdded, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.IsAdded = isAdded == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// NetPhysicalScore sums only the finalized entries.
func (s *Store) NetPhysicalScore(ctx context.Context, uid string) (int, error) {
	var net int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(score), 0)
		FROM physical_score_entries
		WHERE team_uid = ? AND is_added = 1
	`, uid).Scan(&net)
	return net, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (Team, error) {
	var t Team
	var sessionRaw string
	err := row.Scan(&t.UID, &t.TeamNumber, &t.Name, &t.Captain, &t.MemberCount,
		&t.Score, &t.PhysicalScore, &t.PhysicalScoreComment, &sessionRaw, &t.UpdatedAt)
	if err != nil {
		return Team{}, err
	}
	t.Session = NormalizeSession([]byte(sessionRaw))
	return t, nil
}
