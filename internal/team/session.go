package team

import "encoding/json"

// Session is the canonical hunt-progress shape. The upstream game backend
// has written several historical field spellings for the same values, so
// everything outside this package sees only this normalized form.
type Session struct {
	CluesCompleted    int    `json:"cluesCompleted"`
	CurrentClueNumber int    `json:"currentClueNumber"`
	Started           bool   `json:"started"`
	Status            string `json:"status"`
}

const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Field spellings observed from the upstream writer, canonical name first.
var (
	cluesCompletedKeys = []string{"cluesCompleted", "clues_completed", "completedClues", "cluesDone"}
	currentClueKeys    = []string{"currentClueNumber", "current_clue_number", "currentClue", "clueIndex", "clue_index"}
	startedKeys        = []string{"started", "hasStarted", "isStarted", "is_started"}
	statusKeys         = []string{"status", "state"}
)

// NormalizeSession translates whatever shape the upstream writer stored into
// the canonical Session. A missing, empty, or unreadable sub-object is never
// an error: it yields the not-started default.
func NormalizeSession(raw []byte) Session {
	def := Session{Status: StatusNotStarted}

	if len(raw) == 0 {
		return def
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return def
	}

	s := Session{
		CluesCompleted:    intField(fields, cluesCompletedKeys),
		CurrentClueNumber: intField(fields, currentClueKeys),
		Started:           boolField(fields, startedKeys),
		Status:            stringField(fields, statusKeys),
	}

	if s.Status == "" {
		if s.Started {
			s.Status = StatusInProgress
		} else {
			s.Status = StatusNotStarted
		}
	}
	return s
}

func intField(fields map[string]any, keys []string) int {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			return int(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n)
			}
		}
	}
	return 0
}

func boolField(fields map[string]any, keys []string) bool {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case bool:
			return v
		case float64:
			return v != 0
		case string:
			return v == "true" || v == "1"
		}
	}
	return false
}

func stringField(fields map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := fields[k].(string); ok {
			return v
		}
	}
	return ""
}
