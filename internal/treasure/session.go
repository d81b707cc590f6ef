package treasure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/huntworks/huntops/internal/marker"
	"github.com/huntworks/huntops/internal/uploader"
	"github.com/huntworks/huntops/internal/validator"
)

// State is a step of the authoring workflow.
type State string

const (
	StateSetup      State = "setup"
	StateCapturing  State = "capturing"
	StateNaming     State = "naming"
	StateCropping   State = "cropping"
	StateValidating State = "validating"
	StateAuthoring  State = "authoring"
	StateSaved      State = "saved"
	StateComplete   State = "complete"
)

var (
	// ErrBusy is returned while an async step (validate, upload, publish)
	// for the current state is still outstanding.
	ErrBusy = errors.New("session busy")
	// ErrInvalidTransition is returned for an action the current state does
	// not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrCameraRequired is returned when readiness is signaled without an
	// acquired camera stream. GPS may be bypassed; the camera may not.
	ErrCameraRequired = errors.New("camera stream required")
	// ErrDuplicateName is returned when a marker label collides with a
	// record already authored in this session.
	ErrDuplicateName = errors.New("image name already used")
	// ErrClueTextRequired blocks saving a record without clue text.
	ErrClueTextRequired = errors.New("clue text required")
	// ErrPhysicalGameFields blocks saving a physical-game record without
	// instruction and secret code.
	ErrPhysicalGameFields = errors.New("physical game instruction and secret code required")
)

// Evaluator scores a cropped marker image (the external validator client).
type Evaluator interface {
	Evaluate(ctx context.Context, image []byte) (validator.Result, error)
}

// Uploader sends the validated image to the remote asset store.
type Uploader interface {
	Upload(ctx context.Context, image []byte, imageName, fileName string, lat, lon float64, score int) (uploader.AssetRef, error)
}

// Publisher persists the accumulated records as the exported configuration.
// It must only fail when the durable local write fails; remote pushes are
// best-effort inside it.
type Publisher interface {
	Publish(ctx context.Context, records []Record) error
}

// Session is one continuous authoring run. All methods are safe for
// concurrent use; transition-triggering calls fail with ErrBusy while an
// async step is in flight.
type Session struct {
	mu   sync.Mutex
	busy bool

	state    State
	quota    int
	minScore int
	degraded bool // GPS bypassed

	// Single owned frame plus a last-known-good slot updated only on
	// state-transition boundaries.
	frame    *marker.Frame
	lastGood *marker.Frame

	cropped        []byte
	pendingFile    string
	pendingScore   int
	pendingUnvrfd  bool
	pendingAsset   string
	pendingRemote  string // last remote upload failure, user-facing
	rejectedReason string

	nextClueIndex int
	records       []Record
}

// SaveInput is the clue metadata confirmed in the Authoring step.
type SaveInput struct {
	ClueName                string  `json:"clueName"`
	ClueText                string  `json:"clueText"`
	PhysicalSizeInMeters    float64 `json:"physicalSizeInMeters"`
	SpawnOffset             Vector3 `json:"spawnOffset"`
	SpawnRotation           Vector3 `json:"spawnRotation"`
	HasPhysicalGame         bool    `json:"hasPhysicalGame"`
	PhysicalGameInstruction string  `json:"physicalGameInstruction"`
	PhysicalGameSecretCode  string  `json:"physicalGameSecretCode"`
}

// CropOutcome reports how the validate-and-upload step of a crop settled.
type CropOutcome struct {
	Score      int    `json:"score"`
	Unverified bool   `json:"unverified,omitempty"`
	Rejected   bool   `json:"rejected"`
	Reason     string `json:"reason,omitempty"`
	AssetURL   string `json:"assetUrl,omitempty"`
	UploadNote string `json:"uploadNote,omitempty"`
}

// NewSession starts a session in Setup with the given treasure quota and
// minimum validation score.
func NewSession(quota, minScore int) *Session {
	return &Session{state: StateSetup, quota: quota, minScore: minScore}
}

// Ready moves Setup to Capturing. Camera acquisition is mandatory; a missing
// GPS fix only degrades the session (coordinates default to zero).
func (s *Session) Ready(cameraOK, gpsOK bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}
	if s.state != StateSetup {
		return fmt.Errorf("%w: ready from %s", ErrInvalidTransition, s.state)
	}
	if !cameraOK {
		return ErrCameraRequired
	}
	s.degraded = !gpsOK
	s.state = StateCapturing
	return nil
}

// Capture decodes one camera frame and moves Capturing to Naming. Capturing
// is the only state that accepts a frame, so a later step can never race a
// new capture overwriting the buffer.
func (s *Session) Capture(r io.Reader, lat, lon float64) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.state != StateCapturing {
		s.mu.Unlock()
		return fmt.Errorf("%w: capture from %s", ErrInvalidTransition, s.state)
	}
	s.busy = true
	s.mu.Unlock()

	frame, err := marker.NewFrame(r, lat, lon)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return err
	}
	s.frame = frame
	s.rejectedReason = ""
	s.state = StateNaming
	return nil
}

// Name confirms the marker label and moves Naming to Cropping. The label is
// the record's unique imageName.
func (s *Session) Name(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}
	if s.state != StateNaming {
		return fmt.Errorf("%w: name from %s", ErrInvalidTransition, s.state)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return marker.ErrNameRequired
	}
	for _, rec := range s.records {
		if rec.ImageName == label {
			return ErrDuplicateName
		}
	}
	s.frame.Label = label
	s.state = StateCropping
	return nil
}

// Crop confirms the crop region and runs the validate-then-upload sequence.
// A score below the threshold rejects the marker and loops back to
// Capturing with a user-facing reason; a passing score uploads the image
// (best-effort) and advances to Authoring.
func (s *Session) Crop(ctx context.Context, region marker.Region, displayW, displayH int, ev Evaluator, up Uploader) (CropOutcome, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return CropOutcome{}, ErrBusy
	}
	if s.state != StateCropping {
		s.mu.Unlock()
		return CropOutcome{}, fmt.Errorf("%w: crop from %s", ErrInvalidTransition, s.state)
	}
	s.busy = true
	s.state = StateValidating
	frame := s.frame
	s.mu.Unlock()

	outcome, cropped, fileName, err := s.validateAndUpload(ctx, frame, region, displayW, displayH, ev, up)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		s.state = StateCropping
		return CropOutcome{}, err
	}
	if outcome.Rejected {
		s.frame = nil
		s.rejectedReason = outcome.Reason
		s.state = StateCapturing
		return outcome, nil
	}

	s.cropped = cropped
	s.pendingFile = fileName
	s.pendingScore = outcome.Score
	s.pendingUnvrfd = outcome.Unverified
	s.pendingAsset = outcome.AssetURL
	s.pendingRemote = outcome.UploadNote
	s.lastGood = frame
	s.state = StateAuthoring
	return outcome, nil
}

func (s *Session) validateAndUpload(ctx context.Context, frame *marker.Frame, region marker.Region, displayW, displayH int, ev Evaluator, up Uploader) (CropOutcome, []byte, string, error) {
	cropped, err := marker.Crop(frame, region, displayW, displayH)
	if err != nil {
		return CropOutcome{}, nil, "", err
	}

	res, err := ev.Evaluate(ctx, cropped)
	if err != nil {
		if errors.Is(err, validator.ErrToolFailed) {
			return CropOutcome{
				Rejected: true,
				Reason:   "image quality check failed, try a different angle or lighting",
			}, nil, "", nil
		}
		return CropOutcome{}, nil, "", err
	}

	if res.Score < s.minScore {
		return CropOutcome{
			Score:    res.Score,
			Rejected: true,
			Reason:   fmt.Sprintf("quality score %d below required %d", res.Score, s.minScore),
		}, nil, "", nil
	}

	outcome := CropOutcome{Score: res.Score, Unverified: res.Unverified}
	fileName := uuid.NewString() + ".jpg"

	ref, err := up.Upload(ctx, cropped, frame.Label, fileName, frame.Latitude, frame.Longitude, res.Score)
	switch {
	case err == nil:
		outcome.AssetURL = ref.URL
	case errors.Is(err, uploader.ErrUnreachable), errors.Is(err, uploader.ErrRejected):
		// Non-fatal: local state is the source of truth, the asset mirror
		// can be repaired by a later republish.
		outcome.UploadNote = err.Error()
	default:
		return CropOutcome{}, nil, "", err
	}
	return outcome, cropped, fileName, nil
}

// Save validates the clue metadata, appends one record, and publishes the
// accumulated list before the session accepts further transitions.
func (s *Session) Save(ctx context.Context, in SaveInput, pub Publisher) (Record, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Record{}, ErrBusy
	}
	if s.state != StateAuthoring {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("%w: save from %s", ErrInvalidTransition, s.state)
	}
	if strings.TrimSpace(in.ClueText) == "" {
		s.mu.Unlock()
		return Record{}, ErrClueTextRequired
	}
	if in.HasPhysicalGame && (strings.TrimSpace(in.PhysicalGameInstruction) == "" || strings.TrimSpace(in.PhysicalGameSecretCode) == "") {
		s.mu.Unlock()
		return Record{}, ErrPhysicalGameFields
	}
	if !in.HasPhysicalGame {
		in.PhysicalGameInstruction = ""
		in.PhysicalGameSecretCode = ""
	}

	rec := Record{
		ImageName:               s.frame.Label,
		FileName:                s.pendingFile,
		PhysicalSizeInMeters:    in.PhysicalSizeInMeters,
		SpawnOffset:             in.SpawnOffset,
		SpawnRotation:           in.SpawnRotation,
		ClueIndex:               s.nextClueIndex,
		ClueName:                strings.TrimSpace(in.ClueName),
		ClueText:                strings.TrimSpace(in.ClueText),
		Latitude:                s.frame.Latitude,
		Longitude:               s.frame.Longitude,
		HasPhysicalGame:         in.HasPhysicalGame,
		PhysicalGameInstruction: in.PhysicalGameInstruction,
		PhysicalGameSecretCode:  in.PhysicalGameSecretCode,
		ValidationScore:         s.pendingScore,
		Unverified:              s.pendingUnvrfd,
		AssetURL:                s.pendingAsset,
	}
	if rec.ClueName == "" {
		rec.ClueName = rec.ImageName
	}

	s.busy = true
	records := append(append([]Record(nil), s.records...), rec)
	s.mu.Unlock()

	err := pub.Publish(ctx, records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		// The durable local write failed: no partial record survives.
		return Record{}, fmt.Errorf("publishing configuration: %w", err)
	}

	s.records = records
	s.nextClueIndex++
	s.lastGood = s.frame
	s.frame = nil
	s.cropped = nil
	s.pendingFile = ""
	s.pendingScore = 0
	s.pendingUnvrfd = false
	s.pendingAsset = ""
	s.pendingRemote = ""
	s.state = StateSaved
	return rec, nil
}

// Next is the operator's choice after a save: author another treasure or end
// the session. The quota forces completion regardless of the choice.
func (s *Session) Next(authorAnother bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}
	if s.state != StateSaved {
		return fmt.Errorf("%w: next from %s", ErrInvalidTransition, s.state)
	}
	if !authorAnother || len(s.records) >= s.quota {
		s.state = StateComplete
		return nil
	}
	s.state = StateCapturing
	return nil
}

// End terminates the session from any state, releasing the in-progress frame.
// Already-published records are never rolled back.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = nil
	s.lastGood = nil
	s.cropped = nil
	s.state = StateComplete
}

// Records returns a copy of the records published so far.
func (s *Session) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Snapshot is the session state exposed to the frontman UI.
type Snapshot struct {
	State          State  `json:"state"`
	Degraded       bool   `json:"degraded"`
	Quota          int    `json:"quota"`
	Authored       int    `json:"authored"`
	NextClueIndex  int    `json:"nextClueIndex"`
	RejectedReason string `json:"rejectedReason,omitempty"`
	PendingScore   int    `json:"pendingScore,omitempty"`
	PendingAsset   string `json:"pendingAsset,omitempty"`
	UploadNote     string `json:"uploadNote,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:          s.state,
		Degraded:       s.degraded,
		Quota:          s.quota,
		Authored:       len(s.records),
		NextClueIndex:  s.nextClueIndex,
		RejectedReason: s.rejectedReason,
		PendingScore:   s.pendingScore,
		PendingAsset:   s.pendingAsset,
		UploadNote:     s.pendingRemote,
	}
}
