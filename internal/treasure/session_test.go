package treasure

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/huntworks/huntops/internal/marker"
	"github.com/huntworks/huntops/internal/uploader"
	"github.com/huntworks/huntops/internal/validator"
)

type stubEval struct {
	res     validator.Result
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubEval) Evaluate(_ context.Context, _ []byte) (validator.Result, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	return s.res, s.err
}

type stubUpload struct {
	ref uploader.AssetRef
	err error
}

func (s *stubUpload) Upload(_ context.Context, _ []byte, _, fileName string, _, _ float64, _ int) (uploader.AssetRef, error) {
	if s.err != nil {
		return uploader.AssetRef{}, s.err
	}
	if s.ref.URL == "" {
		return uploader.AssetRef{URL: "https://assets.test/images/" + fileName}, nil
	}
	return s.ref, nil
}

type stubPublish struct {
	calls [][]Record
	err   error
}

func (s *stubPublish) Publish(_ context.Context, records []Record) error {
	s.calls = append(s.calls, records)
	return s.err
}

func framePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	return buf.Bytes()
}

func region() marker.Region {
	return marker.Region{X: 10, Y: 10, Width: 100, Height: 100}
}

func advanceToAuthoring(t *testing.T, s *Session, score int) CropOutcome {
	t.Helper()
	if err := s.Ready(true, true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := s.Capture(bytes.NewReader(framePNG(t)), -12.0464, -77.0428); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := s.Name("Lighthouse"); err != nil {
		t.Fatalf("name: %v", err)
	}
	out, err := s.Crop(context.Background(), region(), 0, 0, &stubEval{res: validator.Result{Score: score}}, &stubUpload{})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	return out
}

func TestAuthoringHappyPath(t *testing.T) {
	s := NewSession(6, 75)
	pub := &stubPublish{}

	out := advanceToAuthoring(t, s, 82)
	if out.Rejected {
		t.Fatalf("score 82 against threshold 75 should pass, got %+v", out)
	}
	if s.Snapshot().State != StateAuthoring {
		t.Fatalf("expected authoring state, got %s", s.Snapshot().State)
	}

	rec, err := s.Save(context.Background(), SaveInput{ClueText: "Find the light"}, pub)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if rec.ClueIndex != 0 {
		t.Errorf("expected clueIndex 0, got %d", rec.ClueIndex)
	}
	if rec.ClueName != "Lighthouse" || rec.ImageName != "Lighthouse" {
		t.Errorf("expected names from the label, got %+v", rec)
	}
	if rec.HasPhysicalGame {
		t.Error("expected hasPhysicalGame=false")
	}
	if rec.Latitude != -12.0464 || rec.Longitude != -77.0428 {
		t.Errorf("expected capture-time coordinates, got %f,%f", rec.Latitude, rec.Longitude)
	}
	if rec.ValidationScore != 82 || rec.Unverified {
		t.Errorf("expected verified score 82, got %+v", rec)
	}

	if len(pub.calls) != 1 || len(pub.calls[0]) != 1 {
		t.Fatalf("expected one publish with one record, got %d calls", len(pub.calls))
	}
	if s.Snapshot().State != StateSaved {
		t.Errorf("expected saved state, got %s", s.Snapshot().State)
	}
}

func TestValidationRejectionLoopsToCapturing(t *testing.T) {
	s := NewSession(6, 75)

	out := advanceToAuthoring(t, s, 40)
	if !out.Rejected {
		t.Fatal("score 40 against threshold 75 should be rejected")
	}
	if out.Reason == "" {
		t.Error("rejection must carry a user-facing reason")
	}

	snap := s.Snapshot()
	if snap.State != StateCapturing {
		t.Errorf("expected loop back to capturing, got %s", snap.State)
	}
	if snap.Authored != 0 {
		t.Errorf("expected no record appended, got %d", snap.Authored)
	}
	if snap.RejectedReason == "" {
		t.Error("expected rejection reason in snapshot")
	}
}

func TestValidationBoundaryScorePasses(t *testing.T) {
	s := NewSession(6, 75)

	out := advanceToAuthoring(t, s, 75)
	if out.Rejected {
		t.Fatal("score equal to the threshold must pass")
	}
}

func TestSaveRequiresClueText(t *testing.T) {
	s := NewSession(6, 75)
	advanceToAuthoring(t, s, 90)

	_, err := s.Save(context.Background(), SaveInput{ClueText: "   "}, &stubPublish{})
	if !errors.Is(err, ErrClueTextRequired) {
		t.Fatalf("expected ErrClueTextRequired, got %v", err)
	}
	if s.Snapshot().State != StateAuthoring {
		t.Error("failed save must not leave authoring")
	}
}

func TestSavePhysicalGameFieldsRequired(t *testing.T) {
	s := NewSession(6, 75)
	advanceToAuthoring(t, s, 90)

	_, err := s.Save(context.Background(), SaveInput{
		ClueText:        "Do ten push-ups",
		HasPhysicalGame: true,
	}, &stubPublish{})
	if !errors.Is(err, ErrPhysicalGameFields) {
		t.Fatalf("expected ErrPhysicalGameFields, got %v", err)
	}
}

func TestSaveClearsPhysicalFieldsWhenGameDisabled(t *testing.T) {
	s := NewSession(6, 75)
	advanceToAuthoring(t, s, 90)

	rec, err := s.Save(context.Background(), SaveInput{
		ClueText:                "Find the light",
		HasPhysicalGame:         false,
		PhysicalGameInstruction: "leftover",
		PhysicalGameSecretCode:  "leftover",
	}, &stubPublish{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.PhysicalGameInstruction != "" || rec.PhysicalGameSecretCode != "" {
		t.Errorf("physical fields must be empty when game disabled, got %+v", rec)
	}
}

func TestPublishFailureKeepsNoPartialRecord(t *testing.T) {
	s := NewSession(6, 75)
	advanceToAuthoring(t, s, 90)

	pub := &stubPublish{err: errors.New("disk full")}
	if _, err := s.Save(context.Background(), SaveInput{ClueText: "x"}, pub); err == nil {
		t.Fatal("expected save to fail when publish fails")
	}

	if len(s.Records()) != 0 {
		t.Error("failed publish must not append a record")
	}
	if s.Snapshot().State != StateAuthoring {
		t.Error("failed save must stay in authoring for retry")
	}
}

func TestClueIndexMonotonicAcrossRejections(t *testing.T) {
	s := NewSession(6, 75)
	pub := &stubPublish{}

	advanceToAuthoring(t, s, 90)
	rec0, err := s.Save(context.Background(), SaveInput{ClueText: "first"}, pub)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Next(true); err != nil {
		t.Fatalf("next: %v", err)
	}

	// Second marker: one rejection, then a pass.
	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := s.Name("Fountain"); err != nil {
		t.Fatalf("name: %v", err)
	}
	out, err := s.Crop(context.Background(), region(), 0, 0, &stubEval{res: validator.Result{Score: 10}}, &stubUpload{})
	if err != nil || !out.Rejected {
		t.Fatalf("expected rejection, got %+v err=%v", out, err)
	}

	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); err != nil {
		t.Fatalf("recapture: %v", err)
	}
	if err := s.Name("Fountain"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := s.Crop(context.Background(), region(), 0, 0, &stubEval{res: validator.Result{Score: 91}}, &stubUpload{}); err != nil {
		t.Fatalf("crop: %v", err)
	}
	rec1, err := s.Save(context.Background(), SaveInput{ClueText: "second"}, pub)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if rec0.ClueIndex != 0 || rec1.ClueIndex != 1 {
		t.Errorf("expected clue indexes 0 and 1, got %d and %d", rec0.ClueIndex, rec1.ClueIndex)
	}
}

func TestDuplicateImageNameRejected(t *testing.T) {
	s := NewSession(6, 75)
	advanceToAuthoring(t, s, 90)
	if _, err := s.Save(context.Background(), SaveInput{ClueText: "x"}, &stubPublish{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Next(true); err != nil {
		t.Fatalf("next: %v", err)
	}

	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := s.Name("Lighthouse"); err == nil || !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestQuotaForcesCompletion(t *testing.T) {
	s := NewSession(1, 75)
	advanceToAuthoring(t, s, 90)
	if _, err := s.Save(context.Background(), SaveInput{ClueText: "x"}, &stubPublish{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Operator asks to continue, but the quota is reached.
	if err := s.Next(true); err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.Snapshot().State != StateComplete {
		t.Errorf("expected complete at quota, got %s", s.Snapshot().State)
	}
}

func TestReadyRequiresCamera(t *testing.T) {
	s := NewSession(6, 75)
	if err := s.Ready(false, true); !errors.Is(err, ErrCameraRequired) {
		t.Fatalf("expected ErrCameraRequired, got %v", err)
	}

	// GPS is optional: the session continues degraded.
	if err := s.Ready(true, false); err != nil {
		t.Fatalf("ready without gps: %v", err)
	}
	if !s.Snapshot().Degraded {
		t.Error("expected degraded session without gps")
	}
}

func TestCaptureRejectedWhileValidating(t *testing.T) {
	s := NewSession(6, 75)
	if err := s.Ready(true, true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := s.Name("Lighthouse"); err != nil {
		t.Fatalf("name: %v", err)
	}

	ev := &stubEval{
		res:     validator.Result{Score: 90},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Crop(context.Background(), region(), 0, 0, ev, &stubUpload{})
	}()

	<-ev.started
	err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy during validation, got %v", err)
	}

	close(ev.release)
	<-done
}

func TestCaptureRejectedInNamingAndCropping(t *testing.T) {
	s := NewSession(6, 75)
	if err := s.Ready(true, true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); err != nil {
		t.Fatalf("capture: %v", err)
	}

	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected capture rejected in naming, got %v", err)
	}

	if err := s.Name("Lighthouse"); err != nil {
		t.Fatalf("name: %v", err)
	}
	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected capture rejected in cropping, got %v", err)
	}
}

func TestUploadFailureIsNonFatal(t *testing.T) {
	s := NewSession(6, 75)
	if err := s.Ready(true, true); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if err := s.Name("Lighthouse"); err != nil {
		t.Fatalf("name: %v", err)
	}

	out, err := s.Crop(context.Background(), region(), 0, 0,
		&stubEval{res: validator.Result{Score: 90}},
		&stubUpload{err: uploader.ErrUnreachable})
	if err != nil {
		t.Fatalf("crop must tolerate unreachable asset store: %v", err)
	}
	if out.Rejected {
		t.Fatal("upload failure must not reject the marker")
	}
	if out.UploadNote == "" {
		t.Error("expected a distinguishable upload status")
	}
	if s.Snapshot().State != StateAuthoring {
		t.Errorf("expected authoring despite upload failure, got %s", s.Snapshot().State)
	}
}

func TestEndDiscardsInProgressNotPublished(t *testing.T) {
	s := NewSession(6, 75)
	pub := &stubPublish{}
	advanceToAuthoring(t, s, 90)
	if _, err := s.Save(context.Background(), SaveInput{ClueText: "x"}, pub); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Next(true); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := s.Capture(bytes.NewReader(framePNG(t)), 0, 0); err != nil {
		t.Fatalf("capture: %v", err)
	}

	s.End()

	if s.Snapshot().State != StateComplete {
		t.Errorf("expected complete, got %s", s.Snapshot().State)
	}
	if len(s.Records()) != 1 {
		t.Errorf("published records must survive session end, got %d", len(s.Records()))
	}
}

func TestManagerSingleActiveSession(t *testing.T) {
	m := NewManager(6, 75)

	if _, err := m.Active(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	first := m.Start(0)
	if first.Snapshot().Quota != 6 {
		t.Errorf("expected default quota 6, got %d", first.Snapshot().Quota)
	}

	second := m.Start(3)
	if first.Snapshot().State != StateComplete {
		t.Error("starting a new session must end the previous one")
	}
	active, err := m.Active()
	if err != nil || active != second {
		t.Fatalf("expected second session active, err=%v", err)
	}
}
