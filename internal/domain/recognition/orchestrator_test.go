package recognition

import (
	"context"
	"testing"
	"time"

	"vision-server-go/internal/platform/config"
)

type stubService struct {
	enabled     bool
	uploadID    string
	uploadCalls int
	asset       *Asset
	processed   bool
	photos      map[string][]PersonPhoto
}

func (s *stubService) Enabled() bool { return s.enabled }

func (s *stubService) UploadAsset(context.Context, []byte) string {
	s.uploadCalls++
	return s.uploadID
}

func (s *stubService) GetAsset(context.Context, string) *Asset { return s.asset }

func (s *stubService) WaitForProcessing(context.Context, string, int, time.Duration) bool {
	return s.processed
}

func (s *stubService) GetPersonPhotos(_ context.Context, personID string, _ int) []PersonPhoto {
	return s.photos[personID]
}

type stubGate struct{ hasFace bool }

func (g stubGate) HasFace([]byte) bool { return g.hasFace }

func newTestRecognizer(t *testing.T, svc AssetService, gate PresenceGate) *Recognizer {
	t.Helper()
	return NewRecognizer(svc, gate, config.ImmichConfig{
		MaxRetries:  3,
		WaitSeconds: 1,
		PhotoLimit:  5,
	}, newTestLogger(t))
}

func TestRecognizeDisabled(t *testing.T) {
	r := newTestRecognizer(t, &stubService{enabled: false}, stubGate{hasFace: true})

	result := r.Recognize(context.Background(), "dev-1", []byte("img"))
	if result.Success {
		t.Fatal("expected failure result when disabled")
	}
	if result.Message != MsgDisabled {
		t.Fatalf("unexpected message: %s", result.Message)
	}
}

func TestRecognizeGateSkipsUpload(t *testing.T) {
	svc := &stubService{enabled: true, uploadID: "a1"}
	r := newTestRecognizer(t, svc, stubGate{hasFace: false})

	result := r.Recognize(context.Background(), "dev-1", []byte("img"))
	if !result.Success {
		t.Fatal("expected success result for gate skip")
	}
	if result.Message != MsgNoFaceDetected {
		t.Fatalf("unexpected message: %s", result.Message)
	}
	if len(result.People) != 0 || result.AssetID != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if svc.uploadCalls != 0 {
		t.Fatal("gate must run before upload")
	}
}

func TestRecognizeUploadFailure(t *testing.T) {
	r := newTestRecognizer(t, &stubService{enabled: true, uploadID: ""}, stubGate{hasFace: true})

	result := r.Recognize(context.Background(), "dev-1", []byte("img"))
	if result.Success || result.Message != MsgUploadFailed {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRecognizeFetchFailureAfterTimeout(t *testing.T) {
	svc := &stubService{enabled: true, uploadID: "a1", processed: false, asset: nil}
	r := newTestRecognizer(t, svc, stubGate{hasFace: true})

	result := r.Recognize(context.Background(), "dev-1", []byte("img"))
	if result.Success {
		t.Fatal("expected failure when asset fetch fails")
	}
	if result.AssetID != "a1" {
		t.Fatalf("expected asset id preserved, got %q", result.AssetID)
	}
	if result.Message != MsgAssetFetchFailed {
		t.Fatalf("unexpected message: %s", result.Message)
	}
}

func TestRecognizeNoPeople(t *testing.T) {
	svc := &stubService{
		enabled:   true,
		uploadID:  "a1",
		processed: true,
		asset:     &Asset{ID: "a1", Faces: []AssetFace{{ID: "f1"}}},
	}
	r := newTestRecognizer(t, svc, stubGate{hasFace: true})

	result := r.Recognize(context.Background(), "dev-1", []byte("img"))
	if !result.Success {
		t.Fatal("expected success for empty people")
	}
	if result.Message != MsgNoPeopleDetected {
		t.Fatalf("unexpected message: %s", result.Message)
	}
	if len(result.People) != 0 {
		t.Fatalf("unexpected people: %+v", result.People)
	}
}

func TestRecognizePeople(t *testing.T) {
	svc := &stubService{
		enabled:   true,
		uploadID:  "a1",
		processed: true,
		asset: &Asset{
			ID: "a1",
			People: []AssetPerson{
				{ID: "p1", Name: "张三"},
				{ID: "", Name: "幽灵"}, // 缺失ID的人物被丢弃
				{ID: "p2", Name: UnnamedPerson},
			},
		},
		photos: map[string][]PersonPhoto{
			"p1": {{ID: "ph1"}},
		},
	}
	r := newTestRecognizer(t, svc, stubGate{hasFace: true})

	result := r.Recognize(context.Background(), "dev-1", []byte("img"))
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.People) != 2 {
		t.Fatalf("expected 2 people, got %+v", result.People)
	}
	if result.Message != MsgPeopleRecognized(2) {
		t.Fatalf("unexpected message: %s", result.Message)
	}
	if result.People[0].PersonID != "p1" || len(result.People[0].Photos) != 1 {
		t.Fatalf("unexpected first person: %+v", result.People[0])
	}
	// 未命名人物保留在结果里，过滤发生在姓名注入阶段
	if result.People[1].PersonName != UnnamedPerson {
		t.Fatalf("unexpected second person: %+v", result.People[1])
	}
}

func TestRecognizeNilGate(t *testing.T) {
	svc := &stubService{
		enabled:   true,
		uploadID:  "a1",
		processed: true,
		asset:     &Asset{ID: "a1"},
	}
	r := newTestRecognizer(t, svc, nil)

	result := r.Recognize(context.Background(), "dev-1", []byte("img"))
	if !result.Success || result.Message != MsgNoPeopleDetected {
		t.Fatalf("unexpected result with nil gate: %+v", result)
	}
	if svc.uploadCalls != 1 {
		t.Fatal("expected upload to run without gate")
	}
}
