package signing

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// fakeDocumentStore はStatusUpdaterのテスト用実装。
// model.Document.ApplyStatusで遷移を適用し、呼び出し回数を記録する。
type fakeDocumentStore struct {
	mu    sync.Mutex
	docs  map[string]*model.Document
	calls int
	err   error
}

func newFakeDocumentStore(docs ...*model.Document) *fakeDocumentStore {
	s := &fakeDocumentStore{docs: make(map[string]*model.Document)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeDocumentStore) UpdateStatus(_ context.Context, id string, status model.DocumentStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	doc, ok := s.docs[id]
	if !ok {
		return model.ErrDocumentNotFound
	}
	doc.ApplyStatus(status, at)
	return nil
}

// newTestProcessor は時刻を順に進めるCallbackProcessorを生成する。
func newTestProcessor(store StatusUpdater, metrics MetricsRecorder) *CallbackProcessor {
	var buf bytes.Buffer
	p := NewCallbackProcessor(store, newTestLogger(&buf), metrics)
	current := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
	return p
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantErr  bool
		wantID   string
		wantName string
	}{
		{
			name:     "正常なペイロード",
			body:     `{"external_id":"d1","status":{"name":"Подписан"},"_id":"c1"}`,
			wantID:   "d1",
			wantName: "Подписан",
		},
		{
			name:   "statusなし",
			body:   `{"external_id":"d1"}`,
			wantID: "d1",
		},
		{
			name:    "external_idなし",
			body:    `{"status":{"name":"Подписан"}}`,
			wantErr: true,
		},
		{
			name:    "external_idが空白のみ",
			body:    `{"external_id":"   "}`,
			wantErr: true,
		},
		{
			name:    "JSONとして不正",
			body:    `{"external_id":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParseCallback([]byte(tt.body))
			if tt.wantErr {
				var vErr *model.ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("error = %v, want *model.ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCallback() error = %v", err)
			}
			if payload.ExternalID != tt.wantID {
				t.Errorf("ExternalID = %q, want %q", payload.ExternalID, tt.wantID)
			}
			if tt.wantName != "" && (payload.Status == nil || payload.Status.Name != tt.wantName) {
				t.Errorf("Status = %+v, want name %q", payload.Status, tt.wantName)
			}
		})
	}
}

func TestCallbackProcessor_Process_Signed(t *testing.T) {
	store := newFakeDocumentStore(&model.Document{ID: "d1", Status: model.DocumentStatusPendingSignature})
	metrics := &recordingMetrics{}
	p := newTestProcessor(store, metrics)

	result, err := p.Process(context.Background(), &CallbackPayload{
		ExternalID: "d1",
		Status:     &ProviderStatus{Name: ProviderStatusSigned},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.ExternalID != "d1" || result.Status != model.DocumentStatusSigned {
		t.Errorf("result = %+v", result)
	}
	doc := store.docs["d1"]
	if doc.Status != model.DocumentStatusSigned || doc.SignedAt == nil {
		t.Errorf("doc = %+v, want signed with signed_at", doc)
	}
	if len(metrics.callbacks) != 1 || metrics.callbacks[0] != model.DocumentStatusSigned {
		t.Errorf("metrics = %v", metrics.callbacks)
	}
}

// 同一コールバックの再送で状態とsigned_atが変わらないことを検証する。
func TestCallbackProcessor_Process_Idempotent(t *testing.T) {
	store := newFakeDocumentStore(&model.Document{ID: "d1", Status: model.DocumentStatusPendingSignature})
	p := newTestProcessor(store, nil)
	payload := &CallbackPayload{ExternalID: "d1", Status: &ProviderStatus{Name: ProviderStatusSigned}}

	if _, err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("1回目 Process() error = %v", err)
	}
	firstSignedAt := *store.docs["d1"].SignedAt

	if _, err := p.Process(context.Background(), payload); err != nil {
		t.Fatalf("2回目 Process() error = %v", err)
	}

	doc := store.docs["d1"]
	if doc.Status != model.DocumentStatusSigned {
		t.Errorf("Status = %q, want signed", doc.Status)
	}
	if doc.SignedAt == nil || !doc.SignedAt.Equal(firstSignedAt) {
		t.Errorf("SignedAt = %v, want %v", doc.SignedAt, firstSignedAt)
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2", store.calls)
	}
}

// 却下通知でsignedからdraftに戻り、signed_atがクリアされることを検証する。
func TestCallbackProcessor_Process_RejectedClearsSignedAt(t *testing.T) {
	signedAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeDocumentStore(&model.Document{
		ID:       "d1",
		Status:   model.DocumentStatusSigned,
		SignedAt: &signedAt,
	})
	p := newTestProcessor(store, nil)

	result, err := p.Process(context.Background(), &CallbackPayload{
		ExternalID: "d1",
		Status:     &ProviderStatus{Name: ProviderStatusRejected},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != model.DocumentStatusDraft {
		t.Errorf("Status = %q, want draft", result.Status)
	}
	if store.docs["d1"].SignedAt != nil {
		t.Errorf("SignedAt = %v, want nil", store.docs["d1"].SignedAt)
	}
}

// 送信側の遷移が記録される前に署名完了通知が届いても、signedになることを検証する。
func TestCallbackProcessor_Process_OutOfOrder(t *testing.T) {
	store := newFakeDocumentStore(&model.Document{ID: "d1", Status: model.DocumentStatusDraft})
	p := newTestProcessor(store, nil)

	if _, err := p.Process(context.Background(), &CallbackPayload{
		ExternalID: "d1",
		Status:     &ProviderStatus{Name: ProviderStatusSigned},
	}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	doc := store.docs["d1"]
	if doc.Status != model.DocumentStatusSigned || doc.SignedAt == nil {
		t.Errorf("doc = %+v, want signed with signed_at", doc)
	}
}

func TestCallbackProcessor_Process_MissingStatusMapsToDraft(t *testing.T) {
	store := newFakeDocumentStore(&model.Document{ID: "d1", Status: model.DocumentStatusPendingSignature})
	p := newTestProcessor(store, nil)

	result, err := p.Process(context.Background(), &CallbackPayload{ExternalID: "d1"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != model.DocumentStatusDraft {
		t.Errorf("Status = %q, want draft", result.Status)
	}
}

func TestCallbackProcessor_Process_NotFound(t *testing.T) {
	store := newFakeDocumentStore()
	metrics := &recordingMetrics{}
	p := newTestProcessor(store, metrics)

	_, err := p.Process(context.Background(), &CallbackPayload{
		ExternalID: "missing",
		Status:     &ProviderStatus{Name: ProviderStatusSigned},
	})
	if !errors.Is(err, model.ErrDocumentNotFound) {
		t.Fatalf("error = %v, want ErrDocumentNotFound", err)
	}
	if len(metrics.failures) != 1 || metrics.failures[0] != "not_found" {
		t.Errorf("failures = %v, want [not_found]", metrics.failures)
	}
}

func TestCallbackProcessor_Process_StoreError(t *testing.T) {
	store := newFakeDocumentStore(&model.Document{ID: "d1"})
	store.err = &model.StoreError{Op: "update_status", Err: errors.New("connection refused")}
	metrics := &recordingMetrics{}
	p := newTestProcessor(store, metrics)

	_, err := p.Process(context.Background(), &CallbackPayload{ExternalID: "d1"})
	var sErr *model.StoreError
	if !errors.As(err, &sErr) {
		t.Fatalf("error = %v, want *model.StoreError", err)
	}
	if len(metrics.failures) != 1 || metrics.failures[0] != "store" {
		t.Errorf("failures = %v, want [store]", metrics.failures)
	}
}

func TestCallbackProcessor_Process_MissingExternalID(t *testing.T) {
	store := newFakeDocumentStore()
	p := newTestProcessor(store, nil)

	_, err := p.Process(context.Background(), &CallbackPayload{})
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *model.ValidationError", err)
	}
	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
}
