package document

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/alluna/internal/lock"
	"github.com/hitoshi/alluna/internal/model"
	"github.com/hitoshi/alluna/internal/repository"
	"github.com/hitoshi/alluna/internal/security"
	"github.com/hitoshi/alluna/internal/signing"
)

// TestSigningFlow_EndToEnd は作成から署名依頼、コールバックによる署名完了までの一連の流れを検証する。
func TestSigningFlow_EndToEnd(t *testing.T) {
	var received signing.ContractPayload
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("プロバイダへのボディがJSONでない: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"contract_id":"okd-77","link":"https://okidoki.example/sign/okd-77"}`))
	}))
	defer provider.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := repository.NewMemoryStore()
	store.Seed()

	builder := signing.NewBuilder(signing.BuilderConfig{
		APIKey:      "test-key",
		Source:      "alluna",
		CallbackURL: "https://alluna.example/api/okidoki/callback",
	}, security.NewTermsSanitizer())
	sender := signing.NewSender(builder, signing.NewClient(provider.Client(), logger, provider.URL), logger, nil)
	service := NewService(store.Projects(), store.Documents(), sender, lock.NewMemoryLocker(time.Minute),
		&mockFetcher{}, logger, "https://alluna.example")
	processor := signing.NewCallbackProcessor(store.Documents(), logger, nil)

	ctx := context.Background()
	doc, err := service.CreateDocument(ctx, CreateInput{
		ProjectID: "1",
		Name:      "Договор №ДП-010",
		Type:      model.DocumentTypeContract,
		Content:   `{"totalAmount":"300000","additionalTerms":"<p>Оплата</p><script>x()</script>"}`,
	})
	if err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	result, err := service.SendForSigning(ctx, doc.ID, SignerInput{})
	if err != nil {
		t.Fatalf("SendForSigning() error = %v", err)
	}
	if result.SigningID != "okd-77" || result.SigningURL != "https://okidoki.example/sign/okd-77" {
		t.Errorf("result = %+v", result)
	}
	if received.ExternalID != doc.ID || received.APIKey != "test-key" {
		t.Errorf("payload external_id = %q, api_key = %q", received.ExternalID, received.APIKey)
	}
	if bytes.Contains([]byte(received.Body), []byte("<script>")) {
		t.Error("追加条項のscriptがサニタイズされていない")
	}

	pending, _ := service.GetDocument(ctx, doc.ID)
	if pending.Status != model.DocumentStatusPendingSignature {
		t.Fatalf("送信後のStatus = %s", pending.Status)
	}

	payload, err := signing.ParseCallback([]byte(`{"external_id":"` + doc.ID + `","status":{"name":"Подписан"}}`))
	if err != nil {
		t.Fatalf("ParseCallback() error = %v", err)
	}
	if _, err := processor.Process(ctx, payload); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	signed, _ := service.GetDocument(ctx, doc.ID)
	if signed.Status != model.DocumentStatusSigned || signed.SignedAt == nil {
		t.Errorf("コールバック後: status=%s signed_at=%v", signed.Status, signed.SignedAt)
	}
}
