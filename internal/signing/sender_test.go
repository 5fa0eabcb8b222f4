package signing

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// recordingMetrics はMetricsRecorderのテスト用実装。
type recordingMetrics struct {
	signing   []string
	callbacks []model.DocumentStatus
	failures  []string
}

func (m *recordingMetrics) RecordSigningRequest(result string) {
	m.signing = append(m.signing, result)
}

func (m *recordingMetrics) RecordProviderLatency(time.Duration) {}

func (m *recordingMetrics) RecordCallback(status model.DocumentStatus) {
	m.callbacks = append(m.callbacks, status)
}

func (m *recordingMetrics) RecordCallbackFailure(reason string) {
	m.failures = append(m.failures, reason)
}

// newProviderStub はプロバイダのスタブサーバーを生成し、呼び出し回数のカウンタを返す。
func newProviderStub(t *testing.T, status int, contentType, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestSender(t *testing.T, server *httptest.Server, metrics MetricsRecorder) *Sender {
	t.Helper()
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	return NewSender(newTestBuilder(), NewClient(server.Client(), logger, server.URL), logger, metrics)
}

func TestSender_Send_Success(t *testing.T) {
	server, calls := newProviderStub(t, http.StatusOK, "application/json",
		`{"contract_id":"c1","link":"https://sign/c1"}`)
	metrics := &recordingMetrics{}
	s := newTestSender(t, server, metrics)

	result, err := s.Send(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.SigningID != "c1" || result.SigningURL != "https://sign/c1" || result.Status != "sent" {
		t.Errorf("result = %+v", result)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("provider calls = %d, want 1", *calls)
	}
	if len(metrics.signing) != 1 || metrics.signing[0] != ResultSent {
		t.Errorf("metrics = %v, want [sent]", metrics.signing)
	}
}

// 検証エラーの場合はプロバイダを一切呼び出さないことを検証する。
func TestSender_Send_ValidationPrecedesNetworkCall(t *testing.T) {
	server, calls := newProviderStub(t, http.StatusOK, "application/json", `{"contract_id":"c1"}`)
	metrics := &recordingMetrics{}
	s := newTestSender(t, server, metrics)

	req := validRequest()
	req.Signer.Email = ""

	_, err := s.Send(context.Background(), req)
	var vErr *model.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *model.ValidationError", err)
	}
	if got := atomic.LoadInt32(calls); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
	if len(metrics.signing) != 1 || metrics.signing[0] != ResultValidationError {
		t.Errorf("metrics = %v, want [validation_error]", metrics.signing)
	}
}

func TestSender_Send_ProviderErrorPassthrough(t *testing.T) {
	server, calls := newProviderStub(t, http.StatusInternalServerError, "application/json", `{"error":"bad key"}`)
	metrics := &recordingMetrics{}
	s := newTestSender(t, server, metrics)

	result, err := s.Send(context.Background(), validRequest())
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	var pErr *model.ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("error = %v, want *model.ProviderError", err)
	}
	if pErr.StatusCode != 500 || pErr.Body != `{"error":"bad key"}` {
		t.Errorf("ProviderError = %+v", pErr)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("provider calls = %d, want 1", *calls)
	}
	if len(metrics.signing) != 1 || metrics.signing[0] != ResultProviderError {
		t.Errorf("metrics = %v, want [provider_error]", metrics.signing)
	}
}

func TestSender_Send_NilMetricsIsAllowed(t *testing.T) {
	server, _ := newProviderStub(t, http.StatusOK, "application/json", `{"contract_id":"c1","link":"l"}`)
	s := newTestSender(t, server, nil)

	if _, err := s.Send(context.Background(), validRequest()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}
