package signing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// 署名依頼の結果ラベル（メトリクス用）。
const (
	ResultSent            = "sent"
	ResultValidationError = "validation_error"
	ResultProviderError   = "provider_error"
	ResultTransportError  = "transport_error"
)

// StatusSent は署名依頼成功時に返すステータス。
const StatusSent = "sent"

// MetricsRecorder は署名連携のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordSigningRequest(result string)
	RecordProviderLatency(duration time.Duration)
	RecordCallback(status model.DocumentStatus)
	RecordCallbackFailure(reason string)
}

// nopRecorder は何も記録しないMetricsRecorder。
type nopRecorder struct{}

func (nopRecorder) RecordSigningRequest(string) {}
func (nopRecorder) RecordProviderLatency(time.Duration) {}
func (nopRecorder) RecordCallback(model.DocumentStatus) {}
func (nopRecorder) RecordCallbackFailure(string) {}

// ContractCreator はプロバイダの契約作成呼び出しを抽象化するインターフェース。
type ContractCreator interface {
	CreateContract(ctx context.Context, payload *ContractPayload) (*ContractResponse, error)
}

// Result は署名依頼の成功結果。
type Result struct {
	SigningID  string
	SigningURL string
	Status     string
	Message    string
}

// Sender は署名依頼の検証・組み立て・送信を行う。
// ローカルの状態は変更しない。pending_signatureへの遷移は呼び出し元の責務。
type Sender struct {
	builder *Builder
	client  ContractCreator
	logger  *slog.Logger
	metrics MetricsRecorder
}

// NewSender はSenderを生成する。metricsがnilの場合は記録しない。
func NewSender(builder *Builder, client ContractCreator, logger *slog.Logger, metrics MetricsRecorder) *Sender {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Sender{
		builder: builder,
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
}

// Send は署名依頼を送信する。
// 検証エラーの場合はプロバイダを呼び出さずにValidationErrorを返す。
func (s *Sender) Send(ctx context.Context, req *Request) (*Result, error) {
	payload, err := s.builder.Build(req)
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			s.metrics.RecordSigningRequest(ResultValidationError)
		}
		return nil, err
	}

	start := time.Now()
	resp, err := s.client.CreateContract(ctx, payload)
	s.metrics.RecordProviderLatency(time.Since(start))
	if err != nil {
		var pErr *model.ProviderError
		if errors.As(err, &pErr) {
			s.metrics.RecordSigningRequest(ResultProviderError)
		} else {
			s.metrics.RecordSigningRequest(ResultTransportError)
		}
		return nil, err
	}

	s.metrics.RecordSigningRequest(ResultSent)
	s.logger.Info("署名依頼を送信しました",
		slog.String("document_id", req.DocumentID),
		slog.String("contract_id", resp.ContractID),
	)

	return &Result{
		SigningID:  resp.ContractID,
		SigningURL: resp.Link,
		Status:     StatusSent,
		Message:    resp.Message,
	}, nil
}
