package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// CallbackPayload はプロバイダからのコールバックのボディ。
type CallbackPayload struct {
	ExternalID string          `json:"external_id"`
	Status     *ProviderStatus `json:"status,omitempty"`
	ContractID string          `json:"_id,omitempty"`
}

// ParseCallback はコールバックのボディを検証済みのCallbackPayloadに変換する。
// JSONとして不正な場合、またはexternal_idが無い場合はValidationErrorを返す。
func ParseCallback(body []byte) (*CallbackPayload, error) {
	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &model.ValidationError{Message: fmt.Sprintf("invalid callback body: %v", err)}
	}
	payload.ExternalID = strings.TrimSpace(payload.ExternalID)
	if payload.ExternalID == "" {
		return nil, model.NewRequiredFieldError("external_id")
	}
	return &payload, nil
}

// StatusUpdater はドキュメントのステータス更新を行うストアのインターフェース。
// repository.DocumentRepositoryの部分集合として定義する。
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, at time.Time) error
}

// CallbackResult はコールバック処理の結果。
type CallbackResult struct {
	ExternalID string
	Status     model.DocumentStatus
}

// CallbackProcessor はプロバイダからの非同期通知を処理し、ドキュメントの状態を更新する。
// 遷移元の状態は問わず、マッピング後の状態をそのまま適用する（到着順の逆転に耐える）。
// signed状態からの後退も許容する。
type CallbackProcessor struct {
	store   StatusUpdater
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// NewCallbackProcessor はCallbackProcessorを生成する。metricsがnilの場合は記録しない。
func NewCallbackProcessor(store StatusUpdater, logger *slog.Logger, metrics MetricsRecorder) *CallbackProcessor {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &CallbackProcessor{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Process はコールバックを1件処理する。ストアへの更新はexternal_idをキーに1回だけ行う。
// 同一ペイロードの再送は同じ結果状態になる（冪等）。
func (p *CallbackProcessor) Process(ctx context.Context, payload *CallbackPayload) (*CallbackResult, error) {
	if payload == nil || strings.TrimSpace(payload.ExternalID) == "" {
		p.metrics.RecordCallbackFailure("validation")
		return nil, model.NewRequiredFieldError("external_id")
	}

	status := MapStatus(payload.Status)

	attrs := []any{
		slog.String("external_id", payload.ExternalID),
		slog.String("contract_id", payload.ContractID),
		slog.String("internal_status", string(status)),
	}
	if payload.Status != nil {
		attrs = append(attrs, slog.String("provider_status", payload.Status.Name))
	}
	p.logger.Info("署名コールバックを受信しました", attrs...)

	if err := p.store.UpdateStatus(ctx, payload.ExternalID, status, p.now().UTC()); err != nil {
		if errors.Is(err, model.ErrDocumentNotFound) {
			p.metrics.RecordCallbackFailure("not_found")
		} else {
			p.metrics.RecordCallbackFailure("store")
		}
		p.logger.Error("コールバックによるステータス更新に失敗しました",
			slog.String("external_id", payload.ExternalID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	p.metrics.RecordCallback(status)
	return &CallbackResult{ExternalID: payload.ExternalID, Status: status}, nil
}
