// Package signing は外部電子署名プロバイダ（OkiDoki）との連携を提供する。
// 署名依頼の組み立てと送信、プロバイダからのコールバック処理、
// プロバイダのステータス語彙から内部ステータスへの変換を含む。
package signing

import (
	"strings"

	"github.com/hitoshi/alluna/internal/model"
)

// プロバイダが報告するステータスラベル（ロシア語ロケール）。
const (
	ProviderStatusIssued   = "Выставлен"
	ProviderStatusSigned   = "Подписан"
	ProviderStatusRejected = "Отклонен"
	ProviderStatusAnnulled = "Аннулирован"
)

// providerStatusTable はプロバイダのステータスラベルと内部ステータスの対応表。
// 表にないラベルはプロバイダ側で処理中とみなし、pending_signatureに変換する。
var providerStatusTable = map[string]model.DocumentStatus{
	ProviderStatusIssued:   model.DocumentStatusPendingSignature,
	ProviderStatusSigned:   model.DocumentStatusSigned,
	ProviderStatusRejected: model.DocumentStatusDraft,
	ProviderStatusAnnulled: model.DocumentStatusDraft,
}

// ProviderStatus はコールバックペイロードのstatusオブジェクト。
type ProviderStatus struct {
	Name string `json:"name"`
}

// MapStatus はプロバイダのステータスを内部ステータスに変換する。
// 全域関数であり、失敗しない。
//   - statusオブジェクト自体が無い場合: draft
//   - 対応表にあるラベル: 対応表の値
//   - 空ラベル・未知のラベル: pending_signature
func MapStatus(status *ProviderStatus) model.DocumentStatus {
	if status == nil {
		return model.DocumentStatusDraft
	}
	return MapStatusLabel(status.Name)
}

// MapStatusLabel はステータスラベル単体を内部ステータスに変換する。
func MapStatusLabel(label string) model.DocumentStatus {
	if mapped, ok := providerStatusTable[strings.TrimSpace(label)]; ok {
		return mapped
	}
	return model.DocumentStatusPendingSignature
}
