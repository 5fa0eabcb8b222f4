// Package model はドメインモデルを定義する。
package model

import "time"

// Document はプロジェクトに属する1件の文書（契約書、請求書など）を表す。
// FileURL と Content はどちらか一方のみ保持できる。
type Document struct {
	ID        string
	ProjectID string
	Name      string
	Type      DocumentType
	Status    DocumentStatus
	FileURL   string // 外部ストレージ上のファイル参照
	Content   string // 構造化ペイロード（JSON文字列）
	SignedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStatus は署名ライフサイクル上の文書の状態を表す。
type DocumentStatus string

const (
	// DocumentStatusDraft は初期状態。署名依頼前、または却下・無効化後の状態。
	DocumentStatusDraft DocumentStatus = "draft"
	// DocumentStatusPendingSignature は署名プロバイダに送信済みで署名待ちの状態。
	DocumentStatusPendingSignature DocumentStatus = "pending_signature"
	// DocumentStatusSigned は署名完了状態。SignedAtが必ず設定される。
	DocumentStatusSigned DocumentStatus = "signed"
)

// Valid は既知のステータスかどうかを返す。
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusPendingSignature, DocumentStatusSigned:
		return true
	default:
		return false
	}
}

// DocumentType は文書の種別を表す。
type DocumentType string

const (
	DocumentTypeContract   DocumentType = "contract"
	DocumentTypeAttachment DocumentType = "attachment"
	DocumentTypeAct        DocumentType = "act"
	DocumentTypeAgreement  DocumentType = "agreement"
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeOther      DocumentType = "other"
)

// Valid は既知の文書種別かどうかを返す。
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeContract, DocumentTypeAttachment, DocumentTypeAct,
		DocumentTypeAgreement, DocumentTypeInvoice, DocumentTypeOther:
		return true
	default:
		return false
	}
}

// ApplyStatus はステータス遷移を適用し、signed_atの不変条件を維持する。
// signedへの遷移では既存のSignedAtを保持し、未設定の場合のみatを設定する。
// signed以外への遷移ではSignedAtをクリアする。
// 遷移元の状態は検証しない（コールバックの到着順は保証されないため）。
func (d *Document) ApplyStatus(status DocumentStatus, at time.Time) {
	d.Status = status
	if status == DocumentStatusSigned {
		if d.SignedAt == nil {
			t := at
			d.SignedAt = &t
		}
	} else {
		d.SignedAt = nil
	}
	d.UpdatedAt = at
}
