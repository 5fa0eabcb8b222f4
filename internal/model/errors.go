// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, project, document, signing, system
	Action   string // ユーザー向け対処方法
	Details  any    // 補足情報（プロバイダの応答本文など）。nilの場合は出力しない
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeProjectNotFound   = "PROJECT_NOT_FOUND"
	ErrCodeDocumentNotFound  = "DOCUMENT_NOT_FOUND"
	ErrCodeProviderFailed    = "PROVIDER_FAILED"
	ErrCodeSigningInProgress = "SIGNING_IN_PROGRESS"
	ErrCodeFileUnavailable   = "FILE_UNAVAILABLE"
)

// ErrDocumentNotFound はドキュメントが存在しない場合のエラー。
var ErrDocumentNotFound = errors.New("document not found")

// ErrProjectNotFound はプロジェクトが存在しない場合のエラー。
var ErrProjectNotFound = errors.New("project not found")

// ErrSigningInProgress は同一ドキュメントの署名依頼が処理中の場合のエラー。
var ErrSigningInProgress = errors.New("signing request already in progress")

// ValidationError は入力の必須項目欠落や形式不正を表す。
// ネットワーク呼び出しや永続化の前に検出される。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewRequiredFieldError は必須項目欠落のValidationErrorを生成する。
func NewRequiredFieldError(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}

// ProviderErrorKind はプロバイダエラーの種別。
type ProviderErrorKind string

const (
	// ProviderErrorStatus はプロバイダが2xx以外のステータスを返したことを表す。
	ProviderErrorStatus ProviderErrorKind = "status"
	// ProviderErrorMalformed は2xxだがボディがJSONとして解釈できないことを表す。
	ProviderErrorMalformed ProviderErrorKind = "malformed"
)

// ProviderError は外部署名プロバイダの失敗応答を表す。
// 生のレスポンスボディとステータスコードを保持し、呼び出し元にそのまま提示する。
type ProviderError struct {
	Kind       ProviderErrorKind
	StatusCode int
	Body       string
	Reason     string // HTMLエラーページのtitleなど、診断用の補足
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	switch e.Kind {
	case ProviderErrorMalformed:
		if e.Reason != "" {
			return fmt.Sprintf("provider returned non-JSON response (status %d): %s", e.StatusCode, e.Reason)
		}
		return fmt.Sprintf("provider returned non-JSON response (status %d)", e.StatusCode)
	default:
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
}

// StoreError は永続化層で更新を適用できなかったことを表す。
type StoreError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewValidationAPIError はValidationErrorからAPIErrorを生成する。
func NewValidationAPIError(err *ValidationError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が不正です: %s", err.Error()),
		Category: "validation",
		Action:   "入力項目を確認してください。",
	}
}

// NewProjectNotFoundError はプロジェクト未検出エラーを生成する。
func NewProjectNotFoundError(projectID string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("指定されたプロジェクトが見つかりません: %s", projectID),
		Category: "project",
		Action:   "プロジェクトIDを確認してください。",
	}
}

// NewDocumentNotFoundError はドキュメント未検出エラーを生成する。
func NewDocumentNotFoundError(documentID string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("指定されたドキュメントが見つかりません: %s", documentID),
		Category: "document",
		Action:   "ドキュメントIDを確認してください。",
	}
}

// NewProviderFailedError は署名プロバイダ呼び出し失敗エラーを生成する。
func NewProviderFailedError(err *ProviderError) *APIError {
	return &APIError{
		Code:     ErrCodeProviderFailed,
		Message:  fmt.Sprintf("署名サービスへの送信に失敗しました: %s", err.Error()),
		Category: "signing",
		Action:   "しばらく待ってから再度お試しください。解決しない場合は管理者に連絡してください。",
	}
}

// NewSigningInProgressError は署名依頼の二重送信エラーを生成する。
func NewSigningInProgressError(documentID string) *APIError {
	return &APIError{
		Code:     ErrCodeSigningInProgress,
		Message:  fmt.Sprintf("このドキュメントの署名依頼は処理中です: %s", documentID),
		Category: "signing",
		Action:   "処理が完了するまでお待ちください。",
	}
}

// NewFileUnavailableError はドキュメントのファイルを取得できない場合のエラーを生成する。
func NewFileUnavailableError(documentID string) *APIError {
	return &APIError{
		Code:     ErrCodeFileUnavailable,
		Message:  fmt.Sprintf("ドキュメントのファイルを取得できません: %s", documentID),
		Category: "document",
		Action:   "ファイルが登録されているか確認してください。",
	}
}
