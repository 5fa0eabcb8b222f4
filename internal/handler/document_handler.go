package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/alluna/internal/document"
	"github.com/hitoshi/alluna/internal/middleware"
	"github.com/hitoshi/alluna/internal/model"
	"github.com/hitoshi/alluna/internal/signing"
)

// DocumentServiceInterface はドキュメントハンドラーが必要とするサービスインターフェース。
type DocumentServiceInterface interface {
	CreateDocument(ctx context.Context, in document.CreateInput) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListProjectDocuments(ctx context.Context, projectID string) ([]*model.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	OpenFile(ctx context.Context, id string) (*document.File, error)
	SendForSigning(ctx context.Context, documentID string, signer document.SignerInput) (*signing.Result, error)
}

// DocumentHandler はドキュメント管理と署名依頼のHTTPハンドラー。
type DocumentHandler struct {
	service DocumentServiceInterface
}

// NewDocumentHandler はDocumentHandlerを生成する。
func NewDocumentHandler(service DocumentServiceInterface) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// createDocumentRequest はドキュメント作成リクエストのボディ。
// contentは任意のJSON値を受け付け、文字列として保存する。
type createDocumentRequest struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	FileURL string          `json:"file_url"`
	Content json.RawMessage `json:"content"`
}

// sendForSigningRequest は署名依頼リクエストのボディ。空の項目はプロジェクトの顧客情報で補う。
type sendForSigningRequest struct {
	SignerName string `json:"signer_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// documentResponse はドキュメントのAPIレスポンス。
type documentResponse struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	FileURL   string          `json:"file_url,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	SignedAt  *time.Time      `json:"signed_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// sendForSigningResponse は署名依頼成功時のレスポンス。
type sendForSigningResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"document_id"`
	SigningID  string `json:"signing_id"`
	SigningURL string `json:"signing_url"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// ListDocuments はプロジェクトのドキュメント一覧を返す。
// GET /api/projects/{id}/documents
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.service.ListProjectDocuments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]documentResponse, len(documents))
	for i, d := range documents {
		resp[i] = toDocumentResponse(d)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// CreateDocument はプロジェクトにドキュメントを追加する。
// POST /api/projects/{id}/documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := document.CreateInput{
		ProjectID: chi.URLParam(r, "id"),
		Name:      req.Name,
		Type:      model.DocumentType(req.Type),
		FileURL:   req.FileURL,
	}
	if len(req.Content) > 0 && string(req.Content) != "null" {
		in.Content = string(req.Content)
	}

	d, err := h.service.CreateDocument(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toDocumentResponse(d))
}

// GetDocument はドキュメント詳細を返す。
// GET /api/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toDocumentResponse(d))
}

// DeleteDocument はドキュメントを削除する。
// DELETE /api/documents/{id}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFile はドキュメントのファイル内容を返す。
// GET /api/documents/{id}/file
func (h *DocumentHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.OpenFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer file.Body.Close()

	w.Header().Set("Content-Type", file.ContentType)
	if disposition := mime.FormatMediaType("inline", map[string]string{"filename": file.FileName}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file.Body); err != nil {
		slog.Warn("ドキュメントファイルの送信に失敗しました",
			slog.String("file_name", file.FileName),
			slog.String("error", err.Error()),
		)
	}
}

// SendForSigning はドキュメントの署名依頼をプロバイダに送信し、pending_signatureへ遷移させる。
// POST /api/documents/{id}/send-for-signing
func (h *DocumentHandler) SendForSigning(w http.ResponseWriter, r *http.Request) {
	var req sendForSigningRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	documentID := chi.URLParam(r, "id")
	result, err := h.service.SendForSigning(r.Context(), documentID, document.SignerInput{
		Name:  req.SignerName,
		Phone: req.Phone,
		Email: req.Email,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, sendForSigningResponse{
		Success:    true,
		DocumentID: documentID,
		SigningID:  result.SigningID,
		SigningURL: result.SigningURL,
		Status:     result.Status,
		Message:    result.Message,
	})
}

func toDocumentResponse(d *model.Document) documentResponse {
	resp := documentResponse{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		Name:      d.Name,
		Type:      string(d.Type),
		Status:    string(d.Status),
		FileURL:   d.FileURL,
		SignedAt:  d.SignedAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Content != "" && json.Valid([]byte(d.Content)) {
		resp.Content = json.RawMessage(d.Content)
	}
	return resp
}
