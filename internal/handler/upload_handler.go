package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/alluna/internal/middleware"
	"github.com/hitoshi/alluna/internal/storage"
)

// UploadServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type UploadServiceInterface interface {
	RequestUploadURL(ctx context.Context, fileName, contentType string) (*storage.UploadTicket, error)
}

// UploadHandler はドキュメントファイルのアップロードURL発行ハンドラー。
type UploadHandler struct {
	service UploadServiceInterface
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service UploadServiceInterface) *UploadHandler {
	return &UploadHandler{service: service}
}

type uploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// RequestUploadURL は署名付きアップロードURLを発行する。
// クライアントはupload_urlにPUTした後、file_urlをドキュメント作成時に指定する。
// POST /api/uploads
func (h *UploadHandler) RequestUploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ticket, err := h.service.RequestUploadURL(r.Context(), req.FileName, req.ContentType)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, ticket)
}
