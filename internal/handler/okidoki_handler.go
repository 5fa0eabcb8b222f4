package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/alluna/internal/middleware"
	"github.com/hitoshi/alluna/internal/model"
	"github.com/hitoshi/alluna/internal/signing"
)

// defaultSentMessage はプロバイダがmessageを返さなかった場合の既定メッセージ。
const defaultSentMessage = "Договор создан и отправлен на email клиенту"

// SigningSenderInterface は署名依頼の送信を抽象化する。
type SigningSenderInterface interface {
	Send(ctx context.Context, req *signing.Request) (*signing.Result, error)
}

// CallbackProcessorInterface はコールバック処理を抽象化する。
type CallbackProcessorInterface interface {
	Process(ctx context.Context, payload *signing.CallbackPayload) (*signing.CallbackResult, error)
}

// OkiDokiHandler はOkiDoki連携エンドポイントのHTTPハンドラー。
// レスポンス形式はプロバイダ連携の互換性のため、統一エラーフォーマットではなく
// {error, details} 形式を用いる。
type OkiDokiHandler struct {
	sender    SigningSenderInterface
	processor CallbackProcessorInterface
}

// NewOkiDokiHandler はOkiDokiHandlerを生成する。
func NewOkiDokiHandler(sender SigningSenderInterface, processor CallbackProcessorInterface) *OkiDokiHandler {
	return &OkiDokiHandler{sender: sender, processor: processor}
}

// okidokiErrorResponse はOkiDoki連携エンドポイントのエラーレスポンス。
type okidokiErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// okidokiSendResponse は署名依頼成功時のレスポンス。
type okidokiSendResponse struct {
	Success    bool   `json:"success"`
	SigningID  string `json:"signing_id"`
	ContractID string `json:"contract_id"`
	Status     string `json:"status"`
	SigningURL string `json:"signing_url"`
	Link       string `json:"link"`
	Message    string `json:"message"`
	Provider   string `json:"provider"`
}

// callbackResponse はコールバック処理成功時のレスポンス。
type callbackResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// SendForSigning は署名依頼をプロバイダに送信する。ドキュメントの状態は変更しない。
// POST /api/okidoki/send-for-signing
func (h *OkiDokiHandler) SendForSigning(w http.ResponseWriter, r *http.Request) {
	var req signing.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, okidokiErrorResponse{
			Error:   "Invalid JSON body",
			Details: err.Error(),
		})
		return
	}

	result, err := h.sender.Send(r.Context(), &req)
	if err != nil {
		writeSendError(w, err)
		return
	}

	message := result.Message
	if message == "" {
		message = defaultSentMessage
	}
	middleware.WriteJSON(w, http.StatusOK, okidokiSendResponse{
		Success:    true,
		SigningID:  result.SigningID,
		ContractID: result.SigningID,
		Status:     result.Status,
		SigningURL: result.SigningURL,
		Link:       result.SigningURL,
		Message:    message,
		Provider:   "okidoki",
	})
}

// writeSendError は署名依頼の失敗をレスポンスに変換する。
// プロバイダの生レスポンスはdetailsにそのまま含める。
func writeSendError(w http.ResponseWriter, err error) {
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		middleware.WriteJSON(w, http.StatusBadRequest, okidokiErrorResponse{
			Error:   "document_id, document_name, and signer.email are required",
			Details: vErr.Error(),
		})
		return
	}

	var pErr *model.ProviderError
	if errors.As(err, &pErr) {
		resp := okidokiErrorResponse{
			Error:   "OkiDoki API error",
			Details: providerDetails(pErr.Body),
			Status:  pErr.StatusCode,
		}
		if pErr.Kind == model.ProviderErrorMalformed {
			resp.Error = "OkiDoki API returned non-JSON response"
			if pErr.Reason != "" {
				resp.Error += ": " + pErr.Reason
			}
		}
		middleware.WriteJSON(w, providerHTTPStatus(pErr), resp)
		return
	}

	slog.Error("署名依頼の送信に失敗しました", slog.String("error", err.Error()))
	middleware.WriteJSON(w, http.StatusInternalServerError, okidokiErrorResponse{
		Error:   "Internal server error",
		Details: err.Error(),
	})
}

// providerDetails はプロバイダのレスポンスボディがJSONであれば構造のまま、そうでなければ文字列として返す。
func providerDetails(body string) any {
	if body != "" && json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	return body
}

// Callback はプロバイダからのステータス変更通知を処理する。
// POST /api/okidoki/callback
func (h *OkiDokiHandler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, okidokiErrorResponse{
			Error:   "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	payload, err := signing.ParseCallback(body)
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) && vErr.Field == "external_id" {
			middleware.WriteJSON(w, http.StatusBadRequest, okidokiErrorResponse{Error: "external_id is required"})
			return
		}
		middleware.WriteJSON(w, http.StatusBadRequest, okidokiErrorResponse{
			Error:   "Invalid JSON body",
			Details: err.Error(),
		})
		return
	}

	result, err := h.processor.Process(r.Context(), payload)
	if err != nil {
		middleware.WriteJSON(w, http.StatusInternalServerError, okidokiErrorResponse{
			Error:   "Failed to update document status",
			Details: err.Error(),
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, callbackResponse{
		Success:    true,
		Message:    "Callback processed successfully",
		ExternalID: result.ExternalID,
		Status:     string(result.Status),
	})
}
