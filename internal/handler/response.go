package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/alluna/internal/middleware"
	"github.com/hitoshi/alluna/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの読み取り上限。
const maxRequestBodyBytes = 1 << 20

// errInvalidRequest はリクエストボディをJSONとして解析できない場合のエラー。
var errInvalidRequest = &model.APIError{
	Code:     "INVALID_REQUEST",
	Message:  "リクエストボディの解析に失敗しました。",
	Category: "validation",
	Action:   "正しいJSON形式でリクエストしてください。",
}

// decodeJSON はリクエストボディをvにデコードする。
// 失敗した場合は400のエラーレスポンスを書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidRequest)
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var vErr *model.ValidationError
	if errors.As(err, &vErr) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationAPIError(vErr))
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var pErr *model.ProviderError
	if errors.As(err, &pErr) {
		apiErr := model.NewProviderFailedError(pErr)
		if pErr.Body != "" {
			apiErr.Details = providerDetails(pErr.Body)
		}
		middleware.WriteErrorResponse(w, providerHTTPStatus(pErr), apiErr)
		return
	}

	// 上記以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, errInvalidRequest.Code:
		return http.StatusBadRequest
	case model.ErrCodeProjectNotFound, model.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case model.ErrCodeSigningInProgress:
		return http.StatusConflict
	case model.ErrCodeFileUnavailable:
		return http.StatusUnprocessableEntity
	case model.ErrCodeProviderFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// providerHTTPStatus はプロバイダエラーを呼び出し元に返すステータスコードに変換する。
// プロバイダが返したエラーステータスはそのまま、JSONでない応答は502とする。
func providerHTTPStatus(pErr *model.ProviderError) int {
	if pErr.Kind == model.ProviderErrorStatus && pErr.StatusCode >= 400 && pErr.StatusCode <= 599 {
		return pErr.StatusCode
	}
	return http.StatusBadGateway
}
