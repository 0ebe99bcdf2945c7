// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/tokenman/internal/model"
	"github.com/hitoshi/tokenman/internal/proxy"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// profileResponse はProfile情報のAPIレスポンス。
// トークン本体は含まれない（マスク済みプレビューのみ）。
type profileResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	ProxyURL         string     `json:"proxy_url"`
	ProxyEnabled     bool       `json:"proxy_enabled"`
	ProxyDescription string     `json:"proxy_description"`
	IsActive         bool       `json:"is_active"`
	IsLoggedIn       bool       `json:"is_logged_in"`
	IsBrowserActive  bool       `json:"is_browser_active"`
	LastTokenPreview string     `json:"last_token_preview"`
	LastTokenAt      *time.Time `json:"last_token_at"`
	LastSyncAt       *time.Time `json:"last_sync_at"`
	LastSyncResult   string     `json:"last_sync_result"`
	SyncCount        int        `json:"sync_count"`
	ErrorCount       int        `json:"error_count"`
	Remark           string     `json:"remark"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
// activeProfileIDは現在ブラウザを所有しているProfileのID（なければ空文字列）。
func toProfileResponse(p *model.Profile, activeProfileID string) profileResponse {
	_, proxyDesc := proxy.Validate(p.ProxyURL)
	return profileResponse{
		ID:               p.ID,
		Name:             p.Name,
		Email:            p.Email,
		ProxyURL:         p.ProxyURL,
		ProxyEnabled:     p.ProxyEnabled,
		ProxyDescription: proxyDesc,
		IsActive:         p.IsActive,
		IsLoggedIn:       p.IsLoggedIn,
		IsBrowserActive:  activeProfileID != "" && p.ID == activeProfileID,
		LastTokenPreview: p.LastTokenPreview,
		LastTokenAt:      p.LastTokenAt,
		LastSyncAt:       p.LastSyncAt,
		LastSyncResult:   p.LastSyncResult,
		SyncCount:        p.SyncCount,
		ErrorCount:       p.ErrorCount,
		Remark:           p.Remark,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidRequest はリクエストボディ不正の統一レスポンスを書き込む。
func writeInvalidRequest(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     model.ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateName:
		return http.StatusConflict
	case model.ErrCodeInvalidProxy, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeConfiguration:
		return http.StatusBadRequest
	case model.ErrCodeLaunchFailed:
		return http.StatusBadGateway
	case model.ErrCodeTokenNotFound:
		return http.StatusNotFound
	case model.ErrCodeProfileDisabled:
		return http.StatusConflict
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
