package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tokenman/internal/browser"
	"github.com/hitoshi/tokenman/internal/model"
)

// BrowserHandler はブラウザ操作のHTTPハンドラー。
type BrowserHandler struct {
	store   ProfileStoreInterface
	manager BrowserService
}

// NewBrowserHandler はBrowserHandlerを生成する。
func NewBrowserHandler(store ProfileStoreInterface, manager BrowserService) *BrowserHandler {
	return &BrowserHandler{
		store:   store,
		manager: manager,
	}
}

// launchResponse はブラウザ起動のレスポンス。
type launchResponse struct {
	Success bool `json:"success"`
}

// closeResponse はブラウザクローズのレスポンス。
type closeResponse struct {
	Success    bool `json:"success"`
	IsLoggedIn bool `json:"is_logged_in"`
}

// checkLoginResponse はログイン状態確認のレスポンス。
// Sourceは判定の情報源（アクティブなブラウザのCookie走査か、抽出経路か）。
type checkLoginResponse struct {
	IsLoggedIn bool   `json:"is_logged_in"`
	Source     string `json:"source"`
}

// extractResponse はトークン抽出のレスポンス。
// トークン本体は返さず、取得可否と長さのみを返す。
type extractResponse struct {
	Found       bool   `json:"found"`
	TokenLength int    `json:"token_length"`
	Reason      string `json:"reason,omitempty"`
}

// Launch は対話的ログイン用のブラウザを起動する。
// 他のProfileがブラウザを所有している場合はそれを閉じてから起動する。
// POST /api/profiles/{id}/launch
func (h *BrowserHandler) Launch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	profile, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(id))
		return
	}
	if !profile.IsActive {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewProfileDisabledError(profile.Name))
		return
	}

	result := h.manager.LaunchForLogin(r.Context(), id)
	if !result.Success {
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewLaunchFailedError())
		return
	}

	writeJSON(w, http.StatusOK, launchResponse{Success: true})
}

// Close はアクティブなブラウザを閉じ、ログイン状態を判定して永続化する。
// POST /api/profiles/{id}/close
func (h *BrowserHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result := h.manager.CloseBrowser(r.Context(), id)
	if !result.Success {
		writeAPIErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     "BROWSER_NOT_ACTIVE",
			Message:  "このProfileのブラウザは起動していません。",
			Category: "browser",
			Action:   "先にブラウザを起動してください。",
		})
		return
	}

	writeJSON(w, http.StatusOK, closeResponse{
		Success:    true,
		IsLoggedIn: result.IsLoggedIn,
	})
}

// CheckLogin はProfileのログイン状態を確認する。
// セッションCookieの存在をもってログイン済みと判定する。
// 当該Profileのブラウザがアクティブな場合はページ遷移なしで判定される。
// POST /api/profiles/{id}/check-login
func (h *BrowserHandler) CheckLogin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	profile, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(id))
		return
	}

	result := h.manager.CheckLogin(r.Context(), id)
	writeJSON(w, http.StatusOK, checkLoginResponse{
		IsLoggedIn: result.IsLoggedIn,
		Source:     result.Source,
	})
}

// Extract はProfileのセッショントークンを抽出する。
// 管理UI向けのためトークン本体は返さない。
// POST /api/profiles/{id}/extract
func (h *BrowserHandler) Extract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result := h.manager.ExtractToken(r.Context(), id)
	if result.Reason == browser.ReasonProfileNotFound {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Found:       result.Found,
		TokenLength: len(result.Token),
		Reason:      result.Reason,
	})
}
