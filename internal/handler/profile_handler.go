package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/tokenman/internal/browser"
	"github.com/hitoshi/tokenman/internal/model"
	"github.com/hitoshi/tokenman/internal/proxy"
)

// ProfileStoreInterface はProfileハンドラーが必要とする永続化インターフェース。
type ProfileStoreInterface interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	FindByName(ctx context.Context, name string) (*model.Profile, error)
	ListAll(ctx context.Context) ([]*model.Profile, error)
	Create(ctx context.Context, profile *model.Profile) error
	Update(ctx context.Context, id string, update *model.ProfileUpdate) error
	Delete(ctx context.Context, id string) error
}

// BrowserService はブラウザManagerの操作インターフェース。
type BrowserService interface {
	LaunchForLogin(ctx context.Context, profileID string) browser.LaunchResult
	CloseBrowser(ctx context.Context, profileID string) browser.CloseResult
	ExtractToken(ctx context.Context, profileID string) browser.ExtractResult
	CheckLogin(ctx context.Context, profileID string) browser.CheckLoginResult
	VerifyIsolation(ctx context.Context, profileID string) (*browser.IsolationReport, error)
	DeleteProfileData(ctx context.Context, profileID string) error
	ActiveProfileID() string
	Status() browser.Status
}

// InputSanitizer は管理者入力のサニタイズインターフェース。
type InputSanitizer interface {
	Sanitize(input string) string
}

// ProfileHandler はProfile管理のHTTPハンドラー。
type ProfileHandler struct {
	store     ProfileStoreInterface
	manager   BrowserService
	sanitizer InputSanitizer
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(store ProfileStoreInterface, manager BrowserService, sanitizer InputSanitizer) *ProfileHandler {
	return &ProfileHandler{
		store:     store,
		manager:   manager,
		sanitizer: sanitizer,
	}
}

// createProfileRequest はProfile作成リクエストのボディ。
type createProfileRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProxyURL     string `json:"proxy_url"`
	ProxyEnabled bool   `json:"proxy_enabled"`
	Remark       string `json:"remark"`
}

// updateProfileRequest はProfile更新リクエストのボディ。nilのフィールドは変更しない。
type updateProfileRequest struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	ProxyURL     *string `json:"proxy_url"`
	ProxyEnabled *bool   `json:"proxy_enabled"`
	Remark       *string `json:"remark"`
}

// isolationResponse はProfile隔離検証のレスポンス。
type isolationResponse struct {
	ProfileName string   `json:"profile_name"`
	ProfileDir  string   `json:"profile_dir"`
	DirExists   bool     `json:"dir_exists"`
	IsIsolated  bool     `json:"is_isolated"`
	SharedWith  []string `json:"shared_with"`
}

// ListProfiles は全Profileの一覧を返す。
// GET /api/profiles
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	activeID := h.manager.ActiveProfileID()
	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p, activeID))
	}

	writeJSON(w, http.StatusOK, out)
}

// CreateProfile は新しいProfileを作成する。
// POST /api/profiles
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	name := h.sanitizer.Sanitize(req.Name)
	if name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "Profile名が空です。",
			Category: "validation",
			Action:   "Profile名を指定してください。",
		})
		return
	}

	if req.ProxyURL != "" {
		if ok, reason := proxy.Validate(req.ProxyURL); !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidProxyError(reason))
			return
		}
	}

	existing, err := h.store.FindByName(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if existing != nil {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateNameError(name))
		return
	}

	now := time.Now()
	profile := &model.Profile{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        h.sanitizer.Sanitize(req.Email),
		ProxyURL:     req.ProxyURL,
		ProxyEnabled: req.ProxyEnabled,
		IsActive:     true,
		Remark:       h.sanitizer.Sanitize(req.Remark),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.Create(r.Context(), profile); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProfileResponse(profile, h.manager.ActiveProfileID()))
}

// GetProfile はProfile詳細を取得する。
// GET /api/profiles/{id}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, toProfileResponse(profile, h.manager.ActiveProfileID()))
}

// UpdateProfile はProfileを部分更新する。
// PUT /api/profiles/{id}
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
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

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	update := &model.ProfileUpdate{
		ProxyEnabled: req.ProxyEnabled,
	}

	if req.Name != nil {
		name := h.sanitizer.Sanitize(*req.Name)
		if name == "" {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     model.ErrCodeInvalidRequest,
				Message:  "Profile名が空です。",
				Category: "validation",
				Action:   "Profile名を指定してください。",
			})
			return
		}
		if name != profile.Name {
			existing, err := h.store.FindByName(r.Context(), name)
			if err != nil {
				handleServiceError(w, err)
				return
			}
			if existing != nil {
				writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateNameError(name))
				return
			}
		}
		update.Name = &name
	}

	if req.Email != nil {
		email := h.sanitizer.Sanitize(*req.Email)
		update.Email = &email
	}

	if req.Remark != nil {
		remark := h.sanitizer.Sanitize(*req.Remark)
		update.Remark = &remark
	}

	if req.ProxyURL != nil {
		if *req.ProxyURL != "" {
			if ok, reason := proxy.Validate(*req.ProxyURL); !ok {
				writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidProxyError(reason))
				return
			}
		}
		update.ProxyURL = req.ProxyURL
	}

	if err := h.store.Update(r.Context(), id, update); err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if updated == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(updated, h.manager.ActiveProfileID()))
}

// DeleteProfile はProfileを完全に削除する。
// 実行中のブラウザのクローズ、永続ストレージの削除、レコードの削除を行う。
// DELETE /api/profiles/{id}
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
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

	// 所有コンテキストのクローズとストレージの削除
	if err := h.manager.DeleteProfileData(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EnableProfile はProfileを有効化する。
// POST /api/profiles/{id}/enable
func (h *ProfileHandler) EnableProfile(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// DisableProfile はProfileを無効化する。定期同期の対象から外れる。
// POST /api/profiles/{id}/disable
func (h *ProfileHandler) DisableProfile(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *ProfileHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
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

	if err := h.store.Update(r.Context(), id, &model.ProfileUpdate{IsActive: &active}); err != nil {
		handleServiceError(w, err)
		return
	}

	profile.IsActive = active
	writeJSON(w, http.StatusOK, toProfileResponse(profile, h.manager.ActiveProfileID()))
}

// CheckIsolation はProfileのストレージ隔離を検証する。
// GET /api/profiles/{id}/isolation
func (h *ProfileHandler) CheckIsolation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.manager.VerifyIsolation(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	sharedWith := report.SharedWith
	if sharedWith == nil {
		sharedWith = []string{}
	}
	writeJSON(w, http.StatusOK, isolationResponse{
		ProfileName: report.ProfileName,
		ProfileDir:  report.ProfileDir,
		DirExists:   report.DirExists,
		IsIsolated:  report.IsIsolated,
		SharedWith:  sharedWith,
	})
}
