package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tokenman/internal/model"
)

// ExternalProfileStore は外部APIが必要とするProfile取得インターフェース。
type ExternalProfileStore interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	FindByName(ctx context.Context, name string) (*model.Profile, error)
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)
	ListAll(ctx context.Context) ([]*model.Profile, error)
}

// ExternalHandler は外部システム向けの/v1 APIハンドラー。
// X-API-Keyで保護され、トークン本体を返す唯一の経路。
type ExternalHandler struct {
	store   ExternalProfileStore
	manager BrowserService
	sync    SyncServiceInterface
}

// NewExternalHandler はExternalHandlerを生成する。
func NewExternalHandler(store ExternalProfileStore, manager BrowserService, sync SyncServiceInterface) *ExternalHandler {
	return &ExternalHandler{
		store:   store,
		manager: manager,
		sync:    sync,
	}
}

// externalProfileResponse は外部API向けのProfile情報。管理用の詳細は含まない。
type externalProfileResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	IsLoggedIn  bool       `json:"is_logged_in"`
	LastTokenAt *time.Time `json:"last_token_at"`
}

// tokenResponse はトークン取得のレスポンス。
type tokenResponse struct {
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name"`
	Token       string `json:"token"`
}

// ListProfiles はProfile一覧を返す。
// GET /v1/profiles
func (h *ExternalHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]externalProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, externalProfileResponse{
			ID:          p.ID,
			Name:        p.Name,
			Email:       p.Email,
			IsActive:    p.IsActive,
			IsLoggedIn:  p.IsLoggedIn,
			LastTokenAt: p.LastTokenAt,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// GetToken はProfile IDでトークンを取得する。
// GET /v1/profiles/{id}/token
func (h *ExternalHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	profile, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.extractAndRespond(w, r, profile, id)
}

// GetTokenByName はProfile名でトークンを取得する。
// GET /v1/profiles/by-name/{name}/token
func (h *ExternalHandler) GetTokenByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	profile, err := h.store.FindByName(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.extractAndRespond(w, r, profile, name)
}

// GetTokenByEmail はメールアドレスでトークンを取得する。
// GET /v1/profiles/by-email/{email}/token
func (h *ExternalHandler) GetTokenByEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	profile, err := h.store.FindByEmail(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.extractAndRespond(w, r, profile, email)
}

// SyncProfile は外部システムからの単一Profile同期を実行する。
// POST /v1/profiles/{id}/sync
func (h *ExternalHandler) SyncProfile(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, h.sync.SyncProfile(r.Context(), id))
}

// extractAndRespond はProfileからトークンを抽出してレスポンスを書き込む。
func (h *ExternalHandler) extractAndRespond(w http.ResponseWriter, r *http.Request, profile *model.Profile, key string) {
	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(key))
		return
	}

	result := h.manager.ExtractToken(r.Context(), profile.ID)
	if !result.Found {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTokenNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		ProfileID:   profile.ID,
		ProfileName: profile.Name,
		Token:       result.Token,
	})
}
