package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tokenman/internal/model"
	"github.com/hitoshi/tokenman/internal/syncer"
)

// SyncServiceInterface は同期ハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	SyncProfile(ctx context.Context, profileID string) *syncer.SyncResult
	SyncAll(ctx context.Context) *syncer.BatchResult
	Status() syncer.SyncStatus
}

// SyncHandler はトークン同期のHTTPハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
	store   ProfileStoreInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface, store ProfileStoreInterface) *SyncHandler {
	return &SyncHandler{
		service: service,
		store:   store,
	}
}

// SyncProfile は単一Profileの同期を実行する。
// 接続トークンが未設定でも手動同期は試行される。
// POST /api/profiles/{id}/sync
func (h *SyncHandler) SyncProfile(w http.ResponseWriter, r *http.Request) {
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

	result := h.service.SyncProfile(r.Context(), id)
	writeJSON(w, http.StatusOK, result)
}

// SyncAll は全有効Profileのバッチ同期を実行する。
// 接続トークンが未設定の場合は設定エラーを返し、抽出は行わない。
// POST /api/sync-all
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status()
	if !status.HasConnectionToken {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewConfigurationError("接続トークン"))
		return
	}

	batch := h.service.SyncAll(r.Context())
	writeJSON(w, http.StatusOK, batch)
}
