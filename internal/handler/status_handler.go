package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/tokenman/internal/model"
)

// ProfileLister はステータス集計用のProfile取得インターフェース。
type ProfileLister interface {
	ListAll(ctx context.Context) ([]*model.Profile, error)
}

// StatusHandler はシステム状態のHTTPハンドラー。
type StatusHandler struct {
	manager BrowserService
	sync    SyncServiceInterface
	store   ProfileLister
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(manager BrowserService, sync SyncServiceInterface, store ProfileLister) *StatusHandler {
	return &StatusHandler{
		manager: manager,
		sync:    sync,
		store:   store,
	}
}

// statusResponse はシステム状態のレスポンス。
type statusResponse struct {
	BrowserRunning         bool       `json:"browser_running"`
	ActiveProfileID        string     `json:"active_profile_id"`
	HasActiveBrowser       bool       `json:"has_active_browser"`
	ProfileCount           int        `json:"profile_count"`
	ActiveProfileCount     int        `json:"active_profile_count"`
	LoggedInProfileCount   int        `json:"logged_in_profile_count"`
	TotalSyncs             int        `json:"total_syncs"`
	TotalErrors            int        `json:"total_errors"`
	LastBatchTime          *time.Time `json:"last_batch_time"`
	SyncTargetURL          string     `json:"sync_target_url"`
	HasConnectionToken     bool       `json:"has_connection_token"`
	RefreshIntervalMinutes int        `json:"refresh_interval_minutes"`
}

// GetStatus はシステム全体の状態を返す。
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var activeCount, loggedInCount int
	for _, p := range profiles {
		if p.IsActive {
			activeCount++
		}
		if p.IsLoggedIn {
			loggedInCount++
		}
	}

	browserStatus := h.manager.Status()
	syncStatus := h.sync.Status()

	writeJSON(w, http.StatusOK, statusResponse{
		BrowserRunning:         browserStatus.Running,
		ActiveProfileID:        browserStatus.ActiveProfileID,
		HasActiveBrowser:       browserStatus.HasActiveBrowser,
		ProfileCount:           len(profiles),
		ActiveProfileCount:     activeCount,
		LoggedInProfileCount:   loggedInCount,
		TotalSyncs:             syncStatus.TotalSyncs,
		TotalErrors:            syncStatus.TotalErrors,
		LastBatchTime:          syncStatus.LastBatchTime,
		SyncTargetURL:          syncStatus.SyncTargetURL,
		HasConnectionToken:     syncStatus.HasConnectionToken,
		RefreshIntervalMinutes: syncStatus.RefreshIntervalMinutes,
	})
}

// Health はヘルスチェックエンドポイント。認証不要。
// GET /health
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
