package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tokenman/internal/config"
	"github.com/hitoshi/tokenman/internal/model"
)

// ConfigHandler は同期設定のHTTPハンドラー。
type ConfigHandler struct {
	settings *config.Settings
}

// NewConfigHandler はConfigHandlerを生成する。
func NewConfigHandler(settings *config.Settings) *ConfigHandler {
	return &ConfigHandler{settings: settings}
}

// configResponse は同期設定のレスポンス。
// 接続トークン本体は返さず、設定済みかどうかのみを返す。
type configResponse struct {
	SyncTargetURL          string `json:"sync_target_url"`
	HasConnectionToken     bool   `json:"has_connection_token"`
	RefreshIntervalMinutes int    `json:"refresh_interval_minutes"`
}

// updateConfigRequest は同期設定更新リクエストのボディ。nilのフィールドは変更しない。
type updateConfigRequest struct {
	SyncTargetURL          *string `json:"sync_target_url"`
	ConnectionToken        *string `json:"connection_token"`
	RefreshIntervalMinutes *int    `json:"refresh_interval_minutes"`
}

// GetConfig は現在の同期設定を返す。
// GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	snapshot := h.settings.Snapshot()
	writeJSON(w, http.StatusOK, configResponse{
		SyncTargetURL:          snapshot.SyncTargetURL,
		HasConnectionToken:     snapshot.ConnectionToken != "",
		RefreshIntervalMinutes: snapshot.RefreshIntervalMinutes,
	})
}

// UpdateConfig は同期設定を部分更新し、永続化する。
// POST /api/config
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.RefreshIntervalMinutes != nil && *req.RefreshIntervalMinutes <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "同期間隔は1分以上である必要があります。",
			Category: "validation",
			Action:   "正の整数（分）を指定してください。",
		})
		return
	}

	if err := h.settings.Update(config.SettingsUpdate{
		SyncTargetURL:          req.SyncTargetURL,
		ConnectionToken:        req.ConnectionToken,
		RefreshIntervalMinutes: req.RefreshIntervalMinutes,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	snapshot := h.settings.Snapshot()
	writeJSON(w, http.StatusOK, configResponse{
		SyncTargetURL:          snapshot.SyncTargetURL,
		HasConnectionToken:     snapshot.ConnectionToken != "",
		RefreshIntervalMinutes: snapshot.RefreshIntervalMinutes,
	})
}
