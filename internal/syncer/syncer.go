// Package syncer はProfileのトークン抽出とダウンストリームへの同期を統括する。
package syncer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/tokenman/internal/browser"
	"github.com/hitoshi/tokenman/internal/config"
	"github.com/hitoshi/tokenman/internal/metrics"
	"github.com/hitoshi/tokenman/internal/model"
)

// TokenExtractor はブラウザManagerのトークン抽出操作を抽象化する。
type TokenExtractor interface {
	ExtractToken(ctx context.Context, profileID string) browser.ExtractResult
}

// ProfileStore はSyncerが必要とするProfile永続化のインターフェース。
type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	ListActive(ctx context.Context) ([]*model.Profile, error)
	Update(ctx context.Context, id string, update *model.ProfileUpdate) error
}

// SyncResult はProfile1件の同期結果。
type SyncResult struct {
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
}

// BatchResult はバッチ同期の結果。
type BatchResult struct {
	Success      bool          `json:"success"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	Message      string        `json:"message,omitempty"`
	Results      []*SyncResult `json:"results"`
}

// SyncStatus はSyncerの累積状態のスナップショット。
type SyncStatus struct {
	TotalSyncs             int        `json:"total_syncs"`
	TotalErrors            int        `json:"total_errors"`
	LastBatchTime          *time.Time `json:"last_batch_time"`
	SyncTargetURL          string     `json:"sync_target_url"`
	HasConnectionToken     bool       `json:"has_connection_token"`
	RefreshIntervalMinutes int        `json:"refresh_interval_minutes"`
}

// Syncer はトークン抽出とダウンストリーム送信を統括するサービス。
// バッチ同期は厳密に直列で実行される（ブラウザコンテキストは同時に1つしか
// 存在できないため、並行化しても先に進めない）。
type Syncer struct {
	extractor TokenExtractor
	store     ProfileStore
	pusher    Pusher
	settings  *config.Settings
	logger    *slog.Logger
	metrics   metrics.MetricsCollector

	mu            sync.Mutex
	totalSyncs    int
	totalErrors   int
	lastBatchTime *time.Time
}

// NewSyncer はSyncerを生成する。
func NewSyncer(extractor TokenExtractor, store ProfileStore, pusher Pusher, settings *config.Settings, logger *slog.Logger, collector metrics.MetricsCollector) *Syncer {
	return &Syncer{
		extractor: extractor,
		store:     store,
		pusher:    pusher,
		settings:  settings,
		logger:    logger,
		metrics:   collector,
	}
}

// SyncProfile は1つのProfileを同期する。トークンを抽出し、見つかった場合のみ
// ダウンストリームへ送信する。結果はProfileレコードへ永続化される。
// 失敗はエラーではなく結果として返る。
func (s *Syncer) SyncProfile(ctx context.Context, profileID string) *SyncResult {
	start := time.Now()

	profile, err := s.store.FindByID(ctx, profileID)
	if err != nil || profile == nil {
		if err != nil {
			s.logger.Error("Profileの取得に失敗しました",
				slog.String("profile_id", profileID),
				slog.String("error", err.Error()),
			)
		}
		return &SyncResult{
			ProfileID: profileID,
			Success:   false,
			Message:   "profile not found",
		}
	}

	extract := s.extractor.ExtractToken(ctx, profileID)
	if !extract.Found {
		s.metrics.RecordExtractFailure(profile.Name)
		return s.recordFailure(ctx, profile, "no token")
	}

	push := s.pusher.Push(ctx, s.settings.SyncTargetURL(), s.settings.ConnectionToken(), extract.Token)
	if push.StatusCode != 0 {
		s.metrics.RecordPushStatus(push.StatusCode)
	}

	if !push.Success {
		return s.recordFailure(ctx, profile, push.Reason)
	}

	action := push.Action
	if action == "" {
		action = "token_updated"
	}

	result := "success: " + action
	now := time.Now()
	syncCount := profile.SyncCount + 1
	update := &model.ProfileUpdate{
		LastSyncAt:     &now,
		LastSyncResult: &result,
		SyncCount:      &syncCount,
	}

	// ダウンストリームのメッセージにアカウントが含まれる場合のみ上書きする
	if email := parseEmail(push.Message); email != "" {
		update.Email = &email
	}

	if err := s.store.Update(ctx, profile.ID, update); err != nil {
		s.logger.Error("同期結果の保存に失敗しました",
			slog.String("profile_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	s.totalSyncs++
	s.mu.Unlock()

	s.metrics.RecordSyncSuccess(profile.Name)
	s.metrics.RecordSyncLatency(time.Since(start))

	s.logger.Info("Profileの同期に成功しました",
		slog.String("profile_name", profile.Name),
		slog.String("action", action),
	)
	return &SyncResult{
		ProfileID:   profile.ID,
		ProfileName: profile.Name,
		Success:     true,
		Message:     result,
	}
}

// SyncAll はすべての有効なProfileを直列に同期する。
// 接続トークンが未設定の場合は抽出を一切行わず即座に失敗を返す
// （すべての送信が失敗する状態で高コストなブラウザ操作を繰り返さない）。
func (s *Syncer) SyncAll(ctx context.Context) *BatchResult {
	if s.settings.ConnectionToken() == "" {
		s.logger.Warn("接続トークンが未設定のためバッチ同期をスキップします")
		return &BatchResult{
			Success: false,
			Message: "接続トークンが設定されていません",
			Results: []*SyncResult{},
		}
	}

	profiles, err := s.store.ListActive(ctx)
	if err != nil {
		s.logger.Error("Profile一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return &BatchResult{
			Success: false,
			Message: "Profile一覧の取得に失敗しました",
			Results: []*SyncResult{},
		}
	}

	s.logger.Info("バッチ同期を開始します", slog.Int("total", len(profiles)))

	batch := &BatchResult{
		Success: true,
		Total:   len(profiles),
		Results: make([]*SyncResult, 0, len(profiles)),
	}
	for _, p := range profiles {
		r := s.SyncProfile(ctx, p.ID)
		batch.Results = append(batch.Results, r)
		if r.Success {
			batch.SuccessCount++
		} else {
			batch.ErrorCount++
		}
	}

	now := time.Now()
	s.mu.Lock()
	s.lastBatchTime = &now
	s.mu.Unlock()

	s.metrics.RecordBatchRun(batch.Total, batch.SuccessCount)

	s.logger.Info("バッチ同期が完了しました",
		slog.Int("total", batch.Total),
		slog.Int("success", batch.SuccessCount),
		slog.Int("error", batch.ErrorCount),
	)
	return batch
}

// Status はSyncerの累積状態と現在の同期設定を返す。
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.settings.Snapshot()
	return SyncStatus{
		TotalSyncs:             s.totalSyncs,
		TotalErrors:            s.totalErrors,
		LastBatchTime:          s.lastBatchTime,
		SyncTargetURL:          snapshot.SyncTargetURL,
		HasConnectionToken:     snapshot.ConnectionToken != "",
		RefreshIntervalMinutes: snapshot.RefreshIntervalMinutes,
	}
}

// recordFailure は失敗結果をProfileレコードへ永続化し、失敗のSyncResultを返す。
func (s *Syncer) recordFailure(ctx context.Context, profile *model.Profile, reason string) *SyncResult {
	result := "failed: " + reason
	now := time.Now()
	errorCount := profile.ErrorCount + 1

	if err := s.store.Update(ctx, profile.ID, &model.ProfileUpdate{
		LastSyncAt:     &now,
		LastSyncResult: &result,
		ErrorCount:     &errorCount,
	}); err != nil {
		s.logger.Error("同期結果の保存に失敗しました",
			slog.String("profile_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	s.totalErrors++
	s.mu.Unlock()

	s.metrics.RecordSyncFailure(profile.Name, reason)

	s.logger.Warn("Profileの同期に失敗しました",
		slog.String("profile_name", profile.Name),
		slog.String("reason", reason),
	)
	return &SyncResult{
		ProfileID:   profile.ID,
		ProfileName: profile.Name,
		Success:     false,
		Message:     result,
	}
}

// parseEmail はダウンストリームのメッセージからアカウントのメールアドレスを
// 取り出す。メッセージは "Token updated for user@example.com" の形式を想定し、
// 最後の " for " 以降をアドレスとして扱う。該当部分がない場合は空文字列。
func parseEmail(message string) string {
	idx := strings.LastIndex(message, " for ")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(message[idx+len(" for "):])
}
