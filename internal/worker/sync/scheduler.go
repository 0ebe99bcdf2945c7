// Package sync はトークン同期の定期実行スケジューラを提供する。
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/tokenman/internal/config"
	"github.com/hitoshi/tokenman/internal/model"
	"github.com/hitoshi/tokenman/internal/syncer"
)

// BatchSyncService はバッチ同期の実行インターフェース。
type BatchSyncService interface {
	// SyncAll は同期対象の全Profileを順次同期する。
	SyncAll(ctx context.Context) *syncer.BatchResult
}

// ProfileLister はスケジューラが同期対象の有無を判定するためのインターフェース。
type ProfileLister interface {
	// ListLoggedIn はログイン済みかつ有効化されたProfileを返す。
	ListLoggedIn(ctx context.Context) ([]*model.Profile, error)
}

// Scheduler は設定された間隔でバッチ同期を起動する。
// 接続トークン未設定・同期対象なしのサイクルはスキップし、
// ブラウザ操作を一切行わない。間隔は設定変更後の次サイクルから反映される。
type Scheduler struct {
	syncService BatchSyncService
	store       ProfileLister
	settings    *config.Settings
	logger      *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(
	syncService BatchSyncService,
	store ProfileLister,
	settings *config.Settings,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		syncService: syncService,
		store:       store,
		settings:    settings,
		logger:      logger,
	}
}

// Start はスケジューラを起動する。起動直後には実行せず、
// 最初の間隔が経過してから1回目のサイクルを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.settings.RefreshInterval()
	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-timer.C:
			s.RunOnce(ctx)
			// 設定変更を次サイクルから反映する
			timer.Reset(s.settings.RefreshInterval())
		}
	}
}

// RunOnce は同期サイクルを1回実行する。
// 接続トークンが未設定、または同期対象のProfileが存在しない場合は
// 何もせずスキップする。
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.settings.ConnectionToken() == "" {
		s.logger.Info("接続トークンが未設定のため同期サイクルをスキップします")
		return
	}

	profiles, err := s.store.ListLoggedIn(ctx)
	if err != nil {
		s.logger.Error("同期対象Profileの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(profiles) == 0 {
		s.logger.Info("ログイン済みのProfileがないため同期サイクルをスキップします")
		return
	}

	start := time.Now()
	result := s.syncService.SyncAll(ctx)
	duration := time.Since(start)

	s.logger.Info("同期サイクルが完了しました",
		slog.Int("total", result.Total),
		slog.Int("success_count", result.SuccessCount),
		slog.Int("error_count", result.ErrorCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}
