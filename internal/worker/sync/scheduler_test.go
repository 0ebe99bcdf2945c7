package sync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/tokenman/internal/config"
	"github.com/hitoshi/tokenman/internal/model"
	"github.com/hitoshi/tokenman/internal/syncer"
)

// --- モック定義 ---

// mockSyncService はBatchSyncServiceのテスト用モック。
type mockSyncService struct {
	syncAllFunc func(ctx context.Context) *syncer.BatchResult
	calls       int
}

func (m *mockSyncService) SyncAll(ctx context.Context) *syncer.BatchResult {
	m.calls++
	if m.syncAllFunc != nil {
		return m.syncAllFunc(ctx)
	}
	return &syncer.BatchResult{Success: true}
}

// mockProfileLister はProfileListerのテスト用モック。
type mockProfileLister struct {
	listLoggedInFunc func(ctx context.Context) ([]*model.Profile, error)
}

func (m *mockProfileLister) ListLoggedIn(ctx context.Context) ([]*model.Profile, error) {
	if m.listLoggedInFunc != nil {
		return m.listLoggedInFunc(ctx)
	}
	return nil, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestSettings(t *testing.T, connectionToken string) *config.Settings {
	t.Helper()
	settings, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("設定の読み込みに失敗: %v", err)
	}
	if connectionToken != "" {
		if err := settings.Update(config.SettingsUpdate{ConnectionToken: &connectionToken}); err != nil {
			t.Fatalf("設定の更新に失敗: %v", err)
		}
	}
	return settings
}

func loggedInProfiles(ids ...string) []*model.Profile {
	var out []*model.Profile
	for _, id := range ids {
		out = append(out, &model.Profile{ID: id, IsActive: true, IsLoggedIn: true})
	}
	return out
}

// --- テスト ---

func TestRunOnce_ExecutesBatchSync(t *testing.T) {
	var buf bytes.Buffer
	service := &mockSyncService{
		syncAllFunc: func(ctx context.Context) *syncer.BatchResult {
			return &syncer.BatchResult{Success: true, Total: 2, SuccessCount: 2}
		},
	}
	store := &mockProfileLister{
		listLoggedInFunc: func(ctx context.Context) ([]*model.Profile, error) {
			return loggedInProfiles("p1", "p2"), nil
		},
	}

	s := NewScheduler(service, store, newTestSettings(t, "conn-token"), newTestLogger(&buf))
	s.RunOnce(context.Background())

	if service.calls != 1 {
		t.Errorf("SyncAllの呼び出し回数 = %d, want 1", service.calls)
	}
}

func TestRunOnce_SkipsWithoutConnectionToken(t *testing.T) {
	var buf bytes.Buffer
	service := &mockSyncService{}
	store := &mockProfileLister{
		listLoggedInFunc: func(ctx context.Context) ([]*model.Profile, error) {
			t.Error("接続トークン未設定時はProfileの取得も行われるべきではありません")
			return nil, nil
		},
	}

	s := NewScheduler(service, store, newTestSettings(t, ""), newTestLogger(&buf))
	s.RunOnce(context.Background())

	if service.calls != 0 {
		t.Errorf("接続トークン未設定時はSyncAllが呼ばれるべきではありません: calls = %d", service.calls)
	}
	if !strings.Contains(buf.String(), "スキップ") {
		t.Errorf("スキップのログが記録されていない: %s", buf.String())
	}
}

func TestRunOnce_SkipsWithoutLoggedInProfiles(t *testing.T) {
	var buf bytes.Buffer
	service := &mockSyncService{}
	store := &mockProfileLister{
		listLoggedInFunc: func(ctx context.Context) ([]*model.Profile, error) {
			return nil, nil
		},
	}

	s := NewScheduler(service, store, newTestSettings(t, "conn-token"), newTestLogger(&buf))
	s.RunOnce(context.Background())

	if service.calls != 0 {
		t.Errorf("同期対象なしの場合はSyncAllが呼ばれるべきではありません: calls = %d", service.calls)
	}
}

func TestRunOnce_ListErrorDoesNotSync(t *testing.T) {
	var buf bytes.Buffer
	service := &mockSyncService{}
	store := &mockProfileLister{
		listLoggedInFunc: func(ctx context.Context) ([]*model.Profile, error) {
			return nil, errors.New("db connection failed")
		},
	}

	s := NewScheduler(service, store, newTestSettings(t, "conn-token"), newTestLogger(&buf))
	s.RunOnce(context.Background())

	if service.calls != 0 {
		t.Errorf("Profile取得エラー時はSyncAllが呼ばれるべきではありません: calls = %d", service.calls)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラーログが記録されていない: %s", buf.String())
	}
}

func TestRunOnce_LogsBatchResult(t *testing.T) {
	var buf bytes.Buffer
	service := &mockSyncService{
		syncAllFunc: func(ctx context.Context) *syncer.BatchResult {
			return &syncer.BatchResult{Success: false, Total: 3, SuccessCount: 1, ErrorCount: 2}
		},
	}
	store := &mockProfileLister{
		listLoggedInFunc: func(ctx context.Context) ([]*model.Profile, error) {
			return loggedInProfiles("p1", "p2", "p3"), nil
		},
	}

	s := NewScheduler(service, store, newTestSettings(t, "conn-token"), newTestLogger(&buf))
	s.RunOnce(context.Background())

	logOutput := buf.String()
	if !strings.Contains(logOutput, `"error_count":2`) {
		t.Errorf("ログにバッチ結果が記録されていない: %s", logOutput)
	}
}

func TestStart_DoesNotRunImmediately(t *testing.T) {
	var buf bytes.Buffer
	service := &mockSyncService{}
	store := &mockProfileLister{
		listLoggedInFunc: func(ctx context.Context) ([]*model.Profile, error) {
			return loggedInProfiles("p1"), nil
		},
	}

	// 間隔は最短でも1分なので、起動直後に実行されないことを確認できる
	s := NewScheduler(service, store, newTestSettings(t, "conn-token"), newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後にStartが終了しない")
	}

	if service.calls != 0 {
		t.Errorf("起動直後に同期が実行されるべきではありません: calls = %d", service.calls)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockSyncService{}, &mockProfileLister{}, newTestSettings(t, ""), newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後にStartが終了しない")
	}

	if !strings.Contains(buf.String(), "停止") {
		t.Errorf("停止ログが記録されていない: %s", buf.String())
	}
}
