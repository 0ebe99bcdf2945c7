package syncer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tokenman/internal/browser"
	"github.com/hitoshi/tokenman/internal/config"
	"github.com/hitoshi/tokenman/internal/metrics"
	"github.com/hitoshi/tokenman/internal/model"
)

type fakeExtractor struct {
	results map[string]browser.ExtractResult
	calls   []string
}

func (f *fakeExtractor) ExtractToken(_ context.Context, profileID string) browser.ExtractResult {
	f.calls = append(f.calls, profileID)
	if r, ok := f.results[profileID]; ok {
		return r
	}
	return browser.ExtractResult{Found: false, Reason: browser.ReasonTokenNotFound}
}

type updateCall struct {
	id     string
	update *model.ProfileUpdate
}

type fakeStore struct {
	profiles map[string]*model.Profile
	order    []string
	updates  []updateCall
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.Profile, error) {
	return s.profiles[id], nil
}

func (s *fakeStore) ListActive(_ context.Context) ([]*model.Profile, error) {
	var out []*model.Profile
	for _, id := range s.order {
		if p := s.profiles[id]; p != nil && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, id string, update *model.ProfileUpdate) error {
	s.updates = append(s.updates, updateCall{id: id, update: update})
	return nil
}

func (s *fakeStore) lastUpdateFor(t *testing.T, id string) *model.ProfileUpdate {
	t.Helper()
	for i := len(s.updates) - 1; i >= 0; i-- {
		if s.updates[i].id == id {
			return s.updates[i].update
		}
	}
	t.Fatalf("Profile %s への更新が記録されていません", id)
	return nil
}

type fakePusher struct {
	results map[string]*PushResult
	calls   []string
}

func (p *fakePusher) Push(_ context.Context, _, _, sessionToken string) *PushResult {
	p.calls = append(p.calls, sessionToken)
	if r, ok := p.results[sessionToken]; ok {
		return r
	}
	return &PushResult{Success: true, StatusCode: 200, Action: "token_updated"}
}

func newTestSettings(t *testing.T, connectionToken string) *config.Settings {
	t.Helper()
	s, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if connectionToken != "" {
		if err := s.Update(config.SettingsUpdate{ConnectionToken: &connectionToken}); err != nil {
			t.Fatalf("設定の更新に失敗しました: %v", err)
		}
	}
	return s
}

func newTestSyncer(t *testing.T, extractor *fakeExtractor, store *fakeStore, pusher *fakePusher, settings *config.Settings) *Syncer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	collector := metrics.NewCollector(prometheus.NewRegistry())
	return NewSyncer(extractor, store, pusher, settings, logger, collector)
}

func activeProfile(id, name string) *model.Profile {
	return &model.Profile{ID: id, Name: name, IsActive: true, IsLoggedIn: true}
}

func TestSyncProfile_NotFound(t *testing.T) {
	extractor := &fakeExtractor{}
	store := &fakeStore{profiles: map[string]*model.Profile{}}
	pusher := &fakePusher{}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	result := s.SyncProfile(context.Background(), "missing")

	if result.Success {
		t.Error("存在しないProfileの同期は失敗するべきです")
	}
	if len(extractor.calls) != 0 {
		t.Error("存在しないProfileに対して抽出を行うべきではありません")
	}
}

func TestSyncProfile_TokenAbsentSkipsPush(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Found: false, Reason: browser.ReasonTokenNotFound},
	}}
	store := &fakeStore{profiles: map[string]*model.Profile{
		"p1": activeProfile("p1", "alpha"),
	}}
	pusher := &fakePusher{}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	result := s.SyncProfile(context.Background(), "p1")

	if result.Success {
		t.Error("トークン不在の同期は失敗するべきです")
	}
	if result.Message != "failed: no token" {
		t.Errorf("結果メッセージが期待値と異なります: got=%s", result.Message)
	}
	if len(pusher.calls) != 0 {
		t.Error("トークン不在時に送信を行うべきではありません")
	}

	update := store.lastUpdateFor(t, "p1")
	if update.ErrorCount == nil || *update.ErrorCount != 1 {
		t.Error("ErrorCountが加算されるべきです")
	}
	if update.LastSyncAt == nil {
		t.Error("LastSyncAtが記録されるべきです")
	}
	if update.LastSyncResult == nil || *update.LastSyncResult != "failed: no token" {
		t.Error("LastSyncResultが記録されるべきです")
	}
}

func TestSyncProfile_SuccessRecordsResultAndEmail(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Token: "tok-1", Found: true},
	}}
	store := &fakeStore{profiles: map[string]*model.Profile{
		"p1": activeProfile("p1", "alpha"),
	}}
	store.profiles["p1"].SyncCount = 4
	pusher := &fakePusher{results: map[string]*PushResult{
		"tok-1": {Success: true, StatusCode: 200, Action: "token_updated", Message: "Token updated for user@example.com"},
	}}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	result := s.SyncProfile(context.Background(), "p1")

	if !result.Success {
		t.Fatalf("同期が成功するべきです: message=%s", result.Message)
	}
	if result.Message != "success: token_updated" {
		t.Errorf("結果メッセージが期待値と異なります: got=%s", result.Message)
	}

	update := store.lastUpdateFor(t, "p1")
	if update.SyncCount == nil || *update.SyncCount != 5 {
		t.Error("SyncCountが加算されるべきです")
	}
	if update.Email == nil || *update.Email != "user@example.com" {
		t.Error("メッセージから抽出されたメールアドレスが記録されるべきです")
	}
}

func TestSyncProfile_EmailKeptWhenMessageLacksMarker(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Token: "tok-1", Found: true},
	}}
	store := &fakeStore{profiles: map[string]*model.Profile{
		"p1": activeProfile("p1", "alpha"),
	}}
	pusher := &fakePusher{results: map[string]*PushResult{
		"tok-1": {Success: true, StatusCode: 200, Action: "token_updated", Message: "updated"},
	}}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	if r := s.SyncProfile(context.Background(), "p1"); !r.Success {
		t.Fatalf("同期が成功するべきです: message=%s", r.Message)
	}

	update := store.lastUpdateFor(t, "p1")
	if update.Email != nil {
		t.Error("メールアドレスが抽出できない場合は既存の値を維持するべきです")
	}
}

func TestSyncProfile_PushFailureRecorded(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Token: "tok-1", Found: true},
	}}
	store := &fakeStore{profiles: map[string]*model.Profile{
		"p1": activeProfile("p1", "alpha"),
	}}
	pusher := &fakePusher{results: map[string]*PushResult{
		"tok-1": {Success: false, StatusCode: 502, Reason: "HTTP 502"},
	}}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	result := s.SyncProfile(context.Background(), "p1")

	if result.Success {
		t.Error("送信失敗の同期は失敗するべきです")
	}
	if result.Message != "failed: HTTP 502" {
		t.Errorf("結果メッセージが期待値と異なります: got=%s", result.Message)
	}

	update := store.lastUpdateFor(t, "p1")
	if update.ErrorCount == nil || *update.ErrorCount != 1 {
		t.Error("ErrorCountが加算されるべきです")
	}
}

func TestSyncAll_NoConnectionTokenFastFails(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Token: "tok-1", Found: true},
	}}
	store := &fakeStore{
		profiles: map[string]*model.Profile{"p1": activeProfile("p1", "alpha")},
		order:    []string{"p1"},
	}
	pusher := &fakePusher{}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, ""))

	batch := s.SyncAll(context.Background())

	if batch.Success {
		t.Error("接続トークン未設定のバッチは失敗するべきです")
	}
	if len(extractor.calls) != 0 {
		t.Error("接続トークン未設定時に抽出を行うべきではありません")
	}
}

func TestSyncAll_DirectSyncProfileStillExtractsWithoutToken(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Token: "tok-1", Found: true},
	}}
	store := &fakeStore{profiles: map[string]*model.Profile{
		"p1": activeProfile("p1", "alpha"),
	}}
	pusher := &fakePusher{}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, ""))

	// 手動の単発同期は接続トークンがなくても抽出・送信を試みる
	s.SyncProfile(context.Background(), "p1")

	if len(extractor.calls) != 1 {
		t.Error("単発同期では抽出が行われるべきです")
	}
	if len(pusher.calls) != 1 {
		t.Error("単発同期では送信が試みられるべきです")
	}
}

func TestSyncAll_MixedBatch(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Token: "tok-1", Found: true},
		"p2": {Found: false, Reason: browser.ReasonNoStorage},
		"p3": {Token: "tok-3", Found: true},
	}}
	store := &fakeStore{
		profiles: map[string]*model.Profile{
			"p1": activeProfile("p1", "alpha"),
			"p2": activeProfile("p2", "beta"),
			"p3": activeProfile("p3", "gamma"),
		},
		order: []string{"p1", "p2", "p3"},
	}
	pusher := &fakePusher{results: map[string]*PushResult{
		"tok-1": {Success: true, StatusCode: 200, Action: "token_updated"},
		"tok-3": {Success: false, StatusCode: 500, Reason: "HTTP 500"},
	}}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	batch := s.SyncAll(context.Background())

	if batch.Total != 3 {
		t.Errorf("Totalが期待値と異なります: got=%d", batch.Total)
	}
	if batch.SuccessCount != 1 {
		t.Errorf("SuccessCountが期待値と異なります: got=%d", batch.SuccessCount)
	}
	if batch.ErrorCount != 2 {
		t.Errorf("ErrorCountが期待値と異なります: got=%d", batch.ErrorCount)
	}
	if len(batch.Results) != 3 {
		t.Errorf("Resultsの件数が期待値と異なります: got=%d", len(batch.Results))
	}

	status := s.Status()
	if status.TotalSyncs != 1 {
		t.Errorf("累積の成功数が期待値と異なります: got=%d", status.TotalSyncs)
	}
	if status.TotalErrors != 2 {
		t.Errorf("累積の失敗数が期待値と異なります: got=%d", status.TotalErrors)
	}
	if status.LastBatchTime == nil {
		t.Error("最終バッチ時刻が記録されるべきです")
	}
}

func TestSyncAll_SkipsInactiveProfiles(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]browser.ExtractResult{
		"p1": {Token: "tok-1", Found: true},
	}}
	inactive := activeProfile("p2", "beta")
	inactive.IsActive = false
	store := &fakeStore{
		profiles: map[string]*model.Profile{
			"p1": activeProfile("p1", "alpha"),
			"p2": inactive,
		},
		order: []string{"p1", "p2"},
	}
	pusher := &fakePusher{}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	batch := s.SyncAll(context.Background())

	if batch.Total != 1 {
		t.Errorf("無効なProfileはバッチに含まれるべきではありません: total=%d", batch.Total)
	}
}

func TestStatus_ReflectsSettings(t *testing.T) {
	extractor := &fakeExtractor{}
	store := &fakeStore{profiles: map[string]*model.Profile{}}
	pusher := &fakePusher{}
	s := newTestSyncer(t, extractor, store, pusher, newTestSettings(t, "secret"))

	status := s.Status()

	if !status.HasConnectionToken {
		t.Error("接続トークン設定済みの場合HasConnectionToken=trueとなるべきです")
	}
	if status.SyncTargetURL == "" {
		t.Error("同期先URLが返るべきです")
	}
	if status.RefreshIntervalMinutes <= 0 {
		t.Errorf("同期間隔が返るべきです: got=%d", status.RefreshIntervalMinutes)
	}
}

func TestParseEmail(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{name: "標準形式", message: "Token updated for user@example.com", want: "user@example.com"},
		{name: "マーカーなし", message: "updated", want: ""},
		{name: "空文字列", message: "", want: ""},
		{name: "末尾の空白", message: "Token updated for user@example.com ", want: "user@example.com"},
		{name: "複数のfor", message: "for x updated for user@example.com", want: "user@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseEmail(tt.message); got != tt.want {
				t.Errorf("期待値 %q, 実際 %q", tt.want, got)
			}
		})
	}
}
