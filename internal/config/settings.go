package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Settings は実行中に管理UIから変更可能な同期設定を保持する。
// 変更はJSONファイルへ永続化され、再起動後も維持される。
// 環境変数が設定されている場合は起動時に永続化された値より優先する。
type Settings struct {
	mu sync.RWMutex

	path string

	syncTargetURL   string
	connectionToken string
	refreshInterval time.Duration
}

// persistedSettings は永続化ファイルのJSONフォーマット。
type persistedSettings struct {
	SyncTargetURL          string `json:"sync_target_url"`
	ConnectionToken        string `json:"connection_token"`
	RefreshIntervalMinutes int    `json:"refresh_interval_minutes"`
}

// SettingsUpdate はSettingsの部分更新を表す。nilのフィールドは変更しない。
type SettingsUpdate struct {
	SyncTargetURL          *string
	ConnectionToken        *string
	RefreshIntervalMinutes *int
}

// SettingsSnapshot はSettingsのある時点の値のコピー。
type SettingsSnapshot struct {
	SyncTargetURL          string
	ConnectionToken        string
	RefreshIntervalMinutes int
}

// LoadSettings は永続化ファイルと環境変数からSettingsを構築する。
// 優先順位: 環境変数 > 永続化ファイル > デフォルト値。
// ファイルが存在しない場合はデフォルト値で開始する。
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{
		path:            path,
		syncTargetURL:   "http://host.docker.internal:8000",
		connectionToken: "",
		refreshInterval: 60 * time.Minute,
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var p persistedSettings
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
		}
		if p.SyncTargetURL != "" {
			s.syncTargetURL = p.SyncTargetURL
		}
		s.connectionToken = p.ConnectionToken
		if p.RefreshIntervalMinutes > 0 {
			s.refreshInterval = time.Duration(p.RefreshIntervalMinutes) * time.Minute
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}

	// 環境変数による上書き
	if v := os.Getenv("SYNC_TARGET_URL"); v != "" {
		s.syncTargetURL = v
	}
	if v := os.Getenv("CONNECTION_TOKEN"); v != "" {
		s.connectionToken = v
	}
	if v := getEnvInt("REFRESH_INTERVAL_MINUTES", 0); v > 0 {
		s.refreshInterval = time.Duration(v) * time.Minute
	}

	return s, nil
}

// SyncTargetURL は同期先のベースURLを返す。
func (s *Settings) SyncTargetURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncTargetURL
}

// ConnectionToken は同期先への認証トークンを返す。未設定の場合は空文字列。
func (s *Settings) ConnectionToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionToken
}

// RefreshInterval は定期同期の実行間隔を返す。
func (s *Settings) RefreshInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshInterval
}

// Snapshot は現在の設定値のコピーを返す。
func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsSnapshot{
		SyncTargetURL:          s.syncTargetURL,
		ConnectionToken:        s.connectionToken,
		RefreshIntervalMinutes: int(s.refreshInterval / time.Minute),
	}
}

// Update は部分更新を適用し、永続化ファイルへ保存する。
func (s *Settings) Update(u SettingsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.SyncTargetURL != nil && *u.SyncTargetURL != "" {
		s.syncTargetURL = *u.SyncTargetURL
	}
	if u.ConnectionToken != nil && *u.ConnectionToken != "" {
		s.connectionToken = *u.ConnectionToken
	}
	if u.RefreshIntervalMinutes != nil && *u.RefreshIntervalMinutes > 0 {
		s.refreshInterval = time.Duration(*u.RefreshIntervalMinutes) * time.Minute
	}

	return s.save()
}

// save は現在の値を永続化ファイルへ書き込む。呼び出し側でロックを保持すること。
func (s *Settings) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("設定ディレクトリの作成に失敗しました: %w", err)
	}

	p := persistedSettings{
		SyncTargetURL:          s.syncTargetURL,
		ConnectionToken:        s.connectionToken,
		RefreshIntervalMinutes: int(s.refreshInterval / time.Minute),
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("設定のシリアライズに失敗しました: %w", err)
	}

	// 接続トークンを含むため所有者のみ読み書き可能とする
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("設定ファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}
