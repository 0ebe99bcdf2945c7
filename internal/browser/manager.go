package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/tokenman/internal/model"
	"github.com/hitoshi/tokenman/internal/proxy"
)

// ProfileStore はManagerが必要とするProfile永続化のインターフェース。
// repository.ProfileRepositoryの部分集合として定義する。
type ProfileStore interface {
	// FindByID は指定IDのProfileを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	// ListAll は全Profileを返す。
	ListAll(ctx context.Context) ([]*model.Profile, error)
	// Update は指定IDのProfileを部分更新する。
	Update(ctx context.Context, id string, update *model.ProfileUpdate) error
}

// ManagerConfig はManagerの動作設定。
type ManagerConfig struct {
	// ProfilesDir は全Profileの永続ストレージディレクトリのルート。
	ProfilesDir string

	// Headless はログイン用コンテキストを表示なしで起動するかどうか。
	// 通常はfalse（VNC経由で対話的にログインする）。
	// トークン抽出用の一時コンテキストは設定に関わらず常にheadlessで起動する。
	Headless bool

	// LoginURL はログイン用コンテキストの初期遷移先。
	LoginURL string

	// TargetURL はトークン抽出時の遷移先。
	TargetURL string

	// TargetOrigin はCookie読み取りのスコープとなるオリジン（例: "https://labs.google"）。
	TargetOrigin string

	// SessionCookieName はセッショントークンを保持するCookie名。
	// ログイン判定にも使用する。
	SessionCookieName string

	// NavigationTimeout はページ遷移（ネットワークアイドル待機を含む）の上限時間。
	NavigationTimeout time.Duration

	// SettleDelay は遷移完了後、Cookie読み取り前の待機時間。
	SettleDelay time.Duration
}

// 操作結果の理由コード
const (
	ReasonProfileNotFound = "profile_not_found"
	ReasonLaunchFailed    = "launch_failed"
	ReasonNotActive       = "not_active"
	ReasonNoStorage       = "no_storage"
	ReasonTokenNotFound   = "token_not_found"
	ReasonExtractFailed   = "extract_failed"
)

// LaunchResult はLaunchForLoginの結果。
type LaunchResult struct {
	Success bool
	Reason  string
}

// CloseResult はCloseBrowserの結果。
type CloseResult struct {
	Success    bool
	IsLoggedIn bool
	Reason     string
}

// ExtractResult はExtractTokenの結果。
// Foundがfalseの場合、Reasonに失敗理由コードが入る。
type ExtractResult struct {
	Token  string
	Found  bool
	Reason string
}

// CheckLoginResult はCheckLoginの結果。
// Sourceは判定の情報源を示す。
type CheckLoginResult struct {
	IsLoggedIn bool
	Source     string
}

// CheckLoginの判定元
const (
	CheckSourceActiveBrowser = "active_browser"
	CheckSourceExtracted     = "extracted"
)

// IsolationReport はProfile隔離検証の結果。
type IsolationReport struct {
	ProfileName string
	ProfileDir  string
	DirExists   bool
	IsIsolated  bool
	SharedWith  []string
}

// Status はManagerの現在状態のスナップショット。
type Status struct {
	Running          bool
	ActiveProfileID  string
	HasActiveBrowser bool
	ProfilesDir      string
}

// staleLockFiles はChromiumが異常終了した際にProfileディレクトリに残る
// シングルインスタンスロックの残骸。次回起動前に除去する。
var staleLockFiles = []string{"SingletonLock", "SingletonCookie", "SingletonSocket"}

// Manager はブラウザコンテキストのライフサイクルを管理する。
//
// 不変条件: システム全体でアクティブなコンテキストは最大1つであり、
// その所有ProfileはactiveProfileIDと常に一致する。
// 状態を変更するすべての操作は単一の排他ロックを操作の全期間保持する。
// 自動化の失敗はManagerの外へエラーとして伝播せず、ログに記録した上で
// 不在（absent）の結果に変換される。
type Manager struct {
	mu     sync.Mutex
	engine Engine
	store  ProfileStore
	logger *slog.Logger
	cfg    ManagerConfig

	// targetHost はTargetOriginのホスト部。ページが対象ドメイン上に
	// あるかどうかの判定に使用する。
	targetHost string

	active          Context
	activeProfileID string
}

// NewManager はManagerを生成する。
func NewManager(engine Engine, store ProfileStore, logger *slog.Logger, cfg ManagerConfig) *Manager {
	targetHost := cfg.TargetOrigin
	if u, err := url.Parse(cfg.TargetOrigin); err == nil && u.Host != "" {
		targetHost = u.Host
	}

	return &Manager{
		engine:     engine,
		store:      store,
		logger:     logger,
		cfg:        cfg,
		targetHost: targetHost,
	}
}

// Start はエンジンを起動し、Profileストレージのルートディレクトリを作成する。冪等。
func (m *Manager) Start() error {
	if err := m.engine.Start(); err != nil {
		return fmt.Errorf("ブラウザエンジンの起動に失敗しました: %w", err)
	}
	if err := os.MkdirAll(m.cfg.ProfilesDir, 0o755); err != nil {
		return fmt.Errorf("Profileディレクトリの作成に失敗しました: %w", err)
	}

	m.logger.Info("ブラウザエンジンを起動しました",
		slog.String("profiles_dir", m.cfg.ProfilesDir),
	)
	return nil
}

// Stop はアクティブなコンテキストを閉じ、エンジンを停止する。
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeActiveLocked()

	if err := m.engine.Stop(); err != nil {
		return fmt.Errorf("ブラウザエンジンの停止に失敗しました: %w", err)
	}

	m.logger.Info("ブラウザエンジンを停止しました")
	return nil
}

// LaunchForLogin は対話的ログイン用の表示ありコンテキストを起動する。
//
// どのProfileが所有しているかに関わらず、現在アクティブなコンテキストを
// 無条件に閉じてから起動する（起動は常に既存コンテキストに優先する）。
// 成功時、コンテキストは対話的ログインのため開いたまま維持される。
// 失敗は例外として伝播せず、Success=falseの結果として返る。
func (m *Manager) LaunchForLogin(ctx context.Context, profileID string) LaunchResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeActiveLocked()

	profile, err := m.store.FindByID(ctx, profileID)
	if err != nil || profile == nil {
		if err != nil {
			m.logger.Error("Profileの取得に失敗しました",
				slog.String("profile_id", profileID),
				slog.String("error", err.Error()),
			)
		}
		return LaunchResult{Success: false, Reason: ReasonProfileNotFound}
	}

	dir := m.profileDir(profileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.logger.Error("ストレージディレクトリの作成に失敗しました",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
		return LaunchResult{Success: false, Reason: ReasonLaunchFailed}
	}
	m.clearStaleLocks(dir)

	bctx, err := m.engine.Launch(LaunchOptions{
		UserDataDir: dir,
		Headless:    m.cfg.Headless,
		Proxy:       m.resolveProxy(profile),
	})
	if err != nil {
		m.logger.Error("ブラウザの起動に失敗しました",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
		return LaunchResult{Success: false, Reason: ReasonLaunchFailed}
	}

	page, err := bctx.ActivePage()
	if err == nil {
		err = page.Goto(m.cfg.LoginURL, m.cfg.NavigationTimeout)
	}
	if err != nil {
		m.logger.Error("ログインページへの遷移に失敗しました",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
		if closeErr := bctx.Close(); closeErr != nil {
			m.logger.Warn("コンテキストのクローズに失敗しました",
				slog.String("error", closeErr.Error()),
			)
		}
		return LaunchResult{Success: false, Reason: ReasonLaunchFailed}
	}

	m.active = bctx
	m.activeProfileID = profileID

	m.logger.Info("ログイン用ブラウザを起動しました",
		slog.String("profile_name", profile.Name),
		slog.String("profile_dir", dir),
	)
	return LaunchResult{Success: true}
}

// CloseBrowser はアクティブなコンテキストを閉じる。
// profileIDがアクティブなProfileと一致しない場合は何もせず失敗を返す。
// クローズ前に対象オリジンのCookieを走査してログイン状態を判定・永続化する。
func (m *Manager) CloseBrowser(ctx context.Context, profileID string) CloseResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeProfileID != profileID || m.active == nil {
		return CloseResult{Success: false, Reason: ReasonNotActive}
	}

	// ログイン判定は最善努力。Cookie読み取りに失敗してもクローズは続行する。
	isLoggedIn := false
	cookies, err := m.active.Cookies(m.cfg.TargetOrigin)
	if err != nil {
		m.logger.Warn("クローズ前のCookie読み取りに失敗しました",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
	} else {
		for _, c := range cookies {
			if c.Name == m.cfg.SessionCookieName {
				isLoggedIn = true
				break
			}
		}
	}

	if err := m.store.Update(ctx, profileID, &model.ProfileUpdate{IsLoggedIn: &isLoggedIn}); err != nil {
		m.logger.Error("ログイン状態の保存に失敗しました",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
	}

	m.closeActiveLocked()

	m.logger.Info("ブラウザを閉じました",
		slog.String("profile_id", profileID),
		slog.Bool("is_logged_in", isLoggedIn),
	)
	return CloseResult{Success: true, IsLoggedIn: isLoggedIn}
}

// ExtractToken は指定Profileのセッショントークンを抽出する。
//
// アクティブなコンテキストが当該Profileのものであればそこから抽出する
// （進行中の対話的ログインを維持するため、コンテキストは閉じない）。
// そうでなく永続ストレージディレクトリが存在する場合は、一時的な
// headlessコンテキストを起動して抽出し、返る前に必ず閉じる。
// 一時コンテキストはアクティブコンテキストとして公開されない。
// ストレージディレクトリが存在しない場合はエンジンに一切触れず不在を返す
// （一度もログインしていないProfileに対して起動を試みない）。
func (m *Manager) ExtractToken(ctx context.Context, profileID string) ExtractResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, err := m.store.FindByID(ctx, profileID)
	if err != nil || profile == nil {
		if err != nil {
			m.logger.Error("Profileの取得に失敗しました",
				slog.String("profile_id", profileID),
				slog.String("error", err.Error()),
			)
		}
		return ExtractResult{Found: false, Reason: ReasonProfileNotFound}
	}

	// アクティブなコンテキストからのインプレース抽出
	if m.activeProfileID == profileID && m.active != nil {
		m.logger.Info("実行中のブラウザからトークンを抽出します",
			slog.String("profile_name", profile.Name),
		)
		return m.extractFrom(ctx, m.active, profile)
	}

	dir := m.profileDir(profileID)
	if !m.HasStorage(profileID) {
		m.logger.Info("ストレージディレクトリが存在しないため抽出をスキップします",
			slog.String("profile_name", profile.Name),
		)
		return ExtractResult{Found: false, Reason: ReasonNoStorage}
	}

	// 一時headlessコンテキストによる抽出
	m.logger.Info("トークン抽出用のheadlessブラウザを起動します",
		slog.String("profile_name", profile.Name),
	)
	m.clearStaleLocks(dir)

	bctx, err := m.engine.Launch(LaunchOptions{
		UserDataDir: dir,
		Headless:    true,
		Proxy:       m.resolveProxy(profile),
	})
	if err != nil {
		m.logger.Error("抽出用ブラウザの起動に失敗しました",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
		return ExtractResult{Found: false, Reason: ReasonLaunchFailed}
	}

	result := m.extractFrom(ctx, bctx, profile)

	// 一時コンテキストは結果に関わらず必ず閉じる
	if err := bctx.Close(); err != nil {
		m.logger.Warn("抽出用ブラウザのクローズに失敗しました",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
	}

	return result
}

// extractFrom はコンテキストから対象Cookieを走査してトークンを取り出す。
// 自動化の失敗は1回で断念し、ログへ記録して不在の結果に変換する。
// 呼び出し側でロックを保持すること。
func (m *Manager) extractFrom(ctx context.Context, bctx Context, profile *model.Profile) ExtractResult {
	page, err := bctx.ActivePage()
	if err != nil {
		m.logger.Error("ページの取得に失敗しました",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
		return ExtractResult{Found: false, Reason: ReasonExtractFailed}
	}

	// 対象ドメイン上にいない場合のみ遷移する
	if !strings.Contains(page.URL(), m.targetHost) {
		if err := page.Goto(m.cfg.TargetURL, m.cfg.NavigationTimeout); err != nil {
			m.logger.Error("対象ページへの遷移に失敗しました",
				slog.String("profile_name", profile.Name),
				slog.String("error", err.Error()),
			)
			return ExtractResult{Found: false, Reason: ReasonExtractFailed}
		}

		// Cookie確定までの短い待機
		select {
		case <-time.After(m.cfg.SettleDelay):
		case <-ctx.Done():
			return ExtractResult{Found: false, Reason: ReasonExtractFailed}
		}
	}

	cookies, err := bctx.Cookies(m.cfg.TargetOrigin)
	if err != nil {
		m.logger.Error("Cookieの読み取りに失敗しました",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
		return ExtractResult{Found: false, Reason: ReasonExtractFailed}
	}

	var token string
	for _, c := range cookies {
		if c.Name == m.cfg.SessionCookieName {
			token = c.Value
			break
		}
	}

	if token == "" {
		m.logger.Warn("セッションCookieが見つかりませんでした",
			slog.String("profile_name", profile.Name),
		)
		loggedIn := false
		if err := m.store.Update(ctx, profile.ID, &model.ProfileUpdate{IsLoggedIn: &loggedIn}); err != nil {
			m.logger.Error("ログイン状態の保存に失敗しました",
				slog.String("profile_id", profile.ID),
				slog.String("error", err.Error()),
			)
		}
		return ExtractResult{Found: false, Reason: ReasonTokenNotFound}
	}

	// トークン本体は永続化せず、マスク済みプレビューとタイムスタンプのみ保存する
	loggedIn := true
	preview := maskToken(token)
	now := time.Now()
	if err := m.store.Update(ctx, profile.ID, &model.ProfileUpdate{
		IsLoggedIn:       &loggedIn,
		LastTokenPreview: &preview,
		LastTokenAt:      &now,
	}); err != nil {
		m.logger.Error("トークンプレビューの保存に失敗しました",
			slog.String("profile_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Info("トークンの抽出に成功しました",
		slog.String("profile_name", profile.Name),
	)
	return ExtractResult{Token: token, Found: true}
}

// CheckLogin は指定Profileのログイン状態を判定し、永続化する。
//
// 当該Profileがアクティブなコンテキストを所有している場合は、その
// コンテキストのCookieをその場で走査するだけで判定する。ページ遷移は
// 一切行わない（ログイン途中のページを別ページへ飛ばさないため）。
// それ以外の場合はトークン抽出と同じ経路にフォールバックする。
// アクティブコンテキストのCookie読み取りに失敗した場合も抽出経路へ
// フォールバックする。
func (m *Manager) CheckLogin(ctx context.Context, profileID string) CheckLoginResult {
	if result, ok := m.checkLoginActive(ctx, profileID); ok {
		return result
	}

	extract := m.ExtractToken(ctx, profileID)
	return CheckLoginResult{IsLoggedIn: extract.Found, Source: CheckSourceExtracted}
}

// checkLoginActive はアクティブコンテキストのCookie走査によるログイン判定を
// 試みる。当該Profileがアクティブでない、またはCookie読み取りに失敗した
// 場合はok=falseを返し、呼び出し側が抽出経路へフォールバックする。
func (m *Manager) checkLoginActive(ctx context.Context, profileID string) (CheckLoginResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeProfileID != profileID || m.active == nil {
		return CheckLoginResult{}, false
	}

	cookies, err := m.active.Cookies(m.cfg.TargetOrigin)
	if err != nil {
		m.logger.Warn("アクティブコンテキストのCookie読み取りに失敗しました",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		return CheckLoginResult{}, false
	}

	isLoggedIn := false
	for _, c := range cookies {
		if c.Name == m.cfg.SessionCookieName {
			isLoggedIn = true
			break
		}
	}

	if err := m.store.Update(ctx, profileID, &model.ProfileUpdate{IsLoggedIn: &isLoggedIn}); err != nil {
		m.logger.Error("ログイン状態の保存に失敗しました",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Info("アクティブなブラウザからログイン状態を判定しました",
		slog.String("profile_id", profileID),
		slog.Bool("is_logged_in", isLoggedIn),
	)
	return CheckLoginResult{IsLoggedIn: isLoggedIn, Source: CheckSourceActiveBrowser}, true
}

// VerifyIsolation は指定Profileのストレージディレクトリが他のProfileと
// 共有されていないことを検証する。キー関数の衝突に対する防御的チェック。
func (m *Manager) VerifyIsolation(ctx context.Context, profileID string) (*IsolationReport, error) {
	profile, err := m.store.FindByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("Profileの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError(profileID)
	}

	dir := m.profileDir(profileID)
	dirExists := m.HasStorage(profileID)

	all, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("Profile一覧の取得に失敗しました: %w", err)
	}

	var sharedWith []string
	for _, p := range all {
		if p.ID == profileID {
			continue
		}
		if m.profileDir(p.ID) == dir {
			sharedWith = append(sharedWith, p.Name)
		}
	}

	return &IsolationReport{
		ProfileName: profile.Name,
		ProfileDir:  dir,
		DirExists:   dirExists,
		IsIsolated:  dirExists && len(sharedWith) == 0,
		SharedWith:  sharedWith,
	}, nil
}

// DeleteProfileData は指定Profileのストレージディレクトリを不可逆に削除する。
// ディレクトリが存在しない場合は何もしない（冪等）。
// 当該Profileのコンテキストがアクティブな場合は先に閉じる。
func (m *Manager) DeleteProfileData(ctx context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeProfileID == profileID {
		m.closeActiveLocked()
	}

	dir := m.profileDir(profileID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("ストレージディレクトリの削除に失敗しました: %w", err)
	}

	m.logger.Info("Profileのストレージを削除しました",
		slog.String("profile_id", profileID),
		slog.String("profile_dir", dir),
	)
	return nil
}

// ActiveProfileID はアクティブなコンテキストを所有するProfileのIDを返す。
// アクティブなコンテキストが存在しない場合は空文字列。
func (m *Manager) ActiveProfileID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeProfileID
}

// Status はManagerの現在状態のスナップショットを返す。
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:          m.engine.Running(),
		ActiveProfileID:  m.activeProfileID,
		HasActiveBrowser: m.active != nil,
		ProfilesDir:      m.cfg.ProfilesDir,
	}
}

// HasStorage は指定Profileの永続ストレージディレクトリが存在するかを返す。
func (m *Manager) HasStorage(profileID string) bool {
	_, err := os.Stat(m.profileDir(profileID))
	return err == nil
}

// closeActiveLocked はアクティブなコンテキストを閉じ、ポインタをクリアする。
// 呼び出し側でロックを保持すること。クローズの失敗はログに記録して続行する。
func (m *Manager) closeActiveLocked() {
	if m.active == nil {
		return
	}

	if err := m.active.Close(); err != nil {
		m.logger.Warn("アクティブコンテキストのクローズに失敗しました",
			slog.String("profile_id", m.activeProfileID),
			slog.String("error", err.Error()),
		)
	}
	m.active = nil
	m.activeProfileID = ""
}

// profileDir はProfile IDから永続ストレージディレクトリのパスを決定的に導出する。
func (m *Manager) profileDir(profileID string) string {
	return filepath.Join(m.cfg.ProfilesDir, "profile-"+profileID)
}

// resolveProxy はProfileのプロキシ設定を解析する。
// プロキシが無効または解析に失敗した場合はnilを返す（プロキシなしで起動する）。
func (m *Manager) resolveProxy(profile *model.Profile) *proxy.Descriptor {
	if !profile.ProxyEnabled || profile.ProxyURL == "" {
		return nil
	}

	d, err := proxy.Parse(profile.ProxyURL)
	if err != nil {
		m.logger.Warn("プロキシの解析に失敗したためプロキシなしで起動します",
			slog.String("profile_name", profile.Name),
			slog.String("error", err.Error()),
		)
		return nil
	}

	m.logger.Info("プロキシを使用します",
		slog.String("profile_name", profile.Name),
		slog.String("proxy_server", d.Server()),
	)
	return d
}

// clearStaleLocks は前回の異常終了で残ったシングルインスタンスロックの残骸を除去する。
func (m *Manager) clearStaleLocks(dir string) {
	for _, name := range staleLockFiles {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("ロックファイルの除去に失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// maskToken はトークンのマスク済みプレビューを生成する。
// 先頭8文字と末尾4文字のみを残し、全体が短い場合はすべてマスクする。
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:8] + "..." + token[len(token)-4:]
}
