package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/hitoshi/tokenman/internal/proxy"
)

// 固定のブラウザフィンガープリント設定。
// 全Profileで同一の値を使用し、自動化検出を避ける。
const (
	viewportWidth  = 1280
	viewportHeight = 720
	browserLocale  = "en-US"
	browserTZ      = "America/New_York"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// launchArgs はChromium起動時の追加フラグ。自動化検出の回避を含む。
var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-infobars",
	fmt.Sprintf("--window-size=%d,%d", viewportWidth, viewportHeight),
}

// playwrightEngine はPlaywrightを使用したEngineの実装。
type playwrightEngine struct {
	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightEngine はPlaywrightベースのEngineを生成する。
// Startを呼ぶまでエンジンは起動しない。
func NewPlaywrightEngine() Engine {
	return &playwrightEngine{}
}

// Start はPlaywrightドライバをインストールして起動する。冪等。
func (e *playwrightEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw != nil {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("Playwrightのインストールに失敗しました: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("Playwrightの起動に失敗しました: %w", err)
	}

	e.pw = pw
	return nil
}

// Stop はPlaywrightドライバを停止する。
func (e *playwrightEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pw == nil {
		return nil
	}

	if err := e.pw.Stop(); err != nil {
		return fmt.Errorf("Playwrightの停止に失敗しました: %w", err)
	}
	e.pw = nil
	return nil
}

// Running はエンジンが起動済みかどうかを返す。
func (e *playwrightEngine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pw != nil
}

// Launch は永続コンテキストを起動する。
// UserDataDirにより各Profileのcookie・ストレージが完全に隔離される。
func (e *playwrightEngine) Launch(opts LaunchOptions) (Context, error) {
	e.mu.Lock()
	pw := e.pw
	e.mu.Unlock()

	if pw == nil {
		return nil, fmt.Errorf("エンジンが起動していません")
	}

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(opts.Headless),
		Viewport:          &playwright.Size{Width: viewportWidth, Height: viewportHeight},
		Locale:            playwright.String(browserLocale),
		TimezoneId:        playwright.String(browserTZ),
		UserAgent:         playwright.String(userAgent),
		Args:              launchArgs,
		IgnoreDefaultArgs: []string{"--enable-automation"},
	}
	if opts.Proxy != nil {
		launchOpts.Proxy = proxy.PlaywrightProxy(opts.Proxy)
	}

	bc, err := pw.Chromium.LaunchPersistentContext(opts.UserDataDir, launchOpts)
	if err != nil {
		return nil, fmt.Errorf("永続コンテキストの起動に失敗しました: %w", err)
	}

	return &playwrightContext{bc: bc}, nil
}

// playwrightContext はplaywright.BrowserContextをContextに適合させる。
type playwrightContext struct {
	bc playwright.BrowserContext
}

// ActivePage は既存の先頭ページを返す。ページが存在しない場合は新規作成する。
func (c *playwrightContext) ActivePage() (Page, error) {
	pages := c.bc.Pages()
	if len(pages) > 0 {
		return &playwrightPage{page: pages[0]}, nil
	}

	page, err := c.bc.NewPage()
	if err != nil {
		return nil, fmt.Errorf("ページの作成に失敗しました: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

// Cookies は指定オリジンにスコープされたCookieを返す。
func (c *playwrightContext) Cookies(origin string) ([]Cookie, error) {
	raw, err := c.bc.Cookies(origin)
	if err != nil {
		return nil, fmt.Errorf("Cookieの読み取りに失敗しました: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, rc := range raw {
		cookies = append(cookies, Cookie{Name: rc.Name, Value: rc.Value})
	}
	return cookies, nil
}

// Close はコンテキストを閉じる。
func (c *playwrightContext) Close() error {
	return c.bc.Close()
}

// playwrightPage はplaywright.PageをPageに適合させる。
type playwrightPage struct {
	page playwright.Page
}

// URL は現在のページURLを返す。
func (p *playwrightPage) URL() string {
	return p.page.URL()
}

// Goto は指定URLへ遷移し、ネットワークアイドルまで待機する。
func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("ページ遷移に失敗しました: %w", err)
	}
	return nil
}
