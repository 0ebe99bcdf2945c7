// Package browser は隔離されたブラウザコンテキストのライフサイクル管理と
// セッショントークンの抽出を提供する。
//
// システム全体で同時に存在できるブラウザコンテキストは最大1つであり、
// 状態を変更するすべての操作は単一の排他ロックで直列化される。
package browser

import (
	"time"

	"github.com/hitoshi/tokenman/internal/proxy"
)

// Cookie はブラウザコンテキストから読み取ったCookieを表す。
type Cookie struct {
	Name  string
	Value string
}

// Page は開いているページに対する最小限の操作を定義する。
type Page interface {
	// URL は現在のページURLを返す。
	URL() string

	// Goto は指定URLへ遷移し、ネットワークアイドルまで待機する。
	// timeoutは遷移全体の上限時間。
	Goto(url string, timeout time.Duration) error
}

// Context は隔離されたブラウザコンテキストに対する最小限の操作を定義する。
type Context interface {
	// ActivePage は既存のページを返す。ページが存在しない場合は新規作成する。
	ActivePage() (Page, error)

	// Cookies は指定オリジンにスコープされたCookieを返す。
	Cookies(origin string) ([]Cookie, error)

	// Close はコンテキストを閉じ、プロセスを終了する。
	Close() error
}

// LaunchOptions はコンテキスト起動時のオプション。
type LaunchOptions struct {
	// UserDataDir はProfileの永続ストレージディレクトリ。
	UserDataDir string

	// Headless は表示なしモードで起動するかどうか。
	Headless bool

	// Proxy は任意のプロキシ設定。nilの場合はプロキシなし。
	Proxy *proxy.Descriptor
}

// Engine はブラウザ自動化エンジンの抽象。
// 本番実装はPlaywright（playwrightEngine）、テストではモックに差し替える。
type Engine interface {
	// Start はエンジンを起動する。複数回呼んでも安全（冪等）。
	Start() error

	// Stop はエンジンを停止する。
	Stop() error

	// Running はエンジンが起動済みかどうかを返す。
	Running() bool

	// Launch は永続ストレージディレクトリに紐づくコンテキストを起動する。
	Launch(opts LaunchOptions) (Context, error)
}
