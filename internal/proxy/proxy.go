// Package proxy はプロキシ文字列の解析と検証を提供する。
// ネットワーク疎通の確認は行わず、構文上の検証のみを担当する。
package proxy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Descriptor は解析済みのプロキシ設定を表す。
type Descriptor struct {
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
}

// Server は "scheme://host:port" 形式のサーバー文字列を返す。
func (d *Descriptor) Server() string {
	return fmt.Sprintf("%s://%s:%s", d.Scheme, d.Host, d.Port)
}

// validSchemes はサポートするプロキシプロトコル。
// socks5hはDNS解決をプロキシ経由で行う。
var validSchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// Parse はプロキシ文字列を解析する。以下の形式をサポートする:
//
//   - http://host:port, https://host:port
//   - socks5://host:port, socks5h://host:port
//   - 上記すべての user:pass@host:port 付き形式
//   - スキーム省略の短縮形式 host:port / user:pass@host:port（httpとして扱う）
//
// 空文字列または空白のみの入力にはエラーを返す。
func Parse(raw string) (*Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("プロキシ文字列が空です")
	}

	// スキーム省略の短縮形式はhttpとして扱う
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("プロキシURLの解析に失敗しました: %w", err)
	}

	if !validSchemes[parsed.Scheme] {
		return nil, fmt.Errorf("サポートされていないプロトコルです: %s", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("ホストが指定されていません")
	}
	if parsed.Port() == "" {
		return nil, fmt.Errorf("ポートが指定されていません")
	}

	d := &Descriptor{
		Scheme: parsed.Scheme,
		Host:   parsed.Hostname(),
		Port:   parsed.Port(),
	}
	if parsed.User != nil {
		d.Username = parsed.User.Username()
		d.Password, _ = parsed.User.Password()
	}

	return d, nil
}

// Validate はプロキシ文字列の構文を検証し、人間可読の説明を返す。
// 空文字列は「プロキシなし」として有効と扱う。
func Validate(raw string) (bool, string) {
	if strings.TrimSpace(raw) == "" {
		return true, "プロキシなし"
	}

	d, err := Parse(raw)
	if err != nil {
		return false, err.Error()
	}

	var proto string
	switch d.Scheme {
	case "socks5h":
		proto = "SOCKS5H（リモートDNS）"
	case "socks5":
		proto = "SOCKS5"
	case "https":
		proto = "HTTPS"
	default:
		proto = "HTTP"
	}

	auth := "認証なし"
	if d.Username != "" {
		auth = "認証あり"
	}

	return true, fmt.Sprintf("%s %s", proto, auth)
}

// PlaywrightProxy はDescriptorをPlaywrightのプロキシ設定に変換する。
func PlaywrightProxy(d *Descriptor) *playwright.Proxy {
	if d == nil {
		return nil
	}

	p := &playwright.Proxy{Server: d.Server()}
	if d.Username != "" {
		p.Username = playwright.String(d.Username)
	}
	if d.Password != "" {
		p.Password = playwright.String(d.Password)
	}
	return p
}
