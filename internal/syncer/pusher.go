package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Pusher はダウンストリームへのトークン送信を抽象化する。
type Pusher interface {
	Push(ctx context.Context, targetURL, connectionToken, sessionToken string) *PushResult
}

// PushResult はダウンストリーム送信の結果。
// 失敗時はReasonに理由（"HTTP <code>" またはトランスポートエラー）が入る。
type PushResult struct {
	Success    bool
	StatusCode int
	Action     string
	Message    string
	Reason     string
}

// pushRequest はダウンストリームAPIへのリクエストボディ。
type pushRequest struct {
	SessionToken string `json:"session_token"`
}

// pushResponse はダウンストリームAPIのレスポンスボディ。
type pushResponse struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// HTTPPusher はHTTP経由でダウンストリームへトークンを送信する。
type HTTPPusher struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPPusher はHTTPPusherを生成する。timeoutはリクエスト全体の上限時間。
func NewHTTPPusher(timeout time.Duration, logger *slog.Logger) *HTTPPusher {
	return &HTTPPusher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Push はセッショントークンをダウンストリームの更新エンドポイントへ送信する。
// 失敗はエラーではなく結果として返る（バッチは個別の失敗で停止しない）。
// 接続トークンが未設定の場合はリクエストを送らず失敗を返す。
func (p *HTTPPusher) Push(ctx context.Context, targetURL, connectionToken, sessionToken string) *PushResult {
	if connectionToken == "" {
		p.logger.Warn("接続トークンが未設定のため送信をスキップします")
		return &PushResult{Success: false, Reason: "no connection token"}
	}

	endpoint := strings.TrimRight(targetURL, "/") + "/api/plugin/update-token"

	body, err := json.Marshal(pushRequest{SessionToken: sessionToken})
	if err != nil {
		return &PushResult{Success: false, Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &PushResult{Success: false, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+connectionToken)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error("ダウンストリームへの送信に失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &PushResult{Success: false, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("ダウンストリームがエラーを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("status_code", resp.StatusCode),
		)
		return &PushResult{
			Success:    false,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	// レスポンスボディの解析失敗は致命的ではない。送信自体は成功している。
	var pr pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		p.logger.Warn("レスポンスボディの解析に失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
	}

	return &PushResult{
		Success:    true,
		StatusCode: resp.StatusCode,
		Action:     pr.Action,
		Message:    pr.Message,
	}
}
