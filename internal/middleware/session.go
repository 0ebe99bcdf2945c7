// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/tokenman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionTokenContextKey はリクエストコンテキストにセッショントークンを格納するためのキー。
var sessionTokenContextKey = contextKey("session_token")

// SessionVerifier はセッショントークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionVerifier interface {
	Verify(token string) bool
}

// NewSessionMiddleware はAuthorization: Bearerヘッダーから管理者セッション
// トークンを読み取り、有効性を検証するミドルウェアを返す。
// 検証済みトークンをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || !verifier.Verify(token) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), sessionTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionTokenFromContext はリクエストコンテキストからセッショントークンを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionTokenFromContext(ctx context.Context) (string, error) {
	token, ok := ctx.Value(sessionTokenContextKey).(string)
	if !ok || token == "" {
		return "", fmt.Errorf("セッショントークンがコンテキストに存在しません")
	}
	return token, nil
}

// ContextWithSessionToken はコンテキストにセッショントークンを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenContextKey, token)
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// 形式が不正な場合は空文字列を返す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
