package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/hitoshi/tokenman/internal/model"
)

// NewAPIKeyMiddleware はX-API-Keyヘッダーで外部APIを保護するミドルウェアを返す。
// キーの比較は定数時間で行う。expectedKeyが空の場合、外部APIは無効となり
// すべてのリクエストに401を返す。
func NewAPIKeyMiddleware(expectedKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedKey == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
