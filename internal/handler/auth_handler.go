package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/tokenman/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login はパスワードを検証し、セッショントークンを発行する。
	Login(password string) (string, error)
	// Verify はセッショントークンの有効性を検証する。
	Verify(token string) bool
	// Logout はセッションを破棄する。
	Logout(token string)
}

// AuthHandler は管理者認証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Password string `json:"password"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Token string `json:"token"`
}

// authCheckResponse は認証状態確認のレスポンス。
type authCheckResponse struct {
	Authenticated bool `json:"authenticated"`
}

// Login は管理者ログインを処理する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	token, err := h.service.Login(req.Password)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// Logout はセッションを破棄する。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(bearerFromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}

// Check は現在のセッショントークンの有効性を返す。
// 未認証でも200で返る（UIの初期表示判定用）。
// GET /api/auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	token := bearerFromRequest(r)
	writeJSON(w, http.StatusOK, authCheckResponse{
		Authenticated: token != "" && h.service.Verify(token),
	})
}

// bearerFromRequest はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
