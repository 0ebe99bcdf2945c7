// Package auth は管理者パスワード認証とセッション管理を提供する。
package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session は発行済みセッションの内部表現。
type session struct {
	token     string
	createdAt time.Time
	expiresAt time.Time // ゼロ値の場合は無期限
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// AdminPassword は管理者ログインのパスワード。
	AdminPassword string
	// SessionTTL はセッションの有効期間。0の場合は無期限。
	SessionTTL time.Duration
}

// Service は管理者認証に関するビジネスロジックを提供する。
// セッションはプロセス内メモリに保持され、再起動で失効する。
type Service struct {
	config ServiceConfig

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewService はServiceを生成する。
func NewService(config ServiceConfig) *Service {
	return &Service{
		config:   config,
		sessions: make(map[string]*session),
	}
}

// Login はパスワードを検証し、成功した場合に不透明なセッショントークンを発行する。
// パスワードの比較は定数時間で行う。
func (s *Service) Login(password string) (string, error) {
	if s.config.AdminPassword == "" {
		return "", fmt.Errorf("管理者パスワードが設定されていません")
	}

	if subtle.ConstantTimeCompare([]byte(password), []byte(s.config.AdminPassword)) != 1 {
		slog.Warn("管理者ログインに失敗しました")
		return "", fmt.Errorf("パスワードが一致しません")
	}

	token := uuid.New().String()
	now := time.Now()
	sess := &session{token: token, createdAt: now}
	if s.config.SessionTTL > 0 {
		sess.expiresAt = now.Add(s.config.SessionTTL)
	}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()

	slog.Info("管理者がログインしました")
	return token, nil
}

// Verify はセッショントークンの有効性を検証する。
// 期限切れのセッションは検証時に削除される。
func (s *Service) Verify(token string) bool {
	if token == "" {
		return false
	}

	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	if !sess.expiresAt.IsZero() && time.Now().After(sess.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return false
	}

	return true
}

// Logout はセッションを破棄する。存在しないトークンの破棄もエラーとしない。
func (s *Service) Logout(token string) {
	if token == "" {
		return
	}

	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()

	slog.Info("管理者がログアウトしました")
}

// SessionCount は有効なセッション数を返す。
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
