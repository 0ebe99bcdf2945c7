package auth

import (
	"testing"
	"time"
)

func TestLogin_Success(t *testing.T) {
	s := NewService(ServiceConfig{AdminPassword: "correct-password"})

	token, err := s.Login("correct-password")
	if err != nil {
		t.Fatalf("ログインに失敗しました: %v", err)
	}
	if token == "" {
		t.Fatal("トークンが発行されるべきです")
	}
	if !s.Verify(token) {
		t.Error("発行されたトークンは有効であるべきです")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	s := NewService(ServiceConfig{AdminPassword: "correct-password"})

	if _, err := s.Login("wrong-password"); err == nil {
		t.Error("誤ったパスワードのログインは失敗するべきです")
	}
	if s.SessionCount() != 0 {
		t.Error("失敗したログインでセッションが発行されるべきではありません")
	}
}

func TestLogin_EmptyAdminPassword(t *testing.T) {
	s := NewService(ServiceConfig{AdminPassword: ""})

	if _, err := s.Login(""); err == nil {
		t.Error("管理者パスワード未設定の場合ログインは失敗するべきです")
	}
}

func TestVerify_UnknownToken(t *testing.T) {
	s := NewService(ServiceConfig{AdminPassword: "pw"})

	if s.Verify("unknown-token") {
		t.Error("未知のトークンは無効であるべきです")
	}
	if s.Verify("") {
		t.Error("空のトークンは無効であるべきです")
	}
}

func TestVerify_ExpiredSession(t *testing.T) {
	s := NewService(ServiceConfig{
		AdminPassword: "pw",
		SessionTTL:    time.Millisecond,
	})

	token, err := s.Login("pw")
	if err != nil {
		t.Fatalf("ログインに失敗しました: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if s.Verify(token) {
		t.Error("期限切れのセッションは無効であるべきです")
	}
	if s.SessionCount() != 0 {
		t.Error("期限切れのセッションは削除されるべきです")
	}
}

func TestVerify_ZeroTTLNeverExpires(t *testing.T) {
	s := NewService(ServiceConfig{AdminPassword: "pw", SessionTTL: 0})

	token, err := s.Login("pw")
	if err != nil {
		t.Fatalf("ログインに失敗しました: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if !s.Verify(token) {
		t.Error("TTL=0のセッションは失効しないべきです")
	}
}

func TestLogout(t *testing.T) {
	s := NewService(ServiceConfig{AdminPassword: "pw"})

	token, err := s.Login("pw")
	if err != nil {
		t.Fatalf("ログインに失敗しました: %v", err)
	}

	s.Logout(token)

	if s.Verify(token) {
		t.Error("ログアウト後のトークンは無効であるべきです")
	}

	// 存在しないトークンのログアウトもエラーとならない
	s.Logout("unknown")
	s.Logout("")
}

func TestLogin_IssuesDistinctTokens(t *testing.T) {
	s := NewService(ServiceConfig{AdminPassword: "pw"})

	t1, _ := s.Login("pw")
	t2, _ := s.Login("pw")

	if t1 == t2 {
		t.Error("ログインごとに異なるトークンが発行されるべきです")
	}
	if s.SessionCount() != 2 {
		t.Errorf("セッション数が期待値と異なります: got=%d", s.SessionCount())
	}
}
