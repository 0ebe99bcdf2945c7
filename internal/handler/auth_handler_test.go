package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogin_IssuesToken(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{password: "pw"})

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"password": "pw"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp loginResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Token != "issued-token" {
		t.Errorf("トークンが期待値と異なります: got=%s", resp.Token)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{password: "pw"})

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"password": "wrong"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{password: "pw"})

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLogout_DestroysSession(t *testing.T) {
	service := &fakeAuthService{password: "pw"}
	h := NewAuthHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if len(service.loggedOut) != 1 || service.loggedOut[0] != "tok-1" {
		t.Error("セッションの破棄が呼ばれるべきです")
	}
}

func TestCheck_Authenticated(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{valid: map[string]bool{"tok-1": true}})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w := httptest.NewRecorder()
	h.Check(w, req)

	var resp authCheckResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Authenticated {
		t.Error("有効なトークンはauthenticated=trueとなるべきです")
	}
}

func TestCheck_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{valid: map[string]bool{}})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	w := httptest.NewRecorder()
	h.Check(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("未認証でも200を返すべきです: status=%d", w.Code)
	}

	var resp authCheckResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Authenticated {
		t.Error("トークンなしはauthenticated=falseとなるべきです")
	}
}
