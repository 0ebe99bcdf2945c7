package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/tokenman/internal/browser"
)

func TestLaunch_Success(t *testing.T) {
	store := newFakeStore(profileFixture("p1", "alpha"))
	manager := &fakeManager{launchResult: browser.LaunchResult{Success: true}}
	h := NewBrowserHandler(store, manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/p1/launch", nil), "id", "p1")
	w := httptest.NewRecorder()
	h.Launch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(manager.launchCalls) != 1 {
		t.Error("Managerの起動が呼ばれるべきです")
	}
}

func TestLaunch_DisabledProfile(t *testing.T) {
	profile := profileFixture("p1", "alpha")
	profile.IsActive = false
	store := newFakeStore(profile)
	manager := &fakeManager{}
	h := NewBrowserHandler(store, manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/p1/launch", nil), "id", "p1")
	w := httptest.NewRecorder()
	h.Launch(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if len(manager.launchCalls) != 0 {
		t.Error("無効化されたProfileに対してブラウザを起動すべきではありません")
	}
}

func TestLaunch_NotFound(t *testing.T) {
	h := NewBrowserHandler(newFakeStore(), &fakeManager{})

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/missing/launch", nil), "id", "missing")
	w := httptest.NewRecorder()
	h.Launch(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestLaunch_Failure(t *testing.T) {
	store := newFakeStore(profileFixture("p1", "alpha"))
	manager := &fakeManager{launchResult: browser.LaunchResult{Success: false, Reason: browser.ReasonLaunchFailed}}
	h := NewBrowserHandler(store, manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/p1/launch", nil), "id", "p1")
	w := httptest.NewRecorder()
	h.Launch(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestClose_Success(t *testing.T) {
	manager := &fakeManager{closeResult: browser.CloseResult{Success: true, IsLoggedIn: true}}
	h := NewBrowserHandler(newFakeStore(), manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/p1/close", nil), "id", "p1")
	w := httptest.NewRecorder()
	h.Close(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp closeResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.IsLoggedIn {
		t.Error("is_logged_in=trueとなるべきです")
	}
}

func TestClose_NotActive(t *testing.T) {
	manager := &fakeManager{closeResult: browser.CloseResult{Success: false, Reason: browser.ReasonNotActive}}
	h := NewBrowserHandler(newFakeStore(), manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/p1/close", nil), "id", "p1")
	w := httptest.NewRecorder()
	h.Close(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestExtract_NeverReturnsTokenBody(t *testing.T) {
	manager := &fakeManager{extractResult: browser.ExtractResult{
		Token: "super-secret-session-token-value",
		Found: true,
	}}
	h := NewBrowserHandler(newFakeStore(profileFixture("p1", "alpha")), manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/p1/extract", nil), "id", "p1")
	w := httptest.NewRecorder()
	h.Extract(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp extractResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.Found {
		t.Error("found=trueとなるべきです")
	}
	if resp.TokenLength != len("super-secret-session-token-value") {
		t.Errorf("token_lengthが期待値と異なります: got=%d", resp.TokenLength)
	}

	// レスポンス全体にトークン本体が含まれないこと
	if body := w.Body.String(); len(body) > 0 && containsToken(body, "super-secret-session-token-value") {
		t.Error("管理UIのレスポンスにトークン本体が含まれるべきではありません")
	}
}

func containsToken(body, token string) bool {
	return len(body) >= len(token) && (body == token || indexOf(body, token) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestExtract_ProfileNotFound(t *testing.T) {
	manager := &fakeManager{extractResult: browser.ExtractResult{
		Found:  false,
		Reason: browser.ReasonProfileNotFound,
	}}
	h := NewBrowserHandler(newFakeStore(), manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/missing/extract", nil), "id", "missing")
	w := httptest.NewRecorder()
	h.Extract(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCheckLogin(t *testing.T) {
	manager := &fakeManager{checkLoginResult: browser.CheckLoginResult{
		IsLoggedIn: true,
		Source:     browser.CheckSourceActiveBrowser,
	}}
	h := NewBrowserHandler(newFakeStore(profileFixture("p1", "alpha")), manager)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/profiles/p1/check-login", nil), "id", "p1")
	w := httptest.NewRecorder()
	h.CheckLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(manager.checkLoginCalls) != 1 || manager.checkLoginCalls[0] != "p1" {
		t.Errorf("CheckLogin呼び出しが期待値と異なります: %v", manager.checkLoginCalls)
	}
	if len(manager.extractCalls) != 0 {
		t.Errorf("ハンドラーが直接抽出を呼ぶべきではありません: %v", manager.extractCalls)
	}

	var resp checkLoginResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if !resp.IsLoggedIn {
		t.Error("is_logged_in=trueとなるべきです")
	}
	if resp.Source != browser.CheckSourceActiveBrowser {
		t.Errorf("sourceが期待値と異なります: got=%s", resp.Source)
	}
}
