package handler

import (
	"context"
	"fmt"

	"github.com/hitoshi/tokenman/internal/browser"
	"github.com/hitoshi/tokenman/internal/model"
	"github.com/hitoshi/tokenman/internal/syncer"
)

// fakeStore はProfileStoreInterface/ExternalProfileStoreのテスト実装。
type fakeStore struct {
	profiles map[string]*model.Profile
	updates  map[string]*model.ProfileUpdate
	deleted  []string
}

func newFakeStore(profiles ...*model.Profile) *fakeStore {
	s := &fakeStore{
		profiles: make(map[string]*model.Profile),
		updates:  make(map[string]*model.ProfileUpdate),
	}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.Profile, error) {
	return s.profiles[id], nil
}

func (s *fakeStore) FindByName(_ context.Context, name string) (*model.Profile, error) {
	for _, p := range s.profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*model.Profile, error) {
	for _, p := range s.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListAll(_ context.Context) ([]*model.Profile, error) {
	var out []*model.Profile
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, profile *model.Profile) error {
	s.profiles[profile.ID] = profile
	return nil
}

func (s *fakeStore) Update(_ context.Context, id string, update *model.ProfileUpdate) error {
	if _, ok := s.profiles[id]; !ok {
		return fmt.Errorf("profile not found: %s", id)
	}
	s.updates[id] = update
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	delete(s.profiles, id)
	s.deleted = append(s.deleted, id)
	return nil
}

// fakeManager はBrowserServiceのテスト実装。
type fakeManager struct {
	launchResult     browser.LaunchResult
	closeResult      browser.CloseResult
	extractResult    browser.ExtractResult
	checkLoginResult browser.CheckLoginResult
	isolationReport  *browser.IsolationReport
	isolationErr     error
	activeProfileID  string
	status           browser.Status

	launchCalls     []string
	closeCalls      []string
	extractCalls    []string
	checkLoginCalls []string
	deleteCalls     []string
}

func (m *fakeManager) LaunchForLogin(_ context.Context, id string) browser.LaunchResult {
	m.launchCalls = append(m.launchCalls, id)
	return m.launchResult
}

func (m *fakeManager) CloseBrowser(_ context.Context, id string) browser.CloseResult {
	m.closeCalls = append(m.closeCalls, id)
	return m.closeResult
}

func (m *fakeManager) ExtractToken(_ context.Context, id string) browser.ExtractResult {
	m.extractCalls = append(m.extractCalls, id)
	return m.extractResult
}

func (m *fakeManager) CheckLogin(_ context.Context, id string) browser.CheckLoginResult {
	m.checkLoginCalls = append(m.checkLoginCalls, id)
	return m.checkLoginResult
}

func (m *fakeManager) VerifyIsolation(_ context.Context, _ string) (*browser.IsolationReport, error) {
	return m.isolationReport, m.isolationErr
}

func (m *fakeManager) DeleteProfileData(_ context.Context, id string) error {
	m.deleteCalls = append(m.deleteCalls, id)
	return nil
}

func (m *fakeManager) ActiveProfileID() string { return m.activeProfileID }
func (m *fakeManager) Status() browser.Status  { return m.status }

// fakeSanitizer は入力をそのまま返すサニタイザー。
type fakeSanitizer struct{}

func (fakeSanitizer) Sanitize(input string) string { return input }

// fakeSyncService はSyncServiceInterfaceのテスト実装。
type fakeSyncService struct {
	syncResult  *syncer.SyncResult
	batchResult *syncer.BatchResult
	status      syncer.SyncStatus

	syncCalls    []string
	syncAllCalls int
}

func (s *fakeSyncService) SyncProfile(_ context.Context, id string) *syncer.SyncResult {
	s.syncCalls = append(s.syncCalls, id)
	return s.syncResult
}

func (s *fakeSyncService) SyncAll(_ context.Context) *syncer.BatchResult {
	s.syncAllCalls++
	return s.batchResult
}

func (s *fakeSyncService) Status() syncer.SyncStatus { return s.status }

// fakeAuthService はAuthServiceInterfaceのテスト実装。
type fakeAuthService struct {
	password string
	valid    map[string]bool
	loggedOut []string
}

func (a *fakeAuthService) Login(password string) (string, error) {
	if password != a.password {
		return "", fmt.Errorf("パスワードが一致しません")
	}
	return "issued-token", nil
}

func (a *fakeAuthService) Verify(token string) bool { return a.valid[token] }

func (a *fakeAuthService) Logout(token string) {
	a.loggedOut = append(a.loggedOut, token)
}
