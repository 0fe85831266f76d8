package antigravity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenRequiresLogin(t *testing.T) {
	m := NewAuthManager(t.TempDir())
	_, err := m.Token(context.Background())
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
}

func TestTokenReturnsValidWithoutRefresh(t *testing.T) {
	m := newTestAuth(t)
	tok, err := m.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "token-1" {
		t.Errorf("token = %q", tok)
	}
}

func TestTokenRefreshesExpired(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		if r.FormValue("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		if r.FormValue("refresh_token") != "refresh-1" {
			t.Errorf("refresh_token = %q", r.FormValue("refresh_token"))
		}
		w.Write([]byte(`{"access_token":"token-new","expires_in":3600}`))
	}))
	defer srv.Close()

	m := newTestAuth(t)
	m.tokenURL = srv.URL
	m.accounts[m.active].ExpiresAt = 0

	tok, err := m.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "token-new" {
		t.Errorf("token = %q", tok)
	}
	if refreshes.Load() != 1 {
		t.Errorf("refreshed %d times", refreshes.Load())
	}

	// Next call reuses the fresh token.
	if _, err := m.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if refreshes.Load() != 1 {
		t.Errorf("unexpected second refresh")
	}
}

func TestTokenConcurrentSingleRefresh(t *testing.T) {
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"access_token":"token-new","expires_in":3600}`))
	}))
	defer srv.Close()

	m := newTestAuth(t)
	m.tokenURL = srv.URL
	m.accounts[m.active].ExpiresAt = 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Token(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := refreshes.Load(); got != 1 {
		t.Errorf("refreshed %d times, want 1", got)
	}
}

func TestCredentialsExpiredWindow(t *testing.T) {
	now := float64(time.Now().Unix())
	fresh := &Credentials{ExpiresAt: now + 3600}
	if fresh.Expired() {
		t.Error("fresh token reported expired")
	}
	nearExpiry := &Credentials{ExpiresAt: now + 100}
	if !nearExpiry.Expired() {
		t.Error("token inside the 5-minute window should count as expired")
	}
}

func TestSaveFileMode(t *testing.T) {
	dir := t.TempDir()
	m := NewAuthManager(dir)
	m.accounts["a@example.com"] = &Credentials{AccessToken: "t", Email: "a@example.com"}
	m.active = "a@example.com"
	if err := m.save(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, "credentials.json"))
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("credentials mode = %o, want 600", mode)
	}
}

func TestLegacyFormatMigration(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"access_token":"old-token","refresh_token":"old-refresh","expires_at":1700000000,"email":"legacy@example.com"}`
	if err := os.WriteFile(filepath.Join(dir, "credentials.json"), []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewAuthManager(dir)
	if !m.Authenticated() {
		t.Fatal("legacy credentials not loaded")
	}
	if m.Email() != "legacy@example.com" {
		t.Errorf("email = %q", m.Email())
	}

	// The file should now be in the multi-account shape.
	m2 := NewAuthManager(dir)
	if m2.Email() != "legacy@example.com" {
		t.Errorf("migrated file not readable: %q", m2.Email())
	}
}

func TestSwitchAndLogout(t *testing.T) {
	dir := t.TempDir()
	m := NewAuthManager(dir)
	m.accounts["a@example.com"] = &Credentials{AccessToken: "ta"}
	m.accounts["b@example.com"] = &Credentials{AccessToken: "tb"}
	m.active = "a@example.com"
	if err := m.save(); err != nil {
		t.Fatal(err)
	}

	if err := m.Switch("b@example.com"); err != nil {
		t.Fatal(err)
	}
	if m.Email() != "b@example.com" {
		t.Errorf("active = %q", m.Email())
	}
	if err := m.Switch("nobody@example.com"); err == nil {
		t.Error("switching to unknown account should fail")
	}

	// Logging out the active account promotes the remaining one.
	if err := m.Logout(""); err != nil {
		t.Fatal(err)
	}
	if m.Email() != "a@example.com" {
		t.Errorf("active after logout = %q", m.Email())
	}

	// Removing the last account deletes the file.
	if err := m.Logout("*"); err != nil {
		t.Fatal(err)
	}
	if m.Authenticated() {
		t.Error("still authenticated after logout all")
	}
	if _, err := os.Stat(filepath.Join(dir, "credentials.json")); !os.IsNotExist(err) {
		t.Error("credentials file not removed")
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	m := newTestAuth(t)
	m.Invalidate()
	creds, _ := m.ActiveCredentials()
	if !creds.Expired() {
		t.Error("invalidated credentials still valid")
	}
}
