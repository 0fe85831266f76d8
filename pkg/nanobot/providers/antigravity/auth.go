// Package antigravity – auth.go
// OAuth PKCE authentication and the multi-account credential store.
//
// Storage format (credentials.json):
//
//	{
//	  "active": "user@example.com",
//	  "accounts": {
//	    "user@example.com": { ...credential fields... }
//	  }
//	}
//
// The legacy single-credential flat format is migrated on first load.
package antigravity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrAuthRequired is returned when no account is logged in.
var ErrAuthRequired = errors.New("not authenticated; run 'nanobot auth login' first")

// Credentials are the stored OAuth tokens for a single account.
type Credentials struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    float64 `json:"expires_at"` // unix seconds
	Email        string  `json:"email,omitempty"`
}

// Expired reports whether the access token is past (or within five minutes
// of) its expiry.
func (c *Credentials) Expired() bool {
	return float64(time.Now().Unix()) >= c.ExpiresAt-300
}

type credentialsFile struct {
	Active   string                  `json:"active"`
	Accounts map[string]*Credentials `json:"accounts"`
}

// AuthManager owns the credential file and the token lifecycle for all
// stored accounts.
type AuthManager struct {
	credsFile string

	mu       sync.Mutex
	accounts map[string]*Credentials
	active   string

	httpClient *http.Client

	// Overridable in tests.
	tokenURL    string
	userinfoURL string
	authURL     string
	redirectURI string
	openBrowser func(url string) error
}

// NewAuthManager loads credentials from dir (default ~/.nanobot/antigravity).
func NewAuthManager(dir string) *AuthManager {
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".nanobot", "antigravity")
	}
	m := &AuthManager{
		credsFile:   filepath.Join(dir, "credentials.json"),
		accounts:    make(map[string]*Credentials),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tokenURL:    TokenURL,
		userinfoURL: UserinfoURL,
		authURL:     AuthURL,
		redirectURI: OAuthRedirectURI,
		openBrowser: openBrowser,
	}
	m.load()
	return m
}

// ── Persistence ────────────────────────────────────────────────────────

func (m *AuthManager) load() {
	data, err := os.ReadFile(m.credsFile)
	if err != nil {
		return
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err == nil && file.Accounts != nil {
		m.accounts = file.Accounts
		m.active = file.Active
		return
	}

	// Legacy flat format: a single credential at the top level.
	var legacy Credentials
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.AccessToken != "" {
		email := legacy.Email
		if email == "" {
			email = "unknown"
		}
		m.accounts[email] = &legacy
		m.active = email
		_ = m.save()
	}
}

// save writes the multi-account file with mode 0600 via temp+rename.
// Caller must hold m.mu.
func (m *AuthManager) save() error {
	if err := os.MkdirAll(filepath.Dir(m.credsFile), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(credentialsFile{Active: m.active, Accounts: m.accounts}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	tmp := m.credsFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return os.Rename(tmp, m.credsFile)
}

// ── Accessors ──────────────────────────────────────────────────────────

// Authenticated reports whether an active account with credentials exists.
func (m *AuthManager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[m.active]
	return m.active != "" && ok
}

// Email returns the active account email, or "".
func (m *AuthManager) Email() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[m.active]; !ok {
		return ""
	}
	return m.active
}

// Accounts returns all stored account emails.
func (m *AuthManager) Accounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.accounts))
	for email := range m.accounts {
		out = append(out, email)
	}
	return out
}

// ActiveCredentials returns a copy of the active account's credentials.
func (m *AuthManager) ActiveCredentials() (Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.accounts[m.active]
	if !ok {
		return Credentials{}, false
	}
	return *creds, true
}

// Switch changes the active account.
func (m *AuthManager) Switch(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[email]; !ok {
		return fmt.Errorf("no stored account %q", email)
	}
	m.active = email
	return m.save()
}

// ── Token lifecycle ────────────────────────────────────────────────────

// Token returns a valid access token for the active account, refreshing it
// when expired. Concurrent callers share a single refresh.
func (m *AuthManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, ok := m.accounts[m.active]
	if !ok {
		return "", ErrAuthRequired
	}
	if !creds.Expired() {
		return creds.AccessToken, nil
	}
	if err := m.refreshLocked(ctx, creds); err != nil {
		return "", err
	}
	return creds.AccessToken, nil
}

// Invalidate marks the active token expired so the next Token call
// refreshes. Used after a 401 from the API.
func (m *AuthManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if creds, ok := m.accounts[m.active]; ok {
		creds.ExpiresAt = 0
	}
}

func (m *AuthManager) refreshLocked(ctx context.Context, creds *Credentials) error {
	if creds.RefreshToken == "" {
		return fmt.Errorf("no refresh token; run 'nanobot auth login' again")
	}

	form := url.Values{
		"client_id":     {ClientID},
		"client_secret": {ClientSecret},
		"refresh_token": {creds.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	var tok tokenResponse
	if err := m.postForm(ctx, m.tokenURL, form, &tok); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	creds.AccessToken = tok.AccessToken
	creds.ExpiresAt = float64(time.Now().Unix()) + tok.expiresIn()
	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	}
	return m.save()
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
}

func (t tokenResponse) expiresIn() float64 {
	if t.ExpiresIn <= 0 {
		return 3600
	}
	return t.ExpiresIn
}

func (m *AuthManager) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return json.Unmarshal(body, out)
}

// ── OAuth PKCE login ───────────────────────────────────────────────────

// Login runs the OAuth PKCE flow: opens the browser, waits up to two
// minutes for the localhost callback, exchanges the code, and stores the
// new account as active.
func (m *AuthManager) Login(ctx context.Context) (Credentials, error) {
	verifier := randomToken(64)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	state := randomToken(32)

	params := url.Values{
		"client_id":             {ClientID},
		"redirect_uri":          {m.redirectURI},
		"response_type":         {"code"},
		"scope":                 {strings.Join(Scopes, " ")},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"access_type":           {"offline"},
		"prompt":                {"consent"},
	}
	authURL := m.authURL + "?" + params.Encode()

	code, err := m.waitForCallback(ctx, authURL, state)
	if err != nil {
		return Credentials{}, err
	}

	form := url.Values{
		"client_id":     {ClientID},
		"client_secret": {ClientSecret},
		"code":          {code},
		"code_verifier": {verifier},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {m.redirectURI},
	}
	var tok tokenResponse
	if err := m.postForm(ctx, m.tokenURL, form, &tok); err != nil {
		return Credentials{}, fmt.Errorf("exchange code: %w", err)
	}

	email := m.fetchEmail(ctx, tok.AccessToken)
	if email == "" {
		email = "unknown"
	}

	creds := Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    float64(time.Now().Unix()) + tok.expiresIn(),
		Email:        email,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[email] = &creds
	m.active = email
	if err := m.save(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// waitForCallback serves a single OAuth redirect on the fixed local port.
func (m *AuthManager) waitForCallback(ctx context.Context, authURL, state string) (string, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", OAuthRedirectPort))
	if err != nil {
		return "", fmt.Errorf("listen on oauth port %d: %w", OAuthRedirectPort, err)
	}
	defer ln.Close()

	type result struct {
		code string
		err  error
	}
	resultCh := make(chan result, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<h1>Authentication failed</h1><p>You can close this tab.</p>")
			resultCh <- result{err: fmt.Errorf("oauth error: %s", q.Get("error"))}
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			resultCh <- result{err: errors.New("oauth state mismatch")}
		default:
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<h1>Authentication successful!</h1><p>You can close this tab and return to the terminal.</p>")
			resultCh <- result{code: q.Get("code")}
		}
	})}
	go srv.Serve(ln)
	defer srv.Close()

	if err := m.openBrowser(authURL); err != nil {
		fmt.Fprintf(os.Stderr, "Open this URL to authenticate:\n%s\n", authURL)
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		if res.code == "" {
			return "", errors.New("no authorization code received")
		}
		return res.code, nil
	case <-time.After(2 * time.Minute):
		return "", errors.New("oauth callback timed out after 2 minutes")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *AuthManager) fetchEmail(ctx context.Context, accessToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userinfoURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ""
	}
	return info.Email
}

// Logout removes stored credentials. Empty email removes the active
// account; "*" removes all. The file is deleted once no accounts remain.
func (m *AuthManager) Logout(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch email {
	case "*":
		m.accounts = make(map[string]*Credentials)
		m.active = ""
	case "":
		if m.active != "" {
			delete(m.accounts, m.active)
			m.active = firstKey(m.accounts)
		}
	default:
		delete(m.accounts, email)
		if m.active == email {
			m.active = firstKey(m.accounts)
		}
	}

	if len(m.accounts) > 0 {
		return m.save()
	}
	if err := os.Remove(m.credsFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ── Helpers ────────────────────────────────────────────────────────────

func firstKey(m map[string]*Credentials) string {
	for k := range m {
		return k
	}
	return ""
}

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func openBrowser(u string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", u).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", u).Start()
	default:
		return exec.Command("xdg-open", u).Start()
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
