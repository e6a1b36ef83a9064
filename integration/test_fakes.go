package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	adminUsername = "judge"
	adminPassword = "hunter2"
	googleUser    = "contestant@nucpa.example"
	googleSession = "sessionid"
)

type account struct {
	username string
	admin    bool
}

// FakeBackend imitates the registration API: token issue, rotation on
// refresh, revocation on logout, Google login and a few resources
type FakeBackend struct {
	*httptest.Server

	mu           sync.Mutex
	seq          int
	access       map[string]account
	refresh      map[string]account
	refreshCalls int
	logoutCalls  int
	uploads      map[string][]byte
	documents    map[string][]byte
}

// NewFakeBackend starts the fake backend
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{
		access:    make(map[string]account),
		refresh:   make(map[string]account),
		uploads:   make(map[string][]byte),
		documents: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token/", b.handleToken)
	mux.HandleFunc("POST /api/token/refresh/", b.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout/", b.handleLogout)
	mux.HandleFunc("GET /api/auth/status/", b.handleStatus)
	mux.HandleFunc("GET /accounts/google/login/", b.handleGoogleLogin)
	mux.HandleFunc("GET /api/auth/google/success/", b.handleGoogleSuccess)
	mux.HandleFunc("/api/teams/", b.handleTeams)
	mux.HandleFunc("GET /api/export-csv/", b.handleExport)
	mux.HandleFunc("GET /api/registration-status/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"registration_open": true})
	})
	mux.HandleFunc("GET /media/", b.handleMedia)

	b.Server = httptest.NewServer(mux)
	return b
}

// issue mints a fresh pair. Callers hold mu.
func (b *FakeBackend) issue(acct account) map[string]string {
	b.seq++
	access := fmt.Sprintf("access-%d", b.seq)
	refresh := fmt.Sprintf("refresh-%d", b.seq)
	b.access[access] = acct
	b.refresh[refresh] = acct
	return map[string]string{"access": access, "refresh": refresh}
}

// ExpireAccessTokens invalidates every issued access token
func (b *FakeBackend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]account)
}

// PutDocument publishes a file under /media/
func (b *FakeBackend) PutDocument(name string, content []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.documents["/media/"+name] = content
	return b.URL + "/media/" + name
}

// Upload returns the bytes received for a multipart field
func (b *FakeBackend) Upload(field string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads[field]
}

// RefreshCalls counts refresh requests, successful or not
func (b *FakeBackend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// LogoutCalls counts logout notifications
func (b *FakeBackend) LogoutCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logoutCalls
}

func (b *FakeBackend) authenticate(r *http.Request) (account, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return account{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.access[token]
	return acct, ok
}

func (b *FakeBackend) handleToken(w http.ResponseWriter, r *http.Request) {
	var creds map[string]string
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed"})
		return
	}
	if creds["username"] != adminUsername || creds["password"] != adminPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	b.mu.Lock()
	pair := b.issue(account{username: adminUsername, admin: true})
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, pair)
}

func (b *FakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshCalls++
	acct, ok := b.refresh[body["refresh"]]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	// rotation: the old refresh token dies
	delete(b.refresh, body["refresh"])
	writeJSON(w, http.StatusOK, b.issue(acct))
}

func (b *FakeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutCalls++
	delete(b.refresh, body["refresh"])
	w.WriteHeader(http.StatusResetContent)
}

func (b *FakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	acct, ok := b.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"is_admin": acct.admin, "username": acct.username})
}

func (b *FakeBackend) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: googleSession, Value: "google-ok", Path: "/", HttpOnly: true})
	http.Redirect(w, r, r.URL.Query().Get("next"), http.StatusFound)
}

func (b *FakeBackend) handleGoogleSuccess(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(googleSession); err != nil || c.Value != "google-ok" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "no social login in progress"})
		return
	}
	b.mu.Lock()
	pair := b.issue(account{username: googleUser})
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"access":  pair["access"],
		"refresh": pair["refresh"],
		"user":    map[string]string{"email": googleUser},
	})
}

func (b *FakeBackend) handleTeams(w http.ResponseWriter, r *http.Request) {
	acct, ok := b.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Segfaults", "owner": acct.username}})
	case http.MethodPost:
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		b.mu.Lock()
		for field, values := range r.MultipartForm.Value {
			b.uploads[field] = []byte(values[0])
		}
		for field, files := range r.MultipartForm.File {
			f, err := files[0].Open()
			if err == nil {
				b.uploads[field], _ = io.ReadAll(f)
				f.Close()
			}
		}
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"id": 2})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *FakeBackend) handleExport(w http.ResponseWriter, r *http.Request) {
	acct, ok := b.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
		return
	}
	if !acct.admin {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "admins only"})
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte("id,name\n1,Segfaults\n"))
}

func (b *FakeBackend) handleMedia(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.authenticate(r); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	b.mu.Lock()
	content, ok := b.documents[r.URL.Path]
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="doc.pdf"`)
	_, _ = w.Write(content)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
