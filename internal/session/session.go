package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/auth"
	"github.com/abdelrahman-a99/nucpa-front/internal/cookie"
	"github.com/abdelrahman-a99/nucpa-front/internal/ioutil"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects a login
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAdmin is returned when a valid login lacks admin rights
	ErrNotAdmin = errors.New("account is not an administrator")
	// ErrUpstream is returned when the backend is unreachable or answers
	// with something unusable
	ErrUpstream = errors.New("backend unavailable")
)

// Endpoints are absolute backend URLs used by the session service
type Endpoints struct {
	Token  string
	Logout string
	Status string
}

// Status is what the browser learns about a credential scope
type Status struct {
	Authenticated bool   `json:"authenticated"`
	IsAdmin       bool   `json:"is_admin"`
	Username      string `json:"username,omitempty"`
}

// Service implements login, logout and status checks on top of the
// credential store
type Service struct {
	endpoints  Endpoints
	store      cookie.Store
	refresher  auth.Refresher
	httpClient *http.Client
}

// NewService creates a session service
func NewService(endpoints Endpoints, store cookie.Store, refresher auth.Refresher, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		endpoints:  endpoints,
		store:      store,
		refresher:  refresher,
		httpClient: httpClient,
	}
}

// Login exchanges admin credentials for a token pair, stores it in the
// admin scope and confirms the account is an administrator
func (s *Service) Login(ctx context.Context, w http.ResponseWriter, username, password string) (Status, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return Status{}, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoints.Token, bytes.NewReader(payload))
	if err != nil {
		return Status{}, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.LogInfoWithFields("session", "Login rejected", map[string]any{
			"username": username,
			"status":   resp.StatusCode,
		})
		return Status{}, ErrInvalidCredentials
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Status{}, fmt.Errorf("%w: reading token response: %v", ErrUpstream, err)
	}
	token, err := auth.ParseTokenResponse(body)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	pair := cookie.Pair{Access: token.AccessToken, Refresh: token.RefreshToken}
	if err := s.store.Store(w, cookie.ScopeAdmin, pair); err != nil {
		return Status{}, fmt.Errorf("%w: token response incomplete", ErrUpstream)
	}

	status, _ := s.fetchStatus(ctx, pair.Access)
	if !status.IsAdmin {
		s.store.Clear(w, cookie.ScopeAdmin)
		log.LogWarnWithFields("session", "Non-admin account used admin login", map[string]any{
			"username": username,
		})
		return status, ErrNotAdmin
	}

	log.LogInfoWithFields("session", "Admin logged in", map[string]any{
		"username": username,
		"subject":  auth.Subject(pair.Access),
	})
	return status, nil
}

// Logout tells the backend about every scope that holds credentials, then
// clears both scopes. Backend failures are logged and otherwise ignored.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	for _, scope := range []cookie.Scope{cookie.ScopeUser, cookie.ScopeAdmin} {
		pair := s.store.Read(r, scope)
		if pair.Empty() {
			continue
		}
		if err := s.revoke(ctx, pair); err != nil {
			log.LogWarnWithFields("session", "Backend logout failed", map[string]any{
				"scope": scope.String(),
				"error": err.Error(),
			})
		}
	}

	s.store.Clear(w, cookie.ScopeUser)
	s.store.Clear(w, cookie.ScopeAdmin)
}

func (s *Service) revoke(ctx context.Context, pair cookie.Pair) error {
	payload, err := json.Marshal(map[string]string{"refresh": pair.Refresh})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoints.Logout, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if pair.Access != "" {
		req.Header.Set("Authorization", "Bearer "+pair.Access)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout returned %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 256))
	}
	return nil
}

// CheckStatus asks the backend who owns the scope's credentials. An expired
// access token is refreshed once. Every failure reads as "not signed in".
func (s *Service) CheckStatus(w http.ResponseWriter, r *http.Request, scope cookie.Scope) Status {
	pair := s.store.Read(r, scope)
	if pair.Empty() {
		return Status{}
	}

	status, code := s.fetchStatus(r.Context(), pair.Access)
	if code != http.StatusUnauthorized || pair.Refresh == "" {
		return status
	}

	token, err := s.refresher.Refresh(r.Context(), pair.Refresh)
	if err != nil || token == nil {
		return Status{}
	}
	next := auth.NextPair(token, pair.Refresh)
	if err := s.store.Store(w, scope, next); err != nil {
		return Status{}
	}

	status, _ = s.fetchStatus(r.Context(), next.Access)
	return status
}

// fetchStatus returns the parsed status and the backend status code, or 0
// when the backend could not be reached
func (s *Service) fetchStatus(ctx context.Context, access string) (Status, int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoints.Status, nil)
	if err != nil {
		return Status{}, 0
	}
	req.Header.Set("Accept", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.LogWarnWithFields("session", "Status check failed", map[string]any{
			"error": err.Error(),
		})
		return Status{}, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Status{}, resp.StatusCode
	}

	var body struct {
		IsAdmin  bool   `json:"is_admin"`
		IsStaff  bool   `json:"is_staff"`
		Username string `json:"username"`
		User     *struct {
			Username string `json:"username"`
			IsAdmin  bool   `json:"is_admin"`
			IsStaff  bool   `json:"is_staff"`
		} `json:"user"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Status{Authenticated: true}, resp.StatusCode
	}

	status := Status{
		Authenticated: true,
		IsAdmin:       body.IsAdmin || body.IsStaff,
		Username:      body.Username,
	}
	if body.User != nil {
		status.IsAdmin = status.IsAdmin || body.User.IsAdmin || body.User.IsStaff
		if status.Username == "" {
			status.Username = body.User.Username
		}
	}
	return status, resp.StatusCode
}
