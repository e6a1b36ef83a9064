package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/abdelrahman-a99/nucpa-front/internal/cookie"
	"github.com/abdelrahman-a99/nucpa-front/internal/ioutil"
	jsonwriter "github.com/abdelrahman-a99/nucpa-front/internal/json"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
	"github.com/abdelrahman-a99/nucpa-front/internal/relay"
	"github.com/abdelrahman-a99/nucpa-front/internal/session"
)

const maxAuthBodyBytes = 64 << 10

// AuthHandlers serves the credential endpoints under /api/auth
type AuthHandlers struct {
	sessions    *session.Service
	store       cookie.Store
	policy      relay.OriginPolicy
	messageType string
	scopeHeader string
}

// NewAuthHandlers creates the auth handlers
func NewAuthHandlers(sessions *session.Service, store cookie.Store, policy relay.OriginPolicy, messageType, scopeHeader string) *AuthHandlers {
	return &AuthHandlers{
		sessions:    sessions,
		store:       store,
		policy:      policy,
		messageType: messageType,
		scopeHeader: scopeHeader,
	}
}

// StoreUser persists a pair delivered by the OAuth relay into the user scope
func (h *AuthHandlers) StoreUser(w http.ResponseWriter, r *http.Request) {
	h.storePair(w, r, cookie.ScopeUser)
}

// StoreAdmin persists a pair into the admin scope
func (h *AuthHandlers) StoreAdmin(w http.ResponseWriter, r *http.Request) {
	h.storePair(w, r, cookie.ScopeAdmin)
}

func (h *AuthHandlers) storePair(w http.ResponseWriter, r *http.Request, scope cookie.Scope) {
	if origin := r.Header.Get("Origin"); origin != "" && !h.policy.Allows(origin) {
		log.LogWarnWithFields("auth", "Rejected token store from foreign origin", map[string]any{
			"origin": origin,
			"scope":  scope.String(),
		})
		jsonwriter.WriteForbidden(w, "origin not allowed")
		return
	}

	raw, err := ioutil.ReadAtMost(r.Body, maxAuthBodyBytes)
	if err != nil {
		if errors.Is(err, ioutil.ErrTooLarge) {
			jsonwriter.WriteRequestTooLarge(w, "request body too large")
			return
		}
		jsonwriter.WriteBadRequest(w, "unreadable request body")
		return
	}

	pair, err := decodePair(raw, h.messageType)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "invalid JSON body")
		return
	}

	if err := h.store.Store(w, scope, pair); err != nil {
		if errors.Is(err, cookie.ErrMissingToken) {
			jsonwriter.WriteBadRequest(w, "access and refresh tokens are required")
			return
		}
		jsonwriter.WriteInternalServerError(w, "could not store credentials")
		return
	}

	log.LogInfoWithFields("auth", "Credentials stored", map[string]any{
		"scope":      scope.String(),
		"request_id": RequestID(r.Context()),
	})
	_ = jsonwriter.Write(w, map[string]bool{"success": true})
}

// decodePair accepts either the relay envelope or a flat {access, refresh}
func decodePair(raw []byte, messageType string) (cookie.Pair, error) {
	if msg, ok := relay.ParseMessage(raw, messageType); ok {
		return msg.Payload.Pair(), nil
	}
	var flat relay.Payload
	if err := json.Unmarshal(raw, &flat); err != nil {
		return cookie.Pair{}, err
	}
	return flat.Pair(), nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges admin credentials for an admin-scope pair
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	raw, err := ioutil.ReadAtMost(r.Body, maxAuthBodyBytes)
	if err != nil {
		jsonwriter.WriteBadRequest(w, "unreadable request body")
		return
	}
	var req loginRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		jsonwriter.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		jsonwriter.WriteBadRequest(w, "username and password are required")
		return
	}

	status, err := h.sessions.Login(r.Context(), w, req.Username, req.Password)
	switch {
	case err == nil:
		_ = jsonwriter.Write(w, status)
	case errors.Is(err, session.ErrInvalidCredentials):
		jsonwriter.WriteUnauthorized(w, "invalid username or password")
	case errors.Is(err, session.ErrNotAdmin):
		jsonwriter.WriteForbidden(w, "administrator access required")
	default:
		log.LogErrorWithFields("auth", "Login failed", map[string]any{
			"error":      err.Error(),
			"request_id": RequestID(r.Context()),
		})
		jsonwriter.WriteBadGateway(w, "upstream unavailable")
	}
}

// Logout always succeeds from the browser's point of view
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context(), w, r)
	_ = jsonwriter.Write(w, map[string]bool{"success": true})
}

// Status reports who holds the credentials of the requested scope
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	scope := cookie.ScopeFromRequest(r, h.scopeHeader)
	w.Header().Set("Cache-Control", "no-store")
	_ = jsonwriter.Write(w, h.sessions.CheckStatus(w, r, scope))
}
