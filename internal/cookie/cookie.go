package cookie

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/log"
)

// Scope selects one of the two independent credential pairs
type Scope int

const (
	ScopeUser Scope = iota
	ScopeAdmin
)

func (s Scope) String() string {
	if s == ScopeAdmin {
		return "admin"
	}
	return "user"
}

// Cookie names per scope
const (
	UserAccess   = "user-access"
	UserRefresh  = "user-refresh"
	AdminAccess  = "admin-access"
	AdminRefresh = "admin-refresh"
)

// Default lifetimes when config leaves them unset
const (
	DefaultUserTTL  = 20 * time.Minute
	DefaultAdminTTL = 2 * time.Hour
)

// ErrMissingToken is returned when a pair is stored with an empty half
var ErrMissingToken = errors.New("access and refresh tokens are both required")

// Pair is an access/refresh token pair. Either half may be empty when read.
type Pair struct {
	Access  string
	Refresh string
}

// Empty reports whether neither token is present
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// Complete reports whether both tokens are present
func (p Pair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// Store persists credential pairs on the browser side of the connection
type Store interface {
	Store(w http.ResponseWriter, scope Scope, pair Pair) error
	Clear(w http.ResponseWriter, scope Scope)
	Read(r *http.Request, scope Scope) Pair
}

// Options configures cookie attributes
type Options struct {
	UserTTL  time.Duration
	AdminTTL time.Duration
	Domain   string
	Secure   bool
}

// CookieStore keeps both halves of a pair in HttpOnly cookies that are
// always written together with the same lifetime
type CookieStore struct {
	opts Options
}

var _ Store = (*CookieStore)(nil)

// NewStore creates a cookie-backed store
func NewStore(opts Options) *CookieStore {
	if opts.UserTTL <= 0 {
		opts.UserTTL = DefaultUserTTL
	}
	if opts.AdminTTL <= 0 {
		opts.AdminTTL = DefaultAdminTTL
	}
	return &CookieStore{opts: opts}
}

// Names returns the access and refresh cookie names for a scope
func Names(scope Scope) (access, refresh string) {
	if scope == ScopeAdmin {
		return AdminAccess, AdminRefresh
	}
	return UserAccess, UserRefresh
}

// TTL returns the cookie lifetime for a scope
func (s *CookieStore) TTL(scope Scope) time.Duration {
	if scope == ScopeAdmin {
		return s.opts.AdminTTL
	}
	return s.opts.UserTTL
}

func (s *CookieStore) Store(w http.ResponseWriter, scope Scope, pair Pair) error {
	if !pair.Complete() {
		return ErrMissingToken
	}

	accessName, refreshName := Names(scope)
	maxAge := int(s.TTL(scope).Seconds())
	s.set(w, accessName, pair.Access, maxAge)
	s.set(w, refreshName, pair.Refresh, maxAge)

	log.LogTraceWithFields("cookie", "Credential pair stored", map[string]any{
		"scope":  scope.String(),
		"maxAge": s.TTL(scope).String(),
		"secure": s.opts.Secure,
	})
	return nil
}

// Clear expires both cookies of the scope. Safe to call when nothing is set.
func (s *CookieStore) Clear(w http.ResponseWriter, scope Scope) {
	accessName, refreshName := Names(scope)
	s.set(w, accessName, "", -1)
	s.set(w, refreshName, "", -1)

	log.LogTraceWithFields("cookie", "Credential pair cleared", map[string]any{
		"scope": scope.String(),
	})
}

func (s *CookieStore) Read(r *http.Request, scope Scope) Pair {
	accessName, refreshName := Names(scope)
	access, _ := Get(r, accessName)
	refresh, _ := Get(r, refreshName)
	return Pair{Access: access, Refresh: refresh}
}

func (s *CookieStore) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.opts.Domain,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// ScopeFromRequest picks the admin scope when the flag header is set to a
// truthy value
func ScopeFromRequest(r *http.Request, header string) Scope {
	v := strings.TrimSpace(r.Header.Get(header))
	if v == "" {
		return ScopeUser
	}
	if ok, err := strconv.ParseBool(v); err == nil && ok {
		return ScopeAdmin
	}
	if strings.EqualFold(v, "yes") {
		return ScopeAdmin
	}
	return ScopeUser
}
