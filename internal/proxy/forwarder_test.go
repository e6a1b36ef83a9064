package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/auth"
	"github.com/abdelrahman-a99/nucpa-front/internal/cookie"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend accepts "good" access tokens, answers refreshes with a new
// pair and counts calls per endpoint
type fakeBackend struct {
	*httptest.Server
	forwards  atomic.Int32
	refreshes atomic.Int32

	validAccess  string
	refreshReply string
	refreshCode  int
	alwaysDeny   bool
	lastAuth     atomic.Value
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		validAccess:  "good",
		refreshReply: `{"access":"good","refresh":"r2"}`,
		refreshCode:  http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		fb.refreshes.Add(1)
		w.WriteHeader(fb.refreshCode)
		_, _ = w.Write([]byte(fb.refreshReply))
	})
	mux.HandleFunc("/api/teams/", func(w http.ResponseWriter, r *http.Request) {
		fb.forwards.Add(1)
		fb.lastAuth.Store(r.Header.Get("Authorization"))
		if fb.alwaysDeny || r.Header.Get("Authorization") != "Bearer "+fb.validAccess {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Given token not valid"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Query", r.URL.RawQuery)
		_, _ = w.Write([]byte(`[{"id":1,"name":"Segfault Seekers"}]`))
	})
	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func newTestForwarder(fb *fakeBackend) *Forwarder {
	store := cookie.NewStore(cookie.Options{})
	refresher := auth.NewRefreshClient(auth.RefreshOptions{Endpoint: fb.URL + "/api/token/refresh/"})
	return NewForwarder(store, refresher, Options{
		BackendURL:   fb.URL,
		ScopeHeader:  "X-Admin-Access",
		MaxBodyBytes: 1 << 20,
	})
}

var teamsRoute = Route{
	Name:    "teams",
	Methods: []string{http.MethodGet, http.MethodPost},
	Target:  PathTarget("/api/teams/"),
}

func withCookies(r *http.Request, cookies map[string]string) *http.Request {
	for name, value := range cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return r
}

func responseCookies(w *httptest.ResponseRecorder) map[string]string {
	out := make(map[string]string)
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

func TestForwardNoCredentials(t *testing.T) {
	fb := newFakeBackend(t)
	f := newTestForwarder(fb)

	w := httptest.NewRecorder()
	f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/teams", nil), teamsRoute)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized","message":"authentication required"}`, w.Body.String())
	assert.Zero(t, fb.forwards.Load())
}

func TestForwardValidAccess(t *testing.T) {
	fb := newFakeBackend(t)
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams?page=2&search=a%20b", nil),
		map[string]string{cookie.UserAccess: "good", cookie.UserRefresh: "r1"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"id":1,"name":"Segfault Seekers"}]`, w.Body.String())
	assert.Equal(t, int32(1), fb.forwards.Load())
	assert.Zero(t, fb.refreshes.Load())
	assert.Empty(t, w.Result().Cookies(), "no cookie rewrite without a refresh")
}

func TestForwardRefreshOnce(t *testing.T) {
	fb := newFakeBackend(t)
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
		map[string]string{cookie.UserAccess: "expired", cookie.UserRefresh: "r1"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(2), fb.forwards.Load(), "original call plus exactly one retry")
	assert.Equal(t, int32(1), fb.refreshes.Load())
	assert.Equal(t, map[string]string{cookie.UserAccess: "good", cookie.UserRefresh: "r2"}, responseCookies(w))
}

func TestForwardRefreshOnlyToken(t *testing.T) {
	fb := newFakeBackend(t)
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
		map[string]string{cookie.UserRefresh: "r1"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Segfault Seekers")
	assert.Equal(t, map[string]string{cookie.UserAccess: "good", cookie.UserRefresh: "r2"}, responseCookies(w))
}

func TestForwardKeepsRefreshWhenNotRotated(t *testing.T) {
	fb := newFakeBackend(t)
	fb.refreshReply = `{"access":"good"}`
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
		map[string]string{cookie.UserAccess: "expired", cookie.UserRefresh: "r1"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{cookie.UserAccess: "good", cookie.UserRefresh: "r1"}, responseCookies(w))
}

func TestForwardNoInfiniteLoop(t *testing.T) {
	fb := newFakeBackend(t)
	fb.alwaysDeny = true
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
		map[string]string{cookie.UserAccess: "expired", cookie.UserRefresh: "r1"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Given token not valid", "second 401 is relayed as-is")
	assert.Equal(t, int32(2), fb.forwards.Load())
	assert.Equal(t, int32(1), fb.refreshes.Load())
}

func TestForwardRefreshRejected(t *testing.T) {
	fb := newFakeBackend(t)
	fb.refreshCode = http.StatusUnauthorized
	fb.refreshReply = `{"detail":"Token is blacklisted"}`
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
		map[string]string{cookie.UserAccess: "expired", cookie.UserRefresh: "r1"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotContains(t, w.Body.String(), "blacklisted")
	assert.Equal(t, int32(1), fb.forwards.Load())

	// the rejected pair is expired so later requests skip the refresh call
	cleared := map[string]int{}
	for _, c := range w.Result().Cookies() {
		assert.Empty(t, c.Value)
		cleared[c.Name] = c.MaxAge
	}
	assert.Equal(t, map[string]int{cookie.UserAccess: -1, cookie.UserRefresh: -1}, cleared)
}

func TestForwardRefreshTransportErrorKeepsCookies(t *testing.T) {
	fb := newFakeBackend(t)
	refreshSrv := httptest.NewServer(http.NotFoundHandler())
	refreshURL := refreshSrv.URL
	refreshSrv.Close()

	store := cookie.NewStore(cookie.Options{})
	refresher := auth.NewRefreshClient(auth.RefreshOptions{Endpoint: refreshURL + "/api/token/refresh/"})
	f := NewForwarder(store, refresher, Options{BackendURL: fb.URL, ScopeHeader: "X-Admin-Access"})

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
		map[string]string{cookie.UserAccess: "expired", cookie.UserRefresh: "r1"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies(), "an unreachable refresh endpoint is not a rejection")
}

func TestForwardUnauthorizedWithoutRefresh(t *testing.T) {
	fb := newFakeBackend(t)
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
		map[string]string{cookie.UserAccess: "expired"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, fb.refreshes.Load())
	assert.Equal(t, int32(1), fb.forwards.Load())
}

func TestForwardScopeSelection(t *testing.T) {
	fb := newFakeBackend(t)
	f := newTestForwarder(fb)

	cookies := map[string]string{
		cookie.UserAccess:  "user-token",
		cookie.AdminAccess: "good",
	}

	t.Run("header selects admin", func(t *testing.T) {
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil), cookies)
		r.Header.Set("X-Admin-Access", "true")
		w := httptest.NewRecorder()
		f.Forward(w, r, teamsRoute)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bearer good", fb.lastAuth.Load())
	})

	t.Run("no header uses user", func(t *testing.T) {
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil), cookies)
		w := httptest.NewRecorder()
		f.Forward(w, r, teamsRoute)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer user-token", fb.lastAuth.Load())
	})

	t.Run("admin route ignores header", func(t *testing.T) {
		route := teamsRoute
		route.Admin = true
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil), cookies)
		w := httptest.NewRecorder()
		f.Forward(w, r, route)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bearer good", fb.lastAuth.Load())
	})

	t.Run("admin refresh writes admin cookies only", func(t *testing.T) {
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil), map[string]string{
			cookie.AdminAccess:  "expired",
			cookie.AdminRefresh: "ar",
			cookie.UserAccess:   "good",
		})
		r.Header.Set("X-Admin-Access", "1")
		w := httptest.NewRecorder()
		f.Forward(w, r, teamsRoute)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]string{cookie.AdminAccess: "good", cookie.AdminRefresh: "r2"}, responseCookies(w))
	})
}

func TestForwardMethodNotAllowed(t *testing.T) {
	fb := newFakeBackend(t)
	f := newTestForwarder(fb)

	r := withCookies(httptest.NewRequest(http.MethodDelete, "/api/teams", nil),
		map[string]string{cookie.UserAccess: "good"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, POST", w.Header().Get("Allow"))
	assert.Zero(t, fb.forwards.Load())
}

func TestForwardConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	backendURL := srv.URL
	srv.Close()

	store := cookie.NewStore(cookie.Options{})
	refresher := auth.NewRefreshClient(auth.RefreshOptions{Endpoint: backendURL + "/api/token/refresh/"})
	f := NewForwarder(store, refresher, Options{BackendURL: backendURL, ScopeHeader: "X-Admin-Access"})

	t.Run("default body", func(t *testing.T) {
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/teams", nil),
			map[string]string{cookie.UserAccess: "good"})
		w := httptest.NewRecorder()
		f.Forward(w, r, teamsRoute)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"error":"bad_gateway","message":"upstream unavailable"}`, w.Body.String())
	})

	t.Run("fail-open override on public route", func(t *testing.T) {
		route := Route{
			Name:    "registration-status",
			Methods: []string{http.MethodGet},
			Target:  PathTarget("/api/registration-status/"),
			Public:  true,
			OnConnectivityError: func(w http.ResponseWriter, r *http.Request, err error) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadGateway)
				_ = json.NewEncoder(w).Encode(map[string]bool{"registration_open": true})
			},
		}
		w := httptest.NewRecorder()
		f.Forward(w, httptest.NewRequest(http.MethodGet, "/api/registration-status", nil), route)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.JSONEq(t, `{"registration_open":true}`, w.Body.String())
	})
}

func TestForwardMultipartPassthrough(t *testing.T) {
	type receivedPart struct {
		name, filename, contentType, body string
	}
	var (
		received      []receivedPart
		receivedCType string
	)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedCType = r.Header.Get("Content-Type")
		reader, err := r.MultipartReader()
		require.NoError(t, err)
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(part)
			received = append(received, receivedPart{part.FormName(), part.FileName(), part.Header.Get("Content-Type"), string(data)})
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer backend.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Segfault Seekers"))
	require.NoError(t, mw.WriteField("members[0][name]", "Mona"))
	fw, err := mw.CreateFormFile("members[0][national_id]", "id.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4 binary\x00\x01"))
	require.NoError(t, mw.Close())
	inboundBoundary := mw.Boundary()

	store := cookie.NewStore(cookie.Options{})
	f := NewForwarder(store, auth.NewRefreshClient(auth.RefreshOptions{Endpoint: backend.URL}), Options{
		BackendURL:  backend.URL,
		ScopeHeader: "X-Admin-Access",
	})

	r := withCookies(httptest.NewRequest(http.MethodPost, "/api/teams", &body), map[string]string{cookie.UserAccess: "a"})
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	require.Equal(t, http.StatusCreated, w.Code)

	mediaType, params, err := mime.ParseMediaType(receivedCType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.NotEqual(t, inboundBoundary, params["boundary"], "body is re-encoded under a fresh boundary")

	require.Len(t, received, 3)
	assert.Equal(t, receivedPart{"name", "", "", "Segfault Seekers"}, received[0])
	assert.Equal(t, receivedPart{"members[0][name]", "", "", "Mona"}, received[1])
	assert.Equal(t, "members[0][national_id]", received[2].name)
	assert.Equal(t, "id.pdf", received[2].filename)
	assert.Equal(t, "application/octet-stream", received[2].contentType)
	assert.Equal(t, "%PDF-1.4 binary\x00\x01", received[2].body)
}

func TestForwardRawBodyReplayedOnRetry(t *testing.T) {
	var bodies []string
	var contentTypes []string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/token/refresh/" {
			_, _ = w.Write([]byte(`{"access":"fresh"}`))
			return
		}
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		contentTypes = append(contentTypes, r.Header.Get("Content-Type"))
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	store := cookie.NewStore(cookie.Options{})
	f := NewForwarder(store, auth.NewRefreshClient(auth.RefreshOptions{Endpoint: backend.URL + "/api/token/refresh/"}), Options{
		BackendURL:  backend.URL,
		ScopeHeader: "X-Admin-Access",
	})

	route := Route{Name: "team", Methods: []string{http.MethodPatch}, Target: PathTarget("/api/teams/{id}/")}
	router := chi.NewRouter()
	router.Method(http.MethodPatch, "/api/teams/{id}", f.Handler(route))

	r := withCookies(httptest.NewRequest(http.MethodPatch, "/api/teams/5", strings.NewReader(`{"name":"New"}`)),
		map[string]string{cookie.UserAccess: "stale", cookie.UserRefresh: "r"})
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{`{"name":"New"}`, `{"name":"New"}`}, bodies)
	assert.Equal(t, []string{"application/json", "application/json"}, contentTypes)
}

func TestForwardBodyTooLarge(t *testing.T) {
	fb := newFakeBackend(t)
	store := cookie.NewStore(cookie.Options{})
	f := NewForwarder(store, auth.NewRefreshClient(auth.RefreshOptions{}), Options{
		BackendURL:   fb.URL,
		ScopeHeader:  "X-Admin-Access",
		MaxBodyBytes: 8,
	})

	r := withCookies(httptest.NewRequest(http.MethodPost, "/api/teams", strings.NewReader(`{"name":"far too long"}`)),
		map[string]string{cookie.UserAccess: "good"})
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, fb.forwards.Load())
}

func TestForwardBinaryDocument(t *testing.T) {
	pdf := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff, 0xfe}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/members/3/document/national_id/", r.URL.Path)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="national_id.pdf"`)
		w.Header().Set("Set-Cookie", "csrftoken=backend")
		_, _ = w.Write(pdf)
	}))
	defer backend.Close()

	store := cookie.NewStore(cookie.Options{})
	f := NewForwarder(store, auth.NewRefreshClient(auth.RefreshOptions{}), Options{BackendURL: backend.URL, ScopeHeader: "X-Admin-Access"})

	route := Route{Name: "member-document", Methods: []string{http.MethodGet, http.MethodDelete},
		Target: PathTarget("/api/members/{memberId}/document/{docType}/")}
	router := chi.NewRouter()
	router.Handle("/api/members/{memberId}/document/{docType}", f.Handler(route))

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/members/3/document/national_id", nil),
		map[string]string{cookie.AdminAccess: "a"})
	r.Header.Set("X-Admin-Access", "true")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pdf, w.Body.Bytes())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="national_id.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Empty(t, w.Result().Cookies())
}

func TestForwardDefaultDisposition(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("team,members\nA,3\n"))
	}))
	defer backend.Close()

	store := cookie.NewStore(cookie.Options{})
	f := NewForwarder(store, auth.NewRefreshClient(auth.RefreshOptions{}), Options{BackendURL: backend.URL, ScopeHeader: "X-Admin-Access"})
	route := Route{
		Name:               "export-csv",
		Methods:            []string{http.MethodGet},
		Target:             PathTarget("/api/export-csv/"),
		Admin:              true,
		DefaultDisposition: `attachment; filename="export.csv"`,
	}

	r := withCookies(httptest.NewRequest(http.MethodGet, "/api/export-csv", nil), map[string]string{cookie.AdminAccess: "a"})
	w := httptest.NewRecorder()
	f.Forward(w, r, route)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="export.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "team,members\nA,3\n", w.Body.String())

	r = withCookies(httptest.NewRequest(http.MethodGet, "/api/export-csv?fail=1", nil), map[string]string{cookie.AdminAccess: "a"})
	w = httptest.NewRecorder()
	f.Forward(w, r, route)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestForwardUpstreamErrorVerbatim(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"members":["at most 3 members"]}`))
	}))
	defer backend.Close()

	store := cookie.NewStore(cookie.Options{})
	f := NewForwarder(store, auth.NewRefreshClient(auth.RefreshOptions{}), Options{BackendURL: backend.URL, ScopeHeader: "X-Admin-Access"})

	r := withCookies(httptest.NewRequest(http.MethodPost, "/api/teams", strings.NewReader(`{}`)), map[string]string{cookie.UserAccess: "a"})
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.Forward(w, r, teamsRoute)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"members":["at most 3 members"]}`, w.Body.String())
}

func TestForwardDocumentURL(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer backend.Close()

	store := cookie.NewStore(cookie.Options{})
	f := NewForwarder(store, auth.NewRefreshClient(auth.RefreshOptions{}), Options{
		BackendURL:  backend.URL,
		ScopeHeader: "X-Admin-Access",
		HTTPClient:  NewHTTPClient(5 * time.Second),
	})
	route := Route{
		Name:    "documents",
		Methods: []string{http.MethodGet},
		Target:  DocumentTarget([]string{backend.URL, "https://api.nucpa.example"}, []string{"/media/**"}),
	}

	t.Run("foreign origin rejected", func(t *testing.T) {
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/documents?url=https://evil.example/file", nil),
			map[string]string{cookie.UserAccess: "a"})
		w := httptest.NewRecorder()
		f.Forward(w, r, route)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, hits.Load())
	})

	t.Run("absolute backend url", func(t *testing.T) {
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/documents?url="+backend.URL+"/media/a.png", nil),
			map[string]string{cookie.UserAccess: "a"})
		w := httptest.NewRecorder()
		f.Forward(w, r, route)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "png", w.Body.String())
	})

	t.Run("relative url", func(t *testing.T) {
		r := withCookies(httptest.NewRequest(http.MethodGet, "/api/documents?url=/media/a.png", nil),
			map[string]string{cookie.UserAccess: "a"})
		w := httptest.NewRecorder()
		f.Forward(w, r, route)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
