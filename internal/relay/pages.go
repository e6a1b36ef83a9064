package relay

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/crypto"
	jsonwriter "github.com/abdelrahman-a99/nucpa-front/internal/json"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
)

//go:embed templates/callback.html
var callbackPageHTML string

//go:embed templates/relay.js
var relayScriptJS string

var callbackPageTemplate = template.Must(template.New("callback").Parse(callbackPageHTML))

var relayScriptTemplate = texttemplate.Must(texttemplate.New("relay").Funcs(texttemplate.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).Parse(relayScriptJS))

// SignalKey is the localStorage key the callback touches when it stored
// the pair itself. Other tabs listen for it.
const SignalKey = "nucpa:login"

// PageConfig configures the browser-facing login pages
type PageConfig struct {
	BackendURL      string
	BackendOrigins  []string
	GoogleLoginPath string
	SuccessPath     string
	AppOrigin       string
	StartPath       string
	CallbackPath    string
	StorePath       string
	AfterLoginPath  string
	MessageType     string
	Timeout         time.Duration
}

// Pages serves the login start redirect, the OAuth callback page and the
// opener-side relay script
type Pages struct {
	cfg PageConfig
}

// NewPages creates the login pages
func NewPages(cfg PageConfig) *Pages {
	return &Pages{cfg: cfg}
}

type callbackPageData struct {
	Nonce       string
	SuccessURL  string
	StorePath   string
	AppOrigin   string
	MessageType string
	NextPath    string
	SignalKey   string
}

type relayScriptData struct {
	StartURL       string
	StorePath      string
	BackendOrigins []string
	MessageType    string
	TimeoutMs      int64
	SignalKey      string
}

// Start redirects the browser to the backend's Google login, asking it to
// come back to the callback page
func (p *Pages) Start(w http.ResponseWriter, r *http.Request) {
	callback := strings.TrimRight(p.cfg.AppOrigin, "/") + p.cfg.CallbackPath
	if next := safeNext(r.URL.Query().Get("next"), ""); next != "" {
		callback += "?next=" + url.QueryEscape(next)
	}

	q := url.Values{}
	q.Set("process", "login")
	q.Set("next", callback)
	target := strings.TrimRight(p.cfg.BackendURL, "/") + p.cfg.GoogleLoginPath + "?" + q.Encode()

	log.LogDebugWithFields("relay", "Starting Google login", map[string]any{
		"callback": callback,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback renders the page the popup lands on after Google login. The page
// fetches the token pair from the backend with the backend's session and
// relays it to the opener, or stores it directly when there is no opener.
func (p *Pages) Callback(w http.ResponseWriter, r *http.Request) {
	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		log.LogErrorWithFields("relay", "Failed to generate nonce", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	data := callbackPageData{
		Nonce:       nonce,
		SuccessURL:  strings.TrimRight(p.cfg.BackendURL, "/") + p.cfg.SuccessPath,
		StorePath:   p.cfg.StorePath,
		AppOrigin:   p.cfg.AppOrigin,
		MessageType: p.cfg.MessageType,
		NextPath:    safeNext(r.URL.Query().Get("next"), p.cfg.AfterLoginPath),
		SignalKey:   SignalKey,
	}

	var buf bytes.Buffer
	if err := callbackPageTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("relay", "Failed to render callback page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	connect := append([]string{"'self'"}, p.cfg.BackendOrigins...)
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; script-src 'nonce-"+nonce+"'; style-src 'nonce-"+nonce+"'; connect-src "+
			strings.Join(connect, " ")+"; base-uri 'none'; frame-ancestors 'none'")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Script serves the opener-side relay used by the login button
func (p *Pages) Script(w http.ResponseWriter, r *http.Request) {
	data := relayScriptData{
		StartURL:       p.cfg.StartPath,
		StorePath:      p.cfg.StorePath,
		BackendOrigins: p.cfg.BackendOrigins,
		MessageType:    p.cfg.MessageType,
		TimeoutMs:      p.cfg.Timeout.Milliseconds(),
		SignalKey:      SignalKey,
	}
	if data.BackendOrigins == nil {
		data.BackendOrigins = []string{}
	}

	var buf bytes.Buffer
	if err := relayScriptTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("relay", "Failed to render relay script", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// safeNext accepts only same-site absolute paths
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}
