package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// Browser drives the portal the way the SPA does: one cookie jar, same
// origin requests, optional admin scope header
type Browser struct {
	origin string
	client *http.Client
	Admin  bool
}

// NewBrowser creates a browser with an empty cookie jar
func NewBrowser(origin string) (*Browser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Browser{
		origin: origin,
		client: &http.Client{Jar: jar},
	}, nil
}

// Response is a fully read response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the body into v
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

func (b *Browser) do(req *http.Request) (*Response, error) {
	req.Header.Set("Origin", b.origin)
	if b.Admin {
		req.Header.Set("X-Admin-Access", "true")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Get fetches a portal path or an absolute URL
func (b *Browser) Get(target string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, b.resolve(target), nil)
	if err != nil {
		return nil, err
	}
	return b.do(req)
}

// PostJSON sends v as a JSON body
func (b *Browser) PostJSON(target string, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, b.resolve(target), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req)
}

// PostMultipart uploads fields and one file
func (b *Browser) PostMultipart(target string, fields map[string]string, fileField, fileName string, content []byte) (*Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, b.resolve(target), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return b.do(req)
}

// Cookie returns the jar's value for a portal cookie
func (b *Browser) Cookie(name string) string {
	u, _ := url.Parse(b.origin)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *Browser) resolve(target string) string {
	u, err := url.Parse(target)
	if err == nil && u.IsAbs() {
		return target
	}
	return fmt.Sprintf("%s%s", b.origin, target)
}

// SetCookie plants a portal cookie, as if left over from another tab
func (b *Browser) SetCookie(name, value string) {
	u, _ := url.Parse(b.origin)
	b.client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}
