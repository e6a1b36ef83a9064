package proxy

import "net/http"

// copyRequestHeaders copies browser headers onto the upstream request,
// excluding hop-by-hop headers, browser credentials, and the body headers
// the forwarder sets itself
func copyRequestHeaders(dst, src http.Header, scopeHeader string) {
	scopeHeader = http.CanonicalHeaderKey(scopeHeader)
	for k, v := range src {
		switch k {
		case "Connection", "Upgrade", "Host",
			"Keep-Alive", "Transfer-Encoding", "TE", "Trailer",
			"Proxy-Authorization", "Proxy-Authenticate",
			"Authorization", "Cookie",
			"Content-Type", "Content-Length",
			"Origin", "Referer",
			"Accept-Encoding":
			continue
		}
		if k == scopeHeader {
			continue
		}
		dst[k] = v
	}
}

// relayedResponseHeaders are passed back to the browser. Upstream cookies
// belong to the backend's domain and are never relayed.
var relayedResponseHeaders = []string{
	"Content-Type",
	"Content-Disposition",
	"Content-Length",
	"Cache-Control",
	"ETag",
	"Last-Modified",
	"Location",
}

func copyResponseHeaders(dst, src http.Header) {
	for _, k := range relayedResponseHeaders {
		if v := src.Values(k); len(v) > 0 {
			dst[k] = append([]string(nil), v...)
		}
	}
}
