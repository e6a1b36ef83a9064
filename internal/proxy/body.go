package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/abdelrahman-a99/nucpa-front/internal/ioutil"
)

// ErrBodyTooLarge is returned when the inbound body exceeds the limit
var ErrBodyTooLarge = errors.New("request body too large")

// outbound is the replayable description of one upstream call. It is built
// once per inbound request and may be sent twice.
type outbound struct {
	method      string
	url         string
	body        []byte
	contentType string
	multipart   bool
}

func (o *outbound) newRequest(r *http.Request, scopeHeader, access string) (*http.Request, error) {
	var body io.Reader
	if o.body != nil {
		body = bytes.NewReader(o.body)
	}

	req, err := http.NewRequestWithContext(r.Context(), o.method, o.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	copyRequestHeaders(req.Header, r.Header, scopeHeader)
	if o.contentType != "" {
		req.Header.Set("Content-Type", o.contentType)
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	return req, nil
}

// readBody buffers the inbound body. Multipart bodies are re-encoded part by
// part under a fresh boundary. Everything else is forwarded as raw bytes
// with the original content type.
func readBody(r *http.Request, limit int64) (body []byte, contentType string, isMultipart bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, "", false, nil
	}

	contentType = r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if strings.EqualFold(mediaType, "multipart/form-data") {
		body, contentType, err = reencodeMultipart(r, limit)
		if err != nil {
			return nil, "", true, err
		}
		return body, contentType, true, nil
	}

	body, err = ioutil.ReadAtMost(r.Body, limit)
	if errors.Is(err, ioutil.ErrTooLarge) {
		return nil, "", false, ErrBodyTooLarge
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) == 0 {
		return nil, contentType, false, nil
	}
	return body, contentType, false, nil
}

// reencodeMultipart copies each part in order, keeping field names such as
// members[0][national_id], file names and per-part content types
func reencodeMultipart(r *http.Request, limit int64) ([]byte, string, error) {
	if limit > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, limit)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, "", fmt.Errorf("invalid multipart body: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", multipartError(err)
		}

		dst, err := writer.CreatePart(part.Header)
		if err != nil {
			part.Close()
			return nil, "", fmt.Errorf("failed to write multipart part: %w", err)
		}
		if _, err := io.Copy(dst, part); err != nil {
			part.Close()
			return nil, "", multipartError(err)
		}
		part.Close()
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func multipartError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrBodyTooLarge
	}
	return fmt.Errorf("invalid multipart body: %w", err)
}
