package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/crypto"
	"github.com/abdelrahman-a99/nucpa-front/internal/ioutil"
	"github.com/abdelrahman-a99/nucpa-front/internal/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Refresher exchanges a refresh token for a new access token.
//
// A nil token with a nil error means the backend rejected the refresh.
// A non-nil error means the backend could not be reached; callers treat
// both the same way.
type Refresher interface {
	Refresh(ctx context.Context, refresh string) (*oauth2.Token, error)
}

// RefreshClient calls the backend refresh endpoint
type RefreshClient struct {
	endpoint   string
	httpClient *http.Client
	group      *singleflight.Group
}

var _ Refresher = (*RefreshClient)(nil)

// RefreshOptions configures a RefreshClient
type RefreshOptions struct {
	// Endpoint is the absolute URL of the refresh endpoint
	Endpoint   string
	HTTPClient *http.Client
	// Coalesce shares one upstream call between concurrent refreshes of the
	// same refresh token within this process
	Coalesce bool
}

// NewRefreshClient creates a refresh client
func NewRefreshClient(opts RefreshOptions) *RefreshClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	c := &RefreshClient{
		endpoint:   opts.Endpoint,
		httpClient: client,
	}
	if opts.Coalesce {
		c.group = &singleflight.Group{}
	}
	return c
}

// Refresh obtains a new access token. An empty refresh token is an
// expected failure and never reaches the backend.
func (c *RefreshClient) Refresh(ctx context.Context, refresh string) (*oauth2.Token, error) {
	if refresh == "" {
		return nil, nil
	}
	if c.group == nil {
		return c.refresh(ctx, refresh)
	}

	key := crypto.TokenFingerprint(refresh)
	ch := c.group.DoChan(key, func() (any, error) {
		// Detached so one caller going away doesn't fail the others
		return c.refresh(context.WithoutCancel(ctx), refresh)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		token, _ := res.Val.(*oauth2.Token)
		if token == nil {
			return nil, nil
		}
		if res.Shared {
			log.LogDebugWithFields("token_refresh", "Shared refresh result", map[string]any{
				"key": key[:8],
			})
		}
		copied := *token
		return &copied, nil
	}
}

func (c *RefreshClient) refresh(ctx context.Context, refresh string) (*oauth2.Token, error) {
	start := time.Now()

	payload, err := json.Marshal(map[string]string{"refresh": refresh})
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogErrorWithFields("token_refresh", "Refresh request failed", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.LogWarnWithFields("token_refresh", "Refresh rejected by backend", map[string]any{
			"status":   resp.StatusCode,
			"response": ioutil.ReadLimited(resp.Body, 512),
		})
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	token, err := ParseTokenResponse(body)
	if err != nil || token.AccessToken == "" {
		log.LogWarnWithFields("token_refresh", "Refresh response has no access token", map[string]any{
			"status": resp.StatusCode,
		})
		return nil, nil
	}

	log.LogDebugWithFields("token_refresh", "Access token refreshed", map[string]any{
		"subject":     Subject(token.AccessToken),
		"rotated":     token.RefreshToken != "",
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return token, nil
}
