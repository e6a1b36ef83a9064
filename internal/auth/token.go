package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdelrahman-a99/nucpa-front/internal/cookie"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ParseTokenResponse parses a token endpoint response. The backend answers
// with {"access","refresh"}; standard OAuth2 field names are accepted too.
func ParseTokenResponse(body []byte) (*oauth2.Token, error) {
	var resp struct {
		Access       string `json:"access"`
		Refresh      string `json:"refresh"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  firstNonEmpty(resp.Access, resp.AccessToken),
		RefreshToken: firstNonEmpty(resp.Refresh, resp.RefreshToken),
		TokenType:    firstNonEmpty(resp.TokenType, "Bearer"),
	}

	if resp.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else if claims := PeekClaims(token.AccessToken); claims != nil && claims.ExpiresAt != nil {
		token.Expiry = claims.ExpiresAt.Time
	}

	return token, nil
}

// NextPair builds the pair to persist after a refresh. The previous refresh
// token is kept when the backend does not rotate it.
func NextPair(token *oauth2.Token, previousRefresh string) cookie.Pair {
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return cookie.Pair{Access: token.AccessToken, Refresh: refresh}
}

// PeekClaims decodes the registered claims of a JWT without verifying it.
// Only used to enrich logs and derive expiry; never for authorization.
func PeekClaims(token string) *jwt.RegisteredClaims {
	if token == "" {
		return nil
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

// Subject returns the unverified "sub" or "user_id" claim of a JWT, if any
func Subject(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	switch v := claims["user_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
