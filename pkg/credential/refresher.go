package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OIDCRefresher exchanges a refresh_token for a new access_token
// against the upstream's OIDC token endpoint (spec §6 "Token
// storage": "grant_type=refresh_token").
type OIDCRefresher struct {
	endpoint   string
	httpClient *http.Client
}

// NewOIDCRefresher constructs an OIDCRefresher against endpoint.
func NewOIDCRefresher(endpoint string) *OIDCRefresher {
	return &OIDCRefresher{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type oidcRefreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id,omitempty"`
}

type oidcRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Refresh implements credential.TokenRefresher.
func (r *OIDCRefresher) Refresh(ctx context.Context, tokens Tokens) (Tokens, error) {
	if tokens.RefreshToken == "" {
		return Tokens{}, fmt.Errorf("credential: no refresh_token to exchange")
	}

	body, err := json.Marshal(oidcRefreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: tokens.RefreshToken,
		ClientID:     tokens.ClientID,
	})
	if err != nil {
		return Tokens{}, fmt.Errorf("credential: encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Tokens{}, fmt.Errorf("credential: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("credential: refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Tokens{}, fmt.Errorf("credential: refresh endpoint returned %d", resp.StatusCode)
	}

	var out oidcRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Tokens{}, fmt.Errorf("credential: decode refresh response: %w", err)
	}

	newTokens := tokens
	newTokens.AccessToken = out.AccessToken
	if out.RefreshToken != "" {
		newTokens.RefreshToken = out.RefreshToken
	}
	if out.ExpiresIn > 0 {
		newTokens.ExpiresAt = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return newTokens, nil
}
