package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"

	"agentcore/secret_manager"
)

const (
	AnthropicOAuthSecretName = "ANTHROPIC_OAUTH"
	AnthropicOAuthBetaHeaders = "oauth-2025-04-20,claude-code-20250219,interleaved-thinking-2025-05-14,fine-grained-tool-streaming-2025-05-14"

	anthropicTokenEndpoint = "https://console.anthropic.com/v1/oauth/token"
	anthropicClientID      = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	keyringService         = "agentcore"
)

// AnthropicOAuthCredentials mirrors the Anthropic CLI's token file shape.
type AnthropicOAuthCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// GetAnthropicOAuthCredentials returns stored OAuth credentials and whether
// OAuth should be used instead of an API key, refreshing proactively when
// the access token expires within 5 minutes.
func GetAnthropicOAuthCredentials(sm secret_manager.SecretManager) (*AnthropicOAuthCredentials, bool, error) {
	oauthJSON, err := sm.GetSecret(AnthropicOAuthSecretName)
	if err != nil {
		return nil, false, nil
	}

	var creds AnthropicOAuthCredentials
	if err := json.Unmarshal([]byte(oauthJSON), &creds); err != nil {
		return nil, false, fmt.Errorf("failed to parse OAuth credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, false, fmt.Errorf("OAuth credentials missing access token")
	}

	if creds.ExpiresAt > 0 && time.Now().Unix() > creds.ExpiresAt-300 {
		log.Info().Msg("anthropic OAuth token expiring soon, refreshing proactively")
		newCreds, err := RefreshAnthropicOAuthToken(creds.RefreshToken)
		if err != nil {
			return nil, false, fmt.Errorf("failed to refresh OAuth token: %w", err)
		}
		if storeErr := StoreAnthropicOAuthCredentials(newCreds); storeErr != nil {
			log.Warn().Err(storeErr).Msg("failed to store refreshed OAuth credentials")
		}
		return newCreds, true, nil
	}

	return &creds, true, nil
}

func RefreshAnthropicOAuthToken(refreshToken string) (*AnthropicOAuthCredentials, error) {
	reqBody := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     anthropicClientID,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequest("POST", anthropicTokenEndpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}

	var expiresAt int64
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + tokenResp.ExpiresIn
	}

	return &AnthropicOAuthCredentials{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func StoreAnthropicOAuthCredentials(creds *AnthropicOAuthCredentials) error {
	credsJSON, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return keyring.Set(keyringService, AnthropicOAuthSecretName, string(credsJSON))
}
