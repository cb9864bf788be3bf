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
	GoogleCLIOAuthSecretName = "GOOGLE_GEMINI_CLI_OAUTH"

	googleCLITokenEndpoint = "https://oauth2.googleapis.com/token"
	googleCLIClientID      = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
)

// GoogleCLICredentials mirrors the Gemini CLI's cached OAuth token shape.
type GoogleCLICredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// GetGoogleCLIOAuthCredentials returns stored Gemini CLI backend credentials,
// refreshing proactively when the access token expires within 5 minutes, the
// same pattern GetAnthropicOAuthCredentials uses.
func GetGoogleCLIOAuthCredentials() (*GoogleCLICredentials, bool, error) {
	sm := secret_manager.KeyringSecretManager{}
	raw, err := sm.GetSecret(GoogleCLIOAuthSecretName)
	if err != nil {
		return nil, false, nil
	}

	var creds GoogleCLICredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, false, fmt.Errorf("failed to parse Gemini CLI OAuth credentials: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, false, fmt.Errorf("Gemini CLI OAuth credentials missing access token")
	}

	if creds.ExpiresAt > 0 && time.Now().Unix() > creds.ExpiresAt-300 {
		log.Info().Msg("gemini CLI OAuth token expiring soon, refreshing proactively")
		newCreds, err := RefreshGoogleCLIOAuthToken(creds.RefreshToken)
		if err != nil {
			return nil, false, fmt.Errorf("failed to refresh Gemini CLI OAuth token: %w", err)
		}
		if storeErr := StoreGoogleCLIOAuthCredentials(newCreds); storeErr != nil {
			log.Warn().Err(storeErr).Msg("failed to store refreshed Gemini CLI OAuth credentials")
		}
		return newCreds, true, nil
	}

	return &creds, true, nil
}

func RefreshGoogleCLIOAuthToken(refreshToken string) (*GoogleCLICredentials, error) {
	form := fmt.Sprintf("grant_type=refresh_token&refresh_token=%s&client_id=%s", refreshToken, googleCLIClientID)

	req, err := http.NewRequest("POST", googleCLITokenEndpoint, bytes.NewBufferString(form))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

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
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse refresh response: %w", err)
	}

	var expiresAt int64
	if tokenResp.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + tokenResp.ExpiresIn
	}

	return &GoogleCLICredentials{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func StoreGoogleCLIOAuthCredentials(creds *GoogleCLICredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return keyring.Set(keyringService, GoogleCLIOAuthSecretName, string(data))
}

// googleOAuthRoundTripper injects a bearer token on every request, used to
// authenticate the Gemini CLI backend (genai.ClientConfig has no bearer-token
// field of its own).
type googleOAuthRoundTripper struct {
	accessToken string
	underlying  http.RoundTripper
}

func (t googleOAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.accessToken)
	return t.underlying.RoundTrip(req)
}

func googleOAuthHTTPClient(accessToken string) *http.Client {
	return &http.Client{
		Timeout:   10 * time.Minute,
		Transport: googleOAuthRoundTripper{accessToken: accessToken, underlying: http.DefaultTransport},
	}
}
