package secret_manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrSecretNotFound is returned when a secret is not found in any secret manager.
var ErrSecretNotFound = errors.New("secret not found")

type SecretManager interface {
	GetSecret(secretName string) (string, error)
	GetType() SecretManagerType
}

type SecretManagerType string

const (
	EnvSecretManagerType          SecretManagerType = "env"
	MockSecretManagerType         SecretManagerType = "mock"
	KeyringSecretManagerType      SecretManagerType = "keyring"
	CompositeSecretManagerType    SecretManagerType = "composite"
	InterceptingSecretManagerType SecretManagerType = "intercepting"
)

// EnvSecretManager resolves secrets straight from the process environment
// using the exact provider-specific names (e.g. ANTHROPIC_API_KEY), matching
// the env vars real provider SDKs and CLIs already expect.
type EnvSecretManager struct{}

func (e EnvSecretManager) GetSecret(secretName string) (string, error) {
	secret := os.Getenv(secretName)
	if secret == "" {
		return "", fmt.Errorf("%w: %s not found in environment", ErrSecretNotFound, secretName)
	}
	return secret, nil
}

func (e EnvSecretManager) GetType() SecretManagerType {
	return EnvSecretManagerType
}

type KeyringSecretManager struct{}

func (k KeyringSecretManager) GetSecret(secretName string) (string, error) {
	secret, err := keyring.Get("agentcore", secretName)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s not found in keyring", ErrSecretNotFound, secretName)
		}
		return "", fmt.Errorf("error retrieving %s from keyring: %w", secretName, err)
	}
	return secret, nil
}

func (k KeyringSecretManager) GetType() SecretManagerType {
	return KeyringSecretManagerType
}

// CompositeSecretManager tries each manager in order and returns the first
// success, implementing the auth-resolution chain (caller api_key is tried
// by the adapter before ever reaching this; this chain is env -> keyring ->
// whatever else the caller configures).
type CompositeSecretManager struct {
	managers []SecretManager
}

func NewCompositeSecretManager(managers []SecretManager) *CompositeSecretManager {
	return &CompositeSecretManager{managers: managers}
}

func (c CompositeSecretManager) GetSecret(secretName string) (string, error) {
	var lastErr error
	for _, manager := range c.managers {
		secret, err := manager.GetSecret(secretName)
		if err == nil {
			return secret, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("secret %s not found in any secret manager: %v", secretName, lastErr)
	}
	return "", fmt.Errorf("no secret managers configured")
}

func (c CompositeSecretManager) MarshalJSON() ([]byte, error) {
	managers := make([]SecretManagerContainer, len(c.managers))
	for i, manager := range c.managers {
		managers[i] = SecretManagerContainer{SecretManager: manager}
	}
	return json.Marshal(struct {
		Managers []SecretManagerContainer `json:"managers"`
	}{Managers: managers})
}

func (c *CompositeSecretManager) UnmarshalJSON(data []byte) error {
	var container struct {
		Containers []SecretManagerContainer `json:"managers"`
	}
	if err := json.Unmarshal(data, &container); err != nil {
		return err
	}

	c.managers = make([]SecretManager, len(container.Containers))
	for i, container := range container.Containers {
		c.managers[i] = container.SecretManager
	}

	return nil
}

func (c CompositeSecretManager) GetType() SecretManagerType {
	return CompositeSecretManagerType
}

// MockSecretManager always returns "fake secret" for any *_API_KEY name, for
// deterministic unit tests that never touch the network or the environment.
type MockSecretManager struct{}

func (e MockSecretManager) GetSecret(secretName string) (string, error) {
	if strings.HasSuffix(secretName, "_API_KEY") {
		return "fake secret", nil
	}
	return "", fmt.Errorf("%w: %s not found in mock", ErrSecretNotFound, secretName)
}

func (e MockSecretManager) GetType() SecretManagerType {
	return MockSecretManagerType
}

// SecretManagerContainer wraps a SecretManager for polymorphic JSON
// marshaling keyed by its GetType().
type SecretManagerContainer struct {
	SecretManager
}

func (sc SecretManagerContainer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string
		Manager SecretManager
	}{
		Type:    string(sc.SecretManager.GetType()),
		Manager: sc.SecretManager,
	})
}

func (sc *SecretManagerContainer) UnmarshalJSON(data []byte) error {
	var v struct {
		Type    string
		Manager json.RawMessage
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v.Type {
	case string(EnvSecretManagerType):
		var esm *EnvSecretManager
		if err := json.Unmarshal(v.Manager, &esm); err != nil {
			return err
		}
		sc.SecretManager = esm
	case string(MockSecretManagerType):
		var msm *MockSecretManager
		if err := json.Unmarshal(v.Manager, &msm); err != nil {
			return err
		}
		sc.SecretManager = msm
	case string(KeyringSecretManagerType):
		var ksm *KeyringSecretManager
		if err := json.Unmarshal(v.Manager, &ksm); err != nil {
			return err
		}
		sc.SecretManager = ksm
	case string(CompositeSecretManagerType):
		var csm *CompositeSecretManager
		if err := json.Unmarshal(v.Manager, &csm); err != nil {
			return err
		}
		sc.SecretManager = csm
	case string(InterceptingSecretManagerType):
		var ism *InterceptingSecretManager
		if err := json.Unmarshal(v.Manager, &ism); err != nil {
			return err
		}
		sc.SecretManager = ism
	default:
		return fmt.Errorf("unknown SecretManager type: %s", v.Type)
	}

	return nil
}

// ProviderEnvVar returns the primary environment variable name expected to
// hold a provider's API key, per the auth table: anthropic, openai, google
// GenAI, openai-codex, github-copilot, and OpenAI-compatible providers
// (groq/xai/mistral/...) each resolve through a distinct env var. Providers
// with no caller-suppliable API key (bedrock's SigV4 chain, vertex's ADC,
// the Gemini CLI backend's OAuth flow) return "".
func ProviderEnvVar(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google", "google-genai":
		return "GOOGLE_API_KEY"
	case "google-vertex", "bedrock", "google-gemini-cli":
		return ""
	case "openai-codex":
		return "OPENAI_CODEX_API_KEY"
	case "azure":
		return "AZURE_OPENAI_API_KEY"
	case "github-copilot":
		return "GITHUB_COPILOT_TOKEN"
	case "groq":
		return "GROQ_API_KEY"
	case "xai":
		return "XAI_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	default:
		return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	}
}

// AnthropicFallbackEnvVar is Anthropic's secondary env var fallback
// (PI_API_KEY), tried after ANTHROPIC_API_KEY per the auth table.
const AnthropicFallbackEnvVar = "PI_API_KEY"
