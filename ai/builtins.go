package ai

// init seeds the process-wide model registry with the catalog entries this
// module ships out of the box. Callers may add more via RegisterModel(s) or
// LoadRegistryFile; re-registering any of these ids replaces the entry.
func init() {
	RegisterModels("anthropic", map[string]Model{
		"claude-opus-4-20250514": {
			ID: "claude-opus-4-20250514", Name: "Claude Opus 4", API: APIAnthropic,
			Provider: "anthropic", Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 15, Output: 75, CacheRead: 1.5, CacheWrite: 18.75},
			ContextWindow: 200_000, MaxOutputTokens: 32_000,
			Compat: map[string]bool{"xhigh_thinking": true},
		},
		"claude-sonnet-4-20250514": {
			ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", API: APIAnthropic,
			Provider: "anthropic", Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
			ContextWindow: 200_000, MaxOutputTokens: 64_000,
			Compat: map[string]bool{"xhigh_thinking": true},
		},
		"claude-3-5-haiku-20241022": {
			ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", API: APIAnthropic,
			Provider: "anthropic", Reasoning: false, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 0.8, Output: 4, CacheRead: 0.08, CacheWrite: 1},
			ContextWindow: 200_000, MaxOutputTokens: 8_192,
		},
	})

	RegisterModels("openai", map[string]Model{
		"gpt-4.1": {
			ID: "gpt-4.1", Name: "GPT-4.1", API: APIOpenAIChat, Provider: "openai",
			Reasoning: false, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 2, Output: 8, CacheRead: 0.5},
			ContextWindow: 1_047_576, MaxOutputTokens: 32_768,
		},
		"o4-mini": {
			ID: "o4-mini", Name: "o4-mini", API: APIOpenAIResponses, Provider: "openai",
			Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 1.1, Output: 4.4, CacheRead: 0.275},
			ContextWindow: 200_000, MaxOutputTokens: 100_000,
		},
	})

	RegisterModels("azure", map[string]Model{
		"gpt-4o": {
			ID: "gpt-4o", Name: "Azure GPT-4o", API: APIAzureResponses, Provider: "azure",
			Reasoning: false, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 2.5, Output: 10, CacheRead: 1.25},
			ContextWindow: 128_000, MaxOutputTokens: 16_384,
		},
	})

	RegisterModels("openai-codex", map[string]Model{
		"codex-mini-latest": {
			ID: "codex-mini-latest", Name: "Codex Mini", API: APICodexResponses, Provider: "openai-codex",
			Reasoning: true, Modalities: []string{"text"},
			Cost: Cost{Input: 1.5, Output: 6},
			ContextWindow: 200_000, MaxOutputTokens: 100_000,
		},
	})

	RegisterModels("google", map[string]Model{
		"gemini-2.5-pro": {
			ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", API: APIGoogleGenAI, Provider: "google",
			Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 1.25, Output: 10, CacheRead: 0.31},
			ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		},
		"gemini-2.5-flash": {
			ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", API: APIGoogleGenAI, Provider: "google",
			Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 0.3, Output: 2.5, CacheRead: 0.075},
			ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		},
	})

	RegisterModels("google-vertex", map[string]Model{
		"gemini-2.5-pro": {
			ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro (Vertex)", API: APIGoogleVertex, Provider: "google-vertex",
			Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 1.25, Output: 10, CacheRead: 0.31},
			ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		},
	})

	RegisterModels("google-gemini-cli", map[string]Model{
		"gemini-2.5-pro": {
			ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro (CLI OAuth)", API: APIGoogleGeminiCLI, Provider: "google-gemini-cli",
			Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 0, Output: 0},
			ContextWindow: 1_048_576, MaxOutputTokens: 65_536,
		},
	})

	RegisterModels("bedrock", map[string]Model{
		"anthropic.claude-sonnet-4-20250514-v1:0": {
			ID: "anthropic.claude-sonnet-4-20250514-v1:0", Name: "Claude Sonnet 4 (Bedrock)", API: APIBedrock,
			Provider: "bedrock", Reasoning: true, Modalities: []string{"text", "image"},
			Cost: Cost{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
			ContextWindow: 200_000, MaxOutputTokens: 64_000,
		},
	})

	RegisterModels("echo", map[string]Model{
		"echo-1": {
			ID: "echo-1", Name: "Echo", API: APIEcho, Provider: "echo",
			Reasoning: false, Modalities: []string{"text"},
			Cost: Cost{}, ContextWindow: 1_000_000, MaxOutputTokens: 1_000_000,
		},
	})
}
