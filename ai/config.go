package ai

import (
	"fmt"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// registryFile is the on-disk shape LoadRegistryFile expects: a TOML table
// of provider -> model id -> Model fields, mirroring the teacher's layered
// koanf-based config loading without its full local/repo config machinery.
type registryFileModel struct {
	Name            string   `koanf:"name"`
	API             string   `koanf:"api"`
	BaseURL         string   `koanf:"base_url"`
	Reasoning       bool     `koanf:"reasoning"`
	Modalities      []string `koanf:"modalities"`
	CostInput       float64  `koanf:"cost_input"`
	CostOutput      float64  `koanf:"cost_output"`
	CostCacheRead   float64  `koanf:"cost_cache_read"`
	CostCacheWrite  float64  `koanf:"cost_cache_write"`
	ContextWindow   int      `koanf:"context_window"`
	MaxOutputTokens int      `koanf:"max_output_tokens"`
}

type registryFile struct {
	Providers map[string]map[string]registryFileModel `koanf:"providers"`
}

// LoadRegistryFile reads a TOML file of additional Model entries and
// registers them, in the style of the teacher's config-file loading
// (koanf + toml parser + file provider), without needing any network access
// or the teacher's full config-discovery chain.
func LoadRegistryFile(path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return fmt.Errorf("ai: failed to load registry file %s: %w", path, err)
	}

	var parsed registryFile
	if err := k.Unmarshal("", &parsed); err != nil {
		return fmt.Errorf("ai: failed to parse registry file %s: %w", path, err)
	}

	for provider, models := range parsed.Providers {
		for id, rm := range models {
			RegisterModel(provider, Model{
				ID:              id,
				Name:            rm.Name,
				API:             API(rm.API),
				Provider:        provider,
				BaseURL:         rm.BaseURL,
				Reasoning:       rm.Reasoning,
				Modalities:      rm.Modalities,
				Cost: Cost{
					Input:      rm.CostInput,
					Output:     rm.CostOutput,
					CacheRead:  rm.CostCacheRead,
					CacheWrite: rm.CostCacheWrite,
				},
				ContextWindow:   rm.ContextWindow,
				MaxOutputTokens: rm.MaxOutputTokens,
			})
		}
	}
	return nil
}
