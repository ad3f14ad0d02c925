package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/forgeworks/draftforge/pkg/models"
)

// Tier is a commercial class assigning content types, model, parallelism,
// and cache TTL.
type Tier string

// Known tiers, least to most capable.
const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// tierRank orders tiers for slot-pool priority. Higher rank dequeues first
// when a global worker slot frees up.
var tierRank = map[Tier]int{
	TierFree:       0,
	TierBasic:      1,
	TierPro:        2,
	TierEnterprise: 3,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the priority rank of the tier (unknown tiers rank lowest).
func (t Tier) Rank() int {
	return tierRank[t]
}

// TierDefinition describes what a tier is entitled to. Loaded once at startup
// and treated as immutable afterwards.
type TierDefinition struct {
	// AllowedTypes is the set of content types the tier may request.
	AllowedTypes []models.ContentType `yaml:"allowed_types"`

	// MonthlyQuota per content type. Informational only — not enforced at
	// request time.
	MonthlyQuota map[models.ContentType]int `yaml:"monthly_quota"`

	// Model is the opaque model identifier handed to the pipeline. It also
	// participates in cache fingerprints.
	Model string `yaml:"model"`

	// MaxParallelStages bounds both sibling pipeline stages and the per-user
	// concurrent job count. Must be one of 1, 2, 4, 8.
	MaxParallelStages int `yaml:"max_parallel_stages"`

	// CacheTTL is how long this tier's generated bundles stay cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Allows reports whether the tier may request the given content type.
func (d *TierDefinition) Allows(t models.ContentType) bool {
	return models.ContainsContentType(d.AllowedTypes, t)
}

// TierRegistry holds the loaded tier definitions. Read-only after load.
type TierRegistry struct {
	tiers map[Tier]*TierDefinition
}

// Get returns the definition for a tier. Unknown tiers fall back to free —
// the safest entitlement set.
func (r *TierRegistry) Get(t Tier) *TierDefinition {
	if def, ok := r.tiers[t]; ok {
		return def
	}
	return r.tiers[TierFree]
}

// Len returns the number of registered tiers.
func (r *TierRegistry) Len() int {
	return len(r.tiers)
}

// tierYAMLFile is the on-disk tiers file structure.
type tierYAMLFile struct {
	Tiers map[Tier]*TierDefinition `yaml:"tiers"`
}

// defaultTiers returns the built-in tier table. A YAML file at
// TIER_CONFIG_PATH is merged over these defaults, so deployments only state
// what differs.
func defaultTiers() map[Tier]*TierDefinition {
	return map[Tier]*TierDefinition{
		TierFree: {
			AllowedTypes:      []models.ContentType{models.ContentTypeBlog},
			MonthlyQuota:      map[models.ContentType]int{models.ContentTypeBlog: 5},
			Model:             "forge-lite-1",
			MaxParallelStages: 1,
			CacheTTL:          24 * time.Hour,
		},
		TierBasic: {
			AllowedTypes: []models.ContentType{
				models.ContentTypeBlog, models.ContentTypeSocial,
			},
			MonthlyQuota: map[models.ContentType]int{
				models.ContentTypeBlog:   50,
				models.ContentTypeSocial: 50,
			},
			Model:             "forge-standard-1",
			MaxParallelStages: 2,
			CacheTTL:          12 * time.Hour,
		},
		TierPro: {
			AllowedTypes: []models.ContentType{
				models.ContentTypeBlog, models.ContentTypeSocial,
				models.ContentTypeAudio,
			},
			MonthlyQuota: map[models.ContentType]int{
				models.ContentTypeBlog:   500,
				models.ContentTypeSocial: 500,
				models.ContentTypeAudio:  100,
			},
			Model:             "forge-pro-1",
			MaxParallelStages: 4,
			CacheTTL:          6 * time.Hour,
		},
		TierEnterprise: {
			AllowedTypes: []models.ContentType{
				models.ContentTypeBlog, models.ContentTypeSocial,
				models.ContentTypeAudio, models.ContentTypeVideo,
			},
			Model:             "forge-max-1",
			MaxParallelStages: 8,
			CacheTTL:          1 * time.Hour,
		},
	}
}

// LoadTierRegistry loads the tier registry: built-in defaults, optionally
// overridden by a YAML file. path == "" means defaults only.
func LoadTierRegistry(path string) (*TierRegistry, error) {
	tiers := defaultTiers()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading tier config %s: %w", path, err)
		}
		var file tierYAMLFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing tier config %s: %w", path, err)
		}
		for name, override := range file.Tiers {
			if !name.Valid() {
				return nil, fmt.Errorf("tier config %s: unknown tier %q", path, name)
			}
			base, ok := tiers[name]
			if !ok {
				tiers[name] = override
				continue
			}
			// File values win over built-in defaults.
			if err := mergo.Merge(override, base); err != nil {
				return nil, fmt.Errorf("merging tier %q: %w", name, err)
			}
			tiers[name] = override
		}
	}

	reg := &TierRegistry{tiers: tiers}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *TierRegistry) validate() error {
	if _, ok := r.tiers[TierFree]; !ok {
		return fmt.Errorf("tier registry must define the free tier")
	}
	for name, def := range r.tiers {
		if len(def.AllowedTypes) == 0 {
			return fmt.Errorf("tier %q allows no content types", name)
		}
		for _, t := range def.AllowedTypes {
			if !t.Valid() {
				return fmt.Errorf("tier %q: unknown content type %q", name, t)
			}
		}
		switch def.MaxParallelStages {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("tier %q: max_parallel_stages must be 1, 2, 4, or 8, got %d",
				name, def.MaxParallelStages)
		}
		if def.Model == "" {
			return fmt.Errorf("tier %q: model is required", name)
		}
		if def.CacheTTL <= 0 {
			return fmt.Errorf("tier %q: cache_ttl must be positive", name)
		}
	}
	return nil
}
