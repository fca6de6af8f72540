package service

import (
	"sort"

	"github.com/digkill/nexora/internal/models"
)

type TierRequirement string

const (
	TierAny  TierRequirement = "any"
	TierPaid TierRequirement = "paid"
)

const (
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderKIE        = "kie"
	ProviderReplicate  = "replicate"
	ProviderHiggsfield = "higgsfield"
)

// Model is one entry of the static catalog.
type Model struct {
	ID            string                `json:"id"`
	Kind          models.GenerationKind `json:"kind"`
	Provider      string                `json:"provider"`
	ProviderModel string                `json:"-"`
	Feature       string                `json:"feature"`
	Cost          int64                 `json:"cost"`
	Requires      TierRequirement       `json:"requires"`
}

type Catalog struct {
	models   map[string]Model
	defaults map[models.GenerationKind]string
}

func NewCatalog(entries []Model, defaults map[models.GenerationKind]string) *Catalog {
	c := &Catalog{
		models:   make(map[string]Model, len(entries)),
		defaults: defaults,
	}
	for _, m := range entries {
		c.models[m.ID] = m
	}
	return c
}

// DefaultCatalog is the single price and tier table shared by every endpoint.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Model{
		{ID: "dall-e-2", Kind: models.KindImage, Provider: ProviderOpenAI, ProviderModel: "dall-e-2", Feature: "DALL-E 2", Cost: 5, Requires: TierAny},
		{ID: "dall-e-3", Kind: models.KindImage, Provider: ProviderOpenAI, ProviderModel: "dall-e-3", Feature: "DALL-E 3", Cost: 15, Requires: TierPaid},
		{ID: "flux-2", Kind: models.KindImage, Provider: ProviderKIE, ProviderModel: "flux-2/pro-text-to-image", Feature: "Flux 2", Cost: 8, Requires: TierAny},
		{ID: "nano-banana-pro", Kind: models.KindImage, Provider: ProviderKIE, ProviderModel: "nano-banana-pro", Feature: "Nano Banana Pro", Cost: 10, Requires: TierPaid},
		{ID: "minimax-video-01", Kind: models.KindVideo, Provider: ProviderReplicate, ProviderModel: "minimax/video-01", Feature: "Minimax video", Cost: 40, Requires: TierAny},
		{ID: "luma-ray", Kind: models.KindVideo, Provider: ProviderReplicate, ProviderModel: "luma/ray", Feature: "Luma", Cost: 60, Requires: TierPaid},
		{ID: "higgsfield-dop", Kind: models.KindDirector, Provider: ProviderHiggsfield, ProviderModel: "dop-turbo", Feature: "Director Studio", Cost: 100, Requires: TierPaid},
		{ID: "gpt-4o-mini", Kind: models.KindChat, Provider: ProviderOpenAI, ProviderModel: "gpt-4o-mini", Feature: "GPT-4o mini", Cost: 1, Requires: TierAny},
		{ID: "gpt-4o", Kind: models.KindChat, Provider: ProviderOpenAI, ProviderModel: "gpt-4o", Feature: "GPT-4o", Cost: 3, Requires: TierPaid},
		{ID: "gemini-2.5-flash", Kind: models.KindChat, Provider: ProviderGemini, ProviderModel: "gemini-2.5-flash", Feature: "Gemini 2.5 Flash", Cost: 1, Requires: TierAny},
	}, map[models.GenerationKind]string{
		models.KindImage:    "dall-e-2",
		models.KindVideo:    "minimax-video-01",
		models.KindDirector: "higgsfield-dop",
		models.KindChat:     "gpt-4o-mini",
	})
}

func (c *Catalog) Lookup(id string) (Model, bool) {
	m, ok := c.models[id]
	return m, ok
}

// Resolve returns the requested model, or the kind's default when id is empty.
func (c *Catalog) Resolve(kind models.GenerationKind, id string) (string, error) {
	if id == "" {
		def, ok := c.defaults[kind]
		if !ok {
			return "", &ValidationError{Field: "model", Reason: "no default model for " + string(kind)}
		}
		return def, nil
	}
	return id, nil
}

// List returns the catalog ordered by kind, then cost.
func (c *Catalog) List() []Model {
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Cost != out[j].Cost {
			return out[i].Cost < out[j].Cost
		}
		return out[i].ID < out[j].ID
	})
	return out
}
