package service

import (
	"fmt"

	"github.com/digkill/nexora/internal/models"
)

// TierGate decides whether a plan tier may use a model. It never touches credits.
type TierGate struct {
	catalog *Catalog
}

func NewTierGate(catalog *Catalog) *TierGate {
	return &TierGate{catalog: catalog}
}

func (g *TierGate) Catalog() *Catalog {
	return g.catalog
}

// CheckAccess returns the catalog entry when tier may use modelID.
func (g *TierGate) CheckAccess(tier models.PlanTier, modelID string) (Model, error) {
	model, ok := g.catalog.Lookup(modelID)
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if model.Requires == TierPaid && !tier.Paid() {
		return Model{}, &PlanRequiredError{Feature: model.Feature}
	}
	return model, nil
}
