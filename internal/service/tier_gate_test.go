package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/nexora/internal/models"
)

func TestTierGate(t *testing.T) {
	gate := NewTierGate(DefaultCatalog())

	tests := []struct {
		tier    models.PlanTier
		model   string
		wantErr error
	}{
		{models.PlanFree, "dall-e-2", nil},
		{models.PlanFree, "dall-e-3", ErrPlanRequired},
		{models.PlanFree, "gpt-4o", ErrPlanRequired},
		{models.PlanFree, "luma-ray", ErrPlanRequired},
		{models.PlanFree, "higgsfield-dop", ErrPlanRequired},
		{models.PlanGrowth, "dall-e-3", nil},
		{models.PlanPro, "higgsfield-dop", nil},
		{models.PlanPro, "midjourney", ErrUnknownModel},
	}
	for _, tc := range tests {
		model, err := gate.CheckAccess(tc.tier, tc.model)
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr, "%s/%s", tc.tier, tc.model)
			continue
		}
		require.NoError(t, err, "%s/%s", tc.tier, tc.model)
		assert.Equal(t, tc.model, model.ID)
	}
}

func TestPlanRequiredMessageNamesFeature(t *testing.T) {
	_, err := NewTierGate(DefaultCatalog()).CheckAccess(models.PlanFree, "higgsfield-dop")
	var planErr *PlanRequiredError
	require.True(t, errors.As(err, &planErr))
	assert.Equal(t, "Director Studio requires a paid plan", err.Error())
}

func TestCatalogDefaultsMatchKind(t *testing.T) {
	catalog := DefaultCatalog()
	for _, kind := range []models.GenerationKind{models.KindImage, models.KindVideo, models.KindDirector, models.KindChat} {
		id, err := catalog.Resolve(kind, "")
		require.NoError(t, err)
		model, ok := catalog.Lookup(id)
		require.True(t, ok, id)
		assert.Equal(t, kind, model.Kind)
	}
}

func TestCatalogCostsArePositive(t *testing.T) {
	list := DefaultCatalog().List()
	require.Len(t, list, 10)
	for _, m := range list {
		assert.Positive(t, m.Cost, m.ID)
		assert.NotEmpty(t, m.ProviderModel, m.ID)
	}
}
