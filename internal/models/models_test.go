package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePlanTier(t *testing.T) {
	tests := []struct {
		in    string
		want  PlanTier
		known bool
	}{
		{"Pro", PlanPro, true},
		{" growth ", PlanGrowth, true},
		{"FREE", PlanFree, true},
		{"Enterprise", PlanFree, false},
		{"", PlanFree, false},
	}
	for _, tc := range tests {
		got, ok := ParsePlanTier(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.known, ok, tc.in)
	}
}

func TestSubscriptionStatusEntitled(t *testing.T) {
	assert.True(t, StatusActive.Entitled())
	assert.True(t, StatusPastDue.Entitled())
	assert.True(t, StatusTrialing.Entitled())
	assert.False(t, StatusCancelled.Entitled())
	assert.False(t, StatusNone.Entitled())
	assert.False(t, SubscriptionStatus("paused").Entitled())
}

func TestPlanTierPaid(t *testing.T) {
	assert.False(t, PlanFree.Paid())
	assert.True(t, PlanGrowth.Paid())
	assert.True(t, PlanPro.Paid())
}
