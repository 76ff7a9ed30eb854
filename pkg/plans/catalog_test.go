package plans_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wodworks/coachkit/pkg/plans"
)

func seedCatalog(t *testing.T) *plans.Catalog {
	t.Helper()
	catalog, err := plans.NewCatalog(context.Background(), plans.NewInMemSource(plans.DefaultSeed()))
	require.NoError(t, err)
	return catalog
}

func TestNewCatalog_DefaultSeed(t *testing.T) {
	t.Parallel()

	catalog := seedCatalog(t)

	assert.Len(t, catalog.All(), 4)
	assert.Equal(t, "free", catalog.DefaultPlan().ID)
	assert.True(t, catalog.DefaultPlan().IsFree())

	pro, err := catalog.Plan("pro")
	require.NoError(t, err)
	quota, ok := pro.Quota(plans.CategoryWorkouts)
	require.True(t, ok)
	assert.Equal(t, plans.Unlimited, quota)

	_, err = catalog.Plan("enterprise")
	assert.ErrorIs(t, err, plans.ErrPlanNotFound)
}

func TestCatalog_HasFeature(t *testing.T) {
	t.Parallel()

	catalog := seedCatalog(t)

	assert.True(t, catalog.HasFeature("pro", plans.FeatureFormAnalysis))
	assert.False(t, catalog.HasFeature("fitness", plans.FeatureFormAnalysis))
	assert.False(t, catalog.HasFeature("no-such-plan", plans.FeatureCoachingCues),
		"unknown plans fail closed")
}

func TestNewCatalog_Validation(t *testing.T) {
	t.Parallel()

	base := func() map[string]plans.Plan {
		return map[string]plans.Plan{
			"free": {ID: "free", Name: "Free", Default: true},
		}
	}

	tests := []struct {
		name    string
		mutate  func(map[string]plans.Plan)
		wantErr error
	}{
		{
			name:    "empty catalog",
			mutate:  func(m map[string]plans.Plan) { delete(m, "free") },
			wantErr: plans.ErrInvalidPlanConfiguration,
		},
		{
			name: "no default plan",
			mutate: func(m map[string]plans.Plan) {
				p := m["free"]
				p.Default = false
				m["free"] = p
			},
			wantErr: plans.ErrNoDefaultPlan,
		},
		{
			name: "multiple default plans",
			mutate: func(m map[string]plans.Plan) {
				m["basic"] = plans.Plan{ID: "basic", Name: "Basic", Default: true}
			},
			wantErr: plans.ErrInvalidPlanConfiguration,
		},
		{
			name: "paid default plan",
			mutate: func(m map[string]plans.Plan) {
				p := m["free"]
				p.PriceCents = 100
				m["free"] = p
			},
			wantErr: plans.ErrInvalidPlanConfiguration,
		},
		{
			name: "negative trial days",
			mutate: func(m map[string]plans.Plan) {
				m["pro"] = plans.Plan{ID: "pro", Name: "Pro", PriceCents: 100, TrialDays: -1}
			},
			wantErr: plans.ErrInvalidPlanConfiguration,
		},
		{
			name: "quota below unlimited sentinel",
			mutate: func(m map[string]plans.Plan) {
				m["pro"] = plans.Plan{
					ID: "pro", Name: "Pro", PriceCents: 100,
					Quotas: map[plans.Category]int64{plans.CategoryWorkouts: -2},
				}
			},
			wantErr: plans.ErrInvalidPlanConfiguration,
		},
		{
			name: "id mismatch with map key",
			mutate: func(m map[string]plans.Plan) {
				m["pro"] = plans.Plan{ID: "athlete", Name: "Pro", PriceCents: 100}
			},
			wantErr: plans.ErrInvalidPlanConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			seed := base()
			tt.mutate(seed)

			_, err := plans.NewCatalog(context.Background(), plans.NewInMemSource(seed))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPlan_TrialEndsAt(t *testing.T) {
	t.Parallel()

	catalog := seedCatalog(t)
	started := mustTime(t, "2025-06-01T09:00:00Z")

	athlete, err := catalog.Plan("athlete")
	require.NoError(t, err)
	assert.Equal(t, started.AddDate(0, 0, 14), athlete.TrialEndsAt(started))

	free := catalog.DefaultPlan()
	assert.Equal(t, started, free.TrialEndsAt(started), "plans without trial return the start time")
}
