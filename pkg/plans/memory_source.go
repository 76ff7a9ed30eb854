package plans

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// inMemSource implements Source over a static plan map.
type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory Source holding a deep copy of plans.
func NewInMemSource(plans map[string]Plan) Source {
	return &inMemSource{plans: clonePlans(plans)}
}

func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clonePlans(s.plans), nil
}

func clonePlans(plans map[string]Plan) map[string]Plan {
	out := make(map[string]Plan, len(plans))
	for id, plan := range plans {
		plan.Quotas = maps.Clone(plan.Quotas)
		plan.Features = slices.Clone(plan.Features)
		out[id] = plan
	}
	return out
}

// DefaultSeed returns the built-in tier catalog: the free tier plus the three
// paid coaching tiers. Used when no external plan source is configured.
func DefaultSeed() map[string]Plan {
	return map[string]Plan{
		"free": {
			ID:      "free",
			Name:    "Free",
			Default: true,
			Quotas: map[Category]int64{
				CategoryWorkouts: 10,
			},
		},
		"fitness": {
			ID:         "fitness",
			Name:       "Fitness",
			PriceCents: 999,
			Quotas: map[Category]int64{
				CategoryWorkouts:      50,
				CategoryCoachingCues:  100,
				CategoryModifications: 20,
			},
			Features:  []Feature{FeatureCoachingCues, FeatureModifications},
			TrialDays: 7,
		},
		"athlete": {
			ID:         "athlete",
			Name:       "Athlete",
			PriceCents: 1999,
			Quotas: map[Category]int64{
				CategoryWorkouts:      200,
				CategoryCoachingCues:  Unlimited,
				CategoryModifications: 100,
			},
			Features: []Feature{
				FeatureCoachingCues, FeatureModifications,
				FeatureNutrition, FeatureRecovery,
			},
			TrialDays: 14,
		},
		"pro": {
			ID:         "pro",
			Name:       "Pro",
			PriceCents: 4999,
			Quotas: map[Category]int64{
				CategoryWorkouts:      Unlimited,
				CategoryCoachingCues:  Unlimited,
				CategoryModifications: Unlimited,
			},
			Features: []Feature{
				FeatureCoachingCues, FeatureModifications,
				FeatureNutrition, FeatureRecovery,
				FeatureFormAnalysis, FeatureProgressivePrograms,
			},
			TrialDays: 14,
		},
	}
}
