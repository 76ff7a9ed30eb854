package plans

import (
	"context"
	"errors"
	"fmt"
)

// Source defines how plans are loaded into the catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog is the read-only plan registry. Plans are loaded once at
// construction and treated as immutable afterwards, so lookups need no
// locking.
type Catalog struct {
	plans     map[string]Plan
	defaultID string
}

// NewCatalog loads and validates plans from the source. A missing or
// ambiguous default plan is a configuration error: every signup depends on it.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plans: source is required")
	}

	loaded, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	if err := validatePlans(loaded); err != nil {
		return nil, err
	}

	defaultID := ""
	for id, plan := range loaded {
		if !plan.Default {
			continue
		}
		if defaultID != "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("multiple default plans: %s and %s", defaultID, id))
		}
		defaultID = id
	}
	if defaultID == "" {
		return nil, ErrNoDefaultPlan
	}

	return &Catalog{plans: loaded, defaultID: defaultID}, nil
}

// Plan returns the plan with the given ID. A miss indicates catalog
// corruption and is fatal to the calling request.
func (c *Catalog) Plan(id string) (Plan, error) {
	plan, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// DefaultPlan returns the zero-cost tier assigned at signup.
func (c *Catalog) DefaultPlan() Plan {
	return c.plans[c.defaultID]
}

// HasFeature reports whether the identified plan includes the feature.
// Fails closed on unknown plan IDs.
func (c *Catalog) HasFeature(planID string, f Feature) bool {
	plan, ok := c.plans[planID]
	if !ok {
		return false
	}
	return plan.HasFeature(f)
}

// All returns every plan keyed by ID. The map is a copy; mutating it does not
// affect the catalog.
func (c *Catalog) All() map[string]Plan {
	out := make(map[string]Plan, len(c.plans))
	for id, plan := range c.plans {
		out[id] = plan
	}
	return out
}

func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("catalog is empty"))
	}

	for id, plan := range plans {
		if plan.ID != id {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", id, plan.ID))
		}
		if plan.TrialDays < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", id, plan.TrialDays))
		}
		if plan.PriceCents < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative price: %d", id, plan.PriceCents))
		}
		for category, quota := range plan.Quotas {
			if quota < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has invalid quota for %s: %d", id, category, quota))
			}
		}
		if plan.Default && !plan.IsFree() {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("default plan %s must be free", id))
		}
	}
	return nil
}
