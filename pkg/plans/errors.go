package plans

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan not found")
	ErrNoDefaultPlan            = errors.New("catalog has no default plan")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load plans")
)
