package plans

// Category is a metered usage category with a monthly allowance.
type Category string

const (
	CategoryWorkouts      Category = "workouts"
	CategoryCoachingCues  Category = "coaching_cues"
	CategoryModifications Category = "modifications"
)

const (
	// Unlimited marks a quota with no monthly cap (-1 chosen for SQL compatibility).
	Unlimited int64 = -1
)

// Feature is a plan capability flag.
type Feature string

const (
	FeatureCoachingCues        Feature = "coaching_cues"
	FeatureModifications       Feature = "modifications"
	FeatureNutrition           Feature = "nutrition"
	FeatureRecovery            Feature = "recovery"
	FeatureFormAnalysis        Feature = "form_analysis"
	FeatureProgressivePrograms Feature = "progressive_programs"
)
