package entitlement

import (
	"github.com/wodworks/coachkit/pkg/credits"
	"github.com/wodworks/coachkit/pkg/plans"
)

// Action is a metered operation a user can request.
type Action string

const (
	ActionWorkout            Action = "workout"
	ActionRefresh            Action = "refresh"
	ActionCustomWOD          Action = "custom_wod"
	ActionCoachingCue        Action = "coaching_cue"
	ActionModification       Action = "modification"
	ActionNutritionPlan      Action = "nutrition_plan"
	ActionRecoverySession    Action = "recovery_session"
	ActionFormAnalysis       Action = "form_analysis"
	ActionCompetitionEntry   Action = "competition_entry"
	ActionPersonalTraining   Action = "personal_training"
	ActionProgressiveProgram Action = "progressive_program"
)

// actionSpec binds an action to its quota category, the plan feature flag
// that gates it (empty means available to every plan), and the credit feature
// key used when the action falls through to the credit path.
type actionSpec struct {
	Category  plans.Category
	Feature   plans.Feature
	CreditKey string
}

var actionSpecs = map[Action]actionSpec{
	ActionWorkout: {
		Category:  plans.CategoryWorkouts,
		CreditKey: credits.FeatureCustomWOD,
	},
	ActionCustomWOD: {
		Category:  plans.CategoryWorkouts,
		CreditKey: credits.FeatureCustomWOD,
	},
	ActionRefresh: {
		CreditKey: credits.FeatureRefresh,
	},
	ActionCoachingCue: {
		Category:  plans.CategoryCoachingCues,
		Feature:   plans.FeatureCoachingCues,
		CreditKey: credits.FeatureCoachingCue,
	},
	ActionModification: {
		Category:  plans.CategoryModifications,
		Feature:   plans.FeatureModifications,
		CreditKey: credits.FeatureModification,
	},
	ActionNutritionPlan: {
		Feature:   plans.FeatureNutrition,
		CreditKey: credits.FeatureNutritionPlan,
	},
	ActionRecoverySession: {
		Feature:   plans.FeatureRecovery,
		CreditKey: credits.FeatureRecoverySession,
	},
	ActionFormAnalysis: {
		Feature:   plans.FeatureFormAnalysis,
		CreditKey: credits.FeatureFormAnalysis,
	},
	ActionCompetitionEntry: {
		CreditKey: credits.FeatureCompetitionEntry,
	},
	ActionPersonalTraining: {
		CreditKey: credits.FeaturePersonalTraining,
	},
	ActionProgressiveProgram: {
		Category:  plans.CategoryWorkouts,
		Feature:   plans.FeatureProgressivePrograms,
		CreditKey: credits.FeatureCustomWOD,
	},
}

// Spec returns the action binding, false for unknown actions.
func (a Action) spec() (actionSpec, bool) {
	s, ok := actionSpecs[a]
	return s, ok
}

// Category returns the quota category the action counts against; empty for
// credit-only actions.
func (a Action) Category() plans.Category {
	return actionSpecs[a].Category
}

// CreditKey returns the credit cost-table key for the action.
func (a Action) CreditKey() string {
	return actionSpecs[a].CreditKey
}
