package credits

// Credit prices per feature key. Fixed business content: a lookup miss is a
// caller error, not a config reload concern.
const (
	FeatureRefresh          = "refresh"
	FeatureCustomWOD        = "custom_wod"
	FeatureCoachingCue      = "coaching_cue"
	FeatureModification     = "modification"
	FeatureFormAnalysis     = "form_analysis"
	FeatureNutritionPlan    = "nutrition_plan"
	FeatureRecoverySession  = "recovery_session"
	FeatureCompetitionEntry = "competition_entry"
	FeaturePersonalTraining = "personal_training"
)

// DefaultCosts maps feature keys to their credit price.
func DefaultCosts() map[string]int64 {
	return map[string]int64{
		FeatureRefresh:          1,
		FeatureCustomWOD:        3,
		FeatureCoachingCue:      1,
		FeatureModification:     1,
		FeatureFormAnalysis:     4,
		FeatureNutritionPlan:    5,
		FeatureRecoverySession:  2,
		FeatureCompetitionEntry: 5,
		FeaturePersonalTraining: 8,
	}
}
