package entitlement

// FundedBy identifies which pool an allowed action draws from.
type FundedBy string

const (
	FundedByQuota     FundedBy = "quota"
	FundedByCredits   FundedBy = "credits"
	FundedByUnlimited FundedBy = "unlimited"
)

// DenialReason identifies why an action was denied. These are expected
// business outcomes carrying upgrade-path context, not system errors.
type DenialReason string

const (
	DenialNone                  DenialReason = ""
	DenialFeatureNotIncluded    DenialReason = "feature_not_included"
	DenialQuotaExceededNoCredit DenialReason = "quota_exceeded_no_credits"
)

// Decision is the resolver's verdict for one (user, action) pair. The
// decision is advisory: when FundedBy is credits, the accounting engine
// re-validates the balance atomically at deduction time, because this read
// can race with concurrent requests.
type Decision struct {
	Allowed  bool
	FundedBy FundedBy
	Denial   DenialReason

	// PlanID is the effective plan the decision was computed against.
	PlanID string

	// Remaining is the post-consumption quota projection when quota-funded,
	// -1 otherwise.
	Remaining int64

	// CreditsRequired and CreditsAvailable let callers prompt a purchase or
	// upgrade. Populated whenever the credit path was consulted.
	CreditsRequired  int64
	CreditsAvailable int64
}
