package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates ledger entry types.
type Kind string

const (
	KindCreditGrant     Kind = "credit_grant"
	KindCreditDeduction Kind = "credit_deduction"
	KindUsageRecord     Kind = "usage_record"
)

// Entry is a single append-only ledger record. Credit kinds carry a signed
// Amount (positive for grants, negative for deductions); usage records carry
// request metadata instead. Entries are never updated or deleted - refunds
// append a compensating grant that references the original via Compensates.
type Entry struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Kind        Kind
	Amount      int64
	Feature     string
	Compensates *uuid.UUID
	Metadata    map[string]any
	CreatedAt   time.Time
}

// IsCreditKind reports whether the entry affects the spendable balance.
func (e *Entry) IsCreditKind() bool {
	return e.Kind == KindCreditGrant || e.Kind == KindCreditDeduction
}

// Stats aggregates ledger totals for administrative reporting.
type Stats struct {
	TotalGranted   int64 // sum of all credit_grant amounts
	TotalDeducted  int64 // absolute sum of all credit_deduction amounts
	Outstanding    int64 // granted minus deducted across all users
	UsageRecords   int64 // count of usage_record entries
	CreditEntries  int64 // count of credit_grant + credit_deduction entries
	DistinctUsers  int64
}
