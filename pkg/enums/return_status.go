package enums

import "fmt"

// ReturnStatus tracks a Channel-initiated return.
type ReturnStatus string

const (
	ReturnStatusPending  ReturnStatus = "pending"
	ReturnStatusReceived ReturnStatus = "received"
	ReturnStatusRefunded ReturnStatus = "refunded"
	ReturnStatusRejected ReturnStatus = "rejected"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusPending,
	ReturnStatusReceived,
	ReturnStatusRefunded,
	ReturnStatusRejected,
}

// String implements fmt.Stringer.
func (s ReturnStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReturnStatus.
func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}

// ReturnLedgerOutcome records what a return did to the vendor ledger.
type ReturnLedgerOutcome string

const (
	ReturnLedgerOutcomeSaleCancelled     ReturnLedgerOutcome = "sale_cancelled"
	ReturnLedgerOutcomeDeductionRecorded ReturnLedgerOutcome = "deduction_recorded"
	ReturnLedgerOutcomeAlreadySettled    ReturnLedgerOutcome = "already_settled"
	ReturnLedgerOutcomeNoSale            ReturnLedgerOutcome = "no_sale"
	ReturnLedgerOutcomeUnresolved        ReturnLedgerOutcome = "order_unresolved"
)

// String implements fmt.Stringer.
func (o ReturnLedgerOutcome) String() string {
	return string(o)
}
