package ledger

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
	"github.com/angelmondragon/packfinderz-channelsync/pkg/enums"
)

// Trigger is something that happens to a ledger entry.
type Trigger string

const (
	TriggerReturn Trigger = "return"
	TriggerPayout Trigger = "payout"
)

// Action is the write a transition asks the service to perform.
type Action int

const (
	ActionNone Action = iota
	ActionCancel
	ActionRecordDeduction
	ActionPayOut
)

// Step is the outcome of applying a trigger to an entry.
type Step struct {
	Next    enums.VendorTransactionStatus
	Action  Action
	Outcome enums.ReturnLedgerOutcome
}

// Transition is the only place ledger status changes are decided.
//
//	sale      pending   --return--> cancelled          (cancel)
//	sale      paid_out  --return--> paid_out           (record deduction)
//	sale      cancelled --return--> cancelled          (none)
//	any       pending   --payout--> paid_out           (pay out)
//
// Everything else is a STATE_CONFLICT.
func Transition(txnType enums.VendorTransactionType, current enums.VendorTransactionStatus, trigger Trigger) (Step, error) {
	switch trigger {
	case TriggerReturn:
		if txnType != enums.VendorTransactionTypeSale {
			break
		}
		switch current {
		case enums.VendorTransactionStatusPending:
			return Step{Next: enums.VendorTransactionStatusCancelled, Action: ActionCancel, Outcome: enums.ReturnLedgerOutcomeSaleCancelled}, nil
		case enums.VendorTransactionStatusPaidOut:
			return Step{Next: current, Action: ActionRecordDeduction, Outcome: enums.ReturnLedgerOutcomeDeductionRecorded}, nil
		case enums.VendorTransactionStatusCancelled:
			return Step{Next: current, Action: ActionNone, Outcome: enums.ReturnLedgerOutcomeAlreadySettled}, nil
		}
	case TriggerPayout:
		if current == enums.VendorTransactionStatusPending {
			return Step{Next: enums.VendorTransactionStatusPaidOut, Action: ActionPayOut}, nil
		}
	}
	return Step{}, pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("%s %s cannot take %s", txnType, current, trigger))
}
