package enums

import "fmt"

// VendorTransactionType distinguishes payouts owed from amounts clawed back.
type VendorTransactionType string

const (
	VendorTransactionTypeSale            VendorTransactionType = "sale"
	VendorTransactionTypeReturnDeduction VendorTransactionType = "return_deduction"
)

var validVendorTransactionTypes = []VendorTransactionType{
	VendorTransactionTypeSale,
	VendorTransactionTypeReturnDeduction,
}

// String implements fmt.Stringer.
func (t VendorTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known VendorTransactionType.
func (t VendorTransactionType) IsValid() bool {
	for _, candidate := range validVendorTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseVendorTransactionType converts raw input into a VendorTransactionType.
func ParseVendorTransactionType(value string) (VendorTransactionType, error) {
	for _, candidate := range validVendorTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor transaction type %q", value)
}

// VendorTransactionStatus is the payout state of a ledger row.
type VendorTransactionStatus string

const (
	VendorTransactionStatusPending   VendorTransactionStatus = "pending"
	VendorTransactionStatusPaidOut   VendorTransactionStatus = "paid_out"
	VendorTransactionStatusCancelled VendorTransactionStatus = "cancelled"
)

var validVendorTransactionStatuses = []VendorTransactionStatus{
	VendorTransactionStatusPending,
	VendorTransactionStatusPaidOut,
	VendorTransactionStatusCancelled,
}

// String implements fmt.Stringer.
func (s VendorTransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known VendorTransactionStatus.
func (s VendorTransactionStatus) IsValid() bool {
	for _, candidate := range validVendorTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseVendorTransactionStatus converts raw input into a VendorTransactionStatus.
func ParseVendorTransactionStatus(value string) (VendorTransactionStatus, error) {
	for _, candidate := range validVendorTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vendor transaction status %q", value)
}
