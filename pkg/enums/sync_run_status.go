package enums

import "fmt"

// SyncRunStatus summarises a single batch run.
type SyncRunStatus string

const (
	SyncRunStatusRunning SyncRunStatus = "running"
	SyncRunStatusSuccess SyncRunStatus = "success"
	SyncRunStatusPartial SyncRunStatus = "partial"
	SyncRunStatusError   SyncRunStatus = "error"
)

var validSyncRunStatuses = []SyncRunStatus{
	SyncRunStatusRunning,
	SyncRunStatusSuccess,
	SyncRunStatusPartial,
	SyncRunStatusError,
}

// String implements fmt.Stringer.
func (s SyncRunStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SyncRunStatus.
func (s SyncRunStatus) IsValid() bool {
	for _, candidate := range validSyncRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSyncRunStatus converts raw input into a SyncRunStatus.
func ParseSyncRunStatus(value string) (SyncRunStatus, error) {
	for _, candidate := range validSyncRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync run status %q", value)
}
