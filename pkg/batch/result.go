// Package batch collects per-item outcomes of a sync run into a summary.
package batch

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-channelsync/pkg/errors"
)

// Outcome classifies how a single item of a batch ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult is the result of processing one item (order, line, return, SKU batch).
type ItemResult struct {
	Key     string
	Outcome Outcome
	Reason  string
	Err     error
}

func Succeeded(key string) ItemResult {
	return ItemResult{Key: key, Outcome: OutcomeSucceeded}
}

func Skipped(key, reason string) ItemResult {
	return ItemResult{Key: key, Outcome: OutcomeSkipped, Reason: reason}
}

func Failed(key string, err error) ItemResult {
	return ItemResult{Key: key, Outcome: OutcomeFailed, Err: err}
}

// Summary aggregates the item results of a run.
type Summary struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []ItemResult
}

// Add records an item result.
func (s *Summary) Add(result ItemResult) {
	s.Processed++
	switch result.Outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
		s.Failures = append(s.Failures, result)
	}
}

// Merge folds another summary into s.
func (s *Summary) Merge(other Summary) {
	s.Processed += other.Processed
	s.Succeeded += other.Succeeded
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Failures = append(s.Failures, other.Failures...)
}

// HasFailures reports whether any item failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// FailureMessage renders the failed items as one line per item, capped at limit
// characters (0 means no cap).
func (s Summary) FailureMessage(limit int) string {
	if len(s.Failures) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.Failures))
	for _, failure := range s.Failures {
		code := pkgerrors.CodeOf(failure.Err)
		parts = append(parts, fmt.Sprintf("%s [%s]: %v", failure.Key, code, failure.Err))
	}
	return Truncate(strings.Join(parts, "; "), limit)
}

// Truncate caps msg at limit bytes without splitting a UTF-8 sequence.
func Truncate(msg string, limit int) string {
	if limit <= 0 || len(msg) <= limit {
		return msg
	}
	const marker = "..."
	if limit <= len(marker) {
		return msg[:limit]
	}
	cut := limit - len(marker)
	for cut > 0 && !isRuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + marker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
