package models

// FailureReason classifies a per-item replication failure.
type FailureReason string

const (
	ReasonInvalidRecord FailureReason = "invalid-record"
	ReasonAlreadyExists FailureReason = "already-exists"
	ReasonCreateFailed  FailureReason = "create-failed"
)

// ItemFailure is one record that could not be created on the target.
type ItemFailure struct {
	Position int // zero-based index in the batch
	Username string
	Reason   FailureReason
	Err      error
}

// Message returns the underlying error text, or "" when there is none.
func (f ItemFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// BatchResult aggregates the outcome of replicating one batch.
//
// Failures are in batch order. A batch never fails because of its items alone.
type BatchResult struct {
	Attempted int
	Succeeded int
	Failures  []ItemFailure
	DryRun    bool
}

// Failed returns the number of items that were not created.
func (b *BatchResult) Failed() int {
	return len(b.Failures)
}

// FailedUsernames returns the usernames of failed items in batch order.
func (b *BatchResult) FailedUsernames() []string {
	names := make([]string, len(b.Failures))
	for i, f := range b.Failures {
		names[i] = f.Username
	}
	return names
}

// CountByReason tallies failures per reason.
func (b *BatchResult) CountByReason() map[FailureReason]int {
	counts := make(map[FailureReason]int)
	for _, f := range b.Failures {
		counts[f.Reason]++
	}
	return counts
}
