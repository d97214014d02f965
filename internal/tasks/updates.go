package tasks

import (
	"fmt"

	"github.com/desertthunder/umx/internal/models"
)

// ProgressUpdate represents a progress event during a migration.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data, [ItemOutcome] while creating users
}

// ItemOutcome is the per-record payload of a [CreateUsers] update.
type ItemOutcome struct {
	Username string
	Created  bool
	Failure  *models.ItemFailure
}

// Operation phase enumeration
type Phase int

const (
	ConnectSource Phase = iota
	FetchUsers
	WriteExport
	ConnectTarget
	CreateUsers
	Complete
)

func (p Phase) String() string {
	switch p {
	case ConnectSource:
		return "connect_source"
	case FetchUsers:
		return "fetch_users"
	case WriteExport:
		return "write_export"
	case ConnectTarget:
		return "connect_target"
	case CreateUsers:
		return "create_users"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func connectSourceUpdate(addr string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ConnectSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Connecting to source device %s...", addr),
	}
}

func fetchUsersUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchUsers,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Fetching users from %s...", path),
	}
}

func fetchedUsersUpdate(n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchUsers,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetched %d users", n),
	}
}

func loadedUsersUpdate(n int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchUsers,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded %d users from %s", n, path),
	}
}

func exportWrittenUpdate(n int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteExport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✓ Exported %d users to %s", n, path),
	}
}

func exportFailedUpdate(path string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteExport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("✗ Export to %s failed: %v", path, err),
	}
}

func connectTargetUpdate(addr string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ConnectTarget,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Connecting to target device %s...", addr),
	}
}

func createUserUpdate(step, total int, outcome ItemOutcome) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s", step, total, outcome.Username)
	if outcome.Failure != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s (%s)", step, total, outcome.Username, outcome.Failure.Reason)
	}
	return ProgressUpdate{
		Phase:   CreateUsers,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    outcome,
	}
}

func completeUpdate(b *models.BatchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    b.Succeeded,
		Total:   b.Attempted,
		Message: fmt.Sprintf("Created %d of %d users, %d failed", b.Succeeded, b.Attempted, b.Failed()),
		Data:    b,
	}
}
