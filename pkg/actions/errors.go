package actions

import (
	"context"
	"errors"

	"conductor/pkg/github"
	"conductor/pkg/gitx"
	"conductor/pkg/session"
	"conductor/pkg/workspace"
)

// ErrTimeout marks an operation that ran out of time. Context deadline errors
// from lower layers classify to the same code.
var ErrTimeout = errors.New("operation timed out")

// Error codes reported to callers. Each names a condition the caller can act
// on, so remediation ("install the CLI") beats a generic failure.
const (
	CodeAdapterNotInstalled = "ADAPTER_NOT_INSTALLED"
	CodeWorkdirInvalid      = "WORKDIR_INVALID"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeRepoUnreachable     = "REPO_UNREACHABLE"
	CodeBranchNotFound      = "BRANCH_NOT_FOUND"
	CodeNothingToCommit     = "NOTHING_TO_COMMIT"
	CodePushRejected        = "PUSH_REJECTED"
	CodePRCreationFailed    = "PR_CREATION_FAILED"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeFinalizeInFlight    = "FINALIZE_IN_FLIGHT"
	CodeUnknown             = "UNKNOWN"
)

// Code maps an error onto its taxonomy code.
func Code(err error) string {
	switch {
	case errors.Is(err, session.ErrAdapterNotInstalled):
		return CodeAdapterNotInstalled
	case errors.Is(err, session.ErrWorkdirInvalid):
		return CodeWorkdirInvalid
	case errors.Is(err, session.ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, gitx.ErrRepoUnreachable):
		return CodeRepoUnreachable
	case errors.Is(err, gitx.ErrBranchNotFound):
		return CodeBranchNotFound
	case errors.Is(err, gitx.ErrNothingToCommit):
		return CodeNothingToCommit
	case errors.Is(err, gitx.ErrPushRejected):
		return CodePushRejected
	case errors.Is(err, github.ErrPRCreationFailed):
		return CodePRCreationFailed
	case errors.Is(err, ErrServiceUnavailable):
		return CodeServiceUnavailable
	case errors.Is(err, workspace.ErrFinalizeInFlight):
		return CodeFinalizeInFlight
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}

// IsRetryable reports whether the caller may reasonably retry the action
// as-is. The orchestrator itself never retries; that decision stays with the
// caller.
func IsRetryable(err error) bool {
	switch Code(err) {
	case CodeTimeout, CodePushRejected, CodeServiceUnavailable, CodeFinalizeInFlight:
		return true
	default:
		return false
	}
}
