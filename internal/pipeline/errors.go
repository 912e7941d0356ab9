package pipeline

import "errors"

var (
	// ErrPolicyDenied means the module or mode is disabled. Fail-fast: no
	// generation is attempted.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrWorkerUnavailable means the Worker backend failed or timed out.
	// The run aborts; a response is never fabricated.
	ErrWorkerUnavailable = errors.New("worker unavailable")

	// ErrAuditorUnavailable means auditing was required and the Auditor
	// backend failed. An unaudited response is never delivered.
	ErrAuditorUnavailable = errors.New("auditor unavailable")

	// ErrTimeout means the caller's deadline expired at a state boundary.
	ErrTimeout = errors.New("pipeline timeout")
)
