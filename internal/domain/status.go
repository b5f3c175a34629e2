package domain

import "fmt"

// Status is the outcome class of a single attempt.
type Status int

// The zero value is unknown so an unset outcome never reads as success.
const (
	StatusUnknown Status = iota
	StatusSuccess
	StatusFailure
	StatusTimedOut
)

var statusNames = map[Status]string{
	StatusUnknown:  "unknown",
	StatusSuccess:  "success",
	StatusFailure:  "failure",
	StatusTimedOut: "timed_out",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for k, v := range statusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// FailureKind classifies why an attempt failed.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureConnRefused       FailureKind = "connection_refused"
	FailureConnReset         FailureKind = "connection_reset"
	FailureUnreachable       FailureKind = "unreachable"
	FailurePermissionDenied  FailureKind = "permission_denied"
	FailureNameNotFound      FailureKind = "name_not_found"
	FailureNoRecords         FailureKind = "no_records"
	FailureDNSTemporary      FailureKind = "dns_temporary"
	FailureDNS               FailureKind = "dns_failure"
	FailureMalformedTarget   FailureKind = "malformed_target"
	FailureBind              FailureKind = "bind_failed"
	FailureInterfaceNotFound FailureKind = "interface_not_found"
	FailureHTTPServerError   FailureKind = "http_server_error"
	FailureHTTPClientError   FailureKind = "http_client_error"
	FailureUnsupportedKind   FailureKind = "unsupported_kind"
	FailureInternal          FailureKind = "internal"
	FailureUnknown           FailureKind = "unknown"
)

// State tracks a request through the scheduler:
// pending -> running(n) -> {succeeded | retrying -> running(n+1) | stopped_failure | cancelled}.
type State string

const (
	StatePending        State = "pending"
	StateRunning        State = "running"
	StateRetrying       State = "retrying"
	StateSucceeded      State = "succeeded"
	StateStoppedFailure State = "stopped_failure"
	StateCancelled      State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateStoppedFailure || s == StateCancelled
}

// RunStatus is the overall verdict of a run.
type RunStatus string

const (
	RunAllSuccess     RunStatus = "all_success"
	RunPartialFailure RunStatus = "partial_failure"
	RunAllFailure     RunStatus = "all_failure"
)

// Exit codes. 1 is left to fatal errors reported by the CLI itself.
const (
	ExitAllSuccess     = 0
	ExitFatal          = 1
	ExitPartialFailure = 2
	ExitAllFailure     = 3
)

func (r RunStatus) ExitCode() int {
	switch r {
	case RunAllSuccess:
		return ExitAllSuccess
	case RunPartialFailure:
		return ExitPartialFailure
	default:
		return ExitAllFailure
	}
}

func (r RunStatus) severity() int {
	switch r {
	case RunAllSuccess:
		return 0
	case RunPartialFailure:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of two run statuses.
func Worse(a, b RunStatus) RunStatus {
	if b.severity() > a.severity() {
		return b
	}
	return a
}
