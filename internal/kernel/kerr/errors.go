package kerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for every user-triggerable failure. All of these are
// recoverable statuses returned to the caller; nothing in this list may
// escalate to a panic.
var (
	ErrInvalidCapability = errors.New("invalid capability")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTableFull         = errors.New("capability table full")
	ErrOutOfMemory       = errors.New("out of memory")
	ErrOverlap           = errors.New("mapping overlap")
	ErrTimeout           = errors.New("operation timed out")
	ErrEndpointDestroyed = errors.New("endpoint destroyed")
	ErrPageFault         = errors.New("page fault")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("resource not found")
)

// Numeric status codes reported on the syscall surface. General codes start
// at 1; capability-class codes start at 100.
const (
	CodeOK uint32 = 0

	CodeGeneral           uint32 = 1
	CodePermissionDenied  uint32 = 2
	CodeNotFound          uint32 = 3
	CodeTimeout           uint32 = 5
	CodeInvalidArgument   uint32 = 6
	CodeTableFull         uint32 = 7
	CodeOutOfMemory       uint32 = 8
	CodeOverlap           uint32 = 9
	CodePageFault         uint32 = 10
	CodeEndpointDestroyed uint32 = 11

	CodeInvalidCapability uint32 = 100
)

// Code maps an error to its syscall status code. Nil maps to CodeOK,
// unrecognized errors to CodeGeneral.
func Code(err error) uint32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidCapability):
		return CodeInvalidCapability
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrTableFull):
		return CodeTableFull
	case errors.Is(err, ErrOutOfMemory):
		return CodeOutOfMemory
	case errors.Is(err, ErrOverlap):
		return CodeOverlap
	case errors.Is(err, ErrPageFault):
		return CodePageFault
	case errors.Is(err, ErrEndpointDestroyed):
		return CodeEndpointDestroyed
	default:
		return CodeGeneral
	}
}

// Message returns a human-readable string for a status code.
func Message(code uint32) string {
	switch code {
	case CodeOK:
		return "OK"
	case CodeGeneral:
		return "General error"
	case CodePermissionDenied:
		return "Permission denied"
	case CodeNotFound:
		return "Resource not found"
	case CodeTimeout:
		return "Operation timed out"
	case CodeInvalidArgument:
		return "Invalid argument"
	case CodeTableFull:
		return "Capability table full"
	case CodeOutOfMemory:
		return "Out of memory"
	case CodeOverlap:
		return "Mapping overlap"
	case CodePageFault:
		return "Page fault"
	case CodeEndpointDestroyed:
		return "Endpoint destroyed"
	case CodeInvalidCapability:
		return "Invalid capability"
	default:
		return "Unknown error"
	}
}

// InvariantViolation is the payload carried by panics raised on
// kernel-internal corruption (double free, arena inconsistency). It is never
// returned as an error value: invariant violations are fatal, not statuses.
type InvariantViolation struct {
	Subsystem string
	Detail    string
}

func (v InvariantViolation) String() string {
	return fmt.Sprintf("kernel invariant violation in %s: %s", v.Subsystem, v.Detail)
}

// Invariant panics with an InvariantViolation. Call sites document the
// corruption they detected; recovery is not expected.
func Invariant(subsystem, format string, args ...interface{}) {
	panic(InvariantViolation{
		Subsystem: subsystem,
		Detail:    fmt.Sprintf(format, args...),
	})
}
