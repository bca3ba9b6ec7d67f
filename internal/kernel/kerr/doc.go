// Package kerr defines the kernel error taxonomy.
//
// Every user-triggerable failure is a sentinel error with a stable numeric
// status code for the syscall surface. Kernel-internal corruption is not an
// error value: it panics with an InvariantViolation, which halts the core.
//
// The split matters: a caller can always recover from a returned status, and
// nothing a caller does may trigger a panic.
package kerr
