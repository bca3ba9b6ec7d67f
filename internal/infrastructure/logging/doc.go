// Package logging provides structured logging using uber/zap.
//
// Production mode emits JSON for machine parsing; development mode emits
// colored console output. The kernel and control plane share one Logger,
// split into named children per subsystem.
package logging
