// Package cap implements the capability system: unforgeable, attenuable
// authorization tokens naming kernel objects.
//
// User code only ever holds slot indices into its own per-process table; the
// kernel resolves and validates every use. Derivation records an explicit
// parent→child edge in a global arena, and derived rights are always a
// subset of the parent's (monotonic attenuation). Revocation walks child
// links transitively across processes; the graph is a tree by construction,
// since a capability can only be derived from one already-held parent.
//
// Objects (endpoints, memory regions, interrupt lines, process controls) are
// refcounted by live entries. Releasing the last entry fires the object's
// Release hook, which is how a revoked endpoint fails its blocked callers
// and a revoked region returns its frames.
package cap
