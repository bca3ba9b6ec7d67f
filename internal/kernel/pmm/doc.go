// Package pmm implements the physical memory allocator.
//
// Frames are tracked with a bitmap. Allocation returns scattered frames:
// contiguity is a driver concern and drivers are out of scope. OutOfMemory
// is checked up front so a failed allocation leaves no partial state.
package pmm
