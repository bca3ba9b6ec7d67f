// Package vspace implements the address space manager: per-process
// virtual-to-physical mappings over refcounted memory regions.
//
// A single manager mutex covers all spaces, because the exclusive transfer
// of a non-shared region must remove the source mapping and insert the
// destination mapping with no observable state in between.
//
// Regions are capability objects: the capability arena decides when a region
// dies, and vspace reclaims mappings and frames in the Release hook.
package vspace
