package cap

// Kind tags the object a capability names.
type Kind int

const (
	KindEndpoint Kind = iota
	KindMemoryRegion
	KindInterruptLine
	KindProcessControl
)

func (k Kind) String() string {
	switch k {
	case KindEndpoint:
		return "endpoint"
	case KindMemoryRegion:
		return "memory_region"
	case KindInterruptLine:
		return "interrupt_line"
	case KindProcessControl:
		return "process_control"
	default:
		return "unknown"
	}
}

// Object is a kernel object reachable through capabilities. The arena
// refcounts objects by live capability entries; Release fires exactly once,
// when the last entry naming the object is removed, and runs outside the
// arena lock so implementations may take their own locks.
type Object interface {
	Kind() Kind
	Release()
}

// Capability is the immutable record a table slot holds. User code never
// sees one directly, only slot indices; the kernel resolves and validates on
// every use.
type Capability struct {
	Object Object
	Rights Rights
	Badge  uint64
}
