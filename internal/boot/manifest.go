package boot

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Manifest is the bootloader handoff: the physical memory map, the interrupt
// line count, and the shape of the bootstrap process. The kernel discovers
// nothing itself; everything hardware-shaped arrives here.
type Manifest struct {
	Memory    MemoryMap `yaml:"memory"`
	IRQ       IRQMap    `yaml:"irq"`
	Bootstrap Bootstrap `yaml:"bootstrap"`
}

// MemoryMap describes physical memory in frames.
type MemoryMap struct {
	FrameSize     uint64         `yaml:"frame_size"`
	TotalFrames   uint64         `yaml:"total_frames"`
	Reserved      []Range        `yaml:"reserved"`
	DeviceRegions []DeviceRegion `yaml:"device_regions"`
}

// Range is a frame range carved out of the allocatable pool.
type Range struct {
	Start uint64 `yaml:"start"`
	Count uint64 `yaml:"count"`
	Label string `yaml:"label"`
}

// DeviceRegion is a memory-mapped I/O window handed to the bootstrap
// process as a region capability, so it can delegate device memory to
// drivers.
type DeviceRegion struct {
	Start uint64   `yaml:"start"`
	Count uint64   `yaml:"count"`
	Label string   `yaml:"label"`
	Perms []string `yaml:"perms"`
}

// IRQMap declares the interrupt lines the platform has.
type IRQMap struct {
	Lines uint32 `yaml:"lines"`
}

// Bootstrap shapes the first process, which starts holding capabilities to
// all device memory and all interrupt lines.
type Bootstrap struct {
	Name          string `yaml:"name"`
	TableCapacity int    `yaml:"table_capacity"`
	Endpoints     int    `yaml:"endpoints"`
}

// Default returns a manifest usable without a file: a small flat machine.
func Default() *Manifest {
	return &Manifest{
		Memory: MemoryMap{
			FrameSize:   4096,
			TotalFrames: 16384,
		},
		IRQ: IRQMap{Lines: 32},
		Bootstrap: Bootstrap{
			Name:          "bootstrap",
			TableCapacity: 256,
			Endpoints:     1,
		},
	}
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	m := Default()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse boot manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks internal consistency.
func (m *Manifest) Validate() error {
	if m.Memory.FrameSize == 0 || m.Memory.FrameSize&(m.Memory.FrameSize-1) != 0 {
		return fmt.Errorf("frame_size must be a power of two, got %d", m.Memory.FrameSize)
	}
	if m.Memory.TotalFrames == 0 {
		return fmt.Errorf("total_frames must be positive")
	}
	for _, r := range m.Memory.Reserved {
		if r.Start+r.Count > m.Memory.TotalFrames {
			return fmt.Errorf("reserved range %q [%d,+%d) exceeds total frames %d",
				r.Label, r.Start, r.Count, m.Memory.TotalFrames)
		}
	}
	for _, d := range m.Memory.DeviceRegions {
		if d.Count == 0 {
			return fmt.Errorf("device region %q has zero frames", d.Label)
		}
		if d.Start+d.Count > m.Memory.TotalFrames {
			return fmt.Errorf("device region %q [%d,+%d) exceeds total frames %d",
				d.Label, d.Start, d.Count, m.Memory.TotalFrames)
		}
	}
	if m.Bootstrap.TableCapacity <= 0 {
		return fmt.Errorf("bootstrap table_capacity must be positive")
	}
	want := len(m.Memory.DeviceRegions) + int(m.IRQ.Lines) + m.Bootstrap.Endpoints + 1
	if m.Bootstrap.TableCapacity < want {
		return fmt.Errorf("bootstrap table_capacity %d cannot hold %d initial capabilities",
			m.Bootstrap.TableCapacity, want)
	}
	return nil
}
