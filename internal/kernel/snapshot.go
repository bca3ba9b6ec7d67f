package kernel

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/irq"
	"github.com/helion-os/helion/internal/kernel/kerr"
	"github.com/helion-os/helion/internal/kernel/proc"
	"github.com/helion-os/helion/internal/kernel/vspace"
)

// Snapshot is a point-in-time view of everything the kernel tracks. It is a
// diagnostic dump, not a restore format: capability objects and blocked
// threads cannot be rebuilt from it.
type Snapshot struct {
	TakenAt   int64                           `json:"taken_at"`
	Stats     Stats                           `json:"stats"`
	Processes []proc.Dump                     `json:"processes"`
	Caps      map[uint64][]cap.SlotDump       `json:"caps"`
	Mappings  map[uint64][]vspace.MappingDump `json:"mappings"`
	IRQ       []irq.LineDump                  `json:"irq"`
}

// Snapshot collects the current kernel state. Taken under the cross-process
// lock so no rendezvous transfer lands mid-dump.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()

	procs := k.procs.List()
	snap := Snapshot{
		TakenAt:   time.Now().Unix(),
		Stats:     k.Stats(),
		Processes: procs,
		Caps:      make(map[uint64][]cap.SlotDump, len(procs)),
		Mappings:  make(map[uint64][]vspace.MappingDump, len(procs)),
		IRQ:       k.irqs.Dump(),
	}
	for _, p := range procs {
		if caps, err := k.ListCaps(p.PID); err == nil {
			snap.Caps[p.PID] = caps
		}
		if maps, err := k.ListMappings(p.PID); err == nil {
			snap.Mappings[p.PID] = maps
		}
	}
	return snap
}

// MarshalSnapshot serializes a snapshot, optionally compressed. compression
// is "none", "gzip" or "zstd"; the returned string names what was applied.
func (k *Kernel) MarshalSnapshot(compression string) ([]byte, string, error) {
	data, err := sonic.Marshal(k.Snapshot())
	if err != nil {
		return nil, "", err
	}

	switch compression {
	case "", "none":
		return data, "none", nil
	case "gzip":
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "gzip", nil
	case "zstd":
		w, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", err
		}
		out := w.EncodeAll(data, nil)
		w.Close()
		return out, "zstd", nil
	default:
		return nil, "", fmt.Errorf("%w: unknown compression %q", kerr.ErrInvalidArgument, compression)
	}
}
