package kernel

import (
	"sync"

	"go.uber.org/zap"

	"github.com/helion-os/helion/internal/boot"
	"github.com/helion-os/helion/internal/events"
	"github.com/helion-os/helion/internal/infrastructure/logging"
	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/ipc"
	"github.com/helion-os/helion/internal/kernel/irq"
	"github.com/helion-os/helion/internal/kernel/pmm"
	"github.com/helion-os/helion/internal/kernel/proc"
	"github.com/helion-os/helion/internal/kernel/sched"
	"github.com/helion-os/helion/internal/kernel/vspace"
)

// Kernel is the singleton context every component hangs off. It is passed
// explicitly into entry points rather than living in package globals, so the
// dependency edges stay visible and a test can boot as many kernels as it
// likes.
type Kernel struct {
	log *logging.Logger
	bus *events.Bus

	frameSize uint64
	alloc     *pmm.Allocator
	arena     *cap.Arena
	vm        *vspace.Manager
	tracker   *sched.Tracker
	engine    *ipc.Engine
	irqs      *irq.Dispatcher
	procs     *proc.Manager

	// mu serializes cross-process mutations: process create/destroy and
	// rendezvous-time transfer. Never held while a thread blocks.
	mu sync.Mutex

	defaultTableCap int
	bootstrapPID    uint64
}

// Stats is the kernel-wide view served on the control plane.
type Stats struct {
	Memory       pmm.Stats `json:"memory"`
	Processes    int       `json:"processes"`
	ProcsCreated uint64    `json:"procs_created"`
	Endpoints    int       `json:"endpoints"`
	IRQLines     int       `json:"irq_lines"`
	Runnable     []uint64  `json:"runnable"`
}

// New boots a kernel from the bootloader manifest: builds the allocator,
// reserves the declared ranges, and creates the bootstrap process holding
// capabilities to all device memory, every interrupt line, and itself.
func New(manifest *boot.Manifest, log *logging.Logger, bus *events.Bus) (*Kernel, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		log:             log,
		bus:             bus,
		frameSize:       manifest.Memory.FrameSize,
		alloc:           pmm.New(manifest.Memory.TotalFrames),
		arena:           cap.NewArena(),
		tracker:         sched.NewTracker(),
		procs:           proc.NewManager(),
		defaultTableCap: manifest.Bootstrap.TableCapacity,
	}
	k.vm = vspace.NewManager(k.alloc, manifest.Memory.FrameSize)
	k.engine = ipc.NewEngine(k, k.tracker)
	k.irqs = irq.NewDispatcher(k.engine, manifest.IRQ.Lines)

	for _, r := range manifest.Memory.Reserved {
		k.alloc.Reserve(r.Start, r.Count)
	}

	if err := k.createBootstrap(manifest); err != nil {
		return nil, err
	}

	log.Info("kernel booted",
		zap.Uint64("total_frames", manifest.Memory.TotalFrames),
		zap.Uint64("frame_size", manifest.Memory.FrameSize),
		zap.Uint32("irq_lines", manifest.IRQ.Lines),
		zap.Uint64("bootstrap_pid", k.bootstrapPID),
	)
	return k, nil
}

func (k *Kernel) createBootstrap(manifest *boot.Manifest) error {
	pid := k.procs.NextPID()
	table := k.arena.NewTable(pid, manifest.Bootstrap.TableCapacity)
	space := k.vm.NewSpace(pid)

	// Slot 0: the bootstrap process's own control handle.
	if _, err := table.Insert(cap.Capability{
		Object: proc.NewHandle(pid),
		Rights: cap.RightsAll,
	}); err != nil {
		return err
	}

	// Device MMIO windows, reserved from the pool and wrapped as regions.
	for _, d := range manifest.Memory.DeviceRegions {
		k.alloc.Reserve(d.Start, d.Count)
		frames := make([]pmm.Frame, d.Count)
		for i := range frames {
			frames[i] = pmm.Frame(d.Start + uint64(i))
		}
		perms, ok := cap.ParseRights(d.Perms)
		if !ok {
			perms = cap.RightRead | cap.RightWrite
		}
		region := k.vm.AdoptRegion(frames, perms, false)
		if _, err := table.Insert(cap.Capability{
			Object: region,
			Rights: cap.RightsAll,
		}); err != nil {
			return err
		}
	}

	// Every interrupt line.
	for id := uint32(0); id < manifest.IRQ.Lines; id++ {
		line, err := k.irqs.Line(id)
		if err != nil {
			return err
		}
		if _, err := table.Insert(cap.Capability{
			Object: line,
			Rights: cap.RightsAll,
			Badge:  uint64(id),
		}); err != nil {
			return err
		}
	}

	// Initial endpoints.
	for i := 0; i < manifest.Bootstrap.Endpoints; i++ {
		if _, err := table.Insert(cap.Capability{
			Object: k.engine.NewEndpoint(),
			Rights: cap.RightsAll,
		}); err != nil {
			return err
		}
	}

	name := manifest.Bootstrap.Name
	if name == "" {
		name = "bootstrap"
	}
	p := k.procs.Register(name, table, space)
	k.tracker.Add(p.PID)
	k.bootstrapPID = p.PID
	return nil
}

// BootstrapPID returns the PID of the first process.
func (k *Kernel) BootstrapPID() uint64 { return k.bootstrapPID }

// Tracker exposes the scheduling contract.
func (k *Kernel) Tracker() *sched.Tracker { return k.tracker }

// TriggerIRQ models a hardware interrupt arriving on a line. It sits on the
// hardware boundary, not the syscall surface: no capability is involved.
func (k *Kernel) TriggerIRQ(line uint32) error {
	err := k.irqs.Trigger(line)
	if err == nil {
		k.emit(events.TypeIRQTriggered, map[string]interface{}{"line": line})
	}
	return err
}

// Stats snapshots kernel-wide counters.
func (k *Kernel) Stats() Stats {
	live, created := k.procs.Count()
	return Stats{
		Memory:       k.alloc.Stats(),
		Processes:    live,
		ProcsCreated: created,
		Endpoints:    len(k.engine.Endpoints()),
		IRQLines:     len(k.irqs.Dump()),
		Runnable:     k.tracker.Runnable(),
	}
}

// ListProcesses dumps the live processes.
func (k *Kernel) ListProcesses() []proc.Dump { return k.procs.List() }

// ListCaps dumps a process's capability table.
func (k *Kernel) ListCaps(pid uint64) ([]cap.SlotDump, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return nil, err
	}
	return p.Table.List(), nil
}

// ListMappings dumps a process's address space.
func (k *Kernel) ListMappings(pid uint64) ([]vspace.MappingDump, error) {
	p, err := k.procs.Get(pid)
	if err != nil {
		return nil, err
	}
	return k.vm.Dump(p.Space), nil
}

// ListIRQ dumps every interrupt line.
func (k *Kernel) ListIRQ() []irq.LineDump { return k.irqs.Dump() }

func (k *Kernel) emit(t events.Type, data map[string]interface{}) {
	if k.bus != nil {
		k.bus.Publish(t, data)
	}
}

// sweepEndpoints fails waiters on endpoints that no live capability can
// reach from the needed side anymore. Runs after every revocation-shaped
// operation, so a receiver blocked on an endpoint whose last sender died
// gets EndpointDestroyed instead of waiting forever.
func (k *Kernel) sweepEndpoints() {
	for _, ep := range k.engine.Endpoints() {
		senders, receivers := ep.Waiting()
		if receivers > 0 && k.arena.HoldersWithRights(ep, cap.RightSend) == 0 {
			k.engine.FailOrphanedReceivers(ep)
		}
		if senders > 0 && k.arena.HoldersWithRights(ep, cap.RightReceive) == 0 {
			k.engine.FailOrphanedSenders(ep)
		}
	}
}
