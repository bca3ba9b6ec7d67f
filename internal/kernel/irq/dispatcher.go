package irq

import (
	"sync"

	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/ipc"
	"github.com/helion-os/helion/internal/kernel/kerr"
)

// LineState is the per-line state machine. A line starts Masked; hardware
// triggers are only honored in UnmaskedIdle, and every delivery re-masks the
// line until the handler acknowledges with an unmask. That bounds interrupt
// storms: one message per acknowledgement.
type LineState string

const (
	StateMasked       LineState = "masked"
	StateUnmaskedIdle LineState = "unmasked_idle"
	StatePending      LineState = "pending"
)

// Line is the capability object for one interrupt line.
type Line struct {
	id   uint32
	disp *Dispatcher
}

// ID returns the hardware line number.
func (l *Line) ID() uint32 { return l.id }

// Kind implements cap.Object.
func (l *Line) Kind() cap.Kind { return cap.KindInterruptLine }

// Release implements cap.Object: with no capability left to unmask it, the
// line is masked and unbound.
func (l *Line) Release() {
	l.disp.release(l.id)
}

type lineInfo struct {
	line     *Line
	state    LineState
	endpoint *ipc.Endpoint
	badge    uint64
	fired    uint64
	dropped  uint64
}

// LineDump is a display view of one line.
type LineDump struct {
	ID      uint32    `json:"id"`
	State   LineState `json:"state"`
	Bound   bool      `json:"bound"`
	Fired   uint64    `json:"fired"`
	Dropped uint64    `json:"dropped"`
}

// Dispatcher converts hardware interrupts into IPC messages. Delivery is a
// kernel-owned send carrying only the line identifier; no thread blocks in
// the kernel for it.
type Dispatcher struct {
	engine *ipc.Engine

	mu    sync.Mutex
	lines map[uint32]*lineInfo
}

// NewDispatcher creates a dispatcher managing lines [0, count).
func NewDispatcher(engine *ipc.Engine, count uint32) *Dispatcher {
	d := &Dispatcher{
		engine: engine,
		lines:  make(map[uint32]*lineInfo, count),
	}
	for id := uint32(0); id < count; id++ {
		d.lines[id] = &lineInfo{
			line:  &Line{id: id, disp: d},
			state: StateMasked,
		}
	}
	return d
}

// Line returns the capability object for a line.
func (d *Dispatcher) Line(id uint32) (*Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	li, ok := d.lines[id]
	if !ok {
		return nil, kerr.ErrNotFound
	}
	return li.line, nil
}

// Bind registers the endpoint interrupt messages for the line are sent to.
// badge is attached to every delivery so the handler can tell lines apart on
// a shared endpoint.
func (d *Dispatcher) Bind(id uint32, ep *ipc.Endpoint, badge uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	li, ok := d.lines[id]
	if !ok {
		return kerr.ErrNotFound
	}
	li.endpoint = ep
	li.badge = badge
	return nil
}

// Trigger models a hardware interrupt firing. In UnmaskedIdle the line goes
// Pending, masks itself, and the message is posted; in any other state the
// trigger is dropped.
func (d *Dispatcher) Trigger(id uint32) error {
	d.mu.Lock()
	li, ok := d.lines[id]
	if !ok {
		d.mu.Unlock()
		return kerr.ErrNotFound
	}
	if li.state != StateUnmaskedIdle || li.endpoint == nil {
		li.dropped++
		d.mu.Unlock()
		return nil
	}
	li.state = StatePending
	li.fired++
	ep, badge := li.endpoint, li.badge
	d.mu.Unlock()

	var msg ipc.Message
	msg.Words[0] = uint64(id)
	if err := d.engine.Post(ep, badge, msg); err != nil {
		// Endpoint died between bind and trigger; mask until rebound.
		d.mu.Lock()
		li.state = StateMasked
		d.mu.Unlock()
		return err
	}
	return nil
}

// Unmask re-arms the line: Pending or Masked becomes UnmaskedIdle. The
// caller's line capability is validated by the syscall layer before this
// runs.
func (d *Dispatcher) Unmask(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	li, ok := d.lines[id]
	if !ok {
		return kerr.ErrNotFound
	}
	li.state = StateUnmaskedIdle
	return nil
}

// Mask disables the line without acknowledgement.
func (d *Dispatcher) Mask(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	li, ok := d.lines[id]
	if !ok {
		return kerr.ErrNotFound
	}
	li.state = StateMasked
	return nil
}

// State reports a line's current state.
func (d *Dispatcher) State(id uint32) (LineState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	li, ok := d.lines[id]
	if !ok {
		return StateMasked, kerr.ErrNotFound
	}
	return li.state, nil
}

// Dump lists every line for display.
func (d *Dispatcher) Dump() []LineDump {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]LineDump, 0, len(d.lines))
	for id := uint32(0); id < uint32(len(d.lines)); id++ {
		li := d.lines[id]
		out = append(out, LineDump{
			ID:      id,
			State:   li.state,
			Bound:   li.endpoint != nil,
			Fired:   li.fired,
			Dropped: li.dropped,
		})
	}
	return out
}

func (d *Dispatcher) release(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if li, ok := d.lines[id]; ok {
		li.state = StateMasked
		li.endpoint = nil
		li.badge = 0
	}
}
