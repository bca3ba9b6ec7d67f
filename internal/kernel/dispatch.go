package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/helion-os/helion/internal/kernel/cap"
	"github.com/helion-os/helion/internal/kernel/ipc"
	"github.com/helion-os/helion/internal/kernel/kerr"
)

// ExecuteSyscall dispatches a named syscall with loosely typed parameters,
// as they arrive from the control plane. Numbers come in as JSON float64 or
// json.Number; both are accepted. Returns a result map for calls that
// produce one, nil otherwise.
func (k *Kernel) ExecuteSyscall(ctx context.Context, pid uint64, name string, params map[string]interface{}) (map[string]interface{}, error) {
	switch name {
	case "endpoint_create":
		slot, err := k.CreateEndpoint(pid)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"slot": slot}, nil

	case "region_create":
		size, err := uintParam(params, "size")
		if err != nil {
			return nil, err
		}
		perms := rightsParam(params, "perms", cap.MemRights)
		shared, _ := params["shared"].(bool)
		slot, err := k.CreateRegion(pid, size, perms, shared)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"slot": slot}, nil

	case "cap_send":
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		msg, err := messageParam(params)
		if err != nil {
			return nil, err
		}
		return nil, k.Send(ctx, pid, slot, msg, timeoutParam(params))

	case "cap_receive":
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		regionAddr, _ := uintParam(params, "region_addr")
		d, err := k.Receive(ctx, pid, slot, regionAddr, timeoutParam(params))
		if err != nil {
			return nil, err
		}
		out := map[string]interface{}{
			"words": d.Words[:],
			"badge": d.Badge,
		}
		if len(d.CapSlots) > 0 {
			out["cap_slots"] = d.CapSlots
		}
		if d.HasRegion {
			out["region_addr"] = d.RegionAddr
		}
		return out, nil

	case "cap_derive":
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		badge, _ := uintParam(params, "badge")
		newSlot, err := k.Derive(pid, slot, rightsParam(params, "rights", 0), badge)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"slot": newSlot}, nil

	case "cap_revoke":
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		return nil, k.Revoke(pid, slot)

	case "cap_grant":
		handle, err := uint32Param(params, "handle_slot")
		if err != nil {
			return nil, err
		}
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		badge, _ := uintParam(params, "badge")
		newSlot, err := k.Grant(pid, handle, slot, rightsParam(params, "rights", 0), badge)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"slot": newSlot}, nil

	case "mem_map":
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		vaddr, err := uintParam(params, "vaddr")
		if err != nil {
			return nil, err
		}
		return nil, k.Map(pid, slot, vaddr, rightsParam(params, "perms", cap.RightRead|cap.RightWrite))

	case "mem_unmap":
		vaddr, err := uintParam(params, "vaddr")
		if err != nil {
			return nil, err
		}
		size, err := uintParam(params, "size")
		if err != nil {
			return nil, err
		}
		return nil, k.Unmap(pid, vaddr, size)

	case "mem_translate":
		vaddr, err := uintParam(params, "vaddr")
		if err != nil {
			return nil, err
		}
		paddr, err := k.Translate(pid, vaddr)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"paddr": paddr}, nil

	case "proc_create":
		ctrl, err := uint32Param(params, "ctrl_slot")
		if err != nil {
			return nil, err
		}
		procName, _ := params["name"].(string)
		initial, err := initialCapsParam(params)
		if err != nil {
			return nil, err
		}
		childPID, handleSlot, err := k.CreateProcess(pid, ctrl, procName, initial)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"pid": childPID, "handle_slot": handleSlot}, nil

	case "proc_destroy":
		handle, err := uint32Param(params, "handle_slot")
		if err != nil {
			return nil, err
		}
		return nil, k.DestroyProcess(pid, handle)

	case "irq_bind":
		lineSlot, err := uint32Param(params, "line_slot")
		if err != nil {
			return nil, err
		}
		epSlot, err := uint32Param(params, "endpoint_slot")
		if err != nil {
			return nil, err
		}
		badge, _ := uintParam(params, "badge")
		return nil, k.BindIRQ(pid, lineSlot, epSlot, badge)

	case "irq_unmask":
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		return nil, k.UnmaskIRQ(pid, slot)

	case "irq_mask":
		slot, err := uint32Param(params, "slot")
		if err != nil {
			return nil, err
		}
		return nil, k.MaskIRQ(pid, slot)

	default:
		return nil, fmt.Errorf("%w: unknown syscall %q", kerr.ErrInvalidArgument, name)
	}
}

// asUint accepts the numeric shapes decoders produce.
func asUint(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	default:
		return 0, false
	}
}

func uintParam(params map[string]interface{}, key string) (uint64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", kerr.ErrInvalidArgument, key)
	}
	n, ok := asUint(v)
	if !ok {
		return 0, fmt.Errorf("%w: %q must be a non-negative integer", kerr.ErrInvalidArgument, key)
	}
	return n, nil
}

func uint32Param(params map[string]interface{}, key string) (uint32, error) {
	n, err := uintParam(params, key)
	if err != nil {
		return 0, err
	}
	if n > uint64(^uint32(0)) {
		return 0, fmt.Errorf("%w: %q out of range", kerr.ErrInvalidArgument, key)
	}
	return uint32(n), nil
}

// rightsParam reads a rights list like ["send","map"]. Missing or malformed
// lists fall back to def.
func rightsParam(params map[string]interface{}, key string, def cap.Rights) cap.Rights {
	raw, ok := params[key].([]interface{})
	if !ok {
		return def
	}
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			return def
		}
		names = append(names, s)
	}
	rights, ok := cap.ParseRights(names)
	if !ok {
		return def
	}
	return rights
}

func timeoutParam(params map[string]interface{}) time.Duration {
	ms, ok := asUint(params["timeout_ms"])
	if !ok {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func messageParam(params map[string]interface{}) (ipc.Message, error) {
	var msg ipc.Message
	if raw, ok := params["words"].([]interface{}); ok {
		if len(raw) > ipc.PayloadWords {
			return msg, fmt.Errorf("%w: at most %d words", kerr.ErrInvalidArgument, ipc.PayloadWords)
		}
		for i, w := range raw {
			n, ok := asUint(w)
			if !ok {
				return msg, fmt.Errorf("%w: words must be non-negative integers", kerr.ErrInvalidArgument)
			}
			msg.Words[i] = n
		}
	}
	if raw, ok := params["caps"].([]interface{}); ok {
		for _, c := range raw {
			cm, ok := c.(map[string]interface{})
			if !ok {
				return msg, fmt.Errorf("%w: caps entries must be objects", kerr.ErrInvalidArgument)
			}
			slot, err := uint32Param(cm, "slot")
			if err != nil {
				return msg, err
			}
			badge, _ := asUint(cm["badge"])
			msg.Caps = append(msg.Caps, ipc.CapTransfer{
				Slot:   slot,
				Rights: rightsParam(cm, "rights", 0),
				Badge:  badge,
			})
		}
	}
	if raw, ok := params["region"].(map[string]interface{}); ok {
		slot, err := uint32Param(raw, "slot")
		if err != nil {
			return msg, err
		}
		msg.Region = &ipc.RegionTransfer{
			Slot:  slot,
			Perms: rightsParam(raw, "perms", cap.RightRead|cap.RightWrite),
		}
	}
	return msg, nil
}

func initialCapsParam(params map[string]interface{}) ([]InitialCap, error) {
	raw, ok := params["initial_caps"].([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]InitialCap, 0, len(raw))
	for _, c := range raw {
		cm, ok := c.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: initial_caps entries must be objects", kerr.ErrInvalidArgument)
		}
		slot, err := uint32Param(cm, "slot")
		if err != nil {
			return nil, err
		}
		badge, _ := asUint(cm["badge"])
		out = append(out, InitialCap{
			Slot:   slot,
			Rights: rightsParam(cm, "rights", 0),
			Badge:  badge,
		})
	}
	return out, nil
}
