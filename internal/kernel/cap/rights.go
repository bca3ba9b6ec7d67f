package cap

import "strings"

// Rights is the capability rights mask. Each bit is independently settable.
// The Read/Write/Exec bits carry memory-region permissions so that derivation
// attenuates them under the same subset law as the invocation rights.
type Rights uint16

const (
	RightSend Rights = 1 << iota
	RightReceive
	RightMap
	RightGrant
	RightRevoke
	RightRead
	RightWrite
	RightExec
)

// RightsAll is every right set; held by bootstrap capabilities.
const RightsAll = RightSend | RightReceive | RightMap | RightGrant | RightRevoke | RightRead | RightWrite | RightExec

// MemRights masks the memory-permission bits.
const MemRights = RightRead | RightWrite | RightExec

// Has reports whether every bit in required is set.
func (r Rights) Has(required Rights) bool {
	return r&required == required
}

// SubsetOf reports whether r is a subset of parent. This is the attenuation
// law: a derived capability may only carry rights its parent carries.
func (r Rights) SubsetOf(parent Rights) bool {
	return r&^parent == 0
}

var rightNames = []struct {
	bit  Rights
	name string
}{
	{RightSend, "send"},
	{RightReceive, "receive"},
	{RightMap, "map"},
	{RightGrant, "grant"},
	{RightRevoke, "revoke"},
	{RightRead, "read"},
	{RightWrite, "write"},
	{RightExec, "exec"},
}

func (r Rights) String() string {
	if r == 0 {
		return "none"
	}
	parts := make([]string, 0, len(rightNames))
	for _, rn := range rightNames {
		if r.Has(rn.bit) {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseRights converts a list of right names into a mask. Unknown names are
// rejected so callers on the control plane get a clear failure.
func ParseRights(names []string) (Rights, bool) {
	var r Rights
	for _, name := range names {
		found := false
		for _, rn := range rightNames {
			if rn.name == name {
				r |= rn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return r, true
}
