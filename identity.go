package ballots

import (
	"fmt"
	"math"
	"strings"
)

// IDPolicy decides which identifier the next insert into a collection receives.
type IDPolicy int

const (
	// SequentialIDs hands out last+1 from a per-collection counter that
	// deletes never move, so an identifier is never issued twice.
	SequentialIDs IDPolicy = iota

	// SizeDerivedIDs hands out size+1. After a delete this can land on an
	// identifier that is still occupied, and the insert then replaces that
	// record. Kept for stores that must match ids issued by older deployments.
	SizeDerivedIDs
)

// ParseIDPolicy maps "sequential" or "size" to a policy.
func ParseIDPolicy(name string) (IDPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sequential":
		return SequentialIDs, nil
	case "size", "size-derived":
		return SizeDerivedIDs, nil
	}
	return 0, fmt.Errorf("unknown id policy %q", name)
}

func (p IDPolicy) String() string {
	if p == SizeDerivedIDs {
		return "size"
	}
	return "sequential"
}

// NextID returns the identifier for the next insert into a collection holding
// size records whose highest issued identifier so far is last.
func (p IDPolicy) NextID(size int, last Identifier) (Identifier, error) {
	base := uint64(last)
	if p == SizeDerivedIDs {
		base = uint64(size)
	}
	if base >= math.MaxUint32 {
		return 0, &FatalError{Op: "assign id", Err: ErrIDOverflow}
	}
	return Identifier(base + 1), nil
}
