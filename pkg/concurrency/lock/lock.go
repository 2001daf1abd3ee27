// Package lock implements page-level two-phase locking: shared/exclusive
// locks with in-place upgrade and timeout-based deadlock avoidance. There is
// deliberately no wait-for-graph or cycle detection here — see Table's doc
// comment for the policy this trades in for.
package lock

import "coredb/pkg/concurrency/txn"

// Mode is the strength of a lock request or grant.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "Exclusive"
	}
	return "Shared"
}

// holderSet is the per-page lock state. Exactly one of the two branches is
// populated at any time, mirroring invariants I1/I2/I3: an exclusive holder
// excludes all others, and a page with no holders is removed from the table
// entirely rather than kept around as an empty set.
type holderSet struct {
	exclusive txn.ID
	hasExcl   bool
	shared    map[txn.ID]struct{}
}

func newSharedHolderSet(tid txn.ID) *holderSet {
	return &holderSet{shared: map[txn.ID]struct{}{tid: {}}}
}

func newExclusiveHolderSet(tid txn.ID) *holderSet {
	return &holderSet{exclusive: tid, hasExcl: true}
}

func (h *holderSet) empty() bool {
	return !h.hasExcl && len(h.shared) == 0
}

func (h *holderSet) holds(tid txn.ID) (Mode, bool) {
	if h.hasExcl {
		if h.exclusive == tid {
			return Exclusive, true
		}
		return 0, false
	}
	if _, ok := h.shared[tid]; ok {
		return Shared, true
	}
	return 0, false
}
