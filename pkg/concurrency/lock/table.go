package lock

import (
	"context"
	"sync"
	"time"

	"coredb/pkg/concurrency/txn"
	"coredb/pkg/logging"
	"coredb/pkg/storage/page"
)

// pollInterval is the pause between failed acquisition attempts inside
// Table.TryAcquire's retry loop. It only affects contention overhead, never
// correctness: the loop always re-evaluates the decision step until the
// caller's deadline passes.
const pollInterval = time.Millisecond

// Table is the page-level lock manager. One mutex covers every operation,
// matching the source's single synchronized decision step.
//
// There is no waits-for graph and no cycle detection: each acquisition step
// is non-blocking, and TryAcquire's caller-supplied timeout is the only
// mechanism that breaks a cycle, by aborting one of the participants. This
// is coarser than a real deadlock detector but bounds worst-case latency
// without the bookkeeping a dependency graph needs.
type Table struct {
	mu     sync.Mutex
	byPage map[page.ID]*holderSet
	byTxn  map[txn.ID]map[page.ID]struct{}
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{
		byPage: make(map[page.ID]*holderSet),
		byTxn:  make(map[txn.ID]map[page.ID]struct{}),
	}
}

// TryAcquire polls the acquisition step until it succeeds, timeout elapses,
// or ctx is canceled, and reports whether the lock was granted; a timeout
// and a cancellation both return false. ctx cancellation is
// additive to the timeout, not a replacement for it — a caller that never
// cancels its context still times out normally.
func (t *Table) TryAcquire(ctx context.Context, pid page.ID, tid txn.ID, mode Mode, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if t.step(pid, tid, mode) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if time.Now().After(deadline) {
			logging.WithLock(tid, pid).WithField("mode", mode.String()).Warn("lock acquisition timed out")
			return false
		}
		time.Sleep(pollInterval)
	}
}

// step evaluates one non-blocking decision against the current holder set
// for pid, granting or denying the request per the acquisition semantics:
//
//  1. no entry for pid -> grant a fresh entry.
//  2. self-entry exists:
//     - same mode, or self holds Exclusive -> grant (already covered).
//     - self holds Shared, requesting Exclusive, sole holder -> upgrade in place.
//     - self holds Shared, requesting Exclusive, other holders present -> deny.
//     - self holds Shared, requesting Shared -> grant.
//  3. no self-entry:
//     - an exclusive holder exists -> deny.
//     - requesting Shared -> append and grant.
//     - requesting Exclusive -> deny (shared holders present).
func (t *Table) step(pid page.ID, tid txn.ID, mode Mode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	hs, exists := t.byPage[pid]
	if !exists {
		t.grantFresh(pid, tid, mode)
		return true
	}

	if held, ok := hs.holds(tid); ok {
		if held == mode || held == Exclusive {
			return true
		}
		// held == Shared, mode == Exclusive
		if len(hs.shared) == 1 {
			hs.hasExcl = true
			hs.exclusive = tid
			hs.shared = nil
			return true
		}
		return false
	}

	if hs.hasExcl {
		return false
	}
	if mode == Shared {
		hs.shared[tid] = struct{}{}
		t.trackHolds(tid, pid)
		return true
	}
	return false
}

func (t *Table) grantFresh(pid page.ID, tid txn.ID, mode Mode) {
	if mode == Exclusive {
		t.byPage[pid] = newExclusiveHolderSet(tid)
	} else {
		t.byPage[pid] = newSharedHolderSet(tid)
	}
	t.trackHolds(tid, pid)
}

func (t *Table) trackHolds(tid txn.ID, pid page.ID) {
	pages, ok := t.byTxn[tid]
	if !ok {
		pages = make(map[page.ID]struct{})
		t.byTxn[tid] = pages
	}
	pages[pid] = struct{}{}
}

// Release removes tid's entry on pid, if any, reporting whether one was
// removed. If the holder set becomes empty the page is dropped from the
// table entirely, per invariant I3.
func (t *Table) Release(pid page.ID, tid txn.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.releaseLocked(pid, tid)
}

func (t *Table) releaseLocked(pid page.ID, tid txn.ID) bool {
	hs, exists := t.byPage[pid]
	if !exists {
		return false
	}

	if _, ok := hs.holds(tid); !ok {
		return false
	}

	if hs.hasExcl {
		hs.hasExcl = false
	} else {
		delete(hs.shared, tid)
	}

	if hs.empty() {
		delete(t.byPage, pid)
	}

	if pages, ok := t.byTxn[tid]; ok {
		delete(pages, pid)
		if len(pages) == 0 {
			delete(t.byTxn, tid)
		}
	}

	return true
}

// ReleaseAllForTransaction releases every lock tid holds. It is atomic with
// respect to concurrent Table operations.
func (t *Table) ReleaseAllForTransaction(tid txn.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pages := t.byTxn[tid]
	if len(pages) == 0 {
		return
	}

	pids := make([]page.ID, 0, len(pages))
	for pid := range pages {
		pids = append(pids, pid)
	}
	for _, pid := range pids {
		t.releaseLocked(pid, tid)
	}
}

// Holds reports whether tid holds any lock on pid.
func (t *Table) Holds(pid page.ID, tid txn.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	hs, exists := t.byPage[pid]
	if !exists {
		return false
	}
	_, ok := hs.holds(tid)
	return ok
}

// IsLocked reports whether any transaction currently holds a lock on pid.
func (t *Table) IsLocked(pid page.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	hs, exists := t.byPage[pid]
	return exists && !hs.empty()
}
