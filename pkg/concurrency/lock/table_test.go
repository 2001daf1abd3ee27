package lock

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"coredb/pkg/concurrency/txn"
	"coredb/pkg/storage/page"
)

func TestTryAcquireGrantsFreshLock(t *testing.T) {
	lt := NewTable()
	tid := txn.New()
	pid := page.NewID(1, 1)

	if !lt.TryAcquire(context.Background(), pid, tid, Shared, time.Second) {
		t.Fatal("expected fresh shared acquisition to succeed")
	}
	if !lt.Holds(pid, tid) {
		t.Error("expected tid to hold the lock")
	}
}

func TestSharedLocksCoexist(t *testing.T) {
	lt := NewTable()
	t1, t2 := txn.New(), txn.New()
	pid := page.NewID(1, 1)

	if !lt.TryAcquire(context.Background(), pid, t1, Shared, time.Second) {
		t.Fatal("t1 shared acquire failed")
	}
	if !lt.TryAcquire(context.Background(), pid, t2, Shared, time.Second) {
		t.Fatal("t2 shared acquire failed")
	}
}

func TestUpgradeSoleHolder(t *testing.T) {
	lt := NewTable()
	tid := txn.New()
	pid := page.NewID(1, 1)

	if !lt.TryAcquire(context.Background(), pid, tid, Shared, time.Second) {
		t.Fatal("initial shared acquire failed")
	}
	if !lt.TryAcquire(context.Background(), pid, tid, Exclusive, time.Second) {
		t.Fatal("expected upgrade to succeed for sole holder")
	}
	if !lt.Holds(pid, tid) {
		t.Error("tid should still hold the (now exclusive) lock")
	}

	other := txn.New()
	if lt.TryAcquire(context.Background(), pid, other, Shared, 50*time.Millisecond) {
		t.Error("exclusive holder should exclude other readers")
	}
}

// An upgrade blocked by another shared holder times out, leaving the
// holder set unchanged.
func TestUpgradeBlockedByOtherSharedHolder(t *testing.T) {
	lt := NewTable()
	t1, t2 := txn.New(), txn.New()
	pid := page.NewID(1, 1)

	if !lt.TryAcquire(context.Background(), pid, t1, Shared, time.Second) {
		t.Fatal("t1 shared acquire failed")
	}
	if !lt.TryAcquire(context.Background(), pid, t2, Shared, time.Second) {
		t.Fatal("t2 shared acquire failed")
	}

	if lt.TryAcquire(context.Background(), pid, t1, Exclusive, 50*time.Millisecond) {
		t.Fatal("upgrade should be blocked while t2 holds shared")
	}

	if !lt.Holds(pid, t1) || !lt.Holds(pid, t2) {
		t.Error("both transactions should still hold shared locks after failed upgrade")
	}
}

func TestExclusiveExcludesReader(t *testing.T) {
	lt := NewTable()
	t1, t2 := txn.New(), txn.New()
	pid := page.NewID(1, 1)

	if !lt.TryAcquire(context.Background(), pid, t1, Exclusive, time.Second) {
		t.Fatal("t1 exclusive acquire failed")
	}
	if lt.TryAcquire(context.Background(), pid, t2, Shared, 50*time.Millisecond) {
		t.Fatal("t2 should not acquire shared while t1 holds exclusive")
	}
}

// Repeated acquisition of a mode equal to or weaker than what's already
// held is granted, both before and after a sole-holder upgrade.
func TestIdempotentReacquire(t *testing.T) {
	lt := NewTable()
	tid := txn.New()
	pid := page.NewID(1, 1)

	if !lt.TryAcquire(context.Background(), pid, tid, Shared, time.Second) {
		t.Fatal("initial acquire failed")
	}
	if !lt.TryAcquire(context.Background(), pid, tid, Shared, time.Second) {
		t.Fatal("repeated shared acquire should be idempotent")
	}
	if !lt.TryAcquire(context.Background(), pid, tid, Exclusive, time.Second) {
		t.Fatal("upgrade should succeed for sole holder")
	}
	if !lt.TryAcquire(context.Background(), pid, tid, Shared, time.Second) {
		t.Fatal("re-requesting a weaker mode while holding exclusive must still grant")
	}
	if !lt.TryAcquire(context.Background(), pid, tid, Exclusive, time.Second) {
		t.Fatal("repeated exclusive acquire should be idempotent")
	}
}

// Releasing every lock a transaction holds is symmetric across many pages:
// nothing is left behind and no page entry lingers empty.
func TestReleaseAllForTransaction(t *testing.T) {
	lt := NewTable()
	tid := txn.New()
	pids := []page.ID{page.NewID(1, 1), page.NewID(1, 2), page.NewID(2, 1)}

	for _, pid := range pids {
		if !lt.TryAcquire(context.Background(), pid, tid, Shared, time.Second) {
			t.Fatalf("acquire on %v failed", pid)
		}
	}

	lt.ReleaseAllForTransaction(tid)

	for _, pid := range pids {
		if lt.Holds(pid, tid) {
			t.Errorf("tid should not hold %v after release-all", pid)
		}
		if lt.IsLocked(pid) {
			t.Errorf("%v should have been removed from the table entirely", pid)
		}
	}
}

// Under concurrent contention for the same page, an exclusive holder and
// any other holder are never observed at once.
func TestMutualExclusionUnderContention(t *testing.T) {
	lt := NewTable()
	pid := page.NewID(1, 1)

	const writers = 8
	var active int32
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			tid := txn.New()
			if !lt.TryAcquire(context.Background(), pid, tid, Exclusive, 2*time.Second) {
				return nil
			}
			defer lt.Release(pid, tid)
			if n := atomic.AddInt32(&active, 1); n > 1 {
				return fmt.Errorf("%d exclusive holders at once", n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lt.IsLocked(pid) {
		t.Error("page should be unlocked once all writers finished")
	}
}
