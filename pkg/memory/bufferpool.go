package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"coredb/pkg/concurrency/lock"
	"coredb/pkg/concurrency/txn"
	"coredb/pkg/dberr"
	"coredb/pkg/logging"
	"coredb/pkg/storage/page"
)

// DefaultCapacity mirrors the source's default page-cache size.
const DefaultCapacity = 50

// minTimeout and maxTimeout bound the randomized per-call lock-acquisition
// timeout GetPage draws on every call, per the timeout range in this
// runtime's external interfaces.
const (
	minTimeout = 1000 * time.Millisecond
	maxTimeout = 3000 * time.Millisecond
)

// Permissions is the access level a caller requests when fetching a page.
type Permissions int

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) lockMode() lock.Mode {
	if p == ReadWrite {
		return lock.Exclusive
	}
	return lock.Shared
}

// BufferPool is the orchestrator that gates page access through a lock
// table, maintains an LRU page cache, enforces no-steal eviction, and
// implements transaction commit/abort by flushing or reloading a
// transaction's dirty pages.
//
// The cache-structure operations (discardPageLocked, evictPageLocked,
// flushPages, reloadPages) are serialized under mu, separately from the lock table's
// own mutex, so that a slow disk read never blocks unrelated lock
// requests.
type BufferPool struct {
	mu        sync.Mutex
	cache     PageCache
	lockTable *lock.Table
	store     page.Store
}

// NewBufferPool creates a buffer pool of the given page capacity backed by
// store.
func NewBufferPool(capacity int, store page.Store) *BufferPool {
	return &BufferPool{
		cache:     NewLRUPageCache(capacity),
		lockTable: lock.NewTable(),
		store:     store,
	}
}

// GetPage is the canonical entry point for all page access. It acquires
// the appropriate lock, drawing a fresh randomized timeout on every call,
// then serves the page from cache or loads it from the backing store,
// evicting a clean page first if the cache is full.
func (bp *BufferPool) GetPage(ctx context.Context, tid txn.ID, pid page.ID, perm Permissions) (page.Page, error) {
	mode := perm.lockMode()
	timeout := randomTimeout()

	if !bp.lockTable.TryAcquire(ctx, pid, tid, mode, timeout) {
		return nil, dberr.New(dberr.KindTransactionAborted, "timed out acquiring %s lock on %v for %v", mode, pid, tid)
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if p, ok := bp.cache.Get(pid); ok {
		return p, nil
	}

	if bp.cache.Size() >= bp.cache.Capacity() {
		if err := bp.evictPageLocked(); err != nil {
			return nil, err
		}
	}

	p, err := bp.store.ReadPage(pid)
	if err != nil {
		return nil, dberr.Wrap(err, "GetPage", "BufferPool")
	}

	bp.cache.Put(pid, p)
	logging.WithPage(pid).WithField("tx_id", tid.String()).Debug("page loaded into cache")
	return p, nil
}

func randomTimeout() time.Duration {
	span := int64(maxTimeout - minTimeout)
	return minTimeout + time.Duration(rand.Int63n(span))
}

// evictPageLocked scans the cache from its least-recently-used end and
// discards the first clean page it finds. Dirty pages are never evicted
// (no-steal); if every cached page is dirty, eviction fails with
// DbException. Callers must hold mu.
func (bp *BufferPool) evictPageLocked() error {
	for _, pid := range bp.cache.ReverseIterate() {
		p, ok := bp.cache.Peek(pid)
		if !ok {
			continue
		}
		if _, dirty := p.IsDirty(); dirty {
			continue
		}
		bp.discardPageLocked(pid)
		return nil
	}
	return dberr.New(dberr.KindDbException, "all pages are dirty")
}

func (bp *BufferPool) discardPageLocked(pid page.ID) {
	bp.cache.Remove(pid)
}

// DiscardPage removes pid from the cache without touching disk or locks.
func (bp *BufferPool) DiscardPage(pid page.ID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.discardPageLocked(pid)
}

// HoldsLock reports whether tid holds any lock on pid.
func (bp *BufferPool) HoldsLock(tid txn.ID, pid page.ID) bool {
	return bp.lockTable.Holds(pid, tid)
}

// UnsafeReleasePage releases tid's lock on pid outside the normal
// transaction lifecycle. Named for the same reason the source names it
// unsafe: releasing a lock mid-transaction breaks two-phase locking's
// guarantees and should only be used by tests or a caller that fully
// understands the consequence.
func (bp *BufferPool) UnsafeReleasePage(tid txn.ID, pid page.ID) {
	bp.lockTable.Release(pid, tid)
}

// InsertTuple delegates to the backing store, then marks every page it
// returns dirty and (re)inserts it into the cache.
func (bp *BufferPool) InsertTuple(tid txn.ID, tableID int, t any) error {
	pages, err := bp.store.InsertTuple(tid, tableID, t)
	if err != nil {
		return dberr.Wrap(err, "InsertTuple", "BufferPool")
	}
	bp.markDirtyAndCache(tid, pages)
	return nil
}

// DeleteTuple delegates to the backing store, marks every returned page
// dirty and caches it, and additionally writes each page through to disk
// immediately.
//
// That immediate write-through is a deliberate departure from strict
// no-steal — dirty data reaches disk before the owning transaction
// commits, which can leak a partial delete if the transaction later
// aborts. This is preserved as observed behavior rather than silently
// corrected; see the design notes for why it stays an open question
// instead of a bug fix.
func (bp *BufferPool) DeleteTuple(tid txn.ID, t any) error {
	pages, err := bp.store.DeleteTuple(tid, t)
	if err != nil {
		return dberr.Wrap(err, "DeleteTuple", "BufferPool")
	}
	bp.markDirtyAndCache(tid, pages)

	for _, p := range pages {
		if err := bp.store.WritePage(p); err != nil {
			return dberr.Wrap(err, "DeleteTuple", "BufferPool")
		}
	}
	return nil
}

func (bp *BufferPool) markDirtyAndCache(tid txn.ID, pages []page.Page) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, p := range pages {
		p.MarkDirty(true, tid)
		bp.cache.Put(p.ID(), p)
	}
}

// TransactionComplete finalizes a transaction. On commit it flushes every
// page tid dirtied and clears their dirty stamp (force-at-commit). On
// abort it discards every page tid dirtied and reloads the on-disk image.
// Locks are released unconditionally in either case, even if flush/reload
// I/O fails, so a stuck transaction never wedges every other transaction
// waiting on its locks.
func (bp *BufferPool) TransactionComplete(tid txn.ID, commit bool) {
	var err error
	if commit {
		err = bp.flushPages(tid)
	} else {
		err = bp.reloadPages(tid)
	}
	if err != nil {
		logging.WithTx(tid).WithError(err).Warn("I/O failure finalizing transaction; releasing locks anyway")
	}

	bp.lockTable.ReleaseAllForTransaction(tid)
}

// FlushPages writes through every page dirtied by tid and marks it clean.
func (bp *BufferPool) FlushPages(tid txn.ID) error {
	return bp.flushPages(tid)
}

func (bp *BufferPool) flushPages(tid txn.ID) error {
	bp.mu.Lock()
	pids := bp.cache.ForwardIterate()
	bp.mu.Unlock()

	for _, pid := range pids {
		if err := bp.flushPageIfOwnedBy(pid, tid); err != nil {
			return err
		}
	}
	return nil
}

func (bp *BufferPool) flushPageIfOwnedBy(pid page.ID, tid txn.ID) error {
	bp.mu.Lock()
	p, ok := bp.cache.Peek(pid)
	bp.mu.Unlock()
	if !ok {
		return nil
	}

	dirtBy, dirty := p.IsDirty()
	if !dirty || dirtBy != tid {
		return nil
	}

	p.SetBeforeImage()
	if err := bp.store.WritePage(p); err != nil {
		return dberr.Wrap(err, "flushPages", "BufferPool")
	}
	p.MarkDirty(false, txn.ID{})

	bp.mu.Lock()
	bp.cache.Put(pid, p)
	bp.mu.Unlock()
	return nil
}

// reloadPages discards every page dirtied by tid, then reloads and
// re-caches its pre-transaction image from disk (abort rollback). A page
// that fails to reload is left out of the cache rather than cached stale;
// the next GetPage for it will retry the read.
func (bp *BufferPool) reloadPages(tid txn.ID) error {
	bp.mu.Lock()
	pids := bp.cache.ForwardIterate()
	bp.mu.Unlock()

	for _, pid := range pids {
		bp.mu.Lock()
		p, ok := bp.cache.Peek(pid)
		if !ok {
			bp.mu.Unlock()
			continue
		}
		dirtBy, dirty := p.IsDirty()
		if !dirty || dirtBy != tid {
			bp.mu.Unlock()
			continue
		}
		bp.discardPageLocked(pid)
		bp.mu.Unlock()

		reloaded, err := bp.store.ReadPage(pid)
		if err != nil {
			logging.WithPage(pid).WithError(err).Warn("failed to reload page image on abort")
			continue
		}

		bp.mu.Lock()
		bp.cache.Put(pid, reloaded)
		bp.mu.Unlock()
	}
	return nil
}

// FlushAllPages writes every dirty cached page through to the backing
// store, regardless of which transaction dirtied it; clean pages are
// skipped.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	pids := bp.cache.ForwardIterate()
	bp.mu.Unlock()

	for _, pid := range pids {
		bp.mu.Lock()
		p, ok := bp.cache.Peek(pid)
		bp.mu.Unlock()
		if !ok {
			continue
		}
		if _, dirty := p.IsDirty(); !dirty {
			continue
		}
		if err := bp.store.WritePage(p); err != nil {
			return dberr.Wrap(err, "FlushAllPages", "BufferPool")
		}
		p.MarkDirty(false, txn.ID{})
	}
	return nil
}
