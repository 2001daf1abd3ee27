package page

import "coredb/pkg/concurrency/txn"

// PageSize is the size, in bytes, of every page in the system. It is a
// compile-time constant (FlatPage uses it as an array length), so it cannot
// be changed at run time, by tests or otherwise.
const PageSize = 4096

// Page is a page resident in the buffer pool. A page may be dirty,
// indicating it has been modified in memory since it was last written to
// disk.
type Page interface {
	// ID returns the identifier of this page.
	ID() ID

	// IsDirty reports the transaction that last dirtied this page. The
	// second return value is false if the page is clean.
	IsDirty() (txn.ID, bool)

	// MarkDirty sets or clears the dirty stamp on this page.
	MarkDirty(dirty bool, tid txn.ID)

	// Data returns the on-disk byte representation of this page.
	Data() []byte

	// BeforeImage returns a snapshot of this page as it looked the last
	// time SetBeforeImage was called (or at construction, if never
	// called). The buffer pool does not use it on abort: it rereads the
	// page from its store instead.
	BeforeImage() Page

	// SetBeforeImage snapshots the current content as the new before
	// image. Called when a transaction that wrote this page commits.
	SetBeforeImage()
}
