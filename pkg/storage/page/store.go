package page

import "coredb/pkg/concurrency/txn"

// Store is the external collaborator the buffer pool delegates raw page
// I/O and tuple-level mutation to. Tuple/field value types are out of
// scope for this module, so InsertTuple/DeleteTuple thread the tuple
// argument through as an opaque value.
//
// Both InsertTuple and DeleteTuple may call back into a BufferPool's
// GetPage with exclusive mode to acquire the pages they need to mutate;
// implementations must not hold their own locks across that callback.
type Store interface {
	// ReadPage loads a page from durable storage.
	ReadPage(id ID) (Page, error)

	// WritePage persists a page to durable storage.
	WritePage(p Page) error

	// InsertTuple adds t to the given table, returning every page it
	// dirtied.
	InsertTuple(tid txn.ID, tableID int, t any) ([]Page, error)

	// DeleteTuple removes t, returning every page it dirtied.
	DeleteTuple(tid txn.ID, t any) ([]Page, error)
}
