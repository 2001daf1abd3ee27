// Package dbcontext assembles the runtime's collaborating pieces —
// catalog, buffer pool, and log destination — behind a single handle
// instead of process-global state.
package dbcontext

import (
	"io"

	"coredb/pkg/concurrency/txn"
	"coredb/pkg/dberr"
	"coredb/pkg/logging"
	"coredb/pkg/memory"
	"coredb/pkg/storage/page"
)

// Catalog resolves a table id to the page.Store backing it. A real catalog
// would also track schemas and indexes; neither is in scope here, so the
// interface is narrowed to exactly what the buffer pool needs.
type Catalog interface {
	PageStoreFor(tableID int) (page.Store, bool)
}

// Context bundles everything a caller needs to run transactions against
// one or more tables: a catalog to resolve tables to their backing store,
// a single shared buffer pool routed through that catalog, and wherever
// log output goes.
type Context struct {
	Catalog    Catalog
	BufferPool *memory.BufferPool
	LogFile    io.Writer
}

// New wires a Context together and initializes package-level logging to
// write to logOutput at level. Passing a nil logOutput leaves logging at
// its existing configuration (or its default, if Init was never called).
//
// The buffer pool is given a single page.Store view over the whole
// catalog: ReadPage/WritePage/InsertTuple route to the per-table store the
// catalog resolves for the affected table id. This lets one BufferPool
// serve every table registered with catalog without knowing in advance
// how many there are.
func New(catalog Catalog, capacity int, level logging.Level, logOutput io.Writer) *Context {
	if logOutput != nil {
		logging.Init(level, logOutput)
	}
	return &Context{
		Catalog:    catalog,
		BufferPool: memory.NewBufferPool(capacity, &catalogStore{catalog: catalog}),
		LogFile:    logOutput,
	}
}

// StoreFor resolves tableID through the catalog, returning a DbException
// if the table is unknown.
func (c *Context) StoreFor(tableID int) (page.Store, error) {
	store, ok := c.Catalog.PageStoreFor(tableID)
	if !ok {
		return nil, dberr.New(dberr.KindDbException, "no store registered for table %d", tableID)
	}
	return store, nil
}

// Close flushes every dirty page still held by the buffer pool. It does not
// close LogFile or any per-table store reachable through Catalog — those
// are owned by whoever constructed them and passed them to New.
func (c *Context) Close() error {
	return c.BufferPool.FlushAllPages()
}

// catalogStore adapts a Catalog into a single page.Store by routing
// ReadPage/WritePage/InsertTuple to the store registered for the relevant
// table id.
//
// DeleteTuple cannot be routed this way: page.Store.DeleteTuple takes only
// an opaque tuple value with no table id attached, since tuple encoding is
// out of scope here. A real catalog-backed store would need the tuple type
// to carry (or let the caller supply) its owning table id; until then,
// callers that need delete routing must go through StoreFor directly.
type catalogStore struct {
	catalog Catalog
}

func (cs *catalogStore) ReadPage(id page.ID) (page.Page, error) {
	store, err := cs.resolve(id.TableID)
	if err != nil {
		return nil, err
	}
	return store.ReadPage(id)
}

func (cs *catalogStore) WritePage(p page.Page) error {
	store, err := cs.resolve(p.ID().TableID)
	if err != nil {
		return err
	}
	return store.WritePage(p)
}

func (cs *catalogStore) InsertTuple(tid txn.ID, tableID int, t any) ([]page.Page, error) {
	store, err := cs.resolve(tableID)
	if err != nil {
		return nil, err
	}
	return store.InsertTuple(tid, tableID, t)
}

func (cs *catalogStore) DeleteTuple(tid txn.ID, t any) ([]page.Page, error) {
	return nil, dberr.New(dberr.KindDbException, "DeleteTuple requires resolving a table id from t, which catalogStore cannot infer for an opaque tuple; use Context.StoreFor(tableID).DeleteTuple instead")
}

func (cs *catalogStore) resolve(tableID int) (page.Store, error) {
	store, ok := cs.catalog.PageStoreFor(tableID)
	if !ok {
		return nil, dberr.New(dberr.KindDbException, "no store registered for table %d", tableID)
	}
	return store, nil
}
