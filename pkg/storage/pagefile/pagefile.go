// Package pagefile is a minimal, real on-disk implementation of
// page.Store and page.Page over a single OS file. It exists so this
// module's own tests can drive the buffer pool end-to-end against actual
// bytes on disk — commit durability and abort rollback are meaningless
// claims against an in-memory fake — and so an embedder without a
// heap-file / catalog layer of their own has something to start from.
//
// It is not part of the specified core: heap-file page codecs, tuple
// layout, and catalog lookup by table id are all out of scope for this
// module (see the runtime's top-level design notes). PageFile's
// InsertTuple accepts an opaque []byte payload rather than a real tuple
// codec, and its DeleteTuple is unsupported; that is enough to exercise
// page allocation and dirtying but is not meant to model an actual record
// format.
package pagefile

import (
	"os"
	"sync"

	"coredb/pkg/concurrency/txn"
	"coredb/pkg/dberr"
	"coredb/pkg/logging"
	"coredb/pkg/storage/page"
)

// FlatPage is a page.Page whose content is an opaque, fixed-size byte
// block with no internal structure.
type FlatPage struct {
	id     page.ID
	data   [page.PageSize]byte
	before [page.PageSize]byte
	dirty  bool
	dirtBy txn.ID
}

func newFlatPage(id page.ID, data []byte) *FlatPage {
	p := &FlatPage{id: id}
	copy(p.data[:], data)
	p.before = p.data
	return p
}

func (p *FlatPage) ID() page.ID { return p.id }

func (p *FlatPage) IsDirty() (txn.ID, bool) { return p.dirtBy, p.dirty }

func (p *FlatPage) MarkDirty(dirty bool, tid txn.ID) {
	p.dirty = dirty
	if dirty {
		p.dirtBy = tid
	} else {
		p.dirtBy = txn.ID{}
	}
}

func (p *FlatPage) Data() []byte {
	out := make([]byte, page.PageSize)
	copy(out, p.data[:])
	return out
}

func (p *FlatPage) BeforeImage() page.Page {
	return newFlatPage(p.id, p.before[:])
}

func (p *FlatPage) SetBeforeImage() {
	p.before = p.data
}

// Mutate overwrites the page's content with data (truncated or zero-padded
// to page.PageSize) without touching the dirty stamp; callers mark the
// page dirty themselves via MarkDirty, mirroring how a real operator would
// mutate a page it fetched with exclusive permission from the buffer pool.
func (p *FlatPage) Mutate(data []byte) {
	var buf [page.PageSize]byte
	copy(buf[:], data)
	p.data = buf
}

// PageFile is a page.Store backed by a single OS file, one table's worth
// of fixed-size pages laid out at offset pageNumber*page.PageSize.
type PageFile struct {
	tableID int
	mu      sync.Mutex
	file    *os.File
}

// Open opens (creating if necessary) the file at path as the backing store
// for tableID.
func Open(path string, tableID int) (*PageFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(err, "Open", "PageFile")
	}
	return &PageFile{tableID: tableID, file: f}, nil
}

// Close releases the underlying file handle.
func (pf *PageFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.file.Close()
}

// NumPages reports how many pages are currently allocated, counting a
// trailing partial page as one.
func (pf *PageFile) NumPages() (int, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.numPagesLocked()
}

func (pf *PageFile) numPagesLocked() (int, error) {
	info, err := pf.file.Stat()
	if err != nil {
		return 0, dberr.Wrap(err, "NumPages", "PageFile")
	}
	n := int(info.Size() / page.PageSize)
	if info.Size()%page.PageSize != 0 {
		n++
	}
	return n, nil
}

func (pf *PageFile) ReadPage(id page.ID) (page.Page, error) {
	if id.TableID != pf.tableID {
		return nil, dberr.New(dberr.KindDbException, "page %v does not belong to table %d", id, pf.tableID)
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	buf := make([]byte, page.PageSize)
	offset := int64(id.PageNumber) * page.PageSize
	if _, err := pf.file.ReadAt(buf, offset); err != nil {
		return nil, dberr.Wrap(err, "ReadPage", "PageFile")
	}

	return newFlatPage(id, buf), nil
}

func (pf *PageFile) WritePage(p page.Page) error {
	id := p.ID()
	if id.TableID != pf.tableID {
		return dberr.New(dberr.KindDbException, "page %v does not belong to table %d", id, pf.tableID)
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	offset := int64(id.PageNumber) * page.PageSize
	if _, err := pf.file.WriteAt(p.Data(), offset); err != nil {
		return dberr.Wrap(err, "WritePage", "PageFile")
	}
	if err := pf.file.Sync(); err != nil {
		return dberr.Wrap(err, "WritePage", "PageFile")
	}

	logging.WithPage(id).Debug("page written to disk")
	return nil
}

// InsertTuple allocates a fresh page holding payload (a stand-in for a real
// tuple encoding) and reports it as the sole dirtied page.
func (pf *PageFile) InsertTuple(tid txn.ID, tableID int, t any) ([]page.Page, error) {
	payload, ok := t.([]byte)
	if !ok {
		return nil, dberr.New(dberr.KindDbException, "InsertTuple: expected []byte payload, got %T", t)
	}
	if tableID != pf.tableID {
		return nil, dberr.New(dberr.KindDbException, "table %d does not belong to this PageFile", tableID)
	}

	pf.mu.Lock()
	n, err := pf.numPagesLocked()
	if err != nil {
		pf.mu.Unlock()
		return nil, err
	}
	id := page.NewID(tableID, n)

	zero := make([]byte, page.PageSize)
	if _, err := pf.file.WriteAt(zero, int64(n)*page.PageSize); err != nil {
		pf.mu.Unlock()
		return nil, dberr.Wrap(err, "InsertTuple", "PageFile")
	}
	pf.mu.Unlock()

	p := newFlatPage(id, payload)
	p.MarkDirty(true, tid)
	return []page.Page{p}, nil
}

// DeleteTuple is unsupported by this minimal backing store: a real
// implementation would need a tuple/slot format to locate the record being
// deleted, which is out of scope here.
func (pf *PageFile) DeleteTuple(tid txn.ID, t any) ([]page.Page, error) {
	return nil, dberr.New(dberr.KindDbException, "DeleteTuple: not supported by pagefile.PageFile (got %v)", t)
}
