package pagefile

import (
	"bytes"
	"path/filepath"
	"testing"

	"coredb/pkg/concurrency/txn"
	"coredb/pkg/storage/page"
)

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pf, err := Open(filepath.Join(dir, "t1.db"), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	id := page.NewID(1, 0)
	tid := txn.New()
	pages, err := pf.InsertTuple(tid, 1, []byte("hello"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 dirtied page, got %d", len(pages))
	}
	if pages[0].ID() != id {
		t.Fatalf("expected page id %v, got %v", id, pages[0].ID())
	}

	if err := pf.WritePage(pages[0]); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := pf.ReadPage(id)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.HasPrefix(got.Data(), []byte("hello")) {
		t.Errorf("expected data to start with 'hello', got %v", got.Data()[:5])
	}
}

func TestReadPageWrongTableRejected(t *testing.T) {
	dir := t.TempDir()
	pf, err := Open(filepath.Join(dir, "t1.db"), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	if _, err := pf.ReadPage(page.NewID(2, 0)); err == nil {
		t.Error("expected error reading a page for a different table")
	}
}

func TestNumPagesGrows(t *testing.T) {
	dir := t.TempDir()
	pf, err := Open(filepath.Join(dir, "t1.db"), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pf.Close()

	n, err := pf.NumPages()
	if err != nil {
		t.Fatalf("NumPages: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 pages initially, got %d", n)
	}

	tid := txn.New()
	if _, err := pf.InsertTuple(tid, 1, []byte("x")); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	n, err = pf.NumPages()
	if err != nil {
		t.Fatalf("NumPages: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 page after insert, got %d", n)
	}
}
