// Package page defines the narrow interfaces the buffer pool requires of a
// backing page store, plus the value type used to address a page.
package page

import "fmt"

// ID identifies a page uniquely by the table it belongs to and its offset
// within that table's file. It is a plain comparable value, not an
// interface: every page in the system is addressed by exactly this pair, so
// there is no need for the indirection a PageID interface would buy a
// multi-file-type storage engine.
type ID struct {
	TableID    int
	PageNumber int
}

// NewID builds a page identifier for the given table and page offset.
func NewID(tableID, pageNumber int) ID {
	return ID{TableID: tableID, PageNumber: pageNumber}
}

func (id ID) String() string {
	return fmt.Sprintf("page(table=%d, num=%d)", id.TableID, id.PageNumber)
}
