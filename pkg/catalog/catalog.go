// pkg/catalog/catalog.go
package catalog

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"strings"

	"lunaris/pkg/btree"
	"lunaris/pkg/pager"
	"lunaris/pkg/types"
)

var (
	ErrUnknownTable   = errors.New("unknown table")
	ErrDuplicateTable = errors.New("table already exists")
)

// Entry is one table's catalog record: its schema, its data B+ tree's root
// page, the original (display) casing of its name, and the next value a
// synthetic rowid will take if the table has no leading INTEGER column.
type Entry struct {
	Name      string
	Schema    *types.Schema
	RootPage  uint32
	NextRowID int64
}

// Catalog is the distinguished B+ tree mapping a stable hash of each
// table's lowercased name to its Entry, per spec §4.4.
type Catalog struct {
	pager *pager.Pager
	tree  *btree.BTree
}

// tableKey computes the stable 64-bit key spec §4.4 requires: the FNV-1a
// hash of the table name, lowercased so lookups are case-insensitive.
func tableKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(name)))
	return int64(h.Sum64())
}

// Create initializes a fresh, empty catalog and records its root page in
// the pager's file header.
func Create(p *pager.Pager) (*Catalog, error) {
	tree, err := btree.Create(p)
	if err != nil {
		return nil, err
	}
	if err := p.SetCatalogRoot(tree.RootPage()); err != nil {
		return nil, err
	}
	return &Catalog{pager: p, tree: tree}, nil
}

// Open wraps the catalog already recorded in the pager's file header.
func Open(p *pager.Pager) *Catalog {
	return &Catalog{pager: p, tree: btree.Open(p, p.CatalogRoot())}
}

// Lookup returns the Entry for name (case-insensitive), or ErrUnknownTable.
func (c *Catalog) Lookup(name string) (*Entry, error) {
	payload, err := c.tree.Get(tableKey(name))
	if err != nil {
		if err == btree.ErrKeyNotFound {
			return nil, ErrUnknownTable
		}
		return nil, err
	}
	return decodeEntry(payload)
}

// CreateTable allocates a fresh empty data B+ tree for name and registers
// it in the catalog, preserving name's original casing for display.
func (c *Catalog) CreateTable(name string, schema *types.Schema) (*Entry, error) {
	if _, err := c.Lookup(name); err == nil {
		return nil, ErrDuplicateTable
	} else if err != ErrUnknownTable {
		return nil, err
	}

	dataTree, err := btree.Create(c.pager)
	if err != nil {
		return nil, err
	}

	entry := &Entry{Name: name, Schema: schema, RootPage: dataTree.RootPage(), NextRowID: 1}
	if err := c.tree.Insert(tableKey(name), encodeEntry(entry)); err != nil {
		return nil, err
	}
	return entry, nil
}

// AdvanceRowID persists the entry's incremented NextRowID after a table
// without a leading INTEGER column receives an insert, and returns the
// rowid that insert should use.
func (c *Catalog) AdvanceRowID(name string) (int64, error) {
	entry, err := c.Lookup(name)
	if err != nil {
		return 0, err
	}
	rowid := entry.NextRowID
	entry.NextRowID++
	if err := c.tree.Delete(tableKey(name)); err != nil {
		return 0, err
	}
	if err := c.tree.Insert(tableKey(name), encodeEntry(entry)); err != nil {
		return 0, err
	}
	return rowid, nil
}

// Tables returns every registered table's Entry, in catalog key order (not
// necessarily name order; callers needing name order should sort).
func (c *Catalog) Tables() ([]*Entry, error) {
	var entries []*Entry
	cur := c.tree.Cursor()
	if err := cur.SeekFirst(); err != nil {
		return nil, err
	}
	for cur.Valid() {
		payload, err := cur.Payload()
		if err != nil {
			return nil, err
		}
		entry, err := decodeEntry(payload)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// encodeEntry/decodeEntry serialize an Entry as: name length u16 + name
// bytes, root page u32, next rowid i64 LE, column count u16, then per
// column: name length u16 + name, type byte, varchar-n u16 LE.
func encodeEntry(e *Entry) []byte {
	buf := make([]byte, 0, 64)

	var nameLen [2]byte
	binary.LittleEndian.PutUint16(nameLen[:], uint16(len(e.Name)))
	buf = append(buf, nameLen[:]...)
	buf = append(buf, e.Name...)

	var rootBuf [4]byte
	binary.LittleEndian.PutUint32(rootBuf[:], e.RootPage)
	buf = append(buf, rootBuf[:]...)

	var rowidBuf [8]byte
	binary.LittleEndian.PutUint64(rowidBuf[:], uint64(e.NextRowID))
	buf = append(buf, rowidBuf[:]...)

	var colCountBuf [2]byte
	binary.LittleEndian.PutUint16(colCountBuf[:], uint16(len(e.Schema.Columns)))
	buf = append(buf, colCountBuf[:]...)

	for _, col := range e.Schema.Columns {
		var cnLen [2]byte
		binary.LittleEndian.PutUint16(cnLen[:], uint16(len(col.Name)))
		buf = append(buf, cnLen[:]...)
		buf = append(buf, col.Name...)
		buf = append(buf, byte(col.Type))
		var vnBuf [2]byte
		binary.LittleEndian.PutUint16(vnBuf[:], uint16(col.VarcharN))
		buf = append(buf, vnBuf[:]...)
	}

	return buf
}

func decodeEntry(data []byte) (*Entry, error) {
	pos := 0
	readU16 := func() (int, error) {
		if pos+2 > len(data) {
			return 0, errCorruptCatalog
		}
		v := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2
		return v, nil
	}

	nameLen, err := readU16()
	if err != nil {
		return nil, err
	}
	if pos+nameLen > len(data) {
		return nil, errCorruptCatalog
	}
	name := string(data[pos : pos+nameLen])
	pos += nameLen

	if pos+4 > len(data) {
		return nil, errCorruptCatalog
	}
	rootPage := binary.LittleEndian.Uint32(data[pos : pos+4])
	pos += 4

	if pos+8 > len(data) {
		return nil, errCorruptCatalog
	}
	nextRowID := int64(binary.LittleEndian.Uint64(data[pos : pos+8]))
	pos += 8

	colCount, err := readU16()
	if err != nil {
		return nil, err
	}

	cols := make([]types.Column, colCount)
	for i := 0; i < colCount; i++ {
		cnLen, err := readU16()
		if err != nil {
			return nil, err
		}
		if pos+cnLen > len(data) {
			return nil, errCorruptCatalog
		}
		colName := string(data[pos : pos+cnLen])
		pos += cnLen

		if pos+1 > len(data) {
			return nil, errCorruptCatalog
		}
		colType := types.ColumnType(data[pos])
		pos++

		varcharN, err := readU16()
		if err != nil {
			return nil, err
		}
		cols[i] = types.Column{Name: colName, Type: colType, VarcharN: varcharN, Ordinal: i}
	}

	if pos != len(data) {
		return nil, errCorruptCatalog
	}

	return &Entry{Name: name, Schema: &types.Schema{Columns: cols}, RootPage: rootPage, NextRowID: nextRowID}, nil
}

var errCorruptCatalog = errors.New("corrupt catalog entry")
