// pkg/pager/pager.go
package pager

import (
	"container/list"
	"encoding/binary"
	"errors"
	"os"
	"sync"
)

const (
	// PageSize is the fixed page size, per spec §3.
	PageSize = 4096

	magic           = "LUNARISDB\x00\x00\x00\x00\x00\x00\x00"
	headerVersion   = 1
	cacheFrameCount = 128
)

var (
	ErrInvalidHeader = errors.New("invalid database header")
	ErrPageNotFound  = errors.New("page not found")
	ErrDatabaseLocked = errors.New("database file is locked by another process")
)

// Pager owns the database file, a bounded LRU page cache, and the
// process-exclusive file lock. All methods are safe for concurrent use,
// though the session layer above serializes statement execution with its
// own mutex and never relies on Pager-level concurrency.
type Pager struct {
	mu sync.Mutex

	file *os.File

	pageCount     uint32
	freeListHead  uint32
	catalogRoot   uint32

	cache    map[uint32]*list.Element // pageNo -> node in lru
	lru      *list.List               // front = most recently used
	readOnly bool
}

type cacheEntry struct {
	page *Page
}

// Open opens or creates the database file at path, taking an exclusive
// process-wide lock on it. A second process opening the same file receives
// ErrDatabaseLocked.
func Open(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{
		file:  f,
		cache: make(map[uint32]*list.Element),
		lru:   list.New(),
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() == 0 {
		p.pageCount = 1
		if err := p.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := p.readHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}

	return p, nil
}

// readHeader loads page 0 and validates spec §3's file header.
func (p *Pager) readHeader() error {
	buf := make([]byte, PageSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return err
	}

	if string(buf[0:16]) != magic {
		return ErrInvalidHeader
	}

	version := binary.LittleEndian.Uint32(buf[16:20])
	if version != headerVersion {
		return ErrInvalidHeader
	}

	p.pageCount = binary.LittleEndian.Uint32(buf[20:24])
	p.freeListHead = binary.LittleEndian.Uint32(buf[24:28])
	p.catalogRoot = binary.LittleEndian.Uint32(buf[28:32])
	return nil
}

func (p *Pager) writeHeader() error {
	buf := make([]byte, PageSize)
	copy(buf[0:16], magic)
	binary.LittleEndian.PutUint32(buf[16:20], headerVersion)
	binary.LittleEndian.PutUint32(buf[20:24], p.pageCount)
	binary.LittleEndian.PutUint32(buf[24:28], p.freeListHead)
	binary.LittleEndian.PutUint32(buf[28:32], p.catalogRoot)
	_, err := p.file.WriteAt(buf, 0)
	return err
}

// CatalogRoot returns the page number of the catalog's root, or 0 if the
// catalog has not been created yet.
func (p *Pager) CatalogRoot() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.catalogRoot
}

// SetCatalogRoot persists the catalog root page number into the file header.
// It does not flush; the caller's statement-end flush covers it.
func (p *Pager) SetCatalogRoot(pageNo uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalogRoot = pageNo
	return p.writeHeader()
}

// PageCount returns the number of allocated pages, including page 0.
func (p *Pager) PageCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCount
}

// Get fetches a page, consulting the cache first and loading from disk on a
// miss, evicting the least-recently-used frame (flushing it first if dirty)
// when the cache is at capacity.
func (p *Pager) Get(pageNo uint32) (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if elem, ok := p.cache[pageNo]; ok {
		p.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).page, nil
	}

	if pageNo >= p.pageCount {
		return nil, ErrPageNotFound
	}

	data := make([]byte, PageSize)
	if _, err := p.file.ReadAt(data, int64(pageNo)*PageSize); err != nil {
		return nil, err
	}
	// Page 0 is the file header, validated when the file is opened; it has
	// no node kind byte or checksum.
	if pageNo != 0 {
		if err := checkPage(pageNo, data); err != nil {
			return nil, err
		}
	}

	page := newPage(pageNo, data)
	p.insertIntoCache(page)
	return page, nil
}

// Allocate grows the file by one page, preferring a page from the free list
// when one is available, and returns it zeroed and marked dirty. A reused
// page replaces any cached frame of its free-list form.
func (p *Pager) Allocate() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeListHead != 0 {
		pageNo := p.freeListHead
		next, err := p.readFreeListNext(pageNo)
		if err != nil {
			return nil, err
		}
		p.freeListHead = next
		if err := p.writeHeader(); err != nil {
			return nil, err
		}
		if elem, ok := p.cache[pageNo]; ok {
			p.lru.Remove(elem)
			delete(p.cache, pageNo)
		}

		data := make([]byte, PageSize)
		page := newPage(pageNo, data)
		page.dirty = true
		p.insertIntoCache(page)
		return page, nil
	}

	pageNo := p.pageCount
	p.pageCount++
	if err := p.writeHeader(); err != nil {
		return nil, err
	}

	data := make([]byte, PageSize)
	page := newPage(pageNo, data)
	page.dirty = true
	p.insertIntoCache(page)
	return page, nil
}

// Free returns a page to the free list. The page's contents are overwritten
// with a free-list link; it must not be accessed as a B+ tree node again
// until reallocated.
func (p *Pager) Free(pageNo uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := make([]byte, PageSize)
	encodeFreePage(data, p.freeListHead)

	if elem, ok := p.cache[pageNo]; ok {
		page := elem.Value.(*cacheEntry).page
		page.data = data
		page.dirty = true
	} else {
		page := newPage(pageNo, data)
		page.dirty = true
		p.insertIntoCache(page)
	}

	p.freeListHead = pageNo
	return p.writeHeader()
}

func (p *Pager) readFreeListNext(pageNo uint32) (uint32, error) {
	if elem, ok := p.cache[pageNo]; ok {
		return decodeFreePageNext(elem.Value.(*cacheEntry).page.data), nil
	}
	buf := make([]byte, PageSize)
	if _, err := p.file.ReadAt(buf, int64(pageNo)*PageSize); err != nil {
		return 0, err
	}
	return decodeFreePageNext(buf), nil
}

// MarkDirty flags a page as modified since the last flush.
func (p *Pager) MarkDirty(page *Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	page.dirty = true
}

// insertIntoCache adds page to the front of the LRU list, evicting the tail
// (flushing first if dirty) when the cache is over capacity. Caller holds p.mu.
func (p *Pager) insertIntoCache(page *Page) {
	elem := p.lru.PushFront(&cacheEntry{page: page})
	p.cache[page.pageNo] = elem

	for p.lru.Len() > cacheFrameCount {
		tail := p.lru.Back()
		evicted := tail.Value.(*cacheEntry).page
		if evicted.dirty {
			p.writePage(evicted)
		}
		p.lru.Remove(tail)
		delete(p.cache, evicted.pageNo)
	}
}

func (p *Pager) writePage(page *Page) error {
	switch page.data[0] {
	case kindInterior, kindLeaf, kindOverflow:
		writeChecksum(page.data)
	}
	if _, err := p.file.WriteAt(page.data, int64(page.pageNo)*PageSize); err != nil {
		return err
	}
	page.dirty = false
	return nil
}

// Flush writes every dirty cached page to disk and fsyncs the file. Called
// once at the end of every mutating statement (spec §5), never mid-statement.
func (p *Pager) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for e := p.lru.Front(); e != nil; e = e.Next() {
		page := e.Value.(*cacheEntry).page
		if page.dirty {
			if err := p.writePage(page); err != nil {
				return err
			}
		}
	}
	return p.file.Sync()
}

// Close flushes, releases the file lock, and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.Flush(); err != nil {
		p.file.Close()
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	unlockFile(p.file)
	return p.file.Close()
}
