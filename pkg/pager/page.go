// pkg/pager/page.go
package pager

// Kind discriminates the contents of a page, stored in its first byte, per
// spec §3.
const (
	kindInterior byte = 0x01
	kindLeaf     byte = 0x02
	kindOverflow byte = 0x03
	kindFree     byte = 0x00
)

// Page is an in-memory copy of one on-disk page. Callers mutate Data()
// directly and call Pager.MarkDirty (or rely on Allocate/Free, which mark
// dirty implicitly) so the pager knows to write it back.
type Page struct {
	pageNo uint32
	data   []byte
	dirty  bool
}

func newPage(pageNo uint32, data []byte) *Page {
	return &Page{pageNo: pageNo, data: data}
}

// PageNo returns this page's number.
func (p *Page) PageNo() uint32 { return p.pageNo }

// Data returns the raw page bytes. The returned slice aliases the pager's
// in-memory copy; mutations are visible on the next Flush.
func (p *Page) Data() []byte { return p.data }

// Kind returns the page's type discriminator byte.
func (p *Page) Kind() byte { return p.data[0] }
