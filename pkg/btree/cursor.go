// pkg/btree/cursor.go
package btree

// Cursor provides ordered iteration over a BTree's entries, per spec §4.3's
// open/cursor/seek_first/seek_eq/next/key/payload/insert/delete_current
// contract. Once positioned on a leaf, Next follows the leaf's next_leaf
// pointer rather than re-descending from the root.
type Cursor struct {
	bt        *BTree
	leafPage  uint32
	pos       int
	valid     bool
	resumeKey *int64
}

// Cursor opens a new cursor over bt, initially invalid until positioned.
func (bt *BTree) Cursor() *Cursor {
	return &Cursor{bt: bt}
}

// SeekFirst positions the cursor on the smallest key in the tree.
func (c *Cursor) SeekFirst() error {
	c.resumeKey = nil
	pageNo := c.bt.rootPage
	for {
		page, err := c.bt.pager.Get(pageNo)
		if err != nil {
			c.valid = false
			return err
		}
		node := Load(page.Data())
		if node.IsLeaf() {
			c.leafPage = pageNo
			c.pos = 0
			c.valid = node.RowCount() > 0
			if !c.valid {
				return c.advanceToNonEmptyLeaf()
			}
			return nil
		}
		pageNo = node.Child(0)
	}
}

// SeekEq positions the cursor on key if present, or marks it invalid.
func (c *Cursor) SeekEq(key int64) error {
	c.resumeKey = nil
	pageNo := c.bt.rootPage
	for {
		page, err := c.bt.pager.Get(pageNo)
		if err != nil {
			c.valid = false
			return err
		}
		node := Load(page.Data())
		if node.IsLeaf() {
			idx := node.findKeyIndex(key)
			c.leafPage = pageNo
			c.pos = idx
			c.valid = idx < node.RowCount() && node.Key(idx) == key
			return nil
		}
		pageNo = node.Child(node.ChildForKey(key))
	}
}

// advanceToNonEmptyLeaf walks next_leaf pointers forward from the cursor's
// current (exhausted) leaf until it finds one with rows, or runs out.
// Lazily-deleted empty leaves are unlinked by Delete, but a cursor open
// concurrently with a delete on the same statement never happens (spec §5
// serializes statements), so this only needs to skip leaves this cursor's
// own iteration has just emptied via DeleteCurrent.
func (c *Cursor) advanceToNonEmptyLeaf() error {
	for {
		page, err := c.bt.pager.Get(c.leafPage)
		if err != nil {
			c.valid = false
			return err
		}
		node := Load(page.Data())
		next := node.NextLeaf()
		if next == 0 {
			c.valid = false
			return nil
		}
		c.leafPage = next
		c.pos = 0
		nextPage, err := c.bt.pager.Get(next)
		if err != nil {
			c.valid = false
			return err
		}
		nextNode := Load(nextPage.Data())
		if nextNode.RowCount() > 0 {
			c.valid = true
			return nil
		}
	}
}

// Next advances the cursor to the following entry in key order. If the
// cursor was just invalidated by DeleteCurrent, it resumes at the
// successor DeleteCurrent recorded rather than stepping from pos.
func (c *Cursor) Next() error {
	if c.resumeKey != nil {
		key := *c.resumeKey
		c.resumeKey = nil
		return c.SeekEq(key)
	}
	if !c.valid {
		return nil
	}
	c.pos++

	page, err := c.bt.pager.Get(c.leafPage)
	if err != nil {
		c.valid = false
		return err
	}
	node := Load(page.Data())
	if c.pos < node.RowCount() {
		return nil
	}
	return c.advanceToNonEmptyLeaf()
}

// Valid reports whether the cursor currently points at an entry.
func (c *Cursor) Valid() bool { return c.valid }

// Key returns the current entry's key.
func (c *Cursor) Key() (int64, error) {
	page, err := c.bt.pager.Get(c.leafPage)
	if err != nil {
		return 0, err
	}
	return Load(page.Data()).Key(c.pos), nil
}

// Payload returns a copy of the current entry's payload.
func (c *Cursor) Payload() ([]byte, error) {
	page, err := c.bt.pager.Get(c.leafPage)
	if err != nil {
		return nil, err
	}
	return Load(page.Data()).Payload(c.pos), nil
}

// Insert adds a new entry through the owning tree. Since an insert may
// split nodes and relocate entries, the cursor does not stay positioned
// on the inserted row; callers needing that must re-seek.
func (c *Cursor) Insert(key int64, payload []byte) error {
	return c.bt.Insert(key, payload)
}

// DeleteCurrent removes the entry the cursor is positioned on. The cursor
// becomes invalid until the following Next or a fresh seek: it looks up
// the successor's key before deleting, since the delete may free the
// current leaf page out from under the cursor's position, and hands that
// key to the next Next call instead of repositioning immediately.
func (c *Cursor) DeleteCurrent() error {
	if !c.valid {
		return ErrKeyNotFound
	}
	key, err := c.Key()
	if err != nil {
		return err
	}

	savedLeaf, savedPos := c.leafPage, c.pos
	var successor *int64
	if err := c.Next(); err != nil {
		return err
	}
	if c.valid {
		k, err := c.Key()
		if err != nil {
			return err
		}
		successor = &k
	}
	c.leafPage, c.pos = savedLeaf, savedPos

	if err := c.bt.Delete(key); err != nil {
		return err
	}
	c.valid = false
	c.resumeKey = successor
	return nil
}
