// pkg/btree/btree.go
package btree

import (
	"errors"

	"lunaris/pkg/pager"
)

var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// BTree is a cursor-oriented B+ tree keyed by a signed 64-bit integer,
// persisted through a Pager, per spec §4.3.
type BTree struct {
	pager    *pager.Pager
	rootPage uint32
}

// Create allocates a fresh, empty B+ tree (a single empty leaf root).
func Create(p *pager.Pager) (*BTree, error) {
	page, err := p.Allocate()
	if err != nil {
		return nil, err
	}
	NewLeaf(page.Data())
	p.MarkDirty(page)

	return &BTree{pager: p, rootPage: page.PageNo()}, nil
}

// Open wraps an existing B+ tree whose root is already at rootPage.
func Open(p *pager.Pager, rootPage uint32) *BTree {
	return &BTree{pager: p, rootPage: rootPage}
}

// RootPage returns the root page number. Root splits and root collapses
// rewrite the root page in place, so the number does not change.
func (bt *BTree) RootPage() uint32 { return bt.rootPage }

// Insert adds a new (key, payload) pair. Returns ErrDuplicateKey if key
// already exists, per the primary-key Open Question resolution (spec §9).
func (bt *BTree) Insert(key int64, payload []byte) error {
	split, err := bt.insertRecursive(bt.rootPage, key, payload)
	if err != nil {
		return err
	}
	if split != nil {
		if err := bt.growRoot(split); err != nil {
			return err
		}
	}
	return nil
}

// splitResult carries a promoted separator key and the new right sibling's
// page number up one level after a split.
type splitResult struct {
	separator int64
	rightPage uint32
}

// growRoot moves the split root's left half to a fresh page and rebuilds
// the root page in place as an interior node over it and the new right
// sibling, so the root keeps its page number.
func (bt *BTree) growRoot(split *splitResult) error {
	rootPage, err := bt.pager.Get(bt.rootPage)
	if err != nil {
		return err
	}
	left, err := bt.pager.Allocate()
	if err != nil {
		return err
	}
	copy(left.Data(), rootPage.Data())
	root := NewInterior(rootPage.Data(), left.PageNo())
	if err := root.InsertChildAfter(0, split.separator, split.rightPage); err != nil {
		return err
	}
	bt.pager.MarkDirty(left)
	bt.pager.MarkDirty(rootPage)
	return nil
}

func (bt *BTree) insertRecursive(pageNo uint32, key int64, payload []byte) (*splitResult, error) {
	page, err := bt.pager.Get(pageNo)
	if err != nil {
		return nil, err
	}
	node := Load(page.Data())

	if node.IsLeaf() {
		idx := node.findKeyIndex(key)
		if idx < node.RowCount() && node.Key(idx) == key {
			return nil, ErrDuplicateKey
		}
		if err := node.InsertEntry(key, payload); err == nil {
			bt.pager.MarkDirty(page)
			return nil, nil
		} else if err != ErrNodeFull {
			return nil, err
		}
		return bt.splitLeafAndInsert(page, node, key, payload)
	}

	childIdx := node.ChildForKey(key)
	childPage := node.Child(childIdx)
	childSplit, err := bt.insertRecursive(childPage, key, payload)
	if err != nil {
		return nil, err
	}
	if childSplit == nil {
		return nil, nil
	}

	if err := node.InsertChildAfter(childIdx, childSplit.separator, childSplit.rightPage); err == nil {
		bt.pager.MarkDirty(page)
		return nil, nil
	} else if err != ErrNodeFull {
		return nil, err
	}

	return bt.splitInteriorAndInsert(page, node, childIdx, childSplit.separator, childSplit.rightPage)
}

func (bt *BTree) splitLeafAndInsert(page *pager.Page, node *Node, key int64, payload []byte) (*splitResult, error) {
	rightPage, err := bt.pager.Allocate()
	if err != nil {
		return nil, err
	}
	sep, right := node.SplitLeaf(rightPage.Data())
	node.SetNextLeaf(rightPage.PageNo())

	if key < sep {
		node.InsertEntry(key, payload)
	} else {
		right.InsertEntry(key, payload)
	}
	bt.pager.MarkDirty(page)
	bt.pager.MarkDirty(rightPage)

	return &splitResult{separator: sep, rightPage: rightPage.PageNo()}, nil
}

func (bt *BTree) splitInteriorAndInsert(page *pager.Page, node *Node, childIdx int, sep int64, childPageNo uint32) (*splitResult, error) {
	rightPage, err := bt.pager.Allocate()
	if err != nil {
		return nil, err
	}
	promoted, right := node.SplitInterior(rightPage.Data())

	leftCount := node.ChildCount()
	if childIdx < leftCount {
		if err := node.InsertChildAfter(childIdx, sep, childPageNo); err != nil {
			return nil, err
		}
	} else {
		if err := right.InsertChildAfter(childIdx-leftCount, sep, childPageNo); err != nil {
			return nil, err
		}
	}
	bt.pager.MarkDirty(page)
	bt.pager.MarkDirty(rightPage)

	return &splitResult{separator: promoted, rightPage: rightPage.PageNo()}, nil
}

// Get returns the payload for key, or ErrKeyNotFound.
func (bt *BTree) Get(key int64) ([]byte, error) {
	pageNo := bt.rootPage
	for {
		page, err := bt.pager.Get(pageNo)
		if err != nil {
			return nil, err
		}
		node := Load(page.Data())
		if node.IsLeaf() {
			idx := node.findKeyIndex(key)
			if idx < node.RowCount() && node.Key(idx) == key {
				return node.Payload(idx), nil
			}
			return nil, ErrKeyNotFound
		}
		pageNo = node.Child(node.ChildForKey(key))
	}
}

// Delete removes key. It does not proactively rebalance: an emptied leaf is
// unlinked from the next_leaf chain and freed; an interior node left with a
// single child is bypassed by its parent and freed; the tree is only
// lowered when the root itself becomes an interior node with a single
// child (spec §4.3).
func (bt *BTree) Delete(key int64) error {
	_, _, err := bt.deleteRecursive(bt.rootPage, key)
	return err
}

// childUpdate tells a caller how to fix up its pointer to a child that just
// changed shape: removeChild means the child page is already freed and the
// pointer+separator should simply be dropped; replaceWith (if nonzero)
// means the child degenerated to a single descendant, which the caller
// should point at directly, then free the old (now-bypassed) child page.
type childUpdate struct {
	removeChild bool
	replaceWith uint32
}

// deleteRecursive returns a childUpdate when the caller must adjust its
// pointer to pageNo (nil otherwise), and a pending next_leaf fixup: when an
// emptied leaf had no left sibling at its own parent, the leaf that used to
// precede it lives further up the left spine, so the fixup (the freed
// leaf's old next_leaf pointer) travels up until a level with a real left
// sibling resolves it.
func (bt *BTree) deleteRecursive(pageNo uint32, key int64) (update *childUpdate, fixup *uint32, err error) {
	page, err := bt.pager.Get(pageNo)
	if err != nil {
		return nil, nil, err
	}
	node := Load(page.Data())

	if node.IsLeaf() {
		idx := node.findKeyIndex(key)
		if idx >= node.RowCount() || node.Key(idx) != key {
			return nil, nil, ErrKeyNotFound
		}
		node.DeleteEntry(idx)
		bt.pager.MarkDirty(page)
		if node.RowCount() == 0 && pageNo != bt.rootPage {
			successor := node.NextLeaf()
			if err := bt.pager.Free(pageNo); err != nil {
				return nil, nil, err
			}
			return &childUpdate{removeChild: true}, &successor, nil
		}
		return nil, nil, nil
	}

	childIdx := node.ChildForKey(key)
	childPageNo := node.Child(childIdx)
	childUpd, childFixup, err := bt.deleteRecursive(childPageNo, key)
	if err != nil {
		return nil, nil, err
	}

	if childFixup != nil && childIdx > 0 {
		if err := bt.setRightmostLeafNext(node.Child(childIdx-1), *childFixup); err != nil {
			return nil, nil, err
		}
		childFixup = nil
	}

	if childUpd == nil {
		return nil, childFixup, nil
	}

	if childUpd.removeChild {
		node.DeleteChild(childIdx)
	} else {
		node.SetChild(childIdx, childUpd.replaceWith)
		if err := bt.pager.Free(childPageNo); err != nil {
			return nil, nil, err
		}
	}
	bt.pager.MarkDirty(page)

	if pageNo == bt.rootPage {
		if node.ChildCount() == 1 {
			// Pull the only child up into the root page and free the child.
			onlyChild := node.Child(0)
			childPage, err := bt.pager.Get(onlyChild)
			if err != nil {
				return nil, nil, err
			}
			copy(page.Data(), childPage.Data())
			if err := bt.pager.Free(onlyChild); err != nil {
				return nil, nil, err
			}
		}
		return nil, childFixup, nil
	}
	if node.ChildCount() == 1 {
		return &childUpdate{replaceWith: node.Child(0)}, childFixup, nil
	}
	return nil, childFixup, nil
}

// setRightmostLeafNext descends to the rightmost leaf of the subtree rooted
// at pageNo and overwrites its next_leaf pointer.
func (bt *BTree) setRightmostLeafNext(pageNo uint32, next uint32) error {
	page, err := bt.pager.Get(pageNo)
	if err != nil {
		return err
	}
	node := Load(page.Data())
	if node.IsLeaf() {
		node.SetNextLeaf(next)
		bt.pager.MarkDirty(page)
		return nil
	}
	return bt.setRightmostLeafNext(node.Child(node.ChildCount()-1), next)
}
