// pkg/btree/node.go
package btree

import (
	"encoding/binary"
	"errors"

	"lunaris/pkg/pager"
)

/*
Leaf node layout (spec §3):

	0:   kind byte (0x02)
	1:   row_count u16 LE
	3:   next_leaf u32 LE (0 if none)
	7..: row_count entries of {key i64 LE, payload_len u16 LE, payload}

Interior node layout:

	0:   kind byte (0x01)
	1:   child_count u16 LE
	3..: child_count x u32 LE child page ids
	     (child_count-1) x i64 LE separator keys
*/

const (
	leafHeaderSize     = 7
	leafEntryFixedSize = 8 + 2 // key + payload_len, payload follows

	interiorHeaderSize = 3
)

var (
	ErrNodeFull = errors.New("node has no room for this entry")
)

// usableSpace is the portion of a page available to node content: the
// trailing 4 bytes hold the pager's CRC32 and are never touched here.
const usableSpace = pager.PageSize - 4

// Node is a thin view over a page's bytes, interpreted as either a leaf or
// an interior B+ tree node.
type Node struct {
	data []byte
}

// NewLeaf initializes data as an empty leaf node.
func NewLeaf(data []byte) *Node {
	data[0] = 0x02
	binary.LittleEndian.PutUint16(data[1:3], 0)
	binary.LittleEndian.PutUint32(data[3:7], 0)
	return &Node{data: data}
}

// NewInterior initializes data as an interior node with a single child and
// no separator keys.
func NewInterior(data []byte, onlyChild uint32) *Node {
	data[0] = 0x01
	binary.LittleEndian.PutUint16(data[1:3], 1)
	binary.LittleEndian.PutUint32(data[3:7], onlyChild)
	return &Node{data: data}
}

// Load wraps an existing page's bytes.
func Load(data []byte) *Node {
	return &Node{data: data}
}

func (n *Node) IsLeaf() bool { return n.data[0] == 0x02 }

// --- leaf accessors ---

func (n *Node) RowCount() int {
	return int(binary.LittleEndian.Uint16(n.data[1:3]))
}

func (n *Node) setRowCount(c int) {
	binary.LittleEndian.PutUint16(n.data[1:3], uint16(c))
}

func (n *Node) NextLeaf() uint32 {
	return binary.LittleEndian.Uint32(n.data[3:7])
}

func (n *Node) SetNextLeaf(pageNo uint32) {
	binary.LittleEndian.PutUint32(n.data[3:7], pageNo)
}

// entryOffset returns the byte offset of leaf entry i's key field.
func (n *Node) entryOffset(i int) int {
	off := leafHeaderSize
	for j := 0; j < i; j++ {
		plen := int(binary.LittleEndian.Uint16(n.data[off+8 : off+10]))
		off += leafEntryFixedSize + plen
	}
	return off
}

// leafUsed returns the number of bytes currently used by leaf entries.
func (n *Node) leafUsed() int {
	return n.entryOffset(n.RowCount())
}

// Key returns the key of leaf entry i.
func (n *Node) Key(i int) int64 {
	off := n.entryOffset(i)
	return int64(binary.LittleEndian.Uint64(n.data[off : off+8]))
}

// Payload returns a copy of leaf entry i's payload bytes.
func (n *Node) Payload(i int) []byte {
	off := n.entryOffset(i)
	plen := int(binary.LittleEndian.Uint16(n.data[off+8 : off+10]))
	out := make([]byte, plen)
	copy(out, n.data[off+10:off+10+plen])
	return out
}

// findKeyIndex returns the index of the first entry with key >= target,
// which is len(entries) if all keys are smaller.
func (n *Node) findKeyIndex(target int64) int {
	count := n.RowCount()
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		if n.Key(mid) < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// InsertEntry inserts a new (key, payload) pair into the leaf at its sorted
// position, shifting later entries right. Returns ErrNodeFull if it would
// not fit; the caller is responsible for splitting and retrying.
func (n *Node) InsertEntry(key int64, payload []byte) error {
	needed := leafEntryFixedSize + len(payload)
	if n.leafUsed()+needed > usableSpace {
		return ErrNodeFull
	}

	pos := n.findKeyIndex(key)
	insertOff := n.entryOffset(pos)
	tailLen := n.leafUsed() - insertOff

	// shift existing tail right to make room
	copy(n.data[insertOff+needed:insertOff+needed+tailLen], n.data[insertOff:insertOff+tailLen])

	binary.LittleEndian.PutUint64(n.data[insertOff:insertOff+8], uint64(key))
	binary.LittleEndian.PutUint16(n.data[insertOff+8:insertOff+10], uint16(len(payload)))
	copy(n.data[insertOff+10:insertOff+10+len(payload)], payload)

	n.setRowCount(n.RowCount() + 1)
	return nil
}

// DeleteEntry removes leaf entry i, shifting later entries left.
func (n *Node) DeleteEntry(i int) {
	off := n.entryOffset(i)
	entryLen := n.entryOffset(i+1) - off
	tailLen := n.leafUsed() - (off + entryLen)
	copy(n.data[off:off+tailLen], n.data[off+entryLen:off+entryLen+tailLen])
	n.setRowCount(n.RowCount() - 1)
}

// SplitLeaf moves the tail of n into a freshly initialized right sibling,
// choosing the split point that minimizes the byte-size difference between
// the two halves (ties favor a fuller left side, per spec §4.3). It returns
// the separator key (the right sibling's first key).
func (n *Node) SplitLeaf(rightData []byte) (separator int64, right *Node) {
	count := n.RowCount()
	total := n.leafUsed()

	bestSplit := 1
	bestDiff := total + 1
	for split := 1; split < count; split++ {
		leftBytes := n.entryOffset(split) - leafHeaderSize
		rightBytes := (total - leafHeaderSize) - leftBytes
		diff := leftBytes - rightBytes
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff || (diff == bestDiff && leftBytes > n.entryOffset(bestSplit)-leafHeaderSize) {
			bestDiff = diff
			bestSplit = split
		}
	}

	right = NewLeaf(rightData)
	for i := bestSplit; i < count; i++ {
		right.InsertEntry(n.Key(i), n.Payload(i))
	}
	right.SetNextLeaf(n.NextLeaf())

	// truncate n to the left half
	newCount := bestSplit
	n.setRowCount(newCount)

	return right.Key(0), right
}

// --- interior accessors ---

func (n *Node) ChildCount() int {
	return int(binary.LittleEndian.Uint16(n.data[1:3]))
}

// setChildCount updates the child count and moves the separator array,
// which starts right after the child pointers, to its new offset.
func (n *Node) setChildCount(c int) {
	old := n.ChildCount()
	keep := old
	if c < keep {
		keep = c
	}
	if keep > 1 {
		from := interiorHeaderSize + old*4
		to := interiorHeaderSize + c*4
		copy(n.data[to:to+(keep-1)*8], n.data[from:from+(keep-1)*8])
	}
	binary.LittleEndian.PutUint16(n.data[1:3], uint16(c))
}

func (n *Node) Child(i int) uint32 {
	off := interiorHeaderSize + i*4
	return binary.LittleEndian.Uint32(n.data[off : off+4])
}

func (n *Node) setChild(i int, pageNo uint32) {
	off := interiorHeaderSize + i*4
	binary.LittleEndian.PutUint32(n.data[off:off+4], pageNo)
}

// SetChild overwrites child pointer i in place, used to bypass a collapsed
// single-child descendant.
func (n *Node) SetChild(i int, pageNo uint32) { n.setChild(i, pageNo) }

func (n *Node) separatorsOffset() int {
	return interiorHeaderSize + n.ChildCount()*4
}

func (n *Node) Separator(i int) int64 {
	off := n.separatorsOffset() + i*8
	return int64(binary.LittleEndian.Uint64(n.data[off : off+8]))
}

func (n *Node) setSeparator(i int, key int64) {
	off := n.separatorsOffset() + i*8
	binary.LittleEndian.PutUint64(n.data[off:off+8], uint64(key))
}

func (n *Node) interiorUsed() int {
	count := n.ChildCount()
	return interiorHeaderSize + count*4 + (count-1)*8
}

// ChildForKey returns the index of the child to descend into for key.
func (n *Node) ChildForKey(key int64) int {
	count := n.ChildCount()
	for i := 0; i < count-1; i++ {
		if key < n.Separator(i) {
			return i
		}
	}
	return count - 1
}

// InsertChildAfter inserts a new child pointer immediately after existing
// child i, with sep as the separator key between them (keys >= sep route to
// the new child). It shifts later children and separators right.
func (n *Node) InsertChildAfter(i int, sep int64, child uint32) error {
	count := n.ChildCount()
	needed := n.interiorUsed() + 4 + 8
	if needed > usableSpace {
		return ErrNodeFull
	}

	n.setChildCount(count + 1)
	for j := count; j > i+1; j-- {
		n.setChild(j, n.Child(j-1))
	}
	n.setChild(i+1, child)

	for j := count - 1; j > i; j-- {
		n.setSeparator(j, n.Separator(j-1))
	}
	n.setSeparator(i, sep)
	return nil
}

// SplitInterior moves the tail of n's children/separators into a freshly
// initialized right sibling. The separator returned is promoted to the
// parent; it is the key that was between the last child kept in n and the
// first child moved to right (and is removed from both children).
func (n *Node) SplitInterior(rightData []byte) (separator int64, right *Node) {
	count := n.ChildCount()
	mid := count / 2

	promoted := n.Separator(mid - 1)

	right = NewInterior(rightData, n.Child(mid))
	for i := mid + 1; i < count; i++ {
		right.appendChild(n.Separator(i-1), n.Child(i))
	}

	n.setChildCount(mid)
	return promoted, right
}

// appendChild is used only while building a node from a split; it assumes
// children are appended in increasing order and room has already been
// reserved by the caller's split arithmetic.
func (n *Node) appendChild(sep int64, child uint32) {
	count := n.ChildCount()
	n.setChildCount(count + 1)
	n.setChild(count, child)
	n.setSeparator(count-1, sep)
}

// DeleteChild removes child i, collapsing the adjacent separator (the one at
// index i-1 if i > 0, else index 0), shifting later entries left.
func (n *Node) DeleteChild(i int) {
	count := n.ChildCount()
	sepIdx := i - 1
	if sepIdx < 0 {
		sepIdx = 0
	}
	for j := i; j < count-1; j++ {
		n.setChild(j, n.Child(j+1))
	}
	for j := sepIdx; j < count-2; j++ {
		n.setSeparator(j, n.Separator(j+1))
	}
	n.setChildCount(count - 1)
}
