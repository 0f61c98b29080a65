// pkg/pager/freelist.go
package pager

import "encoding/binary"

// The free list is a simple singly-linked chain of free pages: the header's
// free-list-head field (spec §3) names the first free page, and each free
// page stores the next free page's number in its first four bytes after the
// kind byte. This is a smaller structure than a trunk-page free list because
// Lunaris pages are reused by Allocate immediately and never need bulk
// enumeration or defragmentation.

// encodeFreePage writes a free-page link record into data (length PageSize).
func encodeFreePage(data []byte, next uint32) {
	data[0] = kindFree
	binary.LittleEndian.PutUint32(data[1:5], next)
}

// decodeFreePageNext reads the next-pointer out of a free-page record.
func decodeFreePageNext(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[1:5])
}
