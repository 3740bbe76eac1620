package tkvdb

import "github.com/slaykovsky/tkvdb/internal/binenc"

// denseChildThreshold is the fixed compact/dense boundary from spec.md
// §3.4 and §6: nsubnodes <= 224 (= 256 - 256/8) encodes compactly as a
// symbol array plus an offset array; above it, a flat 256-wide offset
// array is used.
const denseChildThreshold = 224

const (
	diskNodeHeaderSize = 4 + 1 + 2 + 4 // size, type, nsubnodes, prefix_size
)

// computeDiskSize returns the total encoded byte length of n, including
// its own 4-byte size field, following the disk node layout of spec.md
// §3.4.
func computeDiskSize(n *node) uint32 {
	size := diskNodeHeaderSize
	if n.hasValue() {
		size += 4
	}
	if n.hasMeta() {
		size += 4
	}
	size += childrenEncodedSize(int(n.nsubnodes))
	size += int(n.prefixSize) + int(n.valSize) + int(n.metaSize)
	return uint32(size)
}

func childrenEncodedSize(nsubnodes int) int {
	if nsubnodes <= denseChildThreshold {
		return nsubnodes * (1 + 8)
	}
	return 256 * 8
}

// encodeNode serializes n into buf[0:computeDiskSize(n)]. Every child
// slot's fnext entry must already hold a valid disk offset (planTransaction
// resolves these bottom-up before calling encodeNode on a parent).
func encodeNode(n *node, buf []byte) {
	size := computeDiskSize(n)
	binenc.PutUint32(buf[0:4], size)
	buf[4] = n.typ
	binenc.PutUint16(buf[5:7], n.nsubnodes)
	binenc.PutUint32(buf[7:11], n.prefixSize)
	off := diskNodeHeaderSize
	if n.hasValue() {
		binenc.PutUint32(buf[off:off+4], n.valSize)
		off += 4
	}
	if n.hasMeta() {
		binenc.PutUint32(buf[off:off+4], n.metaSize)
		off += 4
	}
	if int(n.nsubnodes) <= denseChildThreshold {
		symOff := off
		offOff := off + int(n.nsubnodes)
		for b := 0; b < 256; b++ {
			if n.fnext[b] == 0 {
				continue
			}
			buf[symOff] = byte(b)
			symOff++
			binenc.PutUint64(buf[offOff:offOff+8], n.fnext[b])
			offOff += 8
		}
		off += childrenEncodedSize(int(n.nsubnodes))
	} else {
		for b := 0; b < 256; b++ {
			binenc.PutUint64(buf[off+b*8:off+b*8+8], n.fnext[b])
		}
		off += 256 * 8
	}
	copy(buf[off:], n.buf)
}

// decodeNode parses a disk node out of buf (which must be at least large
// enough to hold the declared size). diskOff is the absolute file offset
// this node was read from, stamped onto the result for later fnext
// bookkeeping (e.g. vacuum's region probes).
func decodeNode(buf []byte, diskOff uint64) (*node, error) {
	if len(buf) < diskNodeHeaderSize {
		return nil, ErrCorrupted
	}
	size := binenc.Uint32(buf[0:4])
	if int(size) > len(buf) {
		return nil, ErrCorrupted
	}
	n := &node{}
	n.diskSize = size
	n.diskOff = diskOff
	n.typ = buf[4]
	n.nsubnodes = binenc.Uint16(buf[5:7])
	n.prefixSize = binenc.Uint32(buf[7:11])

	off := diskNodeHeaderSize
	if n.hasValue() {
		if off+4 > len(buf) {
			return nil, ErrCorrupted
		}
		n.valSize = binenc.Uint32(buf[off : off+4])
		off += 4
	}
	if n.hasMeta() {
		if off+4 > len(buf) {
			return nil, ErrCorrupted
		}
		n.metaSize = binenc.Uint32(buf[off : off+4])
		off += 4
	}

	if int(n.nsubnodes) <= denseChildThreshold {
		need := int(n.nsubnodes) * (1 + 8)
		if off+need > len(buf) {
			return nil, ErrCorrupted
		}
		symOff := off
		offOff := off + int(n.nsubnodes)
		for i := 0; i < int(n.nsubnodes); i++ {
			sym := buf[symOff+i]
			n.fnext[sym] = binenc.Uint64(buf[offOff+i*8 : offOff+i*8+8])
		}
		off += need
	} else {
		need := 256 * 8
		if off+need > len(buf) {
			return nil, ErrCorrupted
		}
		for b := 0; b < 256; b++ {
			n.fnext[b] = binenc.Uint64(buf[off+b*8 : off+b*8+8])
		}
		off += need
	}

	dataLen := int(n.prefixSize) + int(n.valSize) + int(n.metaSize)
	if off+dataLen > len(buf) {
		return nil, ErrCorrupted
	}
	n.buf = append([]byte(nil), buf[off:off+dataLen]...)
	return n, nil
}

// planTransaction walks every dirty node reachable from root in
// post-order (children before parents), assigning each a disk_off within
// the transaction block being built and writing resolved child offsets
// back into each parent's fnext, per spec.md §4.4's serialize step.
// Non-dirty nodes are left untouched: their disk_off/fnext already
// describe a previously committed image.
func planTransaction(root *node, transactionOff uint64) (order []*node, totalSize uint64) {
	visited := make(map[*node]bool)
	var walk func(n *node)
	walk = func(n *node) {
		n = n.resolve()
		if !n.dirty || visited[n] {
			return
		}
		visited[n] = true
		for b := 0; b < 256; b++ {
			if n.next[b] != nil {
				c := n.next[b].resolve()
				if c.dirty {
					walk(c)
				}
			}
		}
		n.nsubnodes = uint16(n.childCount())
		order = append(order, n)
	}
	walk(root)

	off := transactionOff + txnHeaderSize
	for _, n := range order {
		for b := 0; b < 256; b++ {
			if n.next[b] != nil {
				c := n.next[b].resolve()
				n.fnext[b] = c.diskOff
			}
		}
		n.diskSize = computeDiskSize(n)
		n.diskOff = off
		off += uint64(n.diskSize)
	}
	totalSize = off - (transactionOff + txnHeaderSize)
	return order, totalSize
}

// serializeTransaction encodes every node in order into a single
// contiguous buffer, in the layout order planTransaction assigned.
func serializeTransaction(order []*node) []byte {
	if len(order) == 0 {
		return nil
	}
	var total uint64
	for _, n := range order {
		total += uint64(n.diskSize)
	}
	buf := make([]byte, total)
	var pos uint64
	for _, n := range order {
		encodeNode(n, buf[pos:pos+uint64(n.diskSize)])
		pos += uint64(n.diskSize)
		n.dirty = false
	}
	return buf
}
