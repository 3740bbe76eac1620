// Package binenc holds the little-endian fixed-width field helpers shared
// by the footer and disk-node codecs. Ported from the read/write helper
// shapes in github.com/iotaledger/trie.go's common/util.go
// (ReadUint32/WriteUint32/Uint32To4Bytes/...), adapted from io.Reader/io.Writer
// streaming to direct slice offsets, since the disk codec addresses nodes
// by absolute file offset rather than serializing to a single stream.
package binenc

import "encoding/binary"

func PutUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func Uint16(b []byte) uint16       { return binary.LittleEndian.Uint16(b) }

func PutUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func Uint32(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }

func PutUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func Uint64(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }

func AppendUint16(dst []byte, v uint16) []byte {
	var tmp [2]byte
	PutUint16(tmp[:], v)
	return append(dst, tmp[:]...)
}

func AppendUint32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

func AppendUint64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}
