package tkvdb

import "github.com/slaykovsky/tkvdb/internal/binenc"

// Block type tags (spec.md §3.3).
const (
	blockTransaction   uint8 = 0
	blockFooter        uint8 = 1
	blockRemovedFooter uint8 = 2
)

const footerSignature = "tkvdb003"

// footerSize and txnHeaderSize are fixed wire constants (spec.md §6);
// every reader and writer in this package must agree on them exactly.
const (
	footerSize    = 49
	txnHeaderSize = 9
)

// footer mirrors the packed little-endian trailer written after every
// committed transaction block (spec.md §3.3).
type footer struct {
	typ      uint8
	rootOff  uint64
	txnSize  uint64
	txnID    uint64
	gapBegin uint64
	gapEnd   uint64

	// fileSize is not part of the wire layout; it is the observed length
	// of the file this footer was read from, recorded for the Commit
	// "modified" check (spec.md §4.4 step 2).
	fileSize uint64
}

// txnHeader mirrors the 9-byte type(1)|footer_off(8) prefix written at
// the start of every transaction block.
type txnHeader struct {
	typ       uint8
	footerOff uint64
}

func encodeTxnHeader(h txnHeader) []byte {
	buf := make([]byte, txnHeaderSize)
	buf[0] = h.typ
	binenc.PutUint64(buf[1:9], h.footerOff)
	return buf
}

func decodeTxnHeader(buf []byte) (txnHeader, error) {
	if len(buf) < txnHeaderSize {
		return txnHeader{}, ErrIOError
	}
	return txnHeader{typ: buf[0], footerOff: binenc.Uint64(buf[1:9])}, nil
}

func encodeFooter(f footer) []byte {
	buf := make([]byte, 0, footerSize)
	buf = append(buf, blockFooter)
	buf = append(buf, footerSignature...)
	buf = binenc.AppendUint64(buf, f.rootOff)
	buf = binenc.AppendUint64(buf, f.txnSize)
	buf = binenc.AppendUint64(buf, f.txnID)
	buf = binenc.AppendUint64(buf, f.gapBegin)
	buf = binenc.AppendUint64(buf, f.gapEnd)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != footerSize {
		return footer{}, ErrIOError
	}
	if buf[0] != blockFooter {
		return footer{}, ErrCorrupted
	}
	if string(buf[1:9]) != footerSignature {
		return footer{}, ErrCorrupted
	}
	f := footer{typ: buf[0]}
	f.rootOff = binenc.Uint64(buf[9:17])
	f.txnSize = binenc.Uint64(buf[17:25])
	f.txnID = binenc.Uint64(buf[25:33])
	f.gapBegin = binenc.Uint64(buf[33:41])
	f.gapEnd = binenc.Uint64(buf[41:49])
	return f, nil
}
