package tkvdb

import (
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures an opened database, per spec.md §6's "Configurable
// parameters" table. WriteBufLimit, WriteBufDynalloc, TrBufLimit and
// TrBufDynalloc are carried here but not read by the engine: the commit
// buffer is always sized to the transaction being written, and each
// transaction's arena mode and ceiling come only from NewTransaction's
// arguments.
type Options struct {
	WriteBufLimit    uint64
	WriteBufDynalloc bool

	TrBufLimit    uint64
	TrBufDynalloc bool

	FileMode os.FileMode

	// UseMmap opts the read path into a memory-mapped view of the file
	// for node loads instead of pread-style seek+read, grounded on the
	// read-path shortcut github.com/vechain-thor and
	// github.com/AKJUS-bsc-erigon both offer for their on-disk trie
	// stores. Off by default: mmap views must be remapped after every
	// commit extends the file, which the straight os.File path avoids.
	UseMmap bool

	Logger zerolog.Logger

	// Metrics, if non-nil, receives commit/vacuum counters and gap/arena
	// gauges. Left nil by default - an embedder opts in by constructing
	// one with NewMetrics and its own prometheus.Registerer.
	Metrics *Metrics
}

// DefaultOptions returns the engine's defaults: unbounded dynamic
// write/transaction buffers, owner-only file mode, mmap disabled, and
// zerolog's global logger (log.Logger) as it stands when DefaultOptions
// is called - a console logger only if the caller has installed one
// there first, as cmd/tkvdbtool does.
func DefaultOptions() Options {
	return Options{
		WriteBufDynalloc: true,
		TrBufDynalloc:    true,
		FileMode:         0o600,
		Logger:           log.Logger,
	}
}

// DB is an open database file handle, owning the file and the optional
// mmap view used to fault in disk nodes. The footer is not cached: it is
// re-read from the file tail on every call that needs it.
type DB struct {
	mu   sync.Mutex
	path string
	f    *os.File
	opts Options

	mmap mmap.MMap

	closed bool
}

// Open opens (creating if absent) the database file at path.
func Open(path string, opts Options) (*DB, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, opts.FileMode)
	if err != nil {
		return nil, ErrIOError
	}
	db := &DB{path: path, f: f, opts: opts}
	if opts.UseMmap {
		if err := db.remap(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) remap() error {
	if db.mmap != nil {
		_ = db.mmap.Unmap()
		db.mmap = nil
	}
	fi, err := db.f.Stat()
	if err != nil {
		return ErrIOError
	}
	if fi.Size() == 0 {
		return nil
	}
	m, err := mmap.Map(db.f, mmap.RDONLY, 0)
	if err != nil {
		return ErrIOError
	}
	db.mmap = m
	return nil
}

// Close releases the file descriptor and any mmap view.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.mmap != nil {
		_ = db.mmap.Unmap()
	}
	if err := db.f.Close(); err != nil {
		return ErrIOError
	}
	return nil
}

// Sync flushes the file to stable storage.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.f.Sync(); err != nil {
		return ErrIOError
	}
	return nil
}

// Info reports the current footer's root/gap bookkeeping, per spec.md
// §6's dbinfo operation.
type Info struct {
	RootOff  uint64
	GapBegin uint64
	GapEnd   uint64
}

func (db *DB) Info() (Info, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	f, err := db.currentFooterLocked()
	if err != nil {
		return Info{}, err
	}
	return Info{RootOff: f.rootOff, GapBegin: f.gapBegin, GapEnd: f.gapEnd}, nil
}

func (db *DB) currentFooter() (footer, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.currentFooterLocked()
}

// currentFooterLocked reads the tail footer. An empty file synthesizes a
// zero-valued footer so callers (notably Commit's modified check) never
// need to special-case "no footer yet" separately from "footer present".
func (db *DB) currentFooterLocked() (footer, error) {
	fi, err := db.f.Stat()
	if err != nil {
		return footer{}, ErrIOError
	}
	size := uint64(fi.Size())
	if size == 0 {
		return footer{fileSize: 0}, nil
	}
	if size < footerSize {
		return footer{}, ErrCorrupted
	}
	buf := make([]byte, footerSize)
	if _, err := db.f.ReadAt(buf, int64(size-footerSize)); err != nil {
		return footer{}, ErrIOError
	}
	f, err := decodeFooter(buf)
	if err == nil {
		f.fileSize = size
		return f, nil
	}

	// The literal tail isn't a valid footer - most likely a crash left a
	// partially-written transaction block trailing the last good commit
	// (spec.md §8's simulated crash-safety property). Scan backward for
	// the most recent offset whose trailing footerSize bytes do
	// validate; the file is kept exactly as the last complete commit
	// left it, so that offset is the true end of live data.
	return db.scanForLastGoodFooter(size)
}

func (db *DB) scanForLastGoodFooter(size uint64) (footer, error) {
	for off := int64(size) - 1; off >= footerSize; off-- {
		buf := make([]byte, footerSize)
		if _, err := db.f.ReadAt(buf, off-footerSize); err != nil {
			continue
		}
		f, err := decodeFooter(buf)
		if err == nil {
			f.fileSize = uint64(off)
			return f, nil
		}
	}
	return footer{}, ErrCorrupted
}

// loadNode faults in the node at the given disk offset, consulting the
// mmap view when enabled and falling back to a seek+read otherwise.
func (db *DB) loadNode(off uint64) (*node, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if off == 0 {
		return nil, ErrCorrupted
	}
	if db.mmap != nil && off < uint64(len(db.mmap)) {
		return decodeNode(db.mmap[off:], off)
	}
	hdr := make([]byte, 4)
	if _, err := db.f.ReadAt(hdr, int64(off)); err != nil {
		return nil, ErrIOError
	}
	size := int(beUint32(hdr))
	buf := make([]byte, size)
	if _, err := db.f.ReadAt(buf, int64(off)); err != nil {
		if err == io.EOF {
			return nil, ErrCorrupted
		}
		return nil, ErrIOError
	}
	return decodeNode(buf, off)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// commit implements spec.md §4.4's commit protocol.
func (db *DB) commit(tr *Transaction) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	cur, err := db.currentFooterLocked()
	if err != nil {
		return err
	}
	if cur.fileSize != tr.beginSize || cur.txnID != tr.beginTxnID {
		if db.opts.Metrics != nil {
			db.opts.Metrics.CommitErrors.Inc()
		}
		return ErrModified
	}

	root := tr.root
	if root == nil {
		tr.arena.reset()
		return nil
	}
	root = root.resolve()

	// Size the transaction against a provisional append offset first;
	// gap-fitting never changes txnSize, only where it lands.
	_, txnSize := planTransaction(root, cur.fileSize)

	var transactionOff uint64
	gapBegin, gapEnd := cur.gapBegin, cur.gapEnd
	usingGap := gapEnd > gapBegin && gapEnd-gapBegin >= txnSize+txnHeaderSize
	if usingGap {
		transactionOff = gapBegin
	} else {
		transactionOff = cur.fileSize
	}

	order, txnSize := planTransaction(root, transactionOff)

	buf := serializeTransaction(order)

	footerOff := transactionOff + txnHeaderSize + txnSize
	hdr := encodeTxnHeader(txnHeader{typ: blockTransaction, footerOff: footerOff})

	newFooter := footer{
		typ:      blockFooter,
		rootOff:  root.diskOff,
		txnSize:  txnSize,
		txnID:    cur.txnID + 1,
		gapBegin: gapBegin,
		gapEnd:   gapEnd,
	}
	if usingGap {
		newFooter.gapBegin = gapBegin + txnHeaderSize + txnSize
	}
	ftrBuf := encodeFooter(newFooter)

	if usingGap {
		// spec.md §4.4 step 6: a gap-filled transaction block is written
		// in place inside the gap, but the footer that makes it (and its
		// root) reachable always lands at end-of-file - root discovery
		// only ever reads the last footerSize bytes.
		txnBlock := make([]byte, 0, len(hdr)+len(buf))
		txnBlock = append(txnBlock, hdr...)
		txnBlock = append(txnBlock, buf...)
		n, err := db.f.WriteAt(txnBlock, int64(transactionOff))
		if err != nil || n != len(txnBlock) {
			if db.opts.Metrics != nil {
				db.opts.Metrics.CommitErrors.Inc()
			}
			return ErrIOError
		}
		n, err = db.f.WriteAt(ftrBuf, int64(cur.fileSize))
		if err != nil || n != len(ftrBuf) {
			if db.opts.Metrics != nil {
				db.opts.Metrics.CommitErrors.Inc()
			}
			return ErrIOError
		}
	} else {
		block := make([]byte, 0, len(hdr)+len(buf)+len(ftrBuf))
		block = append(block, hdr...)
		block = append(block, buf...)
		block = append(block, ftrBuf...)

		n, err := db.f.WriteAt(block, int64(transactionOff))
		if err != nil || n != len(block) {
			if db.opts.Metrics != nil {
				db.opts.Metrics.CommitErrors.Inc()
			}
			return ErrIOError
		}
	}
	if db.opts.UseMmap {
		if err := db.remap(); err != nil {
			return err
		}
	}

	if db.opts.Metrics != nil {
		db.opts.Metrics.Commits.Inc()
		db.opts.Metrics.GapBytes.Set(float64(newFooter.gapEnd - newFooter.gapBegin))
		db.opts.Metrics.ArenaBytes.Set(float64(tr.arena.Used()))
	}

	tr.arena.reset()
	tr.root = root
	return nil
}

// commitGapUpdate writes a degenerate, node-free transaction block (just
// a header) immediately followed by an updated footer whose gap bounds
// extend to cover [begin, end) - the fix for the FIXME spec.md §9 flags:
// the reference vacuum commits its result transaction but never actually
// reclaims the old region it just rewrote. Called only by Vacuum, after
// its result transaction has already committed via the normal path.
func (db *DB) commitGapUpdate(begin, end uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	cur, err := db.currentFooterLocked()
	if err != nil {
		return err
	}

	transactionOff := cur.fileSize
	hdr := encodeTxnHeader(txnHeader{typ: blockTransaction, footerOff: transactionOff + txnHeaderSize})

	gapBegin, gapEnd := cur.gapBegin, cur.gapEnd
	if gapEnd == gapBegin {
		gapBegin, gapEnd = begin, end
	} else if end == gapBegin {
		gapBegin = begin
	} else if begin == gapEnd {
		gapEnd = end
	} else {
		gapBegin, gapEnd = begin, end
	}

	newFooter := footer{
		typ:      blockFooter,
		rootOff:  cur.rootOff,
		txnSize:  0,
		txnID:    cur.txnID + 1,
		gapBegin: gapBegin,
		gapEnd:   gapEnd,
	}
	ftrBuf := encodeFooter(newFooter)

	block := append(append([]byte{}, hdr...), ftrBuf...)
	n, err := db.f.WriteAt(block, int64(transactionOff))
	if err != nil || n != len(block) {
		return ErrIOError
	}
	if db.opts.Metrics != nil {
		db.opts.Metrics.GapBytes.Set(float64(gapEnd - gapBegin))
	}
	if db.opts.UseMmap {
		return db.remap()
	}
	return nil
}
