package tkvdb

import "golang.org/x/xerrors"

// ArenaMode selects how a transaction's node arena accounts for
// allocations, per spec.md §4.1.
type ArenaMode int

const (
	// ArenaDynamic tracks bytes used against an optional ceiling
	// (0 = unbounded); allocations succeed as long as the ceiling isn't
	// exceeded.
	ArenaDynamic ArenaMode = iota
	// ArenaFixed reserves a fixed byte budget up front; any allocation
	// that would exceed it fails with ErrENOMEM, regardless of whether
	// the Go heap has room.
	ArenaFixed
)

// arena is a per-transaction node allocator. Grounded on
// github.com/iotaledger/trie.go's nodeStoreBuffered (trie/nodestore.go),
// which caches freshly-built nodes for one mutation pass; tkvdb
// generalizes "cache nodes produced during a pass" to "account for bytes
// allocated during a transaction" because node identity here is the
// pointer itself (no path-keyed cache is needed - disk offset is only
// assigned at commit time).
//
// Go has no raw byte-slab-with-bump-pointer primitive that yields live,
// GC-tracked *node values without unsafe, so "fixed slab" is realized as
// a non-growable byte ceiling rather than a literal bump allocator: the
// externally observable contract (two modes, a ceiling, ENOMEM on
// overflow, instant reset on rollback) matches spec.md exactly, while
// the actual node memory stays on the normal Go heap. See DESIGN.md for
// this as a recorded Open Question resolution.
type arena struct {
	mode  ArenaMode
	limit uint64 // 0 means unbounded; only meaningful for ArenaDynamic
	used  uint64
}

func newDynamicArena(limit uint64) *arena {
	return &arena{mode: ArenaDynamic, limit: limit}
}

func newFixedArena(limit uint64) (*arena, error) {
	if limit == 0 {
		return nil, xerrors.New("tkvdb: fixed arena requires a nonzero limit")
	}
	return &arena{mode: ArenaFixed, limit: limit}, nil
}

// nodeByteSize estimates the in-memory footprint of a node with the given
// inline buffer sizes. The two 256-wide fan-out tables dominate; they are
// always fully allocated (spec.md keeps the dense array literally, see
// spec.md §9's "optional redesign" note, declined here in favor of
// fidelity to the described layout).
func nodeByteSize(prefixLen, valLen, metaLen int) uint64 {
	const childTables = 256*8 + 256*8 // next [256]*node + fnext [256]uint64
	const fixedFields = 64            // typ/sizes/diskOff/nsubnodes/replacedBy/dirty/slice header
	return uint64(childTables + fixedFields + prefixLen + valLen + metaLen)
}

func (a *arena) reserve(size uint64) error {
	if a.mode == ArenaFixed {
		if a.used+size > a.limit {
			return ErrENOMEM
		}
	} else if a.limit > 0 && a.used+size > a.limit {
		return ErrENOMEM
	}
	a.used += size
	return nil
}

// newNode allocates a fresh, dirty node carrying prefix‖val‖meta inline.
// hasVal is tracked explicitly rather than inferred from len(val) > 0, so
// that a node can legitimately hold a zero-length value (spec.md allows
// arbitrary values, including empty ones) distinct from holding none at
// all.
func (a *arena) newNode(prefix, val, meta []byte, hasVal bool) (*node, error) {
	size := nodeByteSize(len(prefix), len(val), len(meta))
	if err := a.reserve(size); err != nil {
		return nil, err
	}
	n := &node{dirty: true}
	n.prefixSize = uint32(len(prefix))
	n.valSize = uint32(len(val))
	n.metaSize = uint32(len(meta))
	buf := make([]byte, 0, len(prefix)+len(val)+len(meta))
	buf = append(buf, prefix...)
	buf = append(buf, val...)
	buf = append(buf, meta...)
	n.buf = buf
	if hasVal {
		n.typ |= typeHasValue
	}
	if len(meta) > 0 {
		n.typ |= typeHasMeta
	}
	return n, nil
}

// reset returns the arena to its empty state. In dynamic mode this is
// exactly "drop the root reference and let the garbage collector reclaim
// everything reachable only from this transaction" (rollback's bounded-
// stack free-walk in spec.md §4.1 has no work left to do once nothing
// references the subtree); fixed mode is identical since no slab memory
// is actually carved out.
func (a *arena) reset() {
	a.used = 0
}

func (a *arena) Used() uint64 {
	return a.used
}
