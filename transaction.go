package tkvdb

// Transaction is a single-writer mutation scope over a DB, grounded on
// github.com/iotaledger/trie.go's Trie/TrieReader split (trie/trie.go) -
// here specialized to spec.md §4's begin/mutate/commit-or-rollback
// lifecycle rather than the teacher's always-open commitment tree.
type Transaction struct {
	db    *DB
	arena *arena

	root *node

	// beginSize/beginTxnID snapshot the footer state observed at Begin,
	// used by Commit to detect concurrent modification (spec.md §5.3).
	beginSize  uint64
	beginTxnID uint64

	started bool
	done    bool
}

// NewTransaction begins a transaction against db using the given arena
// mode. A nil db yields a transaction over an empty, unpersisted trie -
// used by tests that only exercise Put/Get/Del in memory.
func NewTransaction(db *DB, mode ArenaMode, limit uint64) (*Transaction, error) {
	tr := &Transaction{db: db}
	switch mode {
	case ArenaFixed:
		a, err := newFixedArena(limit)
		if err != nil {
			return nil, err
		}
		tr.arena = a
	default:
		tr.arena = newDynamicArena(limit)
	}
	if err := tr.begin(); err != nil {
		return nil, err
	}
	return tr, nil
}

// Begin re-opens a transaction that has already Committed or Rolled
// back, against the same db and arena, for reuse across many mutate/
// commit cycles (spec.md §3.2: "a transaction may be reused many
// times") instead of allocating a fresh Transaction per cycle.
func (tr *Transaction) Begin() error {
	tr.arena.reset()
	tr.root = nil
	tr.beginSize = 0
	tr.beginTxnID = 0
	tr.started = false
	tr.done = false
	return tr.begin()
}

func (tr *Transaction) begin() error {
	if tr.db == nil {
		tr.started = true
		return nil
	}
	f, err := tr.db.currentFooter()
	if err != nil {
		return err
	}
	tr.beginSize = f.fileSize
	tr.beginTxnID = f.txnID
	if f.rootOff != 0 {
		root, err := tr.db.loadNode(f.rootOff)
		if err != nil {
			return err
		}
		tr.root = root
	}
	tr.started = true
	return nil
}

func (tr *Transaction) checkOpen() error {
	if !tr.started {
		return ErrNotStarted
	}
	if tr.done {
		return ErrNotStarted
	}
	return nil
}

// Put inserts or overwrites key with val.
func (tr *Transaction) Put(key, val Datum) error {
	if err := tr.checkOpen(); err != nil {
		return err
	}
	newRoot, err := tr.put(tr.root, key.Bytes(), val.Bytes())
	if err != nil {
		return err
	}
	tr.root = newRoot
	return nil
}

// Get retrieves the value stored for key.
func (tr *Transaction) Get(key Datum) (Datum, error) {
	if err := tr.checkOpen(); err != nil {
		return Datum{}, err
	}
	n, err := tr.get(tr.root, key.Bytes())
	if err != nil {
		return Datum{}, err
	}
	return DatumFromBytes(n.value()), nil
}

// Del removes key (or, if prefix is true, every key having it as a
// prefix, spec.md §4.2's prefix-delete mode).
func (tr *Transaction) Del(key Datum, prefix bool) error {
	if err := tr.checkOpen(); err != nil {
		return err
	}
	newRoot, err := tr.del(tr.root, key.Bytes(), prefix)
	if err != nil {
		return err
	}
	if newRoot == nil {
		// The root itself (which has no parent) was detached; spec.md
		// §4.2 replaces it with a fresh empty node rather than leaving
		// the transaction rootless.
		newRoot, err = tr.arena.newNode(nil, nil, nil, false)
		if err != nil {
			return err
		}
	}
	tr.root = newRoot
	return nil
}

// Rollback discards all mutations made in this transaction. Per spec.md
// §4.1, this is instant: drop the arena-held root and let the arena
// reset, with nothing written back to the database.
func (tr *Transaction) Rollback() error {
	if err := tr.checkOpen(); err != nil {
		return err
	}
	tr.arena.reset()
	tr.root = nil
	tr.done = true
	return nil
}

// Commit validates that the database hasn't been modified since Begin,
// then serializes every dirty node into a new transaction block, written
// either at end of file or into the reclaimed gap, followed by a footer
// that always lands at end of file (spec.md §5).
func (tr *Transaction) Commit() error {
	if err := tr.checkOpen(); err != nil {
		return err
	}
	defer func() { tr.done = true }()
	if tr.db == nil {
		return nil
	}
	return tr.db.commit(tr)
}
