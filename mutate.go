package tkvdb

// This file implements the walk-by-byte mutation procedures shared by
// Put, Get and Del (spec.md §4.2), grounded on the divergence
// classification in github.com/iotaledger/trie.go's trie/trie.go
// (proofPath + Update's EndingTerminal/EndingExtend/EndingSplit switch),
// specialized to byte-wide (256-ary) arity - tkvdb's store never reduces
// to the teacher's nibble/bit path packing, so no PathArity step exists
// here.

// childOf resolves the child of n at byte b, lazily faulting it in from
// disk through the owning transaction's database if only an on-disk
// offset is known. Returns (nil, nil) if no such child exists.
func (tr *Transaction) childOf(n *node, b byte) (*node, error) {
	n = n.resolve()
	if n.next[b] != nil {
		return n.next[b].resolve(), nil
	}
	if n.fnext[b] != 0 {
		if tr.db == nil {
			return nil, ErrCorrupted
		}
		c, err := tr.db.loadNode(n.fnext[b])
		if err != nil {
			return nil, err
		}
		n.next[b] = c
		return c, nil
	}
	return nil, nil
}

// put is the entry point for inserting/overwriting key with val, starting
// from root (which may be nil for an empty trie). It returns the new
// root.
func (tr *Transaction) put(root *node, key, val []byte) (*node, error) {
	if root == nil {
		return tr.arena.newNode(key, val, nil, true)
	}
	return tr.putNode(root, key, val)
}

func (tr *Transaction) putNode(n *node, key, val []byte) (*node, error) {
	n = n.resolve()
	p := n.prefix()
	i := commonPrefixLen(p, key)

	switch {
	case i == len(p) && i == len(key):
		// Case 1/2: exact match.
		return tr.putExact(n, val)
	case i == len(p) && i < len(key):
		// Case 4: prefix exhausted mid-key - descend into (or attach) a
		// child at the next byte.
		return tr.putDescend(n, key, i, val)
	case i < len(p) && i == len(key):
		// Case 3: key exhausted mid-prefix - split so the key becomes a
		// prefix node of its own.
		return tr.splitKeyExhausted(n, p, i, val)
	default:
		// Case 5: prefix diverges before either is exhausted - 3-way
		// split.
		return tr.splitDiverge(n, p, i, key, val)
	}
}

// putExact implements spec.md §4.2 cases 1 and 2.
func (tr *Transaction) putExact(n *node, val []byte) (*node, error) {
	if n.hasValue() && len(n.value()) == len(val) {
		// Case 1: same length (including the empty value) - the one
		// allowed in-place mutation in the whole engine. n may be a
		// disk-resident node faulted in with dirty=false; without marking
		// it dirty here, planTransaction would skip it and commit would
		// keep pointing at its stale on-disk image.
		copy(n.buf[n.prefixSize:n.prefixSize+n.valSize], val)
		n.dirty = true
		return n, nil
	}
	// Case 2: different length (or no previous value) - build a new
	// node, clone the child tables, forward old -> new.
	nn, err := tr.arena.newNode(n.prefix(), val, nil, true)
	if err != nil {
		return nil, err
	}
	nn.next = n.next
	nn.fnext = n.fnext
	n.replacedBy = nn
	return nn, nil
}

// putDescend implements spec.md §4.2 case 4: prefix is fully consumed but
// key continues. No forwarding occurs here - only a child slot of n is
// populated, n's own identity is unchanged.
func (tr *Transaction) putDescend(n *node, key []byte, i int, val []byte) (*node, error) {
	sym := key[i]
	rest := key[i+1:]
	child, err := tr.childOf(n, sym)
	if err != nil {
		return nil, err
	}
	if child != nil {
		newChild, err := tr.putNode(child, rest, val)
		if err != nil {
			return nil, err
		}
		n.next[sym] = newChild
		n.fnext[sym] = 0 // resident overrides on-disk
		n.dirty = true   // child slot changed; needs re-serialization
		return n, nil
	}
	leaf, err := tr.arena.newNode(rest, val, nil, true)
	if err != nil {
		return nil, err
	}
	n.next[sym] = leaf
	n.dirty = true
	return n, nil
}

// splitKeyExhausted implements spec.md §4.2 case 3: the key is a strict
// prefix of n's edge label.
func (tr *Transaction) splitKeyExhausted(n *node, p []byte, i int, val []byte) (*node, error) {
	rest, err := tr.arena.newNode(p[i+1:], n.value(), nil, n.hasValue())
	if err != nil {
		return nil, err
	}
	rest.next = n.next
	rest.fnext = n.fnext

	newRoot, err := tr.arena.newNode(p[:i], val, nil, true)
	if err != nil {
		return nil, err
	}
	newRoot.next[p[i]] = rest
	n.replacedBy = newRoot
	return newRoot, nil
}

// splitDiverge implements spec.md §4.2 case 5: the key and n's edge label
// share a common prefix but then diverge (key[i] != p[i]).
func (tr *Transaction) splitDiverge(n *node, p []byte, i int, key, val []byte) (*node, error) {
	restOld, err := tr.arena.newNode(p[i+1:], n.value(), nil, n.hasValue())
	if err != nil {
		return nil, err
	}
	restOld.next = n.next
	restOld.fnext = n.fnext

	restKey, err := tr.arena.newNode(key[i+1:], val, nil, true)
	if err != nil {
		return nil, err
	}

	newRoot, err := tr.arena.newNode(p[:i], nil, nil, false)
	if err != nil {
		return nil, err
	}
	newRoot.next[p[i]] = restOld
	newRoot.next[key[i]] = restKey
	n.replacedBy = newRoot
	return newRoot, nil
}

// get implements spec.md §4.2's Get: walk by byte, returning the node
// holding the value on exact prefix exhaustion.
func (tr *Transaction) get(root *node, key []byte) (*node, error) {
	if root == nil {
		return nil, ErrNotFound
	}
	n := root.resolve()
	for {
		p := n.prefix()
		i := commonPrefixLen(p, key)
		if i < len(p) {
			return nil, ErrNotFound
		}
		key = key[i:]
		if len(key) == 0 {
			if n.hasValue() {
				return n, nil
			}
			return nil, ErrNotFound
		}
		child, err := tr.childOf(n, key[0])
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, ErrNotFound
		}
		n = child.resolve()
		key = key[1:]
	}
}

// del implements spec.md §4.2's Del. delPfx selects prefix-delete mode.
// Returns the new subtree root (nil means the whole subtree was
// removed - the caller is responsible for substituting a fresh empty
// node when this happens at the very top of the trie).
func (tr *Transaction) del(root *node, key []byte, delPfx bool) (*node, error) {
	if root == nil {
		return nil, ErrNotFound
	}
	return tr.delNode(root, key, delPfx)
}

func (tr *Transaction) delNode(n *node, key []byte, delPfx bool) (*node, error) {
	n = n.resolve()
	p := n.prefix()
	i := commonPrefixLen(p, key)
	if i < len(p) {
		return n, ErrNotFound
	}
	rem := key[i:]
	if len(rem) == 0 {
		if delPfx {
			// Detach the whole matched subtree unconditionally.
			return nil, nil
		}
		if !n.hasValue() {
			return n, ErrNotFound
		}
		if n.childCount() == 0 {
			return nil, nil
		}
		// Clear HAS_VALUE, keep as an internal branch. Not the allowed
		// in-place mutation (that's reserved for same-length value
		// overwrite), so this is a COW: build a new valueless node,
		// forward old -> new.
		nn, err := tr.arena.newNode(n.prefix(), nil, nil, false)
		if err != nil {
			return n, err
		}
		nn.next = n.next
		nn.fnext = n.fnext
		n.replacedBy = nn
		return tr.mergeSingletonChild(nn), nil
	}

	sym := rem[0]
	child, err := tr.childOf(n, sym)
	if err != nil {
		return n, err
	}
	if child == nil {
		return n, ErrNotFound
	}
	newChild, err := tr.delNode(child, rem[1:], delPfx)
	if err != nil {
		return n, err
	}
	if newChild == nil {
		n.next[sym] = nil
		n.fnext[sym] = 0
	} else {
		n.next[sym] = newChild
		n.fnext[sym] = 0
	}
	n.dirty = true
	return tr.mergeSingletonChild(n), nil
}

// mergeSingletonChild implements the parent/child merge the reference
// implementation leaves as unreachable dead code (spec.md §9): when a
// valueless node is left with exactly one remaining child after a
// deletion, concatenate their edge labels into a single node. Grounded
// directly on github.com/iotaledger/trie.go's trie/trie.go mergeNode,
// which already performs exactly this optimization (reachably, for its
// own path-fragment representation) - ported here to raw prefix bytes.
func (tr *Transaction) mergeSingletonChild(n *node) *node {
	if n.hasValue() {
		return n
	}
	onlySym := -1
	count := 0
	for i := 0; i < 256; i++ {
		if n.next[i] != nil || n.fnext[i] != 0 {
			count++
			if count > 1 {
				return n
			}
			onlySym = i
		}
	}
	if count != 1 {
		return n
	}
	sym := byte(onlySym)
	child, err := tr.childOf(n, sym)
	if err != nil || child == nil {
		return n
	}
	child = child.resolve()
	merged, err := tr.arena.newNode(concatPrefix(n.prefix(), sym, child.prefix()), child.value(), nil, child.hasValue())
	if err != nil {
		return n
	}
	merged.next = child.next
	merged.fnext = child.fnext
	n.replacedBy = merged
	child.replacedBy = merged
	return merged
}
