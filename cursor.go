package tkvdb

// cursorMaxDepth bounds the descent stack (spec.md §3.5): adequate for
// radix tries over short keys, as github.com/iotaledger/trie.go's own
// proof-path walks assume for their commitment trees.
const cursorMaxDepth = 128

type cursorFrame struct {
	n *node
	// sym is the byte consumed from the parent's child table to reach n
	// (-1 for the root, which has no incoming edge byte).
	sym          int
	prefixLen    int // length of tr.prefix once this frame's node's own prefix was appended
	childIdx     int // next child byte to try, -1 before any child tried
	visitedValue bool
}

// Cursor is an ordered iterator over a transaction's trie, grounded on
// the explicit descent-stack design spec.md §3.5 and §4.3 mandate (no
// recursion, since a forwarding chain or adversarial key length must
// never overflow the call stack).
type Cursor struct {
	tr     *Transaction
	stack  []cursorFrame
	prefix []byte

	valid bool
}

// NewCursor creates a cursor over tr. The cursor is not positioned until
// First, Last or Seek is called.
func NewCursor(tr *Transaction) *Cursor {
	return &Cursor{tr: tr}
}

// Free releases the cursor's buffers.
func (c *Cursor) Free() {
	c.stack = nil
	c.prefix = nil
	c.valid = false
}

// Reset returns the cursor to its unpositioned state.
func (c *Cursor) Reset() {
	c.stack = c.stack[:0]
	c.prefix = c.prefix[:0]
	c.valid = false
}

// push appends the edge byte sym (if >= 0) followed by n's own prefix to
// the accumulated key, and pushes a new descent frame.
func (c *Cursor) push(sym int, n *node) error {
	if len(c.stack) >= cursorMaxDepth {
		return ErrCorrupted
	}
	if sym >= 0 {
		c.prefix = append(c.prefix, byte(sym))
	}
	c.prefix = append(c.prefix, n.prefix()...)
	c.stack = append(c.stack, cursorFrame{n: n, sym: sym, prefixLen: len(c.prefix), childIdx: -1})
	return nil
}

func (c *Cursor) pop() {
	c.stack = c.stack[:len(c.stack)-1]
	base := 0
	if len(c.stack) > 0 {
		base = c.stack[len(c.stack)-1].prefixLen
	}
	c.prefix = c.prefix[:base]
}

func (c *Cursor) childAt(n *node, b byte) (*node, error) {
	return c.tr.childOf(n, b)
}

func (c *Cursor) top() *cursorFrame {
	return &c.stack[len(c.stack)-1]
}

// descendSmallest pushes n (reached via edge byte sym, or -1 for the
// root) and then repeatedly descends to the smallest populated child
// until reaching a value-bearing node, landing the cursor on the
// lexicographically smallest key in n's subtree.
func (c *Cursor) descendSmallest(sym int, n *node) error {
	for {
		n = n.resolve()
		if err := c.push(sym, n); err != nil {
			return err
		}
		if n.hasValue() {
			c.top().visitedValue = true
			return nil
		}
		idx, child, err := c.firstChild(n)
		if err != nil {
			return err
		}
		if child == nil {
			// Below the root a valueless leaf with no children cannot
			// legally occur (spec.md invariants), but guard rather than
			// loop forever. The empty root Del leaves behind is reported
			// as ErrEmpty by First/Last before descending.
			return ErrCorrupted
		}
		c.top().childIdx = idx
		sym = idx
		n = child
	}
}

// descendLargest is descendSmallest's mirror for Last/Prev.
func (c *Cursor) descendLargest(sym int, n *node) error {
	for {
		n = n.resolve()
		if err := c.push(sym, n); err != nil {
			return err
		}
		idx, child, err := c.lastChild(n)
		if err != nil {
			return err
		}
		if child == nil {
			if !n.hasValue() {
				return ErrCorrupted
			}
			c.top().visitedValue = true
			return nil
		}
		c.top().childIdx = idx
		sym = idx
		n = child
	}
}

func (c *Cursor) firstChild(n *node) (int, *node, error) {
	for b := 0; b < 256; b++ {
		if n.next[b] != nil || n.fnext[b] != 0 {
			child, err := c.childAt(n, byte(b))
			return b, child, err
		}
	}
	return -1, nil, nil
}

func (c *Cursor) lastChild(n *node) (int, *node, error) {
	for b := 255; b >= 0; b-- {
		if n.next[b] != nil || n.fnext[b] != 0 {
			child, err := c.childAt(n, byte(b))
			return b, child, err
		}
	}
	return -1, nil, nil
}

func (c *Cursor) nextChildFrom(n *node, after int) (int, *node, error) {
	for b := after + 1; b < 256; b++ {
		if n.next[b] != nil || n.fnext[b] != 0 {
			child, err := c.childAt(n, byte(b))
			return b, child, err
		}
	}
	return -1, nil, nil
}

func (c *Cursor) prevChildFrom(n *node, before int) (int, *node, error) {
	for b := before - 1; b >= 0; b-- {
		if n.next[b] != nil || n.fnext[b] != 0 {
			child, err := c.childAt(n, byte(b))
			return b, child, err
		}
	}
	return -1, nil, nil
}

// First positions the cursor at the smallest key.
func (c *Cursor) First() error {
	c.Reset()
	if c.tr.root == nil {
		return ErrEmpty
	}
	if r := c.tr.root.resolve(); !r.hasValue() && r.childCount() == 0 {
		return ErrEmpty
	}
	if err := c.descendSmallest(-1, c.tr.root.resolve()); err != nil {
		return err
	}
	c.valid = true
	return nil
}

// Last positions the cursor at the largest key.
func (c *Cursor) Last() error {
	c.Reset()
	if c.tr.root == nil {
		return ErrEmpty
	}
	if r := c.tr.root.resolve(); !r.hasValue() && r.childCount() == 0 {
		return ErrEmpty
	}
	if err := c.descendLargest(-1, c.tr.root.resolve()); err != nil {
		return err
	}
	c.valid = true
	return nil
}

// Next advances the cursor to the next key in ascending order.
func (c *Cursor) Next() error {
	if !c.valid {
		return ErrNotFound
	}
	for len(c.stack) > 0 {
		f := c.top()
		n := f.n
		if !f.visitedValue && n.hasValue() {
			f.visitedValue = true
			return nil
		}
		idx, child, err := c.nextChildFrom(n, f.childIdx)
		if err != nil {
			return err
		}
		if child == nil {
			c.pop()
			continue
		}
		f.childIdx = idx
		return c.descendSmallest(idx, child)
	}
	c.valid = false
	return ErrNotFound
}

// Prev moves the cursor to the previous key in descending order.
func (c *Cursor) Prev() error {
	if !c.valid {
		return ErrNotFound
	}
	for len(c.stack) > 0 {
		f := c.top()
		n := f.n
		start := f.childIdx
		if start == -1 {
			start = 256
		}
		idx, child, err := c.prevChildFrom(n, start)
		if err != nil {
			return err
		}
		if child != nil {
			f.childIdx = idx
			return c.descendLargest(idx, child)
		}
		if !f.visitedValue && n.hasValue() {
			f.visitedValue = true
			return nil
		}
		c.pop()
	}
	c.valid = false
	return ErrNotFound
}

// Key returns the full key at the cursor's current position.
func (c *Cursor) Key() (Datum, error) {
	if !c.valid {
		return Datum{}, ErrNotFound
	}
	return DatumFromBytes(c.prefix), nil
}

// KeySize returns the length of the current key.
func (c *Cursor) KeySize() (int, error) {
	if !c.valid {
		return 0, ErrNotFound
	}
	return len(c.prefix), nil
}

// Val returns the value at the cursor's current position.
func (c *Cursor) Val() (Datum, error) {
	if !c.valid {
		return Datum{}, ErrNotFound
	}
	n := c.top().n
	if !n.hasValue() {
		return Datum{}, ErrNotFound
	}
	return DatumFromBytes(n.value()), nil
}

// ValSize returns the length of the current value.
func (c *Cursor) ValSize() (int, error) {
	v, err := c.Val()
	if err != nil {
		return 0, err
	}
	return v.Size(), nil
}

// SeekMode selects seek's matching discipline (spec.md §4.3).
type SeekMode int

const (
	SeekEQ SeekMode = iota
	SeekLE
	SeekGE
)

// Seek positions the cursor according to mode relative to key.
func (c *Cursor) Seek(key Datum, mode SeekMode) error {
	c.Reset()
	if c.tr.root == nil {
		return ErrEmpty
	}
	kb := key.Bytes()
	n := c.tr.root.resolve()
	sym := -1

	for {
		if err := c.push(sym, n); err != nil {
			return err
		}
		p := n.prefix()
		i := commonPrefixLen(p, kb)

		if i < len(p) {
			// Diverged inside this node's own prefix.
			return c.fixupDiverge(n, p, i, kb, mode)
		}
		kb = kb[i:]
		if len(kb) == 0 {
			if n.hasValue() {
				c.top().visitedValue = true
				c.valid = true
				return nil
			}
			return c.fixupNoValueHere(mode)
		}
		s := kb[0]
		child, err := c.childAt(n, s)
		if err != nil {
			return err
		}
		if child == nil {
			return c.fixupMissingChild(n, s, mode)
		}
		c.top().childIdx = int(s)
		kb = kb[1:]
		sym = int(s)
		n = child.resolve()
	}
}

// fixupDiverge handles a mismatch discovered inside the current node's
// edge label at local index i (p[i] != kb[i], or kb exhausted before p).
func (c *Cursor) fixupDiverge(n *node, p []byte, i int, kb []byte, mode SeekMode) error {
	if mode == SeekEQ {
		c.Reset()
		return ErrNotFound
	}
	pByte := int(p[i])
	kByte := -1 // key ended: treat as "smaller than any remaining prefix byte"
	if i < len(kb) {
		kByte = int(kb[i])
	}
	c.valid = true
	if mode == SeekLE {
		if pByte < kByte {
			return c.fromFrameLargest()
		}
		// This node's entire subtree sorts after the key; the answer,
		// if any, lies strictly outside it.
		c.pop()
		return c.Prev()
	}
	// SeekGE
	if pByte > kByte {
		return c.fromFrameSmallest()
	}
	c.pop()
	return c.Next()
}

// fixupNoValueHere handles seek landing exactly on a valueless internal
// node (key fully consumed, but HAS_VALUE unset).
func (c *Cursor) fixupNoValueHere(mode SeekMode) error {
	if mode == SeekEQ {
		c.Reset()
		return ErrNotFound
	}
	c.valid = true
	if mode == SeekLE {
		// Every key in this subtree extends the sought key, so it
		// sorts strictly after it; the answer lies outside.
		c.pop()
		return c.Prev()
	}
	return c.Next()
}

// fixupMissingChild handles seek needing to descend through a byte with
// no such child present.
func (c *Cursor) fixupMissingChild(n *node, sym byte, mode SeekMode) error {
	if mode == SeekEQ {
		c.Reset()
		return ErrNotFound
	}
	c.valid = true
	if mode == SeekLE {
		idx, child, err := c.prevChildFrom(n, int(sym))
		if err != nil {
			return err
		}
		if child != nil {
			c.top().childIdx = idx
			return c.descendLargest(idx, child)
		}
		if !c.top().visitedValue && n.hasValue() {
			c.top().visitedValue = true
			return nil
		}
		c.pop()
		return c.Prev()
	}
	idx, child, err := c.nextChildFrom(n, int(sym))
	if err != nil {
		return err
	}
	if child != nil {
		c.top().childIdx = idx
		return c.descendSmallest(idx, child)
	}
	c.pop()
	return c.Next()
}

// fromFrameSmallest re-descends from the current top frame's node to its
// smallest leaf (used by seek-GE when the current node's edge label is
// already greater than the key).
func (c *Cursor) fromFrameSmallest() error {
	f := *c.top()
	c.pop()
	if err := c.descendSmallest(f.sym, f.n); err != nil {
		return err
	}
	c.valid = true
	return nil
}

// fromFrameLargest is fromFrameSmallest's mirror for seek-LE.
func (c *Cursor) fromFrameLargest() error {
	f := *c.top()
	c.pop()
	if err := c.descendLargest(f.sym, f.n); err != nil {
		return err
	}
	c.valid = true
	return nil
}
