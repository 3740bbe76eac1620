package tkvdb

import "golang.org/x/crypto/blake2b"

// Vacuum implements spec.md §4.5: it rewrites the still-live subset of
// the oldest un-reclaimed transaction into a fresh transaction committed
// through tres, then - unlike the reference implementation, which the
// specification's §9 flags as leaving a FIXME here - advances the live
// database's gap bounds to actually reclaim the region it just rewrote.
//
// tr is the live transaction to probe reachability against; vac is a
// fresh transaction used purely to walk the old region's key space; tres
// is a fresh transaction that receives the still-live key/value pairs
// and is committed on tr's database.
func Vacuum(tr, vac, tres *Transaction) error {
	if tr.db == nil {
		return ErrNotStarted
	}
	info, err := tr.db.Info()
	if err != nil {
		return err
	}
	oldRegionOff := info.GapEnd + txnHeaderSize
	oldTr, err := readTxnHeaderAt(tr.db, info.GapEnd)
	if err != nil {
		return err
	}
	oldTrSize := oldTr.footerOff - oldRegionOff

	regionBegin, regionEnd := oldRegionOff, oldRegionOff+oldTrSize
	if regionEnd <= regionBegin {
		return nil // nothing to reclaim
	}

	// Blocks are laid out children-first, so the old root is the block's
	// last node; the footer written right after the block names it.
	ftrBuf := make([]byte, footerSize)
	tr.db.mu.Lock()
	_, err = tr.db.f.ReadAt(ftrBuf, int64(oldTr.footerOff))
	tr.db.mu.Unlock()
	if err != nil {
		return ErrIOError
	}
	oldFooter, err := decodeFooter(ftrBuf)
	if err != nil {
		return err
	}
	root, err := tr.db.loadNode(oldFooter.rootOff)
	if err != nil {
		return err
	}
	vac.root = root

	cur := NewCursor(vac)
	if err := cur.First(); err != nil {
		if err == ErrEmpty || err == ErrNotFound {
			return nil
		}
		return err
	}
	for {
		key, err := cur.Key()
		if err != nil {
			return err
		}
		if probeReferencesRegion(tr, key.Bytes(), regionBegin, regionEnd) {
			val, err := cur.Val()
			if err != nil {
				return err
			}
			if err := tres.Put(key, val); err != nil {
				return err
			}
		}
		if err := cur.Next(); err != nil {
			if err == ErrNotFound {
				break
			}
			return err
		}
	}

	if err := tres.Commit(); err != nil {
		return err
	}
	if sum, err := tr.db.fingerprintRegion(regionBegin, regionEnd); err == nil {
		tr.db.opts.Logger.Debug().
			Uint64("region_begin", regionBegin).
			Uint64("region_end", regionEnd).
			Hex("fingerprint", sum[:]).
			Msg("vacuum reclaiming region")
	}
	if err := tr.db.commitGapUpdate(info.GapEnd, oldTr.footerOff+footerSize); err != nil {
		return err
	}
	if tr.db.opts.Metrics != nil {
		tr.db.opts.Metrics.Vacuums.Inc()
	}
	return nil
}

// fingerprintRegion hashes the byte span [begin, end) with blake2b-256,
// purely for the debug log line above - it is never stored and plays no
// part in validating the region.
func (db *DB) fingerprintRegion(begin, end uint64) ([32]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	buf := make([]byte, end-begin)
	if _, err := db.f.ReadAt(buf, int64(begin)); err != nil {
		return [32]byte{}, ErrIOError
	}
	return blake2b.Sum256(buf), nil
}

// readTxnHeaderAt reads the 9-byte transaction header at off.
func readTxnHeaderAt(db *DB, off uint64) (txnHeader, error) {
	db.mu.Lock()
	buf := make([]byte, txnHeaderSize)
	_, err := db.f.ReadAt(buf, int64(off))
	db.mu.Unlock()
	if err != nil {
		return txnHeader{}, ErrIOError
	}
	return decodeTxnHeader(buf)
}

// probeReferencesRegion walks tr's root towards key and reports whether
// any node visited along the way has a disk offset inside
// [regionBegin, regionEnd) - i.e. whether key is still reachable through
// live state that points into the region being reclaimed.
func probeReferencesRegion(tr *Transaction, key []byte, regionBegin, regionEnd uint64) bool {
	if tr.root == nil {
		return false
	}
	n := tr.root.resolve()
	if inRegion(n.diskOff, regionBegin, regionEnd) {
		return true
	}
	kb := key
	for {
		p := n.prefix()
		i := commonPrefixLen(p, kb)
		if i < len(p) {
			return false
		}
		kb = kb[i:]
		if len(kb) == 0 {
			// Reached the key without ever touching the region: every
			// node on this path already has a home outside it.
			return false
		}
		child, err := tr.childOf(n, kb[0])
		if err != nil || child == nil {
			return false
		}
		n = child.resolve()
		if inRegion(n.diskOff, regionBegin, regionEnd) {
			return true
		}
		kb = kb[1:]
	}
}

func inRegion(off, begin, end uint64) bool {
	return off >= begin && off < end
}
