// Package randkv generates seeded-random key/value streams for tests.
// Ported from github.com/iotaledger/trie.go's kv.go RandStreamIterator /
// RandStreamParams, trimmed to the fixed-length key/value case the test
// suite needs (spec scenario: "1000 keys of 8 random bytes") instead of
// the teacher's variable-length, unbounded-count stream.
package randkv

import "math/rand"

// Params configures a Stream.
type Params struct {
	Seed   int64
	Count  int
	KeyLen int
	ValLen int
}

// Stream yields deterministic pseudo-random key/value pairs.
type Stream struct {
	rnd *rand.Rand
	par Params
	n   int
}

func New(p Params) *Stream {
	return &Stream{rnd: rand.New(rand.NewSource(p.Seed)), par: p}
}

// Next returns the next key/value pair, or ok=false once Count pairs have
// been produced.
func (s *Stream) Next() (key, val []byte, ok bool) {
	if s.n >= s.par.Count {
		return nil, nil, false
	}
	key = make([]byte, s.par.KeyLen)
	s.rnd.Read(key)
	val = make([]byte, s.par.ValLen)
	s.rnd.Read(val)
	s.n++
	return key, val, true
}

// All drains the stream into two parallel slices.
func (s *Stream) All() (keys, vals [][]byte) {
	for {
		k, v, ok := s.Next()
		if !ok {
			return keys, vals
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
}
