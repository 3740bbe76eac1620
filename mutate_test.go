package tkvdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMemTxn(t *testing.T) *Transaction {
	t.Helper()
	tr, err := NewTransaction(nil, ArenaDynamic, 0)
	require.NoError(t, err)
	return tr
}

func collect(t *testing.T, tr *Transaction) [][2]string {
	t.Helper()
	cur := NewCursor(tr)
	var out [][2]string
	err := cur.First()
	for err == nil {
		k, kerr := cur.Key()
		require.NoError(t, kerr)
		v, verr := cur.Val()
		require.NoError(t, verr)
		out = append(out, [2]string{k.String(), v.String()})
		err = cur.Next()
	}
	require.ErrorIs(t, err, ErrNotFound)
	return out
}

// scenario 1 from spec.md §8.
func TestPutAndTraverseOrdering(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("a"), DatumFromString("1")))
	require.NoError(t, tr.Put(DatumFromString("ab"), DatumFromString("2")))
	require.NoError(t, tr.Put(DatumFromString("abc"), DatumFromString("3")))

	require.Equal(t, [][2]string{{"a", "1"}, {"ab", "2"}, {"abc", "3"}}, collect(t, tr))
}

// scenario 2 from spec.md §8.
func TestPutSplitAndSeekGE(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("abcd"), DatumFromString("X")))
	require.NoError(t, tr.Put(DatumFromString("abce"), DatumFromString("Y")))

	v, err := tr.Get(DatumFromString("abcd"))
	require.NoError(t, err)
	require.Equal(t, "X", v.String())

	v, err = tr.Get(DatumFromString("abce"))
	require.NoError(t, err)
	require.Equal(t, "Y", v.String())

	cur := NewCursor(tr)
	require.NoError(t, cur.Seek(DatumFromString("abcda"), SeekGE))
	k, err := cur.Key()
	require.NoError(t, err)
	require.Equal(t, "abce", k.String())
}

// scenario 4 from spec.md §8.
func TestPutOverwriteDifferentLength(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("k"), DatumFromString("v1")))
	require.NoError(t, tr.Put(DatumFromString("k"), DatumFromString("v22")))

	v, err := tr.Get(DatumFromString("k"))
	require.NoError(t, err)
	require.Equal(t, "v22", v.String())
	require.Len(t, collect(t, tr), 1)
}

func TestPutOverwriteSameLength(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("k"), DatumFromString("aaa")))
	require.NoError(t, tr.Put(DatumFromString("k"), DatumFromString("bbb")))

	v, err := tr.Get(DatumFromString("k"))
	require.NoError(t, err)
	require.Equal(t, "bbb", v.String())
}

// scenario 5 from spec.md §8.
func TestDeletePrefix(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("foo1"), DatumFromString("a")))
	require.NoError(t, tr.Put(DatumFromString("foo2"), DatumFromString("b")))
	require.NoError(t, tr.Put(DatumFromString("bar"), DatumFromString("c")))

	require.NoError(t, tr.Del(DatumFromString("foo"), true))

	require.Equal(t, [][2]string{{"bar", "c"}}, collect(t, tr))
}

func TestDeleteExact(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("a"), DatumFromString("1")))
	require.NoError(t, tr.Put(DatumFromString("ab"), DatumFromString("2")))
	require.NoError(t, tr.Put(DatumFromString("abc"), DatumFromString("3")))

	require.NoError(t, tr.Del(DatumFromString("ab"), false))

	_, err := tr.Get(DatumFromString("ab"))
	require.ErrorIs(t, err, ErrNotFound)

	v, err := tr.Get(DatumFromString("a"))
	require.NoError(t, err)
	require.Equal(t, "1", v.String())
	v, err = tr.Get(DatumFromString("abc"))
	require.NoError(t, err)
	require.Equal(t, "3", v.String())
}

func TestDeleteNotFound(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("a"), DatumFromString("1")))
	require.ErrorIs(t, tr.Del(DatumFromString("zzz"), false), ErrNotFound)
}

func TestDeleteSingletonMerge(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("ab"), DatumFromString("1")))
	require.NoError(t, tr.Put(DatumFromString("ac"), DatumFromString("2")))

	require.NoError(t, tr.Del(DatumFromString("ab"), false))

	v, err := tr.Get(DatumFromString("ac"))
	require.NoError(t, err)
	require.Equal(t, "2", v.String())
	require.Equal(t, [][2]string{{"ac", "2"}}, collect(t, tr))
}

func TestDeleteRootReplacedWithEmptyNode(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Put(DatumFromString("only"), DatumFromString("v")))
	require.NoError(t, tr.Del(DatumFromString("only"), false))

	_, err := tr.Get(DatumFromString("only"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NotNil(t, tr.root)

	require.NoError(t, tr.Put(DatumFromString("fresh"), DatumFromString("v2")))
	v, err := tr.Get(DatumFromString("fresh"))
	require.NoError(t, err)
	require.Equal(t, "v2", v.String())
}

func TestGetNotFound(t *testing.T) {
	tr := newMemTxn(t)
	_, err := tr.Get(DatumFromString("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMutationOnUnstartedTransaction(t *testing.T) {
	tr := newMemTxn(t)
	require.NoError(t, tr.Rollback())
	require.ErrorIs(t, tr.Put(DatumFromString("a"), DatumFromString("1")), ErrNotStarted)
}
