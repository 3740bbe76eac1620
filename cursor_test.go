package tkvdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func putAll(t *testing.T, tr *Transaction, pairs [][2]string) {
	t.Helper()
	for _, p := range pairs {
		require.NoError(t, tr.Put(DatumFromString(p[0]), DatumFromString(p[1])))
	}
}

func TestCursorFirstLastEmpty(t *testing.T) {
	tr := newMemTxn(t)
	cur := NewCursor(tr)
	require.ErrorIs(t, cur.First(), ErrEmpty)
	require.ErrorIs(t, cur.Last(), ErrEmpty)
}

func TestCursorLastThenPrev(t *testing.T) {
	tr := newMemTxn(t)
	putAll(t, tr, [][2]string{{"a", "1"}, {"ab", "2"}, {"abc", "3"}})

	cur := NewCursor(tr)
	require.NoError(t, cur.Last())
	k, err := cur.Key()
	require.NoError(t, err)
	require.Equal(t, "abc", k.String())

	require.NoError(t, cur.Prev())
	k, _ = cur.Key()
	require.Equal(t, "ab", k.String())

	require.NoError(t, cur.Prev())
	k, _ = cur.Key()
	require.Equal(t, "a", k.String())

	require.ErrorIs(t, cur.Prev(), ErrNotFound)
}

func TestCursorSeekEQ(t *testing.T) {
	tr := newMemTxn(t)
	putAll(t, tr, [][2]string{{"foo1", "a"}, {"foo2", "b"}, {"bar", "c"}})

	cur := NewCursor(tr)
	require.NoError(t, cur.Seek(DatumFromString("foo2"), SeekEQ))
	v, err := cur.Val()
	require.NoError(t, err)
	require.Equal(t, "b", v.String())

	require.ErrorIs(t, cur.Seek(DatumFromString("nope"), SeekEQ), ErrNotFound)
}

func TestCursorSeekLE(t *testing.T) {
	tr := newMemTxn(t)
	putAll(t, tr, [][2]string{{"a", "1"}, {"ab", "2"}, {"abc", "3"}, {"b", "4"}})

	cur := NewCursor(tr)
	require.NoError(t, cur.Seek(DatumFromString("abz"), SeekLE))
	k, _ := cur.Key()
	require.Equal(t, "abc", k.String())

	require.NoError(t, cur.Seek(DatumFromString("aa"), SeekLE))
	k, _ = cur.Key()
	require.Equal(t, "a", k.String())

	require.ErrorIs(t, cur.Seek(DatumFromString(""), SeekLE), ErrNotFound)
}

func TestCursorSeekGE(t *testing.T) {
	tr := newMemTxn(t)
	putAll(t, tr, [][2]string{{"abcd", "X"}, {"abce", "Y"}})

	cur := NewCursor(tr)
	require.NoError(t, cur.Seek(DatumFromString("abcda"), SeekGE))
	k, _ := cur.Key()
	require.Equal(t, "abce", k.String())

	require.ErrorIs(t, cur.Seek(DatumFromString("z"), SeekGE), ErrNotFound)
}

func TestCursorFullForwardOrder(t *testing.T) {
	tr := newMemTxn(t)
	putAll(t, tr, [][2]string{
		{"banana", "1"}, {"apple", "2"}, {"cherry", "3"}, {"app", "4"}, {"a", "5"},
	})

	cur := NewCursor(tr)
	var keys []string
	err := cur.First()
	for err == nil {
		k, _ := cur.Key()
		keys = append(keys, k.String())
		err = cur.Next()
	}
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []string{"a", "app", "apple", "banana", "cherry"}, keys)
}
