package tkvdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatumFromBytesAndString(t *testing.T) {
	d := DatumFromBytes([]byte("hello"))
	require.Equal(t, 5, d.Size())
	require.Equal(t, "hello", d.String())

	d2 := DatumFromString("world")
	require.Equal(t, []byte("world"), d2.Bytes())
}

func TestDatumEmpty(t *testing.T) {
	var d Datum
	require.Equal(t, 0, d.Size())
	require.Equal(t, "", d.String())
}
