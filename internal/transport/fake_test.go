package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakePortDeliversToPeer(t *testing.T) {
	a := NewFakePort()
	b := NewFakePort()
	ConnectPeer(a, b)
	require.NoError(t, a.Open("fake-a", 0))
	require.NoError(t, b.Open("fake-b", 0))

	var got []byte
	b.SetRxCallback(func(data []byte) {
		got = append(got, data...)
	})

	n, err := a.Write([]byte{0xF2, 0xF8, 0xF1, 0xF2})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0xF2, 0xF8, 0xF1, 0xF2}, got)
	assert.Len(t, a.TxLog, 1)
	assert.Len(t, b.RxLog, 1)
}

func TestFakePortClosedPeerDropsWrites(t *testing.T) {
	a := NewFakePort()
	b := NewFakePort()
	ConnectPeer(a, b)
	require.NoError(t, a.Open("fake-a", 0))
	require.NoError(t, b.Close())

	called := false
	b.SetRxCallback(func(data []byte) { called = true })

	_, err := a.Write([]byte{0x01})
	require.NoError(t, err)
	assert.False(t, called)
}
