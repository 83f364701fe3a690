package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderPartialInput(t *testing.T) {
	frame := NewFrame(OpSet, 9, []byte("partial data"))
	encoded := frame.Encode()

	dec := NewDecoder(0)

	// Byte at a time: nothing completes until the last byte lands.
	for i := 0; i < len(encoded)-1; i++ {
		dec.Feed(encoded[i : i+1])
		f, err := dec.Next()
		require.NoError(t, err)
		assert.Nil(t, f)
	}

	dec.Feed(encoded[len(encoded)-1:])
	f, err := dec.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []byte("partial data"), f.Payload)
	assert.Equal(t, 0, dec.Buffered())
}

func TestDecoderMultipleFramesOneFeed(t *testing.T) {
	var stream []byte
	for i := 0; i < 3; i++ {
		stream = NewFrame(OpPing, uint64(i), nil).AppendEncode(stream)
	}

	dec := NewDecoder(0)
	dec.Feed(stream)

	for i := 0; i < 3; i++ {
		f, err := dec.Next()
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, uint64(i), f.RequestID)
	}

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestDecoderFrameFollowedByPartial(t *testing.T) {
	first := NewFrame(OpGet, 1, []byte("k")).Encode()
	second := NewFrame(OpGet, 2, []byte("other")).Encode()

	dec := NewDecoder(0)
	dec.Feed(first)
	dec.Feed(second[:10])

	f, err := dec.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, uint64(1), f.RequestID)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Nil(t, f)

	dec.Feed(second[10:])
	f, err = dec.Next()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, uint64(2), f.RequestID)
}

func TestDecoderOversizedPayload(t *testing.T) {
	frame := NewFrame(OpSet, 1, make([]byte, 100))
	dec := NewDecoder(50)
	dec.Feed(frame.Encode())

	_, err := dec.Next()
	require.Error(t, err)
	assert.Equal(t, KindProtocol, errKind(err))
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestDecoderCloseCheck(t *testing.T) {
	dec := NewDecoder(0)
	assert.NoError(t, dec.CloseCheck())

	dec.Feed([]byte{0x43, 0x45})
	err := dec.CloseCheck()
	require.Error(t, err)
	assert.Equal(t, KindProtocol, errKind(err))
}
