package impl

import (
	"bytes"
	"testing"

	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/state"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestFragmentCodec(t *testing.T) {
	key := mpc.GateKey{Kind: mpc.KindMul, Round: 12, Vertex: 40000, Step: 9, Slot: 2}
	for _, v := range []int64{0, 1, -1, 1<<61 - 2, -1 << 63} {
		b, err := encodeFragment(key, v)
		require.NoError(t, err)
		k, got, err := decodeFragment(b)
		require.NoError(t, err)
		assert.Equal(t, key, k)
		assert.Equal(t, v, got)
	}
}

func TestFragmentCodec_SkipsUnknownFields(t *testing.T) {
	key := mpc.GateKey{Kind: mpc.KindReveal, Round: 1, Vertex: 2, Step: 3}
	b, err := encodeFragment(key, 77)
	require.NoError(t, err)
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 5)
	k, v, err := decodeFragment(b)
	require.NoError(t, err)
	assert.Equal(t, key, k)
	assert.Equal(t, int64(77), v)
}

func TestFragmentCodec_Malformed(t *testing.T) {
	key := mpc.GateKey{Kind: mpc.KindReveal, Round: 1, Vertex: 2, Step: 3}
	b, err := encodeFragment(key, 77)
	require.NoError(t, err)

	_, _, err = decodeFragment(b[:len(b)-3])
	assert.Error(t, err, "truncated value")

	onlyKey := protowire.AppendTag(nil, fieldKey, protowire.BytesType)
	onlyKey = protowire.AppendString(onlyKey, key.String())
	_, _, err = decodeFragment(onlyKey)
	assert.Error(t, err, "missing value")

	badKey := protowire.AppendTag(nil, fieldKey, protowire.BytesType)
	badKey = protowire.AppendString(badKey, "mul/1/2")
	badKey = protowire.AppendTag(badKey, fieldValue, protowire.Fixed64Type)
	badKey = protowire.AppendFixed64(badKey, 1)
	_, _, err = decodeFragment(badKey)
	assert.Error(t, err, "unparseable key")
}

func TestHelloCodec(t *testing.T) {
	session := uuid.New()
	s, idx, err := decodeHello(encodeHello(session, 5))
	require.NoError(t, err)
	assert.Equal(t, session, s)
	assert.Equal(t, state.PeerIndex(5), idx)

	_, _, err = decodeHello(protowire.AppendBytes(protowire.AppendTag(nil, fieldSession, protowire.BytesType), session[:]))
	assert.Error(t, err)
}

func TestFraming(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, send(&buf, []byte("hello")))
	require.NoError(t, send(&buf, []byte("world")))
	assert.Equal(t, 18, buf.Len())

	b, err := receive(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)
	b, err = receive(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), b)

	assert.ErrorIs(t, send(&buf, nil), ErrPacketSize)
	assert.ErrorIs(t, send(&buf, make([]byte, MaxPacketSize+1)), ErrPacketSize)

	buf.Reset()
	buf.Write([]byte{0, 0, 0x10, 0})
	_, err = receive(&buf)
	assert.ErrorIs(t, err, ErrPacketSize)
}
