package xdr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Integer Round Trips
// ============================================================================

func TestIntegerRoundTrips(t *testing.T) {
	t.Run("Uint32", func(t *testing.T) {
		for _, v := range []uint32{0, 1, 0x7FFFFFFF, 0xFFFFFFFF} {
			buf := new(bytes.Buffer)
			require.NoError(t, WriteUint32(buf, v))
			assert.Equal(t, 4, buf.Len())

			got, err := DecodeUint32(buf)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		}
	})

	t.Run("Uint64", func(t *testing.T) {
		for _, v := range []uint64{0, 1, 1 << 40, 0xFFFFFFFFFFFFFFFF} {
			buf := new(bytes.Buffer)
			require.NoError(t, WriteUint64(buf, v))
			assert.Equal(t, 8, buf.Len())

			got, err := DecodeUint64(buf)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		}
	})

	t.Run("Int32Negative", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteInt32(buf, -1))
		assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, buf.Bytes())

		got, err := DecodeInt32(buf)
		require.NoError(t, err)
		assert.Equal(t, int32(-1), got)
	})

	t.Run("Int64Negative", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteInt64(buf, -42))

		got, err := DecodeInt64(buf)
		require.NoError(t, err)
		assert.Equal(t, int64(-42), got)
	})

	t.Run("BigEndianLayout", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteUint32(buf, 0x01020304))
		assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf.Bytes())
	})
}

// ============================================================================
// Opaque and String Encoding
// ============================================================================

func TestOpaqueEncoding(t *testing.T) {
	t.Run("PadsToFourByteBoundary", func(t *testing.T) {
		cases := []struct {
			data    []byte
			encoded int
		}{
			{[]byte{}, 4},
			{[]byte{0x01}, 8},
			{[]byte{0x01, 0x02, 0x03}, 8},
			{[]byte{0x01, 0x02, 0x03, 0x04}, 8},
			{[]byte{0x01, 0x02, 0x03, 0x04, 0x05}, 12},
		}

		for _, tc := range cases {
			buf := new(bytes.Buffer)
			require.NoError(t, WriteXDROpaque(buf, tc.data))
			assert.Equal(t, tc.encoded, buf.Len(), "data length %d", len(tc.data))
		}
	})

	t.Run("PaddingBytesAreZero", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteXDROpaque(buf, []byte{0xAA}))
		assert.Equal(t, []byte{0, 0, 0, 1, 0xAA, 0, 0, 0}, buf.Bytes())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		data := []byte("Hello from intercepted syscalls! This is a test message.")
		buf := new(bytes.Buffer)
		require.NoError(t, WriteXDROpaque(buf, data))

		got, err := DecodeOpaque(buf)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Zero(t, buf.Len(), "decode must consume the padding")
	})

	t.Run("RejectsOversizedLength", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteUint32(buf, MaxOpaqueLength+1))

		_, err := DecodeOpaque(buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum")
	})

	t.Run("StringRoundTrip", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WriteXDRString(buf, "/tmp/p3_tb_test.txt"))

		got, err := DecodeString(buf)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/p3_tb_test.txt", got)
	})
}

// ============================================================================
// Booleans and Unions
// ============================================================================

func TestBoolAndUnion(t *testing.T) {
	t.Run("BoolRoundTrip", func(t *testing.T) {
		for _, v := range []bool{true, false} {
			buf := new(bytes.Buffer)
			require.NoError(t, WriteBool(buf, v))

			got, err := DecodeBool(buf)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		}
	})

	t.Run("UnionDiscriminant", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeUnionDiscriminant(buf, 2))

		got, err := DecodeUnionDiscriminant(buf)
		require.NoError(t, err)
		assert.Equal(t, uint32(2), got)
	})
}
