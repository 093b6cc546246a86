package rpc

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Call Envelope
// ============================================================================

func TestCallRoundTrip(t *testing.T) {
	t.Run("PreservesEnvelopeFields", func(t *testing.T) {
		auth := &UnixAuth{Stamp: 12345, MachineName: "testhost", UID: 1000, GID: 1000}
		cred := new(bytes.Buffer)
		require.NoError(t, auth.Encode(cred))

		original := &CallMessage{
			XID:        0xDEADBEEF,
			Program:    0x20000101,
			Version:    1,
			Procedure:  4,
			CredFlavor: AuthUnix,
			CredBody:   cred.Bytes(),
			Body:       []byte{0, 0, 0, 3, 0, 0, 1, 0},
		}

		wire, err := EncodeCall(original)
		require.NoError(t, err)

		parsed, err := ParseCall(wire)
		require.NoError(t, err)
		assert.Equal(t, original.XID, parsed.XID)
		assert.Equal(t, original.Program, parsed.Program)
		assert.Equal(t, original.Version, parsed.Version)
		assert.Equal(t, original.Procedure, parsed.Procedure)
		assert.Equal(t, uint32(AuthUnix), parsed.GetAuthFlavor())
		assert.Equal(t, original.CredBody, parsed.GetAuthBody())
		assert.Equal(t, original.Body, parsed.Body)
	})

	t.Run("RejectsReplyAsCall", func(t *testing.T) {
		wire, err := EncodeAcceptedReply(7, Success, nil)
		require.NoError(t, err)

		_, err = ParseCall(wire)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a call")
	})

	t.Run("RejectsWrongRPCVersion", func(t *testing.T) {
		original := &CallMessage{XID: 1, Program: 2, Version: 1, Procedure: 0}
		wire, err := EncodeCall(original)
		require.NoError(t, err)

		// rpcvers sits at bytes 8-12.
		wire[11] = 3
		_, err = ParseCall(wire)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported rpc version")
	})
}

// ============================================================================
// Reply Envelope
// ============================================================================

func TestReplyRoundTrip(t *testing.T) {
	t.Run("PreservesStatusAndBody", func(t *testing.T) {
		body := []byte{0, 0, 0, 56, 0, 0, 0, 0}
		wire, err := EncodeAcceptedReply(42, Success, body)
		require.NoError(t, err)

		parsed, err := ParseReply(wire)
		require.NoError(t, err)
		assert.Equal(t, uint32(42), parsed.XID)
		assert.Equal(t, uint32(Success), parsed.AcceptStat)
		assert.Equal(t, body, parsed.Body)
	})

	t.Run("CarriesErrorStatuses", func(t *testing.T) {
		for _, status := range []uint32{ProgUnavail, ProcUnavail, GarbageArgs, SystemErr} {
			wire, err := EncodeAcceptedReply(1, status, nil)
			require.NoError(t, err)

			parsed, err := ParseReply(wire)
			require.NoError(t, err)
			assert.Equal(t, status, parsed.AcceptStat)
			assert.Empty(t, parsed.Body)
		}
	})
}

// ============================================================================
// AUTH_UNIX Credentials
// ============================================================================

func TestUnixAuth(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		original := &UnixAuth{
			Stamp:       uint32(time.Now().Unix()),
			MachineName: "testhost",
			UID:         1000,
			GID:         1000,
			GIDs:        []uint32{4, 24, 27, 30},
		}

		buf := new(bytes.Buffer)
		require.NoError(t, original.Encode(buf))

		parsed, err := ParseUnixAuth(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, original.Stamp, parsed.Stamp)
		assert.Equal(t, original.MachineName, parsed.MachineName)
		assert.Equal(t, original.UID, parsed.UID)
		assert.Equal(t, original.GID, parsed.GID)
		assert.Equal(t, original.GIDs, parsed.GIDs)
	})

	t.Run("RejectsExcessiveGroups", func(t *testing.T) {
		original := &UnixAuth{
			MachineName: "testhost",
			GIDs:        make([]uint32, MaxUnixGIDs+1),
		}
		buf := new(bytes.Buffer)
		err := original.Encode(buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many gids")
	})
}

// ============================================================================
// Record Marking
// ============================================================================

func TestRecordMarking(t *testing.T) {
	t.Run("SingleFragmentRoundTrip", func(t *testing.T) {
		payload := []byte("record body")
		var wire bytes.Buffer
		require.NoError(t, WriteRecord(&wire, payload))

		got, err := ReadRecord(&wire)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("LastFragmentFlagIsSet", func(t *testing.T) {
		var wire bytes.Buffer
		require.NoError(t, WriteRecord(&wire, []byte{0xAB}))

		header, err := ReadFragmentHeader(&wire)
		require.NoError(t, err)
		assert.True(t, header.IsLast)
		assert.Equal(t, uint32(1), header.Length)
	})

	t.Run("ReassemblesMultipleFragments", func(t *testing.T) {
		// Hand-build two fragments: "hel" (more follows) + "lo" (last).
		var wire bytes.Buffer
		wire.Write([]byte{0x00, 0x00, 0x00, 0x03})
		wire.WriteString("hel")
		wire.Write([]byte{0x80, 0x00, 0x00, 0x02})
		wire.WriteString("lo")

		got, err := ReadRecord(&wire)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
	})

	t.Run("EOFBeforeFirstHeaderIsBareEOF", func(t *testing.T) {
		_, err := ReadRecord(bytes.NewReader(nil))
		assert.Equal(t, io.EOF, err)
	})

	t.Run("TruncatedBodyIsAnError", func(t *testing.T) {
		var wire bytes.Buffer
		wire.Write([]byte{0x80, 0x00, 0x00, 0x10}) // promises 16 bytes
		wire.WriteString("short")

		_, err := ReadRecord(&wire)
		require.Error(t, err)
		assert.NotEqual(t, io.EOF, err)
	})

	t.Run("RejectsOversizedFragment", func(t *testing.T) {
		var wire bytes.Buffer
		wire.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

		_, err := ReadRecord(&wire)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fragment too large")
	})

	t.Run("RefusesToFrameOversizedRecord", func(t *testing.T) {
		var wire bytes.Buffer
		err := WriteRecord(&wire, make([]byte, MaxFragmentSize+1))
		require.Error(t, err)
	})
}
