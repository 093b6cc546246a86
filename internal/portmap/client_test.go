package portmap

import (
	"bytes"
	"testing"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingWireLayout(t *testing.T) {
	t.Run("MarshalsAsFourBigEndianWords", func(t *testing.T) {
		m := Mapping{Prog: 0x20000101, Vers: 1, Prot: IPProtoTCP, Port: 20049}

		buf := new(bytes.Buffer)
		n, err := xdr.Marshal(buf, &m)
		require.NoError(t, err)
		assert.Equal(t, 16, n)
		assert.Equal(t, []byte{
			0x20, 0x00, 0x01, 0x01,
			0x00, 0x00, 0x00, 0x01,
			0x00, 0x00, 0x00, 0x06,
			0x00, 0x00, 0x4E, 0x51,
		}, buf.Bytes())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		original := Mapping{Prog: 100000, Vers: 2, Prot: IPProtoTCP, Port: 111}

		buf := new(bytes.Buffer)
		_, err := xdr.Marshal(buf, &original)
		require.NoError(t, err)

		var decoded Mapping
		_, err = xdr.Unmarshal(bytes.NewReader(buf.Bytes()), &decoded)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})
}

func TestGetPortAgainstMissingPortmapper(t *testing.T) {
	// The host cannot resolve; the dial must fail cleanly within the
	// timeout instead of hanging or panicking.
	_, err := GetPort("invalid.host.invalid", Mapping{Prog: 1, Vers: 1})
	assert.Error(t, err)
}
