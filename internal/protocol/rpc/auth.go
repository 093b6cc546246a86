package rpc

import (
	"bytes"
	"fmt"

	"github.com/catabozan/fdbridge/internal/protocol/xdr"
)

// UnixAuth is the AUTH_UNIX credential body (RFC 5531 Appendix A): a stamp,
// the caller's machine name, and its uid/gid/supplementary gids. The shim
// sends it on every call; the server neither logs it nor uses it for access
// decisions (authentication is out of scope).
type UnixAuth struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

// Encode writes the credential body in XDR layout.
func (a *UnixAuth) Encode(buf *bytes.Buffer) error {
	if err := xdr.WriteUint32(buf, a.Stamp); err != nil {
		return err
	}
	if err := xdr.WriteXDRString(buf, a.MachineName); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, a.UID); err != nil {
		return err
	}
	if err := xdr.WriteUint32(buf, a.GID); err != nil {
		return err
	}
	if len(a.GIDs) > MaxUnixGIDs {
		return fmt.Errorf("too many gids: %d (max %d)", len(a.GIDs), MaxUnixGIDs)
	}
	if err := xdr.WriteUint32(buf, uint32(len(a.GIDs))); err != nil {
		return err
	}
	for _, gid := range a.GIDs {
		if err := xdr.WriteUint32(buf, gid); err != nil {
			return err
		}
	}
	return nil
}

// ParseUnixAuth parses an AUTH_UNIX credential body.
func ParseUnixAuth(body []byte) (*UnixAuth, error) {
	r := bytes.NewReader(body)
	auth := &UnixAuth{}

	var err error
	if auth.Stamp, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read stamp: %w", err)
	}
	if auth.MachineName, err = xdr.DecodeString(r); err != nil {
		return nil, fmt.Errorf("read machine name: %w", err)
	}
	if auth.UID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read uid: %w", err)
	}
	if auth.GID, err = xdr.DecodeUint32(r); err != nil {
		return nil, fmt.Errorf("read gid: %w", err)
	}

	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read gid count: %w", err)
	}
	if count > MaxUnixGIDs {
		return nil, fmt.Errorf("too many gids: %d (max %d)", count, MaxUnixGIDs)
	}

	auth.GIDs = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		gid, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read gid %d: %w", i, err)
		}
		auth.GIDs = append(auth.GIDs, gid)
	}

	return auth, nil
}
