// SPDX-License-Identifier: Apache-2.0

package gssapi

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"net"

	cb "github.com/golang-auth/go-channelbinding"
)

// GssAddressFamily is the address type of a channel binding address (RFC 2744 § 3.11).  These
// values are independent of the operating system's socket address families.
type GssAddressFamily uint32

const (
	GssAddrFamilyUNSPEC    GssAddressFamily = 0
	GssAddrFamilyLOCAL     GssAddressFamily = 1
	GssAddrFamilyINET      GssAddressFamily = 2
	GssAddrFamilyIMPLINK   GssAddressFamily = 3
	GssAddrFamilyPUP       GssAddressFamily = 4
	GssAddrFamilyCHAOS     GssAddressFamily = 5
	GssAddrFamilyNS        GssAddressFamily = 6
	GssAddrFamilyNBS       GssAddressFamily = 7
	GssAddrFamilyECMA      GssAddressFamily = 8
	GssAddrFamilyDATAKIT   GssAddressFamily = 9
	GssAddrFamilyCCITT     GssAddressFamily = 10
	GssAddrFamilySNA       GssAddressFamily = 11
	GssAddrFamilyDECnet    GssAddressFamily = 12
	GssAddrFamilyDLI       GssAddressFamily = 13
	GssAddrFamilyLAT       GssAddressFamily = 14
	GssAddrFamilyHYLINK    GssAddressFamily = 15
	GssAddrFamilyAPPLETALK GssAddressFamily = 16
	GssAddrFamilyBSC       GssAddressFamily = 17
	GssAddrFamilyDSS       GssAddressFamily = 18
	GssAddrFamilyOSI       GssAddressFamily = 19
	GssAddrFamilyNETBIOS   GssAddressFamily = 20
	GssAddrFamilyX25       GssAddressFamily = 21
	GssAddrFamilyINET6     GssAddressFamily = 24
	GssAddrFamilyNULLADDR  GssAddressFamily = 255
)

// ChannelBinding ties a security context to properties of the underlying channel
// (RFC 2743 § 1.1.6).  Channel bindings are owned by the caller; the engine only reads them.
type ChannelBinding struct {
	InitiatorAddrType GssAddressFamily
	InitiatorAddress  []byte
	AcceptorAddrType  GssAddressFamily
	AcceptorAddress   []byte
	ApplicationData   []byte
}

// Marshal returns the deterministic serialization of the bindings handed to mechanisms:
//
//	initiator type | initiator length | initiator address |
//	acceptor type | acceptor length | acceptor address |
//	application data length | application data
//
// Integers are four bytes, little endian, matching the RFC 1964 channel binding checksum.
func (c *ChannelBinding) Marshal() []byte {
	if c == nil {
		return nil
	}

	b := make([]byte, 0, 5*4+len(c.InitiatorAddress)+len(c.AcceptorAddress)+len(c.ApplicationData))

	b = binary.LittleEndian.AppendUint32(b, uint32(c.InitiatorAddrType))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(c.InitiatorAddress)))
	b = append(b, c.InitiatorAddress...)

	b = binary.LittleEndian.AppendUint32(b, uint32(c.AcceptorAddrType))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(c.AcceptorAddress)))
	b = append(b, c.AcceptorAddress...)

	b = binary.LittleEndian.AppendUint32(b, uint32(len(c.ApplicationData)))
	b = append(b, c.ApplicationData...)

	return b
}

// AddressFamily returns the channel binding address type and bytes for a network address.
// Unknown address types, and nil, map to GssAddrFamilyUNSPEC with no address.
func AddressFamily(addr net.Addr) (GssAddressFamily, []byte) {
	ip := func(ip net.IP) (GssAddressFamily, []byte) {
		if v4 := ip.To4(); v4 != nil {
			return GssAddrFamilyINET, []byte(v4)
		}
		if v6 := ip.To16(); v6 != nil {
			return GssAddrFamilyINET6, []byte(v6)
		}
		return GssAddrFamilyUNSPEC, nil
	}

	switch a := addr.(type) {
	case *net.IPAddr:
		return ip(a.IP)
	case *net.TCPAddr:
		return ip(a.IP)
	case *net.UDPAddr:
		return ip(a.IP)
	case *net.UnixAddr:
		return GssAddrFamilyLOCAL, []byte(a.Name)
	}

	return GssAddrFamilyUNSPEC, nil
}

// NewAddressChannelBinding binds a context to the endpoints of a network connection.  Either
// address may be nil.
func NewAddressChannelBinding(initiator, acceptor net.Addr, data []byte) *ChannelBinding {
	c := &ChannelBinding{ApplicationData: data}
	c.InitiatorAddrType, c.InitiatorAddress = AddressFamily(initiator)
	c.AcceptorAddrType, c.AcceptorAddress = AddressFamily(acceptor)

	return c
}

// NewTLSChannelBinding binds a context to a TLS connection using the tls-server-end-point
// binding of RFC 5929, as used by HTTP Negotiate authentication.  serverCert may be nil on the
// client, in which case the peer's leaf certificate is used.
func NewTLSChannelBinding(state *tls.ConnectionState, serverCert *x509.Certificate) (*ChannelBinding, error) {
	if state == nil {
		return nil, makeStatus(errBadBindings, errors.New("gssapi: no TLS connection state"))
	}

	if serverCert == nil {
		if len(state.PeerCertificates) == 0 {
			return nil, makeStatus(errBadBindings, errors.New("gssapi: no server certificate in the TLS connection state"))
		}
		serverCert = state.PeerCertificates[0]
	}

	data, err := cb.MakeTLSChannelBinding(*state, serverCert, cb.TLSChannelBindingEndpoint)
	if err != nil {
		return nil, makeStatus(errBadBindings, err)
	}

	return &ChannelBinding{ApplicationData: data}, nil
}
