// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"bytes"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/crypto/etype"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/types"
)

/*
 * Derived from github.com/jcmturner/gokrb5/gssapi/wrapToken.go
 *
 * The modified version adds functionality for sealing GSSAPI messages
 * and for tokens rotated by SSPI (RRC).
 */

// RFC 4121 §  4.2.6
const (
	msgTokenHdrLen          = 16
	msgTokenFillerByte byte = 0xFF
)

// RFC 4121 §  4.2.2
type msgTokenFlag uint8

const (
	msgTokenFlagSentByAcceptor msgTokenFlag = 1 << iota
	msgTokenFlagSealed
	msgTokenFlagAcceptorSubkey
)

// errWrongDirection is returned when a peer reflects our own token back at us.
var errWrongDirection = errors.New("krb5: token was sent in the wrong direction")

// RFC 4121 §  4.2.6.1
type micToken struct {
	// 2 byte token ID (0x04, 0x04)
	Flags msgTokenFlag
	// 5 byte filler (0xFF)
	SequenceNumber uint64 // 64-bit sequence number
	Checksum       []byte
	signed         bool
}

// RFC 4121 §  4.2.6.2
type wrapToken struct {
	// 2 byte token ID (0x05, 0x04)
	Flags msgTokenFlag
	// 1 byte filler (0xFF)
	EC             uint16 // "Extra count" - the checksum or padding length
	RRC            uint16 // right rotation count, undone by Unmarshal
	SequenceNumber uint64 // 64-bit sequence number
	Payload        []byte // signed or encrypted payload
	signedOrSealed bool
}

var (
	gssWrapTokenID = [2]byte{0x05, 0x04}
	gssMICTokenID  = [2]byte{0x04, 0x04}
)

func getEtype(key types.EncryptionKey) (etype.EType, error) {
	et, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return nil, fmt.Errorf("krb5: %w", err)
	}

	return et, nil
}

func wrapUsage(flags msgTokenFlag) uint32 {
	if flags&msgTokenFlagSentByAcceptor != 0 {
		return keyusage.GSSAPI_ACCEPTOR_SEAL
	}
	return keyusage.GSSAPI_INITIATOR_SEAL
}

func micUsage(flags msgTokenFlag) uint32 {
	if flags&msgTokenFlagSentByAcceptor != 0 {
		return keyusage.GSSAPI_ACCEPTOR_SIGN
	}
	return keyusage.GSSAPI_INITIATOR_SIGN
}

func checkDirection(flags msgTokenFlag, expectFromAcceptor bool) error {
	isFromAcceptor := flags&msgTokenFlagSentByAcceptor != 0
	if isFromAcceptor != expectFromAcceptor {
		return fmt.Errorf("%w: from acceptor: %t, expect from acceptor: %t", errWrongDirection, isFromAcceptor, expectFromAcceptor)
	}

	return nil
}

// RFC 4121 §  4.2.4
// Checksum is calculated over the plaintext (supplied token payload), and
// the token header with EC and RRC set to zero
// The function replaces the Payload and sets the EC/RRC fields of the WrapToken
func (wt *wrapToken) Sign(key types.EncryptionKey) error {
	if wt.signedOrSealed {
		return errors.New("krb5: attempt to sign a signed/sealed token")
	}

	encType, err := getEtype(key)
	if err != nil {
		return err
	}

	sig, err := wt.computeChecksum(key)
	if err != nil {
		return err
	}

	payload := make([]byte, 0, len(wt.Payload)+len(sig))
	payload = append(payload, wt.Payload...)
	wt.Payload = append(payload, sig...)
	wt.EC = uint16(encType.GetHMACBitLength() / 8)
	wt.RRC = 0
	wt.signedOrSealed = true

	return nil
}

// RFC 4121 §  4.2.4
// Encrypts the Payload and sets EC/RRC on the WrapToken
func (wt *wrapToken) Seal(key types.EncryptionKey) error {
	if wt.signedOrSealed {
		return errors.New("krb5: attempt to seal a signed/sealed token")
	}

	encType, err := getEtype(key)
	if err != nil {
		return err
	}

	toEncrypt := make([]byte, 0, len(wt.Payload)+msgTokenHdrLen)
	toEncrypt = append(toEncrypt, wt.Payload...)
	toEncrypt = append(toEncrypt, wt.header()...)

	_, encData, err := encType.EncryptMessage(key.KeyValue, toEncrypt, wrapUsage(wt.Flags))
	if err != nil {
		return fmt.Errorf("krb5: sealing wrap token: %w", err)
	}

	wt.Payload = encData
	wt.EC = 0
	wt.RRC = 0
	wt.signedOrSealed = true

	return nil
}

func (wt *wrapToken) header() []byte {
	hdr := make([]byte, msgTokenHdrLen)

	hdr[0], hdr[1] = gssWrapTokenID[0], gssWrapTokenID[1]
	hdr[2] = byte(wt.Flags)
	hdr[3] = msgTokenFillerByte
	// EC and RRC are zero
	binary.BigEndian.PutUint64(hdr[8:], wt.SequenceNumber)

	return hdr
}

func (wt *wrapToken) computeChecksum(key types.EncryptionKey) ([]byte, error) {
	encType, err := getEtype(key)
	if err != nil {
		return nil, err
	}

	// Build a slice containing { payload | header }
	cksumData := make([]byte, 0, msgTokenHdrLen+len(wt.Payload))
	cksumData = append(cksumData, wt.Payload...)
	cksumData = append(cksumData, wt.header()...)

	// wrap tokens always use the Seal key usage (RFC 4121 § 2)
	cksum, err := encType.GetChecksumHash(key.KeyValue, cksumData, wrapUsage(wt.Flags))
	if err != nil {
		return nil, fmt.Errorf("krb5: computing wrap token checksum: %w", err)
	}

	return cksum, nil
}

// Marshal a token that has already been signed or sealed
func (wt *wrapToken) Marshal() ([]byte, error) {
	if !wt.signedOrSealed {
		return nil, errors.New("krb5: wrap token is not signed or sealed")
	}

	token := make([]byte, msgTokenHdrLen+len(wt.Payload))

	copy(token[0:], gssWrapTokenID[:])
	token[2] = byte(wt.Flags)
	token[3] = msgTokenFillerByte
	binary.BigEndian.PutUint16(token[4:6], wt.EC)
	binary.BigEndian.PutUint16(token[6:8], wt.RRC)
	binary.BigEndian.PutUint64(token[8:16], wt.SequenceNumber)
	copy(token[16:], wt.Payload)

	return token, nil
}

// Unmarshal a signed or sealed token.  A rotated payload is restored to its unrotated form.
func (wt *wrapToken) Unmarshal(token []byte) error {
	*wt = wrapToken{}

	if len(token) < msgTokenHdrLen {
		return errors.New("krb5: wrap token is too short")
	}

	// As per RFC 4121 § 4.4, 0x60 indicates the generic GSS-API token framing
	// used by RFC 1964 tokens, which are not supported
	if token[0] == 0x60 {
		return errors.New("krb5: RFC 1964 message tokens are not supported")
	}

	if !bytes.Equal(gssWrapTokenID[:], token[0:2]) {
		return errors.New("krb5: bad wrap token ID")
	}

	wt.Flags = msgTokenFlag(token[2])

	if token[3] != msgTokenFillerByte {
		return errors.New("krb5: invalid wrap token (bad filler)")
	}

	wt.EC = binary.BigEndian.Uint16(token[4:6])
	wt.RRC = binary.BigEndian.Uint16(token[6:8])
	wt.SequenceNumber = binary.BigEndian.Uint64(token[8:16])

	wt.Payload = make([]byte, len(token)-msgTokenHdrLen)
	copy(wt.Payload, token[16:])

	if wt.RRC != 0 {
		wt.Payload = rotateLeft(wt.Payload, uint(wt.RRC))
		wt.RRC = 0
	}

	wt.signedOrSealed = true
	return nil
}

// VerifyAndDecode checks the token and replaces the payload with the plaintext.
func (wt *wrapToken) VerifyAndDecode(key types.EncryptionKey, expectFromAcceptor bool) (isSealed bool, err error) {
	if !wt.signedOrSealed {
		return false, errors.New("krb5: wrap token is not signed or sealed")
	}

	if err := checkDirection(wt.Flags, expectFromAcceptor); err != nil {
		return false, err
	}

	if wt.Flags&msgTokenFlagSealed != 0 {
		return true, wt.decrypt(key)
	}

	return false, wt.checkSig(key)
}

func (wt *wrapToken) decrypt(key types.EncryptionKey) error {
	encType, err := getEtype(key)
	if err != nil {
		return err
	}

	decrypted, err := encType.DecryptMessage(key.KeyValue, wt.Payload, wrapUsage(wt.Flags))
	if err != nil {
		return fmt.Errorf("krb5: decrypting wrap token: %w", err)
	}

	if len(decrypted) < int(wt.EC)+msgTokenHdrLen {
		return errors.New("krb5: decrypted wrap token payload is too short")
	}

	// the encrypted copy of the header follows the plaintext and filler
	decryptedHeader := decrypted[len(decrypted)-msgTokenHdrLen:]

	wt2 := wrapToken{}
	if err = wt2.Unmarshal(decryptedHeader); err != nil {
		return err
	}
	if wt.Flags != wt2.Flags || wt.EC != wt2.EC || wt.SequenceNumber != wt2.SequenceNumber {
		return errors.New("krb5: wrap token header was modified")
	}

	wt.Payload = decrypted[0 : len(decrypted)-msgTokenHdrLen-int(wt.EC)]
	wt.signedOrSealed = false

	return nil
}

func (wt *wrapToken) checkSig(key types.EncryptionKey) error {
	encType, err := getEtype(key)
	if err != nil {
		return err
	}

	// extra-count should be the crypto checksum length
	if wt.EC != uint16(encType.GetHMACBitLength()/8) {
		return errors.New("krb5: bad wrap token checksum length")
	}

	if len(wt.Payload) < int(wt.EC) {
		return errors.New("krb5: signed wrap token payload is too short")
	}

	tokCksum := wt.Payload[len(wt.Payload)-int(wt.EC):]

	wt2 := *wt
	wt2.Payload = wt.Payload[0 : len(wt.Payload)-int(wt.EC)]
	computedCksum, err := wt2.computeChecksum(key)
	if err != nil {
		return err
	}

	if !hmac.Equal(tokCksum, computedCksum) {
		return errors.New("krb5: invalid wrap token checksum")
	}

	wt.Payload = wt2.Payload
	wt.signedOrSealed = false

	return nil
}

// Ported from MIT source code (gss_krb5int_rotate_left)
func rotateLeft(buf []byte, rc uint) []byte {
	if len(buf) == 0 || rc == 0 {
		return buf
	}

	rc %= uint(len(buf))
	if rc == 0 {
		return buf
	}

	tmpBuf := make([]byte, rc)
	copy(tmpBuf, buf[0:rc])
	copy(buf, buf[rc:])
	copy(buf[uint(len(buf))-rc:], tmpBuf)

	return buf
}

// RFC 4121 §  4.2.4
// Checksum is calculated over the plaintext (supplied token payload), and
// the token header
func (mt *micToken) Sign(payload []byte, key types.EncryptionKey) error {
	encType, err := getEtype(key)
	if err != nil {
		return err
	}

	cksumData := make([]byte, 0, msgTokenHdrLen+len(payload))
	cksumData = append(cksumData, payload...)
	cksumData = append(cksumData, mt.header()...)

	// mic tokens always use the Sign key usage
	mt.Checksum, err = encType.GetChecksumHash(key.KeyValue, cksumData, micUsage(mt.Flags))
	if err != nil {
		return fmt.Errorf("krb5: computing MIC: %w", err)
	}

	mt.signed = true

	return nil
}

func (mt *micToken) header() []byte {
	hdr := make([]byte, msgTokenHdrLen)

	hdr[0], hdr[1] = gssMICTokenID[0], gssMICTokenID[1]
	hdr[2] = byte(mt.Flags)
	copy(hdr[3:8], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	binary.BigEndian.PutUint64(hdr[8:], mt.SequenceNumber)

	return hdr
}

func (mt *micToken) Marshal() ([]byte, error) {
	if !mt.signed {
		return nil, errors.New("krb5: MIC token is not signed")
	}

	token := mt.header()
	return append(token, mt.Checksum...), nil
}

func (mt *micToken) Unmarshal(token []byte) error {
	*mt = micToken{}

	if len(token) < msgTokenHdrLen {
		return errors.New("krb5: MIC token is too short")
	}

	if token[0] == 0x60 {
		return errors.New("krb5: RFC 1964 message tokens are not supported")
	}

	if !bytes.Equal(gssMICTokenID[:], token[0:2]) {
		return errors.New("krb5: bad MIC token ID")
	}

	mt.Flags = msgTokenFlag(token[2])

	if !bytes.Equal(token[3:8], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		return errors.New("krb5: invalid MIC token (bad filler)")
	}

	mt.SequenceNumber = binary.BigEndian.Uint64(token[8:16])
	mt.Checksum = append([]byte(nil), token[16:]...)
	mt.signed = true

	return nil
}

// Verify checks the MIC over payload.  Empty payloads are valid.
func (mt *micToken) Verify(payload []byte, key types.EncryptionKey, expectFromAcceptor bool) error {
	if !mt.signed {
		return errors.New("krb5: MIC token is not signed")
	}

	if err := checkDirection(mt.Flags, expectFromAcceptor); err != nil {
		return err
	}

	// copy the token and use it to sign the supplied payload
	mt2 := *mt
	if err := mt2.Sign(payload, key); err != nil {
		return err
	}

	if !hmac.Equal(mt.Checksum, mt2.Checksum) {
		return errors.New("krb5: invalid MIC token checksum")
	}

	return nil
}
