// SPDX-License-Identifier: Apache-2.0

package krb5

import (
	"crypto/rand"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/crypto/etype"
	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/types"
)

// generateBaseKey returns a random key of the given type.  gokrb5's GenerateEncryptionKey sizes
// keys by the derived key length, which is wrong for aes256-cts-hmac-sha384-192.
func generateBaseKey(et etype.EType) (types.EncryptionKey, error) {
	k := types.EncryptionKey{
		KeyType: et.GetETypeID(),
	}

	kl := et.GetKeyByteSize()
	if et.GetETypeID() == etypeID.AES256_CTS_HMAC_SHA384_192 {
		kl = 32
	}

	b := make([]byte, kl)
	if _, err := rand.Read(b); err != nil {
		return k, err
	}
	k.KeyValue = b

	return k, nil
}

func keySSF(keyType int32) uint {
	// From MIT Kerberos 1.16 (src/lib/crypto/krb/etypes.c)
	/*
		ENCTYPE_DES3_CBC_RAW				112
		ENCTYPE_DES3_CBC_SHA1				112
		ENCTYPE_ARCFOUR_HMAC		 		 64
		ENCTYPE_ARCFOUR_HMAC_EXP	 		 40
		ENCTYPE_AES128_CTS_HMAC_SHA1_96		128
		ENCTYPE_AES256_CTS_HMAC_SHA1_96		256
		ENCTYPE_CAMELLIA128_CTS_CMAC		128
		ENCTYPE_CAMELLIA256_CTS_CMAC		256
		ENCTYPE_AES128_CTS_HMAC_SHA256_128	128
		ENCTYPE_AES256_CTS_HMAC_SHA384_192	256
	*/

	key, err := crypto.GetEtype(keyType)
	if err != nil {
		return 0
	}

	switch key.(type) {
	case crypto.Des3CbcSha1Kd:
		return 112
	case crypto.RC4HMAC:
		return 64
	case crypto.Aes256CtsHmacSha384192:
		return 256
	}

	// default to the key length in bits
	return uint(key.GetKeyByteSize()) * 8
}

// port from MIT Kerberos 1.16 (krb5_c_encrypt_length)
func encryptedLength(keyType int32, plainTextSize uint32) uint32 {
	paddingLen := paddingLength(keyType, plainTextSize)
	return uint32(keyHeaderLength(keyType)) +
		plainTextSize +
		paddingLen +
		uint32(keyTrailerLength(keyType))
}

// port from MIT Kerberos 1.16 (krb5int_c_padding_length)
func paddingLength(keyType int32, dataLength uint32) uint32 {
	dataLength += uint32(keyHeaderLength(keyType))
	padding := uint32(keyPaddingLength(keyType))

	if padding == 0 || (dataLength%padding) == 0 {
		return 0
	}

	return padding - (dataLength % padding)
}

func keyHeaderLength(keyType int32) uint {
	key, err := crypto.GetEtype(keyType)
	if err != nil {
		return 0
	}

	switch key.(type) {
	case crypto.RC4HMAC:
		return uint(key.GetHMACBitLength()/8 + key.GetConfounderByteSize())
	case crypto.Des3CbcSha1Kd, crypto.Aes128CtsHmacSha96, crypto.Aes128CtsHmacSha256128,
		crypto.Aes256CtsHmacSha96, crypto.Aes256CtsHmacSha384192:
		return uint(key.GetCypherBlockBitLength()) / 8
	}

	return 0
}

func keyPaddingLength(keyType int32) uint {
	key, err := crypto.GetEtype(keyType)
	if err != nil {
		return 0
	}

	// the AES etypes use ciphertext stealing and RC4 is a stream cipher
	if _, ok := key.(crypto.Des3CbcSha1Kd); ok {
		return uint(key.GetCypherBlockBitLength()) / 8
	}

	return 0
}

func keyTrailerLength(keyType int32) uint {
	key, err := crypto.GetEtype(keyType)
	if err != nil {
		return 0
	}

	switch key.(type) {
	case crypto.Des3CbcSha1Kd, crypto.Aes128CtsHmacSha96, crypto.Aes128CtsHmacSha256128,
		crypto.Aes256CtsHmacSha96, crypto.Aes256CtsHmacSha384192:
		return uint(key.GetHMACBitLength()) / 8
	}

	return 0
}

// wrapSizeLimit returns the largest message whose wrap token fits in maxOutput bytes.
//
// From MIT Kerberos 1.16 (src/lib/gssapi/krb5/wrap_size_limit.c)
func wrapSizeLimit(keyType int32, confidentiality bool, maxOutput uint32) uint32 {
	if !confidentiality {
		key, err := crypto.GetEtype(keyType)
		if err != nil {
			return 0
		}
		overhead := uint32(msgTokenHdrLen + key.GetHMACBitLength()/8)
		if maxOutput < overhead {
			return 0
		}
		return maxOutput - overhead
	}

	// the encrypted data holds the message followed by a copy of the token header
	overhead := uint32(msgTokenHdrLen + keyHeaderLength(keyType) + keyTrailerLength(keyType))
	if maxOutput <= overhead {
		return 0
	}

	sz := maxOutput - overhead
	for sz > 0 && msgTokenHdrLen+encryptedLength(keyType, sz) > maxOutput {
		sz--
	}

	if sz <= msgTokenHdrLen {
		return 0
	}

	return sz - msgTokenHdrLen
}
