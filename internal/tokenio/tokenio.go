// SPDX-License-Identifier: Apache-2.0

// Package tokenio frames GSS-API tokens on a stream the way the MIT gss-sample programs do:
// a four byte big-endian length followed by the token.
package tokenio

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// MaxTokenSize bounds the tokens Read accepts.
const MaxTokenSize = 1 << 24

// Write sends one token.
func Write(w io.Writer, token []byte) error {
	if len(token) > MaxTokenSize {
		return fmt.Errorf("tokenio: token of %d bytes is too large", len(token))
	}

	var szBuff [4]byte
	binary.BigEndian.PutUint32(szBuff[:], uint32(len(token)))
	if _, err := w.Write(szBuff[:]); err != nil {
		return err
	}

	_, err := w.Write(token)
	return err
}

// Read receives one token.
func Read(r io.Reader) ([]byte, error) {
	var szBuff [4]byte
	if _, err := io.ReadFull(r, szBuff[:]); err != nil {
		return nil, err
	}

	tokenSize := binary.BigEndian.Uint32(szBuff[:])
	if tokenSize > MaxTokenSize {
		return nil, fmt.Errorf("tokenio: token of %d bytes is too large", tokenSize)
	}

	token := make([]byte, tokenSize)
	if _, err := io.ReadFull(r, token); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return token, nil
}

// Format returns a hex dump of a token for debug output.
func Format(token []byte) string {
	return hex.Dump(token)
}
