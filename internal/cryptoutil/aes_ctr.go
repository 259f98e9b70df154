// Package cryptoutil implements the Meshtastic channel-encryption scheme:
// AES-128/256 in counter mode with a counter built from the packet id and
// source node id rather than a random nonce.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// DefaultKey is the published default channel key for Meshtastic's public
// "LongFast" channel (base64: "1PG7OiApB1nwvP+rz05pAQ==").
var DefaultKey = []byte{0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59, 0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01}

// ParseStandardKey decodes standard (non-URL) base64, as published for the
// default public channel key and as configured via MESHTASTIC_CHANNEL_KEY.
func ParseStandardKey(key string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(key)
}

// Decrypt reverses the Meshtastic packet cipher: AES-CTR with a 128-bit
// initial counter block built from the packet id (8 bytes, little-endian)
// concatenated with the source node id (4 bytes, little-endian) and 4 zero
// bytes. It never pads, retries, or validates beyond a key-length check;
// malformed-after-decrypt input is caught by the caller's protobuf parse.
func Decrypt(ciphertext, key []byte, packetID uint64, fromNode uint32) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("constructing aes cipher: %w", err)
	}

	var iv [aes.BlockSize]byte
	binary.LittleEndian.PutUint64(iv[0:8], packetID)
	binary.LittleEndian.PutUint32(iv[8:12], fromNode)
	// iv[12:16] stays zero.

	stream := cipher.NewCTR(block, iv[:])
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
