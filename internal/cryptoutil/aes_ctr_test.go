package cryptoutil

import (
	"bytes"
	"testing"
)

func TestDecrypt_RoundTrip(t *testing.T) {
	plaintext := []byte("hello meshtastic world, this is a test payload")
	packetID := uint64(0x1122334455667788)
	fromNode := uint32(0xa1b2c3d4)

	// Encryption and decryption are the same CTR operation.
	ciphertext, err := Decrypt(plaintext, DefaultKey, packetID, fromNode)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatalf("ciphertext equals plaintext, cipher did not run")
	}

	recovered, err := Decrypt(ciphertext, DefaultKey, packetID, fromNode)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Fatalf("recovered = %q, want %q", recovered, plaintext)
	}
}

func TestDecrypt_DifferentCounterDifferentOutput(t *testing.T) {
	plaintext := []byte("same plaintext, different counter inputs")
	a, err := Decrypt(plaintext, DefaultKey, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Decrypt(plaintext, DefaultKey, 2, 100)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("expected different ciphertext for different packet ids")
	}
}

func TestParseStandardKey_Decodes16Bytes(t *testing.T) {
	key, err := ParseStandardKey("1PG7OiApB1nwvP+rz05pAQ==")
	if err != nil {
		t.Fatalf("ParseStandardKey: %v", err)
	}
	if len(key) != 16 {
		t.Fatalf("len(key) = %d, want 16", len(key))
	}
}
