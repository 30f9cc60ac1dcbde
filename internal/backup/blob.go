package backup

import (
	"encoding/base64"
	"fmt"
)

// Wire format sizes for EncryptedBlob. The layout is fixed across schemes:
// [version:1][salt:16][nonce:24][ciphertext:N]
const (
	BlobSaltSize   = 16
	BlobNonceSize  = 24
	blobHeaderSize = 1 + BlobSaltSize + BlobNonceSize
)

// Encryption scheme identifiers persisted in the blob version byte.
// Decryption dispatches on the stored identifier, never on which library
// happens to be available at runtime.
const (
	// SchemeSecretbox is Argon2id key derivation with XSalsa20-Poly1305
	SchemeSecretbox byte = 1
	// SchemeAESGCM is scrypt key derivation with AES-256-GCM
	SchemeAESGCM byte = 2
)

// EncryptedBlob is the unit of authenticated encryption. Salt and nonce are
// fresh random values on every encryption and never reused for a given key.
type EncryptedBlob struct {
	Version    byte
	Salt       [BlobSaltSize]byte
	Nonce      [BlobNonceSize]byte
	Ciphertext []byte
}

// Bytes renders the blob in wire format: version||salt||nonce||ciphertext
func (b *EncryptedBlob) Bytes() []byte {
	out := make([]byte, 0, blobHeaderSize+len(b.Ciphertext))
	out = append(out, b.Version)
	out = append(out, b.Salt[:]...)
	out = append(out, b.Nonce[:]...)
	out = append(out, b.Ciphertext...)
	return out
}

// EncodeBase64 renders the wire format wrapped in standard base64
func (b *EncryptedBlob) EncodeBase64() string {
	return base64.StdEncoding.EncodeToString(b.Bytes())
}

// ParseBlob parses the wire format back into an EncryptedBlob
func ParseBlob(data []byte) (*EncryptedBlob, error) {
	if len(data) < blobHeaderSize {
		return nil, NewCorruptArchiveError(
			fmt.Sprintf("encrypted blob too short: %d bytes, need at least %d", len(data), blobHeaderSize), nil)
	}

	blob := &EncryptedBlob{Version: data[0]}
	if blob.Version != SchemeSecretbox && blob.Version != SchemeAESGCM {
		return nil, NewCorruptArchiveError(
			fmt.Sprintf("unknown encryption scheme %d", blob.Version), nil)
	}

	copy(blob.Salt[:], data[1:1+BlobSaltSize])
	copy(blob.Nonce[:], data[1+BlobSaltSize:blobHeaderSize])

	blob.Ciphertext = make([]byte, len(data)-blobHeaderSize)
	copy(blob.Ciphertext, data[blobHeaderSize:])

	return blob, nil
}

// ParseBlobBase64 decodes a base64-wrapped blob
func ParseBlobBase64(s string) (*EncryptedBlob, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, NewCorruptArchiveError("invalid base64 encoding", err)
	}
	return ParseBlob(data)
}
