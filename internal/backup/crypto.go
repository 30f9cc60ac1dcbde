package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Key derivation parameters. Both schemes are always linked in; the scheme
// used for new blobs is an explicit constructor choice, and decryption
// follows the version byte stored in each blob.
const (
	keySize = 32

	// Argon2id parameters for SchemeSecretbox
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4

	// scrypt parameters for SchemeAESGCM
	scryptN = 1 << 14
	scryptR = 8
	scryptP = 1
)

// RecoveryKeyHexLen is the length of a recovery key rendered as hex.
const RecoveryKeyHexLen = 64

// CryptoEngine performs password and recovery-key based authenticated
// encryption. The zero value is not usable; construct with NewCryptoEngine.
type CryptoEngine struct {
	scheme byte
}

// NewCryptoEngine creates an engine that writes new blobs with the given
// scheme. SchemeSecretbox is the canonical choice.
func NewCryptoEngine(scheme byte) (*CryptoEngine, error) {
	if scheme != SchemeSecretbox && scheme != SchemeAESGCM {
		return nil, NewConfigurationError(fmt.Sprintf("unknown encryption scheme %d", scheme), nil)
	}
	return &CryptoEngine{scheme: scheme}, nil
}

// NewDefaultCryptoEngine creates an engine using the canonical scheme
func NewDefaultCryptoEngine() *CryptoEngine {
	return &CryptoEngine{scheme: SchemeSecretbox}
}

// Scheme returns the scheme used for new blobs
func (ce *CryptoEngine) Scheme() byte {
	return ce.scheme
}

// DeriveKey derives a 32-byte key from a password and salt using the KDF of
// the given scheme.
func (ce *CryptoEngine) DeriveKey(password string, salt []byte, scheme byte) ([]byte, error) {
	switch scheme {
	case SchemeSecretbox:
		return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keySize), nil
	case SchemeAESGCM:
		key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
		if err != nil {
			return nil, NewDecryptionError("scrypt key derivation failed", err)
		}
		return key, nil
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unknown encryption scheme %d", scheme), nil)
	}
}

// Encrypt derives a key from the password under a fresh salt and seals the
// plaintext under a fresh nonce.
func (ce *CryptoEngine) Encrypt(plaintext []byte, password string) (*EncryptedBlob, error) {
	blob := &EncryptedBlob{Version: ce.scheme}

	if _, err := io.ReadFull(rand.Reader, blob.Salt[:]); err != nil {
		return nil, NewIOError("failed to generate salt", err)
	}

	key, err := ce.DeriveKey(password, blob.Salt[:], ce.scheme)
	if err != nil {
		return nil, err
	}

	return ce.seal(blob, plaintext, key)
}

// Decrypt verifies and opens a blob with a key derived from the password.
// The KDF and cipher follow the scheme stored in the blob. Authentication
// failure returns a decryption error and never partial plaintext.
func (ce *CryptoEngine) Decrypt(blob *EncryptedBlob, password string) ([]byte, error) {
	key, err := ce.DeriveKey(password, blob.Salt[:], blob.Version)
	if err != nil {
		return nil, err
	}
	return ce.open(blob, key)
}

// EncryptWithRecoveryKey seals plaintext using the recovery-key bytes
// directly, bypassing the KDF. The salt field is still populated with fresh
// random bytes so every blob shares the same wire layout; it plays no part
// in key derivation.
func (ce *CryptoEngine) EncryptWithRecoveryKey(plaintext []byte, recoveryKeyHex string) (*EncryptedBlob, error) {
	key, err := recoveryKeyBytes(recoveryKeyHex)
	if err != nil {
		return nil, err
	}

	blob := &EncryptedBlob{Version: ce.scheme}
	if _, err := io.ReadFull(rand.Reader, blob.Salt[:]); err != nil {
		return nil, NewIOError("failed to generate salt", err)
	}

	return ce.seal(blob, plaintext, key)
}

// DecryptWithRecoveryKey opens a blob using the recovery-key bytes directly
func (ce *CryptoEngine) DecryptWithRecoveryKey(blob *EncryptedBlob, recoveryKeyHex string) ([]byte, error) {
	key, err := recoveryKeyBytes(recoveryKeyHex)
	if err != nil {
		return nil, err
	}
	return ce.open(blob, key)
}

// seal encrypts plaintext into blob with the given key, generating a fresh
// nonce, using the cipher of blob.Version.
func (ce *CryptoEngine) seal(blob *EncryptedBlob, plaintext, key []byte) (*EncryptedBlob, error) {
	if _, err := io.ReadFull(rand.Reader, blob.Nonce[:]); err != nil {
		return nil, NewIOError("failed to generate nonce", err)
	}

	switch blob.Version {
	case SchemeSecretbox:
		var boxKey [keySize]byte
		copy(boxKey[:], key)
		blob.Ciphertext = secretbox.Seal(nil, plaintext, &blob.Nonce, &boxKey)
		return blob, nil

	case SchemeAESGCM:
		aead, err := newGCM(key)
		if err != nil {
			return nil, err
		}
		blob.Ciphertext = aead.Seal(nil, blob.Nonce[:], plaintext, nil)
		return blob, nil

	default:
		return nil, NewConfigurationError(fmt.Sprintf("unknown encryption scheme %d", blob.Version), nil)
	}
}

// open decrypts blob with the given key, dispatching on the stored scheme
func (ce *CryptoEngine) open(blob *EncryptedBlob, key []byte) ([]byte, error) {
	switch blob.Version {
	case SchemeSecretbox:
		var boxKey [keySize]byte
		copy(boxKey[:], key)
		plaintext, ok := secretbox.Open(nil, blob.Ciphertext, &blob.Nonce, &boxKey)
		if !ok {
			return nil, NewDecryptionError("authentication failed: wrong password or corrupted data", nil)
		}
		return plaintext, nil

	case SchemeAESGCM:
		aead, err := newGCM(key)
		if err != nil {
			return nil, err
		}
		plaintext, err := aead.Open(nil, blob.Nonce[:], blob.Ciphertext, nil)
		if err != nil {
			return nil, NewDecryptionError("authentication failed: wrong password or corrupted data", err)
		}
		return plaintext, nil

	default:
		return nil, NewCorruptArchiveError(fmt.Sprintf("unknown encryption scheme %d", blob.Version), nil)
	}
}

// newGCM builds an AES-256-GCM AEAD sized to the fixed 24-byte nonce field
// so both schemes share one wire layout.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewDecryptionError("failed to create AES cipher", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, BlobNonceSize)
	if err != nil {
		return nil, NewDecryptionError("failed to create GCM cipher", err)
	}
	return aead, nil
}

// GenerateRecoveryKey returns a fresh 256-bit recovery key as 64 lowercase
// hex characters. The key is usable directly as a symmetric key.
func GenerateRecoveryKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", NewIOError("failed to generate recovery key", err)
	}
	return hex.EncodeToString(raw), nil
}

// FormatRecoveryKey groups a recovery key into blocks of 4 for display
func FormatRecoveryKey(keyHex string) string {
	var b strings.Builder
	for i, r := range keyHex {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseRecoveryKey strips spaces and dashes from user input and validates
// the remaining characters form a 64-character hex key.
func ParseRecoveryKey(input string) (string, error) {
	cleaned := strings.ToLower(strings.NewReplacer(" ", "", "-", "").Replace(input))
	if len(cleaned) != RecoveryKeyHexLen {
		return "", NewValidationError(
			fmt.Sprintf("recovery key must be %d hex characters, got %d", RecoveryKeyHexLen, len(cleaned)), nil)
	}
	if _, err := hex.DecodeString(cleaned); err != nil {
		return "", NewValidationError("recovery key contains non-hex characters", err)
	}
	return cleaned, nil
}

// recoveryKeyBytes validates and decodes a recovery key into key bytes
func recoveryKeyBytes(recoveryKeyHex string) ([]byte, error) {
	cleaned, err := ParseRecoveryKey(recoveryKeyHex)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, NewValidationError("invalid recovery key encoding", err)
	}
	return key, nil
}

// ComputeChecksum returns the SHA-256 digest of data as lowercase hex.
// Checksums sit outside the encryption boundary and are independent of the
// AEAD tag; they guard manifest-level integrity.
func ComputeChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyChecksum reports whether data matches the expected SHA-256 digest
func VerifyChecksum(data []byte, expected string) bool {
	actual := ComputeChecksum(data)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
