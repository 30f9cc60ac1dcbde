package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptedBlob_Bytes_RoundTrip(t *testing.T) {
	engine := NewDefaultCryptoEngine()
	blob, err := engine.Encrypt([]byte("wire format round trip"), "password")
	require.NoError(t, err)

	parsed, err := ParseBlob(blob.Bytes())
	require.NoError(t, err)
	assert.Equal(t, blob.Version, parsed.Version)
	assert.Equal(t, blob.Salt, parsed.Salt)
	assert.Equal(t, blob.Nonce, parsed.Nonce)
	assert.Equal(t, blob.Ciphertext, parsed.Ciphertext)

	decrypted, err := engine.Decrypt(parsed, "password")
	require.NoError(t, err)
	assert.Equal(t, []byte("wire format round trip"), decrypted)
}

func TestEncryptedBlob_Base64_RoundTrip(t *testing.T) {
	engine := NewDefaultCryptoEngine()
	blob, err := engine.Encrypt([]byte("base64 round trip"), "password")
	require.NoError(t, err)

	parsed, err := ParseBlobBase64(blob.EncodeBase64())
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes(), parsed.Bytes())
}

func TestParseBlob_TooShort(t *testing.T) {
	parsed, err := ParseBlob(make([]byte, blobHeaderSize-1))
	require.Error(t, err)
	assert.Nil(t, parsed)
	assert.True(t, IsErrorType(err, ErrorTypeCorruptArchive))
}

func TestParseBlob_UnknownScheme(t *testing.T) {
	data := make([]byte, blobHeaderSize+8)
	data[0] = 99

	parsed, err := ParseBlob(data)
	require.Error(t, err)
	assert.Nil(t, parsed)
	assert.True(t, IsErrorType(err, ErrorTypeCorruptArchive))
}

func TestParseBlobBase64_InvalidEncoding(t *testing.T) {
	parsed, err := ParseBlobBase64("not base64 at all!")
	require.Error(t, err)
	assert.Nil(t, parsed)
	assert.True(t, IsErrorType(err, ErrorTypeCorruptArchive))
}

func TestParseBlob_EmptyCiphertext(t *testing.T) {
	data := make([]byte, blobHeaderSize)
	data[0] = SchemeSecretbox

	parsed, err := ParseBlob(data)
	require.NoError(t, err)
	assert.Empty(t, parsed.Ciphertext)
}
