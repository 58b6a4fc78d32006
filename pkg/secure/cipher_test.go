package secure

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *Cipher {
	c, err := NewCipher(bytes.Repeat([]byte{7}, 32), []byte("index-key"))
	require.NoError(t, err)
	return c
}

func TestCipher_EncryptDecrypt(t *testing.T) {
	c := newTestCipher(t)
	addr := "0x52908400098527886E0F7030069857D2E4169EE7"

	enc1, err := c.Encrypt(addr)
	require.NoError(t, err)
	enc2, err := c.Encrypt(addr)
	require.NoError(t, err)
	assert.NotEqual(t, enc1, enc2, "随机 nonce，两次密文不同")

	plain, err := c.Decrypt(enc1)
	require.NoError(t, err)
	assert.Equal(t, addr, plain)

	assert.Equal(t, c.BlindIndex(addr), c.BlindIndex(addr))
	assert.NotEqual(t, c.BlindIndex(addr), c.BlindIndex(addr+"x"))
}

func TestCipher_Errors(t *testing.T) {
	_, err := NewCipher([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrKeySize)

	c := newTestCipher(t)
	_, err = c.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrCiphertext)

	enc, err := c.Encrypt("hello")
	require.NoError(t, err)
	tampered := []byte(enc)
	tampered[len(tampered)-3] ^= 1
	_, err = c.Decrypt(string(tampered))
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "1A1zP1...vfNa", Mask("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"))
	assert.Equal(t, "***rt", Mask("short"))
	assert.Equal(t, "***89", Mask("0123456789"))
	assert.Equal(t, "***", Mask("1234"))
	assert.Equal(t, "***", Mask(""))
}
