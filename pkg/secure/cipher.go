package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

var (
	ErrKeySize    = errors.New("encryption key must be 32 bytes")
	ErrCiphertext = errors.New("ciphertext too short")
)

// Cipher AES-256-GCM 加解密，nonce 前置在密文里，整体 base64
// 另带一把 HMAC key 生成盲索引，用来在密文字段上做唯一性判断
type Cipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

func NewCipher(key, indexKey []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(indexKey) == 0 {
		indexKey = key
	}
	return &Cipher{aead: aead, indexKey: indexKey}, nil
}

// NewCipherFromBase64 配置里的 key 都是 base64
func NewCipherFromBase64(key, indexKey string) (*Cipher, error) {
	k, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, err
	}
	var ik []byte
	if indexKey != "" {
		if ik, err = base64.StdEncoding.DecodeString(indexKey); err != nil {
			return nil, err
		}
	}
	return NewCipher(k, ik)
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// BlindIndex 确定性摘要，同一明文永远得到同一个值
func (c *Cipher) BlindIndex(plaintext string) string {
	m := hmac.New(sha256.New, c.indexKey)
	m.Write([]byte(plaintext))
	return hex.EncodeToString(m.Sum(nil))
}
