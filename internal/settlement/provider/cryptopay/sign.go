package cryptopay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Sign 签名串: timestamp \n nonce \n body \n，HMAC-SHA512 大写 hex
func Sign(secret, timestamp, nonce string, body []byte) string {
	m := hmac.New(sha512.New, []byte(secret))
	m.Write([]byte(timestamp))
	m.Write([]byte("\n"))
	m.Write([]byte(nonce))
	m.Write([]byte("\n"))
	m.Write(body)
	m.Write([]byte("\n"))
	return strings.ToUpper(hex.EncodeToString(m.Sum(nil)))
}

func verify(secret, timestamp, nonce string, body []byte, signature string) bool {
	expected := Sign(secret, timestamp, nonce, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToUpper(signature)))
}
