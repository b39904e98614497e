package myjd

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// The remote API derives all keys from the account credentials. Each secret
// is 32 bytes: the first half is the AES-CBC IV, the second half the key.
// Every session token rotates the encryption tokens forward by hashing the
// previous secret with the raw token bytes.

func loginSecret(email, password string) []byte {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + password + "server"))
	return sum[:]
}

func deviceSecret(email, password string) []byte {
	sum := sha256.Sum256([]byte(strings.ToLower(email) + password + "device"))
	return sum[:]
}

func updateToken(secret []byte, sessionToken string) ([]byte, error) {
	raw, err := hex.DecodeString(sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session token: %w", err)
	}

	h := sha256.New()
	h.Write(secret)
	h.Write(raw)

	return h.Sum(nil), nil
}

// sign computes the request signature over the full query path.
func sign(secret []byte, data string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))

	return hex.EncodeToString(mac.Sum(nil))
}

// encrypt seals a JSON payload with AES-128-CBC and PKCS#7 padding, then
// base64-encodes it for transport.
func encrypt(secret, plaintext []byte) (string, error) {
	iv, key := secret[:16], secret[16:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}

	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+padLen)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// decrypt opens a base64 AES-128-CBC response body.
func decrypt(secret []byte, body []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.Trim(string(bytes.TrimSpace(body)), `"`))
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("malformed encrypted response of %d bytes", len(data))
	}

	iv, key := secret[:16], secret[16:]

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	padLen := int(out[len(out)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(out) {
		return nil, fmt.Errorf("invalid response padding")
	}

	return out[:len(out)-padLen], nil
}
