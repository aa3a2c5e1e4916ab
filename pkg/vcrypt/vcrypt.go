// Package vcrypt encrypts the per-user Gemini API key at rest.
//
// Envelopes are hex(IV || AES-256-CBC(PKCS#7(plaintext))). The format is
// stable: rows written by earlier deployments must keep decrypting.
package vcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/localvakil/vakil/pkg/verr"
)

const (
	// KeySize is the AES-256 key length. Longer master keys are truncated.
	KeySize = 32

	ivSize = aes.BlockSize
)

var (
	ErrKeyTooShort = errors.New("vcrypt: key must be at least 32 bytes")
	ErrBadPadding  = errors.New("vcrypt: invalid padding")
)

// Encrypter is the capability handed to code that stores credentials.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Decrypter is the capability handed to the chat coordinator only.
type Decrypter interface {
	Decrypt(envelope string) (string, error)
}

func cipherKey(key []byte) ([]byte, error) {
	if len(key) < KeySize {
		return nil, verr.New(verr.CodeConfiguration, ErrKeyTooShort)
	}
	return key[:KeySize], nil
}

// Encrypt seals plaintext under key and returns the hex envelope.
func Encrypt(plaintext string, key []byte) (string, error) {
	k, err := cipherKey(key)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(k)
	if err != nil {
		return "", verr.New(verr.CodeEncryptionFailure, err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", verr.New(verr.CodeEncryptionFailure, fmt.Errorf("generating iv: %w", err))
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, ivSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[ivSize:], padded)

	return hex.EncodeToString(out), nil
}

// Decrypt opens an envelope produced by Encrypt.
func Decrypt(envelope string, key []byte) (string, error) {
	k, err := cipherKey(key)
	if err != nil {
		return "", err
	}

	raw, err := hex.DecodeString(envelope)
	if err != nil {
		return "", verr.New(verr.CodeMalformedCiphertext, fmt.Errorf("decoding envelope: %w", err))
	}
	if len(raw) < ivSize {
		return "", verr.Errorf(verr.CodeMalformedCiphertext, "envelope is %d bytes, shorter than the iv", len(raw))
	}

	iv, body := raw[:ivSize], raw[ivSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", verr.Errorf(verr.CodeDecryptionFailure, "ciphertext length %d is not a positive multiple of the block size", len(body))
	}

	block, err := aes.NewCipher(k)
	if err != nil {
		return "", verr.New(verr.CodeDecryptionFailure, err)
	}

	plain := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, body)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return "", verr.New(verr.CodeDecryptionFailure, err)
	}
	return string(plain), nil
}

func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
