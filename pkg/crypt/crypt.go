// Package crypt encrypts archived payloads with AES-GCM under a
// passphrase-derived key. The output is the nonce followed by the sealed data.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32
	iterations = 4096
)

type Cipher struct {
	gcm cipher.AEAD
}

func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	dk := pbkdf2.Key([]byte(passphrase), nil, iterations, keyLength, sha1.New)
	c, err := aes.NewCipher(dk)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

func (c *Cipher) Encrypt(input io.Reader) (io.ReadSeeker, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	plain, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	out := c.gcm.Seal(nonce, nonce, plain, nil)
	return bytes.NewReader(out), nil
}

func (c *Cipher) Decrypt(input io.Reader) (io.ReadSeeker, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(input, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	sealed, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return bytes.NewReader(plain), nil
}
