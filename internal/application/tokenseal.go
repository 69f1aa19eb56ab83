package application

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidSealedToken = errors.New("invalid sealed token format")
	ErrSealOpenFailed     = errors.New("sealed token could not be opened")
)

type SealParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
}

var DefaultSealParams = SealParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
}

// SealToken encrypts a credential token for storage at rest. The key is
// derived from the state secret with argon2id and the token is sealed with
// ChaCha20-Poly1305. The output is self-describing so parameters can change
// without invalidating previously sealed tokens.
func SealToken(secret, token string, params SealParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nil, nonce, []byte(token), nil)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Nonce := base64.RawStdEncoding.EncodeToString(nonce)
	b64Sealed := base64.RawStdEncoding.EncodeToString(sealed)

	// Format is $roomseal$v=19$m=...,t=...,p=...$salt$nonce$ciphertext
	format := "$roomseal$v=%d$m=%d,t=%d,p=%d$%s$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Nonce, b64Sealed), nil
}

// OpenToken decrypts a token previously produced by SealToken. A wrong secret
// or tampered payload returns ErrSealOpenFailed.
func OpenToken(secret, sealed string) (string, error) {
	parts := strings.Split(sealed, "$")
	if len(parts) != 7 {
		return "", ErrInvalidSealedToken
	}
	if parts[1] != "roomseal" {
		return "", ErrInvalidSealedToken
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return "", ErrInvalidSealedToken
	}
	if version != argon2.Version {
		return "", ErrInvalidSealedToken
	}

	var params SealParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return "", ErrInvalidSealedToken
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return "", ErrInvalidSealedToken
	}
	nonce, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return "", ErrInvalidSealedToken
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(parts[6])
	if err != nil {
		return "", ErrInvalidSealedToken
	}

	key := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", ErrInvalidSealedToken
	}

	opened, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrSealOpenFailed
	}
	return string(opened), nil
}
