// Package client talks to a siashare server: it creates rooms, uploads
// encrypted files over the resumable-upload protocol and downloads them back
// with ranged, resumable requests. The server never sees a key.
package client

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize  = 16
	saltSize = 16

	readerTokenInfo = "siashare reader token"
	contentKeyInfo  = "siashare content key"

	// The passphrase is derived from a random key, so a low work factor suffices.
	scryptWorkFactor = 10
)

// Keychain holds a room's share key and salt and derives everything else
// from them: the reader token sent to the server and the passphrase that
// encrypts file contents and the manifest.
type Keychain struct {
	key  []byte
	salt []byte
}

// NewKeychain generates a fresh share key and salt.
func NewKeychain() (*Keychain, error) {
	key := make([]byte, keySize)
	salt := make([]byte, saltSize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return &Keychain{key: key, salt: salt}, nil
}

// ParseKeychain rebuilds a keychain from the key in a share link and the
// salt the server returns for the room.
func ParseKeychain(keyB64, saltB64 string) (*Keychain, error) {
	key, err := base64.RawURLEncoding.DecodeString(keyB64)
	if err != nil || len(key) != keySize {
		return nil, errors.New("malformed share key")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil || len(salt) != saltSize {
		return nil, errors.New("malformed room salt")
	}
	return &Keychain{key: key, salt: salt}, nil
}

// KeyB64 is the share key as it appears in a share link.
func (k *Keychain) KeyB64() string { return base64.RawURLEncoding.EncodeToString(k.key) }

// SaltB64 is the salt as stored by the server.
func (k *Keychain) SaltB64() string { return base64.StdEncoding.EncodeToString(k.salt) }

func (k *Keychain) derive(info string, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.key, k.salt, []byte(info)), out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReaderToken is the credential readers present to the server.
func (k *Keychain) ReaderToken() (string, error) {
	b, err := k.derive(readerTokenInfo, 16)
	if err != nil {
		return "", fmt.Errorf("deriving reader token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (k *Keychain) passphrase() (string, error) {
	b, err := k.derive(contentKeyInfo, 32)
	if err != nil {
		return "", fmt.Errorf("deriving content key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Encrypt copies r to w as age ciphertext.
func (k *Keychain) Encrypt(w io.Writer, r io.Reader) error {
	pass, err := k.passphrase()
	if err != nil {
		return err
	}
	recipient, err := age.NewScryptRecipient(pass)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(scryptWorkFactor)

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Decrypt copies age ciphertext from r to w as plaintext.
func (k *Keychain) Decrypt(w io.Writer, r io.Reader) error {
	pass, err := k.passphrase()
	if err != nil {
		return err
	}
	identity, err := age.NewScryptIdentity(pass)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}
	plain, err := age.Decrypt(r, identity)
	if err != nil {
		return fmt.Errorf("opening ciphertext: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}

// SealMetadata encrypts a manifest into the opaque string stored on the server.
func (k *Keychain) SealMetadata(plaintext []byte) (string, error) {
	var buf bytes.Buffer
	if err := k.Encrypt(&buf, bytes.NewReader(plaintext)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// OpenMetadata reverses SealMetadata.
func (k *Keychain) OpenMetadata(sealed string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	var buf bytes.Buffer
	if err := k.Decrypt(&buf, bytes.NewReader(ciphertext)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
