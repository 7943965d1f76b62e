package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize  = 32
	seedSize = 32
)

// keyInfo is the HKDF context string binding derived keys to this store.
const keyInfo = "playlist-store"

// hashPin derives the PIN hash used both for verification and as associated
// data on encrypt/decrypt. The device salt makes the hash install-specific.
func hashPin(pin, deviceSalt string) []byte {
	sum := sha512.Sum512([]byte(pin + "-" + deviceSalt))
	return sum[:]
}

// deriveKey expands the persisted random seed into the process-wide AEAD key.
// One key serves every record; per-playlist separation comes only from the
// PIN hash used as associated data.
func deriveKey(seed []byte, deviceSalt string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, []byte(deviceSalt), []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	return gcm, nil
}

// seal encrypts plaintext under the store key, binding it to the given
// associated data. The random nonce is prepended to the ciphertext.
func seal(key, plaintext, associated []byte) ([]byte, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, associated), nil
}

// open decrypts a seal output. A wrong PIN changes the associated data and
// fails authentication; that failure is reported as ErrPinInvalid.
func open(key, sealed, associated []byte) ([]byte, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: truncated record", ErrPinInvalid)
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, associated)
	if err != nil {
		return nil, ErrPinInvalid
	}
	return plaintext, nil
}
