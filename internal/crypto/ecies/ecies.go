// Package ecies implements hybrid public-key encryption over secp256k1.
//
// Every call draws a fresh ephemeral key pair, performs ECDH against the
// recipient, and derives an AES-256-GCM key through HKDF-SHA256 with a fixed
// domain-separation salt. The ephemeral key is discarded after use, so a
// later compromise of the recipient's long-term key never exposes the
// randomness of past encryptions.
package ecies

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"
)

const (
	// Version is the newest ciphertext format this build understands.
	// Version 0 is the legacy format whose wire form omits the field.
	Version = 1

	// NonceSize is the AES-GCM nonce width in bytes (96 bits).
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag width in bytes (128 bits).
	TagSize = 16

	keySize = 32
)

var (
	// ErrAuthentication is returned when the AEAD tag does not verify. No
	// plaintext, partial or otherwise, is ever returned alongside it.
	ErrAuthentication = errors.New("ecies: message authentication failed")

	ErrEmptyPlaintext = errors.New("ecies: plaintext must not be empty")
	ErrNoRecipients   = errors.New("ecies: at least one recipient is required")
)

// UnsupportedVersionError reports a ciphertext newer than this build can
// decrypt. It carries the offending version so operators know what to
// upgrade to.
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("ecies: unsupported ciphertext version %d (max supported %d)", e.Version, Version)
}

// HKDF domain separation: fixed salt plus a purpose string, so keys derived
// here can never collide with other HKDF uses of the same ECDH secret.
var hkdfSalt = []byte("escrow-node.ecies.v1")

const hkdfPurpose = "symmetric-encryption-key"

// Ciphertext is the output of Encrypt. The tag is carried separately from
// the ciphertext bytes; both widths are fixed.
type Ciphertext struct {
	Version      int
	EphemeralPub []byte // 65-byte uncompressed secp256k1 point
	Nonce        []byte
	Data         []byte
	Tag          []byte
}

// SymmetricCiphertext is an AEAD envelope under a caller-provided key. It is
// the shared payload half of multi-recipient encryption and is also used for
// the escrow metadata itself.
type SymmetricCiphertext struct {
	Nonce []byte
	Data  []byte
	Tag   []byte
}

// Engine performs ECIES operations. Randomness (ephemeral keys, nonces,
// data-encryption keys) comes from the injected reader; production uses
// crypto/rand, tests may supply a deterministic source.
type Engine struct {
	rand io.Reader
}

// New returns an Engine drawing randomness from crypto/rand.
func New() *Engine {
	return &Engine{rand: rand.Reader}
}

// NewWithRand returns an Engine drawing randomness from r.
func NewWithRand(r io.Reader) *Engine {
	return &Engine{rand: r}
}

// GenerateKeyPair creates a fresh secp256k1 key pair. The private key never
// leaves the caller's process through this package.
func (e *Engine) GenerateKeyPair() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKeyFromRand(e.rand)
}

// PublicKeyFromPrivate recovers the public half of a key pair.
func PublicKeyFromPrivate(priv *secp256k1.PrivateKey) *secp256k1.PublicKey {
	return priv.PubKey()
}

// sharedSecret computes the ECDH point priv*pub and returns its uncompressed
// encoding with the point-format prefix byte stripped, leaving X||Y.
func sharedSecret(priv *secp256k1.PrivateKey, pub *secp256k1.PublicKey) []byte {
	var point, result secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()
	shared := secp256k1.NewPublicKey(&result.X, &result.Y)
	return shared.SerializeUncompressed()[1:]
}

func deriveKey(secret []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, secret, hkdfSalt, []byte(hkdfPurpose))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("ecies: deriving key: %v", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ecies: creating cipher: %v", err)
	}
	return cipher.NewGCM(block)
}

// SealSymmetric encrypts plaintext under a caller-provided 32-byte key with
// a fresh random nonce.
func (e *Engine) SealSymmetric(key, plaintext []byte) (*SymmetricCiphertext, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("ecies: key must be %d bytes, got %d", keySize, len(key))
	}
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("ecies: reading nonce: %v", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return &SymmetricCiphertext{
		Nonce: nonce,
		Data:  sealed[:len(sealed)-TagSize],
		Tag:   sealed[len(sealed)-TagSize:],
	}, nil
}

// OpenSymmetric authenticates and decrypts a SymmetricCiphertext.
func (e *Engine) OpenSymmetric(key []byte, ct *SymmetricCiphertext) ([]byte, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("ecies: key must be %d bytes, got %d", keySize, len(key))
	}
	if len(ct.Nonce) != NonceSize {
		return nil, fmt.Errorf("ecies: nonce must be %d bytes, got %d", NonceSize, len(ct.Nonce))
	}
	if len(ct.Tag) != TagSize {
		return nil, fmt.Errorf("ecies: tag must be %d bytes, got %d", TagSize, len(ct.Tag))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ct.Data)+TagSize)
	sealed = append(sealed, ct.Data...)
	sealed = append(sealed, ct.Tag...)
	plaintext, err := gcm.Open(nil, ct.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Encrypt encrypts plaintext to the recipient's public key.
func (e *Engine) Encrypt(pub *secp256k1.PublicKey, plaintext []byte) (*Ciphertext, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	ephemeral, err := secp256k1.GeneratePrivateKeyFromRand(e.rand)
	if err != nil {
		return nil, fmt.Errorf("ecies: generating ephemeral key: %v", err)
	}
	defer ephemeral.Zero()

	key, err := deriveKey(sharedSecret(ephemeral, pub))
	if err != nil {
		return nil, err
	}
	sym, err := e.SealSymmetric(key, plaintext)
	zero(key)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{
		Version:      Version,
		EphemeralPub: ephemeral.PubKey().SerializeUncompressed(),
		Nonce:        sym.Nonce,
		Data:         sym.Data,
		Tag:          sym.Tag,
	}, nil
}

// Decrypt recovers the plaintext of a Ciphertext encrypted to priv's public
// key. A forged or corrupted tag fails with ErrAuthentication. Versions up
// to the current one are accepted, including the implicit legacy version 0;
// anything newer fails with an UnsupportedVersionError.
func (e *Engine) Decrypt(priv *secp256k1.PrivateKey, ct *Ciphertext) ([]byte, error) {
	if ct.Version > Version {
		return nil, &UnsupportedVersionError{Version: ct.Version}
	}
	if ct.Version < 0 {
		return nil, fmt.Errorf("ecies: negative ciphertext version %d", ct.Version)
	}
	ephemeralPub, err := secp256k1.ParsePubKey(ct.EphemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ecies: parsing ephemeral public key: %v", err)
	}
	key, err := deriveKey(sharedSecret(priv, ephemeralPub))
	if err != nil {
		return nil, err
	}
	defer zero(key)
	return e.OpenSymmetric(key, &SymmetricCiphertext{Nonce: ct.Nonce, Data: ct.Data, Tag: ct.Tag})
}

// EncryptMulti encrypts plaintext once under a random data-encryption key
// and wraps that key to each recipient individually, so a large payload is
// never encrypted more than once. The returned key shares are positionally
// aligned with pubs.
func (e *Engine) EncryptMulti(pubs []*secp256k1.PublicKey, plaintext []byte) (*SymmetricCiphertext, []*Ciphertext, error) {
	if len(pubs) == 0 {
		return nil, nil, ErrNoRecipients
	}
	if len(plaintext) == 0 {
		return nil, nil, ErrEmptyPlaintext
	}
	dek := make([]byte, keySize)
	if _, err := io.ReadFull(e.rand, dek); err != nil {
		return nil, nil, fmt.Errorf("ecies: generating data-encryption key: %v", err)
	}
	defer zero(dek)

	shared, err := e.SealSymmetric(dek, plaintext)
	if err != nil {
		return nil, nil, err
	}
	wraps := make([]*Ciphertext, len(pubs))
	for i, pub := range pubs {
		wraps[i], err = e.Encrypt(pub, dek)
		if err != nil {
			return nil, nil, fmt.Errorf("ecies: wrapping key for recipient %d: %v", i, err)
		}
	}
	return shared, wraps, nil
}

// DecryptMulti recovers the shared payload using the caller's own wrapped
// key share.
func (e *Engine) DecryptMulti(priv *secp256k1.PrivateKey, shared *SymmetricCiphertext, keyShare *Ciphertext) ([]byte, error) {
	dek, err := e.Decrypt(priv, keyShare)
	if err != nil {
		return nil, err
	}
	defer zero(dek)
	if len(dek) != keySize {
		return nil, fmt.Errorf("ecies: wrapped key has %d bytes, want %d", len(dek), keySize)
	}
	return e.OpenSymmetric(dek, shared)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
