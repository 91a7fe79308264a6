// Package shamir implements m-of-n secret sharing over GF(2^8).
//
// Each byte of the secret is split independently: a fresh random polynomial
// of degree t-1 with the secret byte as constant term is evaluated at the
// non-zero indices 1..n. Any t shares recover the byte by Lagrange
// interpolation at zero; fewer than t shares carry no information about it.
package shamir

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrEmptySecret      = errors.New("shamir: secret must not be empty")
	ErrThresholdTooLow  = errors.New("shamir: threshold must be at least 2")
	ErrThresholdTooHigh = errors.New("shamir: threshold exceeds share count")
	ErrTooManyShares    = errors.New("shamir: at most 255 shares are supported")
	ErrTooFewShares     = errors.New("shamir: at least 2 shares are required to combine")
	ErrDuplicateIndex   = errors.New("shamir: duplicate share index")
	ErrLengthMismatch   = errors.New("shamir: shares have differing lengths")
)

// Share is one fragment of a split secret. Index is 1-based and never zero;
// the zero point is where the secret itself sits.
type Share struct {
	Index byte
	Data  []byte
}

// Log/antilog tables for GF(2^8) under the 0x11B reduction polynomial,
// generated by 0x03. The generator's multiplicative order must be the full
// 255: a smaller-order element would silently shrink the field and break
// interpolation for some index sets.
var (
	expTable [255]byte
	logTable [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		expTable[i] = byte(x)
		logTable[byte(x)] = byte(i)
		// multiply by the generator 0x03: x*2 + x, reduced mod 0x11B
		x2 := x << 1
		if x2 >= 0x100 {
			x2 ^= 0x11b
		}
		x = x2 ^ x
	}
	if x != 1 {
		panic("shamir: generator 0x03 does not have order 255")
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[(int(logTable[a])+int(logTable[b]))%255]
}

func gfDiv(a, b byte) byte {
	if b == 0 {
		panic("shamir: division by zero")
	}
	if a == 0 {
		return 0
	}
	return expTable[(int(logTable[a])-int(logTable[b])+255)%255]
}

// evalPoly evaluates the polynomial with the given coefficients (constant
// term first) at x, using Horner's rule. Addition in GF(2^8) is XOR.
func evalPoly(coeffs []byte, x byte) byte {
	acc := byte(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc = gfMul(acc, x) ^ coeffs[i]
	}
	return acc
}

// Engine splits and combines secrets. Randomness for the polynomial
// coefficients comes from the injected reader so tests can be deterministic.
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

// Split divides secret into n shares such that any t of them reconstruct it.
func (e *Engine) Split(secret []byte, n, t int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if t < 2 {
		return nil, ErrThresholdTooLow
	}
	if t > n {
		return nil, ErrThresholdTooHigh
	}
	if n > 255 {
		return nil, ErrTooManyShares
	}

	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{Index: byte(i + 1), Data: make([]byte, len(secret))}
	}

	coeffs := make([]byte, t)
	for pos, b := range secret {
		coeffs[0] = b
		if _, err := io.ReadFull(e.rand, coeffs[1:]); err != nil {
			return nil, fmt.Errorf("shamir: reading randomness: %v", err)
		}
		for i := range shares {
			shares[i].Data[pos] = evalPoly(coeffs, shares[i].Index)
		}
	}
	// The polynomial coefficients are secret material; drop them eagerly.
	for i := range coeffs {
		coeffs[i] = 0
	}
	return shares, nil
}

// Combine reconstructs the secret from t or more shares via Lagrange
// interpolation at zero. The shares may arrive in any order.
func (e *Engine) Combine(shares []Share) ([]byte, error) {
	if len(shares) < 2 {
		return nil, ErrTooFewShares
	}
	length := len(shares[0].Data)
	if length == 0 {
		return nil, ErrEmptySecret
	}
	seen := make(map[byte]struct{}, len(shares))
	for _, s := range shares {
		if s.Index == 0 {
			return nil, fmt.Errorf("shamir: share index must be non-zero")
		}
		if _, dup := seen[s.Index]; dup {
			return nil, ErrDuplicateIndex
		}
		seen[s.Index] = struct{}{}
		if len(s.Data) != length {
			return nil, ErrLengthMismatch
		}
	}

	secret := make([]byte, length)
	for pos := 0; pos < length; pos++ {
		var acc byte
		for i, si := range shares {
			// basis_i(0) = Π_{j≠i} x_j / (x_j - x_i); subtraction is XOR.
			basis := byte(1)
			for j, sj := range shares {
				if j == i {
					continue
				}
				basis = gfMul(basis, gfDiv(sj.Index, sj.Index^si.Index))
			}
			acc ^= gfMul(si.Data[pos], basis)
		}
		secret[pos] = acc
	}
	return secret, nil
}

// EncodedShare is the transport form of a Share.
type EncodedShare struct {
	Index int    `json:"index"`
	Data  string `json:"data"` // base64
}

// EncodeShare serializes a share for transport.
func EncodeShare(s Share) ([]byte, error) {
	if s.Index == 0 {
		return nil, fmt.Errorf("shamir: share index must be non-zero")
	}
	return json.Marshal(EncodedShare{
		Index: int(s.Index),
		Data:  base64.StdEncoding.EncodeToString(s.Data),
	})
}

// DecodeShare parses the transport form of a share.
func DecodeShare(raw []byte) (Share, error) {
	var enc EncodedShare
	if err := json.Unmarshal(raw, &enc); err != nil {
		return Share{}, fmt.Errorf("shamir: decoding share: %v", err)
	}
	if enc.Index < 1 || enc.Index > 255 {
		return Share{}, fmt.Errorf("shamir: share index %d out of range 1..255", enc.Index)
	}
	data, err := base64.StdEncoding.DecodeString(enc.Data)
	if err != nil {
		return Share{}, fmt.Errorf("shamir: decoding share data: %v", err)
	}
	if len(data) == 0 {
		return Share{}, ErrEmptySecret
	}
	return Share{Index: byte(enc.Index), Data: data}, nil
}

// GenerateShareCommitment returns a hash-based proof of possession for a
// share. It binds the index to the payload so shares cannot be swapped
// between slots. This is independent of the Feldman commitments used by the
// threshold signature scheme.
func GenerateShareCommitment(s Share) []byte {
	h := sha256.New()
	h.Write([]byte{s.Index})
	h.Write(s.Data)
	return h.Sum(nil)
}

// VerifyShareCommitment reports whether commitment matches the share.
func VerifyShareCommitment(s Share, commitment []byte) bool {
	expected := GenerateShareCommitment(s)
	return subtle.ConstantTimeCompare(expected, commitment) == 1
}
