// Package tbls implements Feldman-verifiable key sharing and threshold BLS
// signatures over BLS12-381.
//
// Secret shares live in the scalar field Fr; Feldman commitments and public
// keys are compressed G1 points (48 bytes); signatures are compressed G2
// points (96 bytes). Any t-subset of partial signatures aggregates, via
// Lagrange-weighted summation in G2, into the same signature the master
// secret would have produced, and that signature verifies against the
// aggregated public key like an ordinary BLS signature.
//
// Key generation here is dealer-based: one process samples the polynomial
// and sees every share. That is acceptable only when the dealer is trusted
// for the deployment's threat model; a dealer-less DKG is a different
// protocol and is not what this package provides.
package tbls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	blst "github.com/supranational/blst/bindings/go"
	"golang.org/x/crypto/hkdf"
)

const (
	// ScalarSize is the byte width of a big-endian Fr scalar.
	ScalarSize = 32
	// PointSizeG1 is the compressed G1 width (public keys, commitments).
	PointSizeG1 = 48
	// PointSizeG2 is the compressed G2 width (signatures).
	PointSizeG2 = 96
)

// Ciphersuite tag for hash-to-G2, matching the standard basic BLS scheme.
var signatureDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

var (
	ErrInvalidParams      = errors.New("tbls: invalid params")
	ErrInvalidPoint       = errors.New("tbls: invalid point")
	ErrInvalidScalar      = errors.New("tbls: invalid scalar")
	ErrInvalidShare       = errors.New("tbls: invalid share")
	ErrDuplicateSigner    = errors.New("tbls: duplicate signer index")
	ErrInsufficientShares = errors.New("tbls: not enough shares to reconstruct")
)

// KeyShare is one participant's slice of the master secret along with its
// own public key point.
type KeyShare struct {
	Index     int    `json:"index"`
	Secret    []byte `json:"secretShare"` // 32-byte big-endian Fr scalar
	PublicKey []byte `json:"publicKey"`   // compressed G1
}

// DKGOutput is the result of a key-sharing ceremony. Commitments has exactly
// Threshold entries; the first one doubles as the aggregated public key.
type DKGOutput struct {
	Threshold      int        `json:"threshold"`
	Total          int        `json:"totalParticipants"`
	Shares         []KeyShare `json:"shares"`
	GroupPublicKey []byte     `json:"aggregatedPublicKey"`
	Commitments    [][]byte   `json:"commitments"`
}

// PartialSignature is one signer's contribution on a message.
type PartialSignature struct {
	Index     int    `json:"index"`
	Signature []byte `json:"signature"` // compressed G2
}

// ThresholdSignature is the Lagrange-weighted aggregate of t or more partial
// signatures.
type ThresholdSignature struct {
	Signature     []byte `json:"signature"`
	SignerIndices []int  `json:"signerIndices"`
}

// Engine performs threshold BLS operations. Randomness comes from the
// injected reader; production uses crypto/rand.
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

func randScalar(r io.Reader) (*blst.Scalar, error) {
	var ikm [32]byte
	if _, err := io.ReadFull(r, ikm[:]); err != nil {
		return nil, err
	}
	sk := blst.KeyGen(ikm[:], nil)
	if sk == nil {
		return nil, errors.New("tbls: bad randomness")
	}
	return sk, nil
}

func scalarFromInt(v int) *blst.Scalar {
	var buf [ScalarSize]byte
	binary.BigEndian.PutUint64(buf[len(buf)-8:], uint64(v))
	var s blst.Scalar
	_ = s.FromBEndian(buf[:])
	return &s
}

func parseScalar(b []byte) (*blst.Scalar, error) {
	if len(b) != ScalarSize {
		return nil, ErrInvalidScalar
	}
	var s blst.Scalar
	if s.Deserialize(b) == nil {
		return nil, ErrInvalidScalar
	}
	return &s, nil
}

func evalPolyAt(coeffs []*blst.Scalar, x int) (*blst.Scalar, error) {
	if len(coeffs) == 0 || x <= 0 {
		return nil, ErrInvalidParams
	}
	xs := scalarFromInt(x)
	acc := scalarFromInt(0)
	pow := scalarFromInt(1)
	for _, c := range coeffs {
		term, ok := c.Mul(pow)
		if !ok {
			return nil, ErrInvalidScalar
		}
		if _, ok := acc.AddAssign(term); !ok {
			return nil, ErrInvalidScalar
		}
		next, ok := pow.Mul(xs)
		if !ok {
			return nil, ErrInvalidScalar
		}
		pow = next
	}
	return acc, nil
}

// lagrangeAtZero computes the interpolation coefficient λ_i(0) for the share
// at index i within the given index set. This is the same index-based
// interpolation-at-zero formula the byte-level Shamir scheme uses, lifted to
// the pairing curve's scalar field.
func lagrangeAtZero(i int, indices []int) (*blst.Scalar, error) {
	if i <= 0 || len(indices) == 0 {
		return nil, ErrInvalidParams
	}
	xi := scalarFromInt(i)
	num := scalarFromInt(1)
	den := scalarFromInt(1)
	zero := scalarFromInt(0)
	for _, j := range indices {
		if j == i {
			continue
		}
		if j <= 0 {
			return nil, ErrInvalidParams
		}
		xj := scalarFromInt(j)
		neg, ok := zero.Sub(xj)
		if !ok {
			return nil, ErrInvalidScalar
		}
		num, ok = num.Mul(neg)
		if !ok {
			return nil, ErrInvalidScalar
		}
		diff, ok := xi.Sub(xj)
		if !ok {
			return nil, ErrInvalidScalar
		}
		den, ok = den.Mul(diff)
		if !ok {
			return nil, ErrInvalidScalar
		}
	}
	out, ok := num.Mul(den.Inverse())
	if !ok {
		return nil, ErrInvalidScalar
	}
	return out, nil
}

func g1FromScalar(s *blst.Scalar) []byte {
	return blst.P1Generator().Mult(s).ToAffine().Compress()
}

// GenerateKeyShares samples a degree-(t-1) polynomial over Fr and deals one
// share per participant at the 1-based indices 1..n. When masterSecret is
// nil a fresh random constant term is drawn; otherwise the supplied 32-byte
// scalar becomes the shared secret. The caller must not let the returned
// plaintext shares persist beyond distribution.
func (e *Engine) GenerateKeyShares(t, n int, masterSecret []byte) (*DKGOutput, error) {
	if t < 1 || n < 1 || t > n {
		return nil, ErrInvalidParams
	}
	coeffs := make([]*blst.Scalar, t)
	var err error
	if masterSecret != nil {
		coeffs[0], err = parseScalar(masterSecret)
		if err != nil {
			return nil, err
		}
	} else {
		coeffs[0], err = randScalar(e.rand)
		if err != nil {
			return nil, err
		}
	}
	for j := 1; j < t; j++ {
		coeffs[j], err = randScalar(e.rand)
		if err != nil {
			return nil, err
		}
	}

	commitments := make([][]byte, t)
	for j, c := range coeffs {
		commitments[j] = g1FromScalar(c)
	}

	shares := make([]KeyShare, n)
	for i := 1; i <= n; i++ {
		si, err := evalPolyAt(coeffs, i)
		if err != nil {
			return nil, err
		}
		shares[i-1] = KeyShare{
			Index:     i,
			Secret:    si.Serialize(),
			PublicKey: g1FromScalar(si),
		}
	}

	return &DKGOutput{
		Threshold:      t,
		Total:          n,
		Shares:         shares,
		GroupPublicKey: commitments[0],
		Commitments:    commitments,
	}, nil
}

// SharePublicKey derives the public key of the share at the given index from
// the Feldman commitments alone: Σ C_j · index^j.
func SharePublicKey(commitments [][]byte, index int) ([]byte, error) {
	if index <= 0 || len(commitments) == 0 {
		return nil, ErrInvalidParams
	}
	xs := scalarFromInt(index)
	pow := scalarFromInt(1)
	acc := new(blst.P1)
	for _, cBytes := range commitments {
		var aff blst.P1Affine
		if aff.Uncompress(cBytes) == nil {
			return nil, ErrInvalidPoint
		}
		var p blst.P1
		p.FromAffine(&aff)
		p.MultAssign(pow)
		acc.AddAssign(&p)
		next, ok := pow.Mul(xs)
		if !ok {
			return nil, ErrInvalidScalar
		}
		pow = next
	}
	return acc.ToAffine().Compress(), nil
}

// VerifyShare checks a share against the published Feldman commitments: the
// share's G1 encoding must equal the commitment sum weighted by powers of
// its index.
func VerifyShare(share KeyShare, commitments [][]byte) (bool, error) {
	s, err := parseScalar(share.Secret)
	if err != nil {
		return false, err
	}
	expected, err := SharePublicKey(commitments, share.Index)
	if err != nil {
		return false, err
	}
	actual := g1FromScalar(s)
	if len(actual) != len(expected) {
		return false, nil
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return false, nil
		}
	}
	return true, nil
}

// SignPartial produces one signer's contribution: the message hashed to G2
// and multiplied by the signer's secret scalar.
func SignPartial(share KeyShare, message []byte) (*PartialSignature, error) {
	s, err := parseScalar(share.Secret)
	if err != nil {
		return nil, err
	}
	if share.Index <= 0 {
		return nil, ErrInvalidShare
	}
	sig := new(blst.P2Affine).Sign(s, message, signatureDST)
	if sig == nil {
		return nil, ErrInvalidShare
	}
	return &PartialSignature{Index: share.Index, Signature: sig.Compress()}, nil
}

// VerifyPartialSignature checks a partial signature against the signer's own
// public key point (from the share or derived via SharePublicKey).
func VerifyPartialSignature(publicKey, message []byte, partial *PartialSignature) (bool, error) {
	if partial == nil || len(publicKey) != PointSizeG1 || len(partial.Signature) != PointSizeG2 {
		return false, ErrInvalidParams
	}
	var pkAff blst.P1Affine
	if pkAff.Uncompress(publicKey) == nil {
		return false, ErrInvalidPoint
	}
	var sigAff blst.P2Affine
	if sigAff.Uncompress(partial.Signature) == nil {
		return false, ErrInvalidPoint
	}
	return sigAff.Verify(true, &pkAff, true, message, signatureDST), nil
}

// AggregateSignatures combines partial signatures into a single threshold
// signature via Lagrange-weighted summation in G2. Duplicate signer indices
// are rejected; whether enough distinct signers contributed is decided by
// final verification, not here, so an undersized aggregate simply fails to
// verify.
func AggregateSignatures(partials []*PartialSignature) (*ThresholdSignature, error) {
	if len(partials) == 0 {
		return nil, ErrInvalidParams
	}
	indices := make([]int, 0, len(partials))
	seen := make(map[int]struct{}, len(partials))
	for _, p := range partials {
		if p == nil || p.Index <= 0 {
			return nil, ErrInvalidParams
		}
		if _, dup := seen[p.Index]; dup {
			return nil, ErrDuplicateSigner
		}
		seen[p.Index] = struct{}{}
		indices = append(indices, p.Index)
	}

	acc := new(blst.P2)
	for _, p := range partials {
		coeff, err := lagrangeAtZero(p.Index, indices)
		if err != nil {
			return nil, err
		}
		var aff blst.P2Affine
		if aff.Uncompress(p.Signature) == nil {
			return nil, ErrInvalidPoint
		}
		var term blst.P2
		term.FromAffine(&aff)
		term.MultAssign(coeff)
		acc.AddAssign(&term)
	}
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	return &ThresholdSignature{
		Signature:     acc.ToAffine().Compress(),
		SignerIndices: sorted,
	}, nil
}

// VerifyThresholdSignature verifies an aggregated signature against the
// aggregated public key, exactly like an ordinary BLS signature.
func VerifyThresholdSignature(groupPublicKey, message []byte, sig *ThresholdSignature) (bool, error) {
	if sig == nil || len(groupPublicKey) != PointSizeG1 || len(sig.Signature) != PointSizeG2 {
		return false, ErrInvalidParams
	}
	var pkAff blst.P1Affine
	if pkAff.Uncompress(groupPublicKey) == nil {
		return false, ErrInvalidPoint
	}
	var sigAff blst.P2Affine
	if sigAff.Uncompress(sig.Signature) == nil {
		return false, ErrInvalidPoint
	}
	return sigAff.Verify(true, &pkAff, true, message, signatureDST), nil
}

// ReconstructSecret recovers the master secret from t or more shares by
// Lagrange interpolation at zero. Doing this routinely defeats threshold
// custody; callers are expected to gate it behind strict authorization.
func ReconstructSecret(shares []KeyShare, t int) ([]byte, error) {
	if t < 1 {
		return nil, ErrInvalidParams
	}
	if len(shares) < t {
		return nil, ErrInsufficientShares
	}
	sorted := append([]KeyShare(nil), shares...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	sorted = sorted[:t]

	indices := make([]int, 0, len(sorted))
	seen := make(map[int]struct{}, len(sorted))
	for _, s := range sorted {
		if s.Index <= 0 {
			return nil, ErrInvalidShare
		}
		if _, dup := seen[s.Index]; dup {
			return nil, ErrDuplicateSigner
		}
		seen[s.Index] = struct{}{}
		indices = append(indices, s.Index)
	}

	acc := scalarFromInt(0)
	for _, s := range sorted {
		val, err := parseScalar(s.Secret)
		if err != nil {
			return nil, err
		}
		coeff, err := lagrangeAtZero(s.Index, indices)
		if err != nil {
			return nil, err
		}
		term, ok := val.Mul(coeff)
		if !ok {
			return nil, ErrInvalidScalar
		}
		if _, ok := acc.AddAssign(term); !ok {
			return nil, ErrInvalidScalar
		}
	}
	return acc.Serialize(), nil
}

// Viewing-key helpers: a shared or reconstructed scalar acts as a
// key-encryption key for an AEAD-protected payload.

var viewingKeySalt = []byte("escrow-node.tbls.v1")

const viewingKeyPurpose = "viewing-key-encryption"

func viewingKeyAEAD(secret []byte) (cipher.AEAD, error) {
	if len(secret) != ScalarSize {
		return nil, ErrInvalidScalar
	}
	kdf := hkdf.New(sha256.New, secret, viewingKeySalt, []byte(viewingKeyPurpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("tbls: deriving key-encryption key: %v", err)
	}
	block, err := aes.NewCipher(key)
	for i := range key {
		key[i] = 0
	}
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptViewingKey seals payload under an AEAD key derived from the shared
// scalar. The output is nonce||ciphertext||tag.
func (e *Engine) EncryptViewingKey(secret, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrInvalidParams
	}
	gcm, err := viewingKeyAEAD(secret)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("tbls: reading nonce: %v", err)
	}
	return gcm.Seal(nonce, nonce, payload, nil), nil
}

// DecryptViewingKey reverses EncryptViewingKey. A tampered blob fails
// without yielding any plaintext.
func DecryptViewingKey(secret, blob []byte) ([]byte, error) {
	gcm, err := viewingKeyAEAD(secret)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, ErrInvalidParams
	}
	nonce, sealed := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	payload, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.New("tbls: viewing key payload authentication failed")
	}
	return payload, nil
}
