package shamir

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecret(t *testing.T, n int) []byte {
	t.Helper()
	secret := make([]byte, n)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestSplitCombineRoundTrip(t *testing.T) {
	engine := New()
	for _, tc := range []struct {
		n, t, size int
	}{
		{3, 2, 16},
		{5, 3, 32},
		{10, 7, 1},
		{255, 254, 8},
	} {
		secret := randomSecret(t, tc.size)
		shares, err := engine.Split(secret, tc.n, tc.t)
		require.NoError(t, err)
		require.Len(t, shares, tc.n)

		recovered, err := engine.Combine(shares[:tc.t])
		require.NoError(t, err)
		assert.Equal(t, secret, recovered, "n=%d t=%d", tc.n, tc.t)
	}
}

// Scenario: a 32-byte secret split 3-of-5 must reconstruct identically from
// the subsets {1,3,5} and {2,4,5}.
func TestDisjointSubsetsAgree(t *testing.T) {
	engine := New()
	secret := randomSecret(t, 32)
	shares, err := engine.Split(secret, 5, 3)
	require.NoError(t, err)

	first, err := engine.Combine([]Share{shares[0], shares[2], shares[4]})
	require.NoError(t, err)
	second, err := engine.Combine([]Share{shares[1], shares[3], shares[4]})
	require.NoError(t, err)

	assert.Equal(t, secret, first)
	assert.Equal(t, first, second)
}

func TestCombineAnyOrder(t *testing.T) {
	engine := New()
	secret := randomSecret(t, 24)
	shares, err := engine.Split(secret, 5, 3)
	require.NoError(t, err)

	recovered, err := engine.Combine([]Share{shares[4], shares[1], shares[2]})
	require.NoError(t, err)
	assert.Equal(t, secret, recovered)
}

func TestCombineWithExtraShares(t *testing.T) {
	engine := New()
	secret := randomSecret(t, 16)
	shares, err := engine.Split(secret, 6, 3)
	require.NoError(t, err)

	// More than threshold shares must still interpolate to the secret.
	recovered, err := engine.Combine(shares)
	require.NoError(t, err)
	assert.Equal(t, secret, recovered)
}

// A single share of a 2-of-n split must carry zero information: across all
// 256 possible random coefficients, the share byte at a fixed index takes
// every field value exactly once, so observing it does not narrow down the
// secret at all.
func TestBelowThresholdSharesAreUniform(t *testing.T) {
	const secretByte = 0x5a
	counts := make(map[byte]int, 256)
	for coeff := 0; coeff < 256; coeff++ {
		// share at x=1 for polynomial secret + coeff*x
		y := evalPoly([]byte{secretByte, byte(coeff)}, 1)
		counts[y]++
	}
	require.Len(t, counts, 256, "share values must cover the whole field")
	for v, c := range counts {
		assert.Equal(t, 1, c, "value %d appears %d times", v, c)
	}
}

// The same uniformity must hold statistically for random splits of random
// secrets: a (t-1)-subset's bytes look like independent uniform noise.
func TestShareBytesLookRandom(t *testing.T) {
	engine := New()
	secret := []byte{0x00} // worst case: all-zero secret
	counts := make([]int, 256)
	const trials = 25600
	for i := 0; i < trials; i++ {
		shares, err := engine.Split(secret, 3, 3)
		require.NoError(t, err)
		counts[shares[0].Data[0]]++
	}
	// Expected 100 per bucket; allow a generous band.
	for v, c := range counts {
		assert.Greater(t, c, 30, "value %d badly underrepresented", v)
		assert.Less(t, c, 300, "value %d badly overrepresented", v)
	}
}

func TestSplitValidation(t *testing.T) {
	engine := New()
	secret := randomSecret(t, 8)

	_, err := engine.Split(nil, 5, 3)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = engine.Split(secret, 5, 1)
	assert.ErrorIs(t, err, ErrThresholdTooLow)

	_, err = engine.Split(secret, 3, 4)
	assert.ErrorIs(t, err, ErrThresholdTooHigh)

	_, err = engine.Split(secret, 256, 3)
	assert.ErrorIs(t, err, ErrTooManyShares)
}

func TestCombineValidation(t *testing.T) {
	engine := New()
	secret := randomSecret(t, 8)
	shares, err := engine.Split(secret, 4, 2)
	require.NoError(t, err)

	_, err = engine.Combine(shares[:1])
	assert.ErrorIs(t, err, ErrTooFewShares)

	_, err = engine.Combine([]Share{shares[0], shares[0]})
	assert.ErrorIs(t, err, ErrDuplicateIndex)

	short := Share{Index: shares[1].Index, Data: shares[1].Data[:4]}
	_, err = engine.Combine([]Share{shares[0], short})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = engine.Combine([]Share{{Index: 0, Data: shares[0].Data}, shares[1]})
	assert.Error(t, err)
}

func TestEncodeDecodeShare(t *testing.T) {
	engine := New()
	secret := randomSecret(t, 32)
	shares, err := engine.Split(secret, 3, 2)
	require.NoError(t, err)

	raw, err := EncodeShare(shares[0])
	require.NoError(t, err)

	decoded, err := DecodeShare(raw)
	require.NoError(t, err)
	assert.Equal(t, shares[0], decoded)
	assert.Equal(t, len(secret), len(decoded.Data))
}

func TestDecodeShareRejectsBadIndex(t *testing.T) {
	_, err := DecodeShare([]byte(`{"index":0,"data":"AAECAw=="}`))
	assert.Error(t, err)
	_, err = DecodeShare([]byte(`{"index":300,"data":"AAECAw=="}`))
	assert.Error(t, err)
}

func TestShareCommitment(t *testing.T) {
	engine := New()
	secret := randomSecret(t, 16)
	shares, err := engine.Split(secret, 3, 2)
	require.NoError(t, err)

	commitment := GenerateShareCommitment(shares[0])
	assert.True(t, VerifyShareCommitment(shares[0], commitment))

	// A commitment binds the index as well as the payload.
	swapped := Share{Index: shares[1].Index, Data: shares[0].Data}
	assert.False(t, VerifyShareCommitment(swapped, commitment))

	tampered := Share{Index: shares[0].Index, Data: append([]byte(nil), shares[0].Data...)}
	tampered.Data[0] ^= 0x01
	assert.False(t, VerifyShareCommitment(tampered, commitment))
}

func TestFieldTablesAreConsistent(t *testing.T) {
	// mul and div must be inverses over the nonzero field elements.
	for a := 1; a < 256; a++ {
		for _, b := range []byte{1, 2, 3, 0x53, 0xca, 0xff} {
			p := gfMul(byte(a), b)
			assert.Equal(t, byte(a), gfDiv(p, b))
		}
	}
}

func TestCombinedSecretMatchesByLength(t *testing.T) {
	engine := New()
	for _, size := range []int{1, 31, 32, 33, 1024} {
		secret := randomSecret(t, size)
		shares, err := engine.Split(secret, 4, 3)
		require.NoError(t, err)
		recovered, err := engine.Combine(shares[:3])
		require.NoError(t, err)
		require.True(t, bytes.Equal(secret, recovered), "size %d", size)
	}
}
