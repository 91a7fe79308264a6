package ecies

import (
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	for _, size := range []int{1, 15, 16, 40, 1024} {
		plaintext := make([]byte, size)
		_, err := rand.Read(plaintext)
		require.NoError(t, err)

		ct, err := engine.Encrypt(priv.PubKey(), plaintext)
		require.NoError(t, err)
		assert.Equal(t, Version, ct.Version)
		assert.Len(t, ct.Nonce, NonceSize)
		assert.Len(t, ct.Tag, TagSize)
		assert.Len(t, ct.EphemeralPub, 65)

		recovered, err := engine.Decrypt(priv, ct)
		require.NoError(t, err)
		assert.Equal(t, plaintext, recovered, "size %d", size)
	}
}

func TestEphemeralKeysDiffer(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	first, err := engine.Encrypt(priv.PubKey(), []byte("same message"))
	require.NoError(t, err)
	second, err := engine.Encrypt(priv.PubKey(), []byte("same message"))
	require.NoError(t, err)

	assert.NotEqual(t, first.EphemeralPub, second.EphemeralPub)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Data, second.Data)
}

func TestTamperDetection(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("dispute metadata that must stay intact")
	ct, err := engine.Encrypt(priv.PubKey(), plaintext)
	require.NoError(t, err)

	// Flipping any bit of the ciphertext must fail authentication.
	for i := 0; i < len(ct.Data); i++ {
		mutated := *ct
		mutated.Data = append([]byte(nil), ct.Data...)
		mutated.Data[i] ^= 0x80
		_, err := engine.Decrypt(priv, &mutated)
		assert.ErrorIs(t, err, ErrAuthentication, "data byte %d", i)
	}
	for i := 0; i < len(ct.Tag); i++ {
		mutated := *ct
		mutated.Tag = append([]byte(nil), ct.Tag...)
		mutated.Tag[i] ^= 0x01
		_, err := engine.Decrypt(priv, &mutated)
		assert.ErrorIs(t, err, ErrAuthentication, "tag byte %d", i)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	engine := New()
	alice, err := engine.GenerateKeyPair()
	require.NoError(t, err)
	mallory, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	ct, err := engine.Encrypt(alice.PubKey(), []byte("for alice only"))
	require.NoError(t, err)

	_, err = engine.Decrypt(mallory, ct)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestVersionHandling(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("legacy payload")
	ct, err := engine.Encrypt(priv.PubKey(), plaintext)
	require.NoError(t, err)

	// Explicit legacy version 0 decrypts identically to current.
	legacy := *ct
	legacy.Version = 0
	recovered, err := engine.Decrypt(priv, &legacy)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)

	// A version newer than supported fails and names the version.
	future := *ct
	future.Version = Version + 1
	_, err = engine.Decrypt(priv, &future)
	var vErr *UnsupportedVersionError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, Version+1, vErr.Version)
	assert.Contains(t, err.Error(), "version 2")
}

// Scenario: a 40-byte payload survives a round trip through the JSON wire
// form.
func TestWireFormRoundTrip(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	plaintext := make([]byte, 40)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	ct, err := engine.Encrypt(priv.PubKey(), plaintext)
	require.NoError(t, err)

	wire, err := json.Marshal(ct)
	require.NoError(t, err)

	var decoded Ciphertext
	require.NoError(t, json.Unmarshal(wire, &decoded))
	assert.Equal(t, *ct, decoded)

	recovered, err := engine.Decrypt(priv, &decoded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestWireFormOmitsAndDefaultsVersion(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	ct, err := engine.Encrypt(priv.PubKey(), []byte("payload"))
	require.NoError(t, err)

	// Current outputs carry an explicit version.
	wire, err := json.Marshal(ct)
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"version":1`)

	// A wire object without a version field is the legacy format 0.
	legacy := *ct
	legacy.Version = 0
	legacyWire, err := json.Marshal(&legacy)
	require.NoError(t, err)
	assert.NotContains(t, string(legacyWire), "version")

	var decoded Ciphertext
	require.NoError(t, json.Unmarshal(legacyWire, &decoded))
	assert.Equal(t, 0, decoded.Version)

	recovered, err := engine.Decrypt(priv, &decoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), recovered)
}

// Scenario: multi-recipient encryption to three keys; every recipient
// independently recovers the identical payload from the shared ciphertext
// plus its own key share.
func TestEncryptMulti(t *testing.T) {
	engine := New()
	payload := make([]byte, 512)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	privs := make([]*secp256k1.PrivateKey, 3)
	pubs := make([]*secp256k1.PublicKey, 3)
	for i := range privs {
		privs[i], err = engine.GenerateKeyPair()
		require.NoError(t, err)
		pubs[i] = privs[i].PubKey()
	}

	shared, wraps, err := engine.EncryptMulti(pubs, payload)
	require.NoError(t, err)
	require.Len(t, wraps, 3)

	for i, priv := range privs {
		recovered, err := engine.DecryptMulti(priv, shared, wraps[i])
		require.NoError(t, err, "recipient %d", i)
		assert.Equal(t, payload, recovered, "recipient %d", i)
	}

	// A recipient cannot open another recipient's wrap.
	_, err = engine.DecryptMulti(privs[0], shared, wraps[1])
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestEncryptMultiValidation(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)

	_, _, err = engine.EncryptMulti(nil, []byte("payload"))
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, _, err = engine.EncryptMulti([]*secp256k1.PublicKey{priv.PubKey()}, nil)
	assert.ErrorIs(t, err, ErrEmptyPlaintext)
}

func TestPublicKeyFromPrivate(t *testing.T) {
	engine := New()
	priv, err := engine.GenerateKeyPair()
	require.NoError(t, err)
	assert.Equal(t, priv.PubKey().SerializeUncompressed(), PublicKeyFromPrivate(priv).SerializeUncompressed())
}
