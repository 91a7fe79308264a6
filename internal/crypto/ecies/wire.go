package ecies

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// wireCiphertext is the transport form of a Ciphertext. A missing version
// field means the legacy format 0, so current outputs always carry an
// explicit version while legacy inputs simply omit it.
type wireCiphertext struct {
	Version      *int   `json:"version,omitempty"`
	EphemeralPub string `json:"ephemeralPublicKey"`
	IV           string `json:"iv"`
	Ciphertext   string `json:"ciphertext"`
	AuthTag      string `json:"authTag"`
}

// MarshalJSON implements json.Marshaler.
func (ct *Ciphertext) MarshalJSON() ([]byte, error) {
	w := wireCiphertext{
		EphemeralPub: hex.EncodeToString(ct.EphemeralPub),
		IV:           hex.EncodeToString(ct.Nonce),
		Ciphertext:   hex.EncodeToString(ct.Data),
		AuthTag:      hex.EncodeToString(ct.Tag),
	}
	if ct.Version != 0 {
		v := ct.Version
		w.Version = &v
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ct *Ciphertext) UnmarshalJSON(raw []byte) error {
	var w wireCiphertext
	if err := json.Unmarshal(raw, &w); err != nil {
		return fmt.Errorf("ecies: decoding ciphertext: %v", err)
	}
	version := 0
	if w.Version != nil {
		version = *w.Version
	}
	ephemeral, err := hex.DecodeString(w.EphemeralPub)
	if err != nil {
		return fmt.Errorf("ecies: decoding ephemeral public key: %v", err)
	}
	nonce, err := hex.DecodeString(w.IV)
	if err != nil {
		return fmt.Errorf("ecies: decoding iv: %v", err)
	}
	if len(nonce) != NonceSize {
		return fmt.Errorf("ecies: iv must be %d bytes, got %d", NonceSize, len(nonce))
	}
	data, err := hex.DecodeString(w.Ciphertext)
	if err != nil {
		return fmt.Errorf("ecies: decoding ciphertext bytes: %v", err)
	}
	tag, err := hex.DecodeString(w.AuthTag)
	if err != nil {
		return fmt.Errorf("ecies: decoding auth tag: %v", err)
	}
	if len(tag) != TagSize {
		return fmt.Errorf("ecies: auth tag must be %d bytes, got %d", TagSize, len(tag))
	}
	ct.Version = version
	ct.EphemeralPub = ephemeral
	ct.Nonce = nonce
	ct.Data = data
	ct.Tag = tag
	return nil
}

// MarshalJSON implements json.Marshaler.
func (sc *SymmetricCiphertext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IV         string `json:"iv"`
		Ciphertext string `json:"ciphertext"`
		AuthTag    string `json:"authTag"`
	}{
		IV:         hex.EncodeToString(sc.Nonce),
		Ciphertext: hex.EncodeToString(sc.Data),
		AuthTag:    hex.EncodeToString(sc.Tag),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (sc *SymmetricCiphertext) UnmarshalJSON(raw []byte) error {
	var w struct {
		IV         string `json:"iv"`
		Ciphertext string `json:"ciphertext"`
		AuthTag    string `json:"authTag"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return fmt.Errorf("ecies: decoding symmetric ciphertext: %v", err)
	}
	nonce, err := hex.DecodeString(w.IV)
	if err != nil {
		return fmt.Errorf("ecies: decoding iv: %v", err)
	}
	data, err := hex.DecodeString(w.Ciphertext)
	if err != nil {
		return fmt.Errorf("ecies: decoding ciphertext bytes: %v", err)
	}
	tag, err := hex.DecodeString(w.AuthTag)
	if err != nil {
		return fmt.Errorf("ecies: decoding auth tag: %v", err)
	}
	sc.Nonce = nonce
	sc.Data = data
	sc.Tag = tag
	return nil
}
