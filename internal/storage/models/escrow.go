package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Escrow lifecycle statuses. Terminal states are Finalized, Rejected and
// Expired; a record is immutable once Revealed is set.
const (
	StatusCreated         = "Created"
	StatusRevealRequested = "RevealRequested"
	StatusVoting          = "Voting"
	StatusApproved        = "Approved"
	StatusSharesCollected = "SharesCollected"
	StatusReconstructed   = "Reconstructed"
	StatusFinalized       = "Finalized"
	StatusRejected        = "Rejected"
	StatusExpired         = "Expired"
)

// EscrowRecord is one protected-metadata unit. The viewing key itself is
// never stored; only its SHA-256 commitment and the AEAD-encrypted metadata
// are persisted.
type EscrowRecord struct {
	EscrowID          uuid.UUID      `gorm:"type:uuid;primary_key" json:"escrowId"`
	LedgerID          string         `gorm:"type:varchar(100);uniqueIndex" json:"ledgerId"`
	DisputeID         string         `gorm:"type:varchar(100);index" json:"disputeId"`
	KeyCommitment     string         `gorm:"type:varchar(100)" json:"keyCommitment"` // hex SHA-256 of the viewing key
	EncryptedMetadata []byte         `json:"-"`                                      // ecies.SymmetricCiphertext wire form
	MetadataHash      string         `gorm:"type:varchar(100)" json:"metadataHash"`  // hex SHA-256 of the encrypted metadata
	Threshold         int            `json:"threshold"`
	TotalShares       int            `json:"totalShares"`
	Status            string         `gorm:"type:varchar(30)" json:"status"`
	Revealed          bool           `json:"revealed"`
	Holders           []EscrowHolder `gorm:"foreignKey:EscrowRecordID;references:EscrowID" json:"holders"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// EscrowHolder is one designated share holder: its ECIES public key, the
// share encrypted to it, and whether distribution has completed. Each share
// is owned solely by its holder after distribution.
type EscrowHolder struct {
	gorm.Model
	EscrowRecordID uuid.UUID `gorm:"type:uuid;index" json:"-"`
	HolderIndex    int       `json:"holderIndex"` // 1-based Shamir index
	HolderType     string    `gorm:"type:varchar(30)" json:"holderType"`
	PublicKey      string    `gorm:"type:varchar(200)" json:"publicKey"` // hex uncompressed secp256k1
	EncryptedShare []byte    `json:"-"`                                  // ecies.Ciphertext wire form
	Commitment     string    `gorm:"type:varchar(100)" json:"commitment"`
	Distributed    bool      `json:"distributed"`
}
