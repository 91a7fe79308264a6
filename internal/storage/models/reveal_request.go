package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RevealRequest is one pending disclosure vote against an escrow. Once it
// reaches Finalized, Rejected or Expired it never changes again.
type RevealRequest struct {
	RequestID      uuid.UUID         `gorm:"type:uuid;primary_key" json:"requestId"`
	LedgerID       string            `gorm:"type:varchar(100);uniqueIndex" json:"ledgerId"`
	EscrowRecordID uuid.UUID         `gorm:"type:uuid;index" json:"escrowId"`
	Reason         string            `gorm:"type:varchar(500)" json:"reason"`
	LegalDocHash   string            `gorm:"type:varchar(100)" json:"legalDocHash"`
	Status         string            `gorm:"type:varchar(30)" json:"status"`
	ApproveVotes   int               `json:"approveVotes"`
	RejectVotes    int               `json:"rejectVotes"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	KeyHash        string            `gorm:"type:varchar(100)" json:"keyHash"` // hex SHA-256 of the reconstructed key, set on finalize
	Submissions    []ShareSubmission `gorm:"foreignKey:RevealRequestID;references:RequestID" json:"submissions"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// ShareSubmission is one holder's share, decrypted by the holder and
// re-encrypted to the coordinator key for reconstruction.
type ShareSubmission struct {
	gorm.Model
	RevealRequestID uuid.UUID `gorm:"type:uuid;index" json:"-"`
	ShareIndex      int       `json:"shareIndex"`
	EncryptedShare  []byte    `json:"-"` // ecies.Ciphertext wire form, addressed to the coordinator
}
