// Package ledger defines the collaborator interface to the external
// dispute-resolution chain. The chain is treated as an append-only,
// consensus-ordered event log and vote tally; this subsystem depends on it
// for ordering and audit only, never for cryptographic correctness.
package ledger

import (
	"context"
	"time"
)

// EscrowState is the readable on-ledger view of one escrow.
type EscrowState struct {
	EscrowID             string
	DisputeID            string
	ViewingKeyCommitment []byte
	EncryptedDataHash    []byte
	Threshold            int
	TotalShares          int
	Holders              []string
	HolderTypes          []string
	ShareCommitments     map[int][]byte
	Revealed             bool
}

// RevealState is the readable on-ledger view of one reveal request.
type RevealState struct {
	RequestID            string
	EscrowID             string
	Reason               string
	LegalDocHash         []byte
	VotingDeadline       time.Time
	ApproveVotes         int
	RejectVotes          int
	Voters               map[string]bool
	SubmittedShares      map[int][]byte
	ReconstructedKeyHash []byte
	Finalized            bool
}

// Ledger is the write/read surface of the on-chain escrow registry. All
// writes are idempotent: resubmitting an identical share, commitment or vote
// must not corrupt state, and a conflicting resubmission is an error.
type Ledger interface {
	CreateEscrow(ctx context.Context, disputeID string, viewingKeyCommitment, encryptedDataHash []byte, threshold, totalShares int, holders, holderTypes []string) (string, error)
	SubmitShareCommitment(ctx context.Context, escrowID string, shareIndex int, commitment []byte) error
	RequestReveal(ctx context.Context, escrowID, reason string, legalDocHash []byte, votingPeriod time.Duration) (string, error)
	VoteOnReveal(ctx context.Context, requestID, voter string, approve bool) error
	SubmitShareForReveal(ctx context.Context, requestID string, shareIndex int, encryptedShare []byte) error
	FinalizeReveal(ctx context.Context, requestID string, reconstructedKeyHash []byte) error

	Escrow(ctx context.Context, escrowID string) (*EscrowState, error)
	RevealRequest(ctx context.Context, requestID string) (*RevealState, error)
}
