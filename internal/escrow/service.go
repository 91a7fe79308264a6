// Package escrow composes the ECIES and Shamir engines into the viewing-key
// escrow workflow: encrypt dispute metadata under a per-escrow key, split
// the key m-of-n across designated holders, and gate reconstruction behind
// an on-ledger vote.
package escrow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"escrow-node/internal/crypto/ecies"
	"escrow-node/internal/crypto/shamir"
	"escrow-node/internal/ledger"
	"escrow-node/internal/logger"
	"escrow-node/internal/storage/models"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidState       = errors.New("escrow: operation not allowed in current state")
	ErrInsufficientShares = errors.New("escrow: fewer shares collected than the threshold")
	ErrKeyMismatch        = errors.New("escrow: reconstructed key does not match commitment")
	ErrAlreadyRevealed    = errors.New("escrow: record already revealed")
)

// Holder designates one share recipient.
type Holder struct {
	PublicKey *secp256k1.PublicKey
	Type      string // e.g. "arbitrator", "platform", "regulator"
}

// Service drives the escrow workflow. The coordinator key that receives
// re-encrypted shares during a reveal is deliberately separate from every
// holder key, so no single holder regains unilateral access by default.
type Service struct {
	db           *gorm.DB
	ledger       ledger.Ledger
	ecies        *ecies.Engine
	shamir       *shamir.Engine
	coordinator  *secp256k1.PrivateKey
	votingPeriod time.Duration
	rand         io.Reader
}

// NewService wires the engines together. votingPeriod is the default used
// when a reveal request does not specify its own.
func NewService(db *gorm.DB, l ledger.Ledger, coordinator *secp256k1.PrivateKey, votingPeriod time.Duration) *Service {
	return &Service{
		db:           db,
		ledger:       l,
		ecies:        ecies.New(),
		shamir:       shamir.New(),
		coordinator:  coordinator,
		votingPeriod: votingPeriod,
		rand:         rand.Reader,
	}
}

// CoordinatorPublicKey is the key holders re-encrypt their shares to during
// a reveal.
func (s *Service) CoordinatorPublicKey() *secp256k1.PublicKey {
	return s.coordinator.PubKey()
}

// CreateEscrow generates a fresh viewing key, encrypts metadata under it,
// splits the key threshold-of-n across the holders, registers the escrow on
// the ledger and persists the record. The plaintext viewing key and shares
// are wiped before returning on every path.
func (s *Service) CreateEscrow(ctx context.Context, disputeID string, metadata []byte, holders []Holder, threshold int) (*models.EscrowRecord, error) {
	if len(metadata) == 0 {
		return nil, fmt.Errorf("escrow: metadata must not be empty")
	}
	if threshold < 2 || threshold > len(holders) {
		return nil, fmt.Errorf("escrow: threshold %d out of range for %d holders", threshold, len(holders))
	}

	viewingKey := make([]byte, 32)
	if _, err := io.ReadFull(s.rand, viewingKey); err != nil {
		return nil, fmt.Errorf("escrow: generating viewing key: %v", err)
	}
	defer zero(viewingKey)

	sealed, err := s.ecies.SealSymmetric(viewingKey, metadata)
	if err != nil {
		return nil, fmt.Errorf("escrow: encrypting metadata: %v", err)
	}
	sealedWire, err := json.Marshal(sealed)
	if err != nil {
		return nil, fmt.Errorf("escrow: encoding metadata ciphertext: %v", err)
	}

	keyCommitment := sha256.Sum256(viewingKey)
	metadataHash := sha256.Sum256(sealedWire)

	shares, err := s.shamir.Split(viewingKey, len(holders), threshold)
	if err != nil {
		return nil, fmt.Errorf("escrow: splitting viewing key: %v", err)
	}
	defer func() {
		for i := range shares {
			zero(shares[i].Data)
		}
	}()

	holderAddrs := make([]string, len(holders))
	holderTypes := make([]string, len(holders))
	holderModels := make([]models.EscrowHolder, len(holders))
	for i, h := range holders {
		encoded, err := shamir.EncodeShare(shares[i])
		if err != nil {
			return nil, fmt.Errorf("escrow: encoding share %d: %v", shares[i].Index, err)
		}
		wrapped, err := s.ecies.Encrypt(h.PublicKey, encoded)
		zero(encoded)
		if err != nil {
			return nil, fmt.Errorf("escrow: encrypting share %d: %v", shares[i].Index, err)
		}
		wrappedWire, err := json.Marshal(wrapped)
		if err != nil {
			return nil, fmt.Errorf("escrow: encoding share ciphertext %d: %v", shares[i].Index, err)
		}
		pubHex := hex.EncodeToString(h.PublicKey.SerializeUncompressed())
		holderAddrs[i] = pubHex
		holderTypes[i] = h.Type
		holderModels[i] = models.EscrowHolder{
			HolderIndex:    int(shares[i].Index),
			HolderType:     h.Type,
			PublicKey:      pubHex,
			EncryptedShare: wrappedWire,
			Commitment:     hex.EncodeToString(shamir.GenerateShareCommitment(shares[i])),
		}
	}

	ledgerID, err := s.ledger.CreateEscrow(ctx, disputeID, keyCommitment[:], metadataHash[:], threshold, len(holders), holderAddrs, holderTypes)
	if err != nil {
		return nil, fmt.Errorf("escrow: registering on ledger: %v", err)
	}

	record := &models.EscrowRecord{
		EscrowID:          uuid.New(),
		LedgerID:          ledgerID,
		DisputeID:         disputeID,
		KeyCommitment:     hex.EncodeToString(keyCommitment[:]),
		EncryptedMetadata: sealedWire,
		MetadataHash:      hex.EncodeToString(metadataHash[:]),
		Threshold:         threshold,
		TotalShares:       len(holders),
		Status:            models.StatusCreated,
		Holders:           holderModels,
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("escrow: failed to begin transaction: %v", tx.Error)
	}
	if err := tx.Create(record).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("escrow: failed to create escrow record: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("escrow: failed to commit transaction: %v", err)
	}

	logger.Log.Infof("Escrow %s created for dispute %s (%d-of-%d)", record.EscrowID, disputeID, threshold, len(holders))

	if err := s.DistributeShares(ctx, record.EscrowID); err != nil {
		// Distribution is retryable per holder; the escrow itself is created.
		logger.Log.Warnf("Escrow %s created but distribution incomplete: %v", record.EscrowID, err)
	}
	return record, nil
}

// DistributeShares submits the per-holder share commitments to the ledger.
// Each holder is handled independently and can be retried; holders already
// marked distributed are skipped, so re-running is idempotent.
func (s *Service) DistributeShares(ctx context.Context, escrowID uuid.UUID) error {
	record, err := s.loadEscrow(escrowID)
	if err != nil {
		return err
	}
	var firstErr error
	for i := range record.Holders {
		h := &record.Holders[i]
		if h.Distributed {
			continue
		}
		commitment, err := hex.DecodeString(h.Commitment)
		if err != nil {
			return fmt.Errorf("escrow: bad stored commitment for holder %d: %v", h.HolderIndex, err)
		}
		if err := s.ledger.SubmitShareCommitment(ctx, record.LedgerID, h.HolderIndex, commitment); err != nil {
			logger.Log.Errorf("Escrow %s: submitting commitment for holder %d failed: %v", escrowID, h.HolderIndex, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		h.Distributed = true
		if err := s.db.Model(h).Update("distributed", true).Error; err != nil {
			return fmt.Errorf("escrow: marking holder %d distributed: %v", h.HolderIndex, err)
		}
	}
	return firstErr
}

// HolderShare returns the encrypted share addressed to the holder at the
// given index, for the holder to fetch and decrypt locally.
func (s *Service) HolderShare(escrowID uuid.UUID, holderIndex int) ([]byte, error) {
	record, err := s.loadEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	for i := range record.Holders {
		if record.Holders[i].HolderIndex == holderIndex {
			return record.Holders[i].EncryptedShare, nil
		}
	}
	return nil, fmt.Errorf("escrow: no holder with index %d", holderIndex)
}

// RequestReveal opens a disclosure vote against an escrow.
func (s *Service) RequestReveal(ctx context.Context, escrowID uuid.UUID, reason string, legalDocHash []byte, votingPeriod time.Duration) (*models.RevealRequest, error) {
	record, err := s.loadEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if record.Revealed {
		return nil, ErrAlreadyRevealed
	}
	if votingPeriod <= 0 {
		votingPeriod = s.votingPeriod
	}

	ledgerID, err := s.ledger.RequestReveal(ctx, record.LedgerID, reason, legalDocHash, votingPeriod)
	if err != nil {
		return nil, fmt.Errorf("escrow: requesting reveal on ledger: %v", err)
	}

	request := &models.RevealRequest{
		RequestID:      uuid.New(),
		LedgerID:       ledgerID,
		EscrowRecordID: record.EscrowID,
		Reason:         reason,
		LegalDocHash:   hex.EncodeToString(legalDocHash),
		Status:         models.StatusVoting,
		ExpiresAt:      time.Now().Add(votingPeriod),
	}
	if err := s.db.Create(request).Error; err != nil {
		return nil, fmt.Errorf("escrow: failed to create reveal request: %v", err)
	}
	if err := s.db.Model(record).Update("status", models.StatusRevealRequested).Error; err != nil {
		return nil, fmt.Errorf("escrow: updating escrow status: %v", err)
	}
	logger.Log.Infof("Reveal request %s opened for escrow %s: %s", request.RequestID, escrowID, reason)
	return request, nil
}

// VoteOnReveal records a holder's vote via the ledger and applies the
// resulting transition. Votes may arrive in any order; casting the same
// vote twice is a no-op.
func (s *Service) VoteOnReveal(ctx context.Context, requestID uuid.UUID, voter string, approve bool) (*models.RevealRequest, error) {
	request, record, err := s.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	if isTerminal(request.Status) {
		return nil, ErrInvalidState
	}
	// Only an open vote can expire; an approved request stays approved even
	// when a vote arrives after the deadline.
	if request.Status == models.StatusVoting && time.Now().After(request.ExpiresAt) {
		if err := s.terminateRequest(request, record, models.StatusExpired); err != nil {
			return nil, err
		}
		return request, nil
	}

	if err := s.ledger.VoteOnReveal(ctx, request.LedgerID, voter, approve); err != nil {
		return nil, fmt.Errorf("escrow: voting on ledger: %v", err)
	}
	state, err := s.ledger.RevealRequest(ctx, request.LedgerID)
	if err != nil {
		return nil, fmt.Errorf("escrow: reading tally: %v", err)
	}

	updates := map[string]interface{}{
		"approve_votes": state.ApproveVotes,
		"reject_votes":  state.RejectVotes,
	}
	request.ApproveVotes = state.ApproveVotes
	request.RejectVotes = state.RejectVotes
	if request.Status == models.StatusVoting {
		if state.ApproveVotes >= record.Threshold {
			updates["status"] = models.StatusApproved
			request.Status = models.StatusApproved
			logger.Log.Infof("Reveal request %s approved (%d/%d)", requestID, state.ApproveVotes, record.Threshold)
		} else if state.RejectVotes > record.TotalShares-record.Threshold {
			// Too few possible approvals remain to ever reach the threshold.
			updates["status"] = models.StatusRejected
			request.Status = models.StatusRejected
			logger.Log.Infof("Reveal request %s rejected (%d against)", requestID, state.RejectVotes)
		}
	}
	if err := s.db.Model(request).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("escrow: updating tally: %v", err)
	}
	if request.Status == models.StatusRejected {
		if err := s.db.Model(record).Update("status", models.StatusRejected).Error; err != nil {
			return nil, fmt.Errorf("escrow: updating escrow status: %v", err)
		}
		record.Status = models.StatusRejected
	}
	return request, nil
}

// SubmitShare accepts one holder's share, already decrypted by the holder
// and re-encrypted to the coordinator key. Identical resubmissions are
// no-ops; conflicting ones are errors.
func (s *Service) SubmitShare(ctx context.Context, requestID uuid.UUID, shareIndex int, encryptedShare []byte) (*models.RevealRequest, error) {
	request, record, err := s.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusApproved && request.Status != models.StatusSharesCollected {
		return nil, ErrInvalidState
	}
	if shareIndex < 1 || shareIndex > record.TotalShares {
		return nil, fmt.Errorf("escrow: share index %d out of range 1..%d", shareIndex, record.TotalShares)
	}

	if err := s.ledger.SubmitShareForReveal(ctx, request.LedgerID, shareIndex, encryptedShare); err != nil {
		return nil, fmt.Errorf("escrow: submitting share on ledger: %v", err)
	}

	var existing models.ShareSubmission
	err = s.db.Where("reveal_request_id = ? AND share_index = ?", request.RequestID, shareIndex).First(&existing).Error
	switch {
	case err == nil:
		// Ledger accepted it, so it matches the prior submission.
	case errors.Is(err, gorm.ErrRecordNotFound):
		submission := models.ShareSubmission{
			RevealRequestID: request.RequestID,
			ShareIndex:      shareIndex,
			EncryptedShare:  encryptedShare,
		}
		if err := s.db.Create(&submission).Error; err != nil {
			return nil, fmt.Errorf("escrow: persisting share submission: %v", err)
		}
		request.Submissions = append(request.Submissions, submission)
	default:
		return nil, fmt.Errorf("escrow: looking up share submission: %v", err)
	}

	if request.Status == models.StatusApproved && len(request.Submissions) >= record.Threshold {
		if err := s.transitionRequest(request, models.StatusSharesCollected); err != nil {
			return nil, err
		}
	}
	return request, nil
}

// Reconstruct decrypts the collected shares with the coordinator key,
// recombines the viewing key, decrypts the metadata and finalizes the
// reveal on the ledger with only a hash of the key. The plaintext key and
// shares are wiped on every exit path. Fewer than threshold shares never
// decrypt anything.
func (s *Service) Reconstruct(ctx context.Context, requestID uuid.UUID) ([]byte, error) {
	request, record, err := s.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.StatusSharesCollected {
		return nil, ErrInvalidState
	}
	if len(request.Submissions) < record.Threshold {
		return nil, ErrInsufficientShares
	}

	shares := make([]shamir.Share, 0, len(request.Submissions))
	defer func() {
		for i := range shares {
			zero(shares[i].Data)
		}
	}()
	for _, sub := range request.Submissions {
		var wrapped ecies.Ciphertext
		if err := json.Unmarshal(sub.EncryptedShare, &wrapped); err != nil {
			return nil, fmt.Errorf("escrow: decoding submitted share %d: %v", sub.ShareIndex, err)
		}
		encoded, err := s.ecies.Decrypt(s.coordinator, &wrapped)
		if err != nil {
			return nil, fmt.Errorf("escrow: decrypting submitted share %d: %v", sub.ShareIndex, err)
		}
		share, err := shamir.DecodeShare(encoded)
		zero(encoded)
		if err != nil {
			return nil, fmt.Errorf("escrow: decoding share payload %d: %v", sub.ShareIndex, err)
		}
		if int(share.Index) != sub.ShareIndex {
			return nil, fmt.Errorf("escrow: share index mismatch: submitted as %d, payload says %d", sub.ShareIndex, share.Index)
		}
		shares = append(shares, share)
	}

	viewingKey, err := s.shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("escrow: combining shares: %v", err)
	}
	defer zero(viewingKey)

	keyHash := sha256.Sum256(viewingKey)
	if hex.EncodeToString(keyHash[:]) != record.KeyCommitment {
		return nil, ErrKeyMismatch
	}

	var sealed ecies.SymmetricCiphertext
	if err := json.Unmarshal(record.EncryptedMetadata, &sealed); err != nil {
		return nil, fmt.Errorf("escrow: decoding stored metadata: %v", err)
	}
	metadata, err := s.ecies.OpenSymmetric(viewingKey, &sealed)
	if err != nil {
		return nil, fmt.Errorf("escrow: decrypting metadata: %v", err)
	}

	// Only the hash of the reconstructed key goes on the record; the key
	// itself never leaves this process. The ledger call comes before any
	// status transition so a transient ledger failure leaves the request in
	// SharesCollected and Reconstruct can simply be retried.
	if err := s.ledger.FinalizeReveal(ctx, request.LedgerID, keyHash[:]); err != nil {
		return nil, fmt.Errorf("escrow: finalizing reveal on ledger: %v", err)
	}
	if err := s.transitionRequest(request, models.StatusReconstructed); err != nil {
		return nil, err
	}
	if err := s.db.Model(request).Updates(map[string]interface{}{
		"status":   models.StatusFinalized,
		"key_hash": hex.EncodeToString(keyHash[:]),
	}).Error; err != nil {
		return nil, fmt.Errorf("escrow: finalizing request: %v", err)
	}
	if err := s.db.Model(record).Updates(map[string]interface{}{
		"status":   models.StatusFinalized,
		"revealed": true,
	}).Error; err != nil {
		return nil, fmt.Errorf("escrow: finalizing escrow record: %v", err)
	}
	logger.Log.Infof("Escrow %s revealed via request %s", record.EscrowID, requestID)
	return metadata, nil
}

// GetEscrow loads an escrow record with its holders.
func (s *Service) GetEscrow(escrowID uuid.UUID) (*models.EscrowRecord, error) {
	return s.loadEscrow(escrowID)
}

// GetRevealRequest loads a reveal request with its submissions.
func (s *Service) GetRevealRequest(requestID uuid.UUID) (*models.RevealRequest, error) {
	request, _, err := s.loadRequest(requestID)
	return request, err
}

func (s *Service) loadEscrow(escrowID uuid.UUID) (*models.EscrowRecord, error) {
	var record models.EscrowRecord
	err := s.db.Preload("Holders").First(&record, "escrow_id = ?", escrowID).Error
	if err != nil {
		return nil, fmt.Errorf("escrow: failed to find escrow %s: %v", escrowID, err)
	}
	return &record, nil
}

func (s *Service) loadRequest(requestID uuid.UUID) (*models.RevealRequest, *models.EscrowRecord, error) {
	var request models.RevealRequest
	err := s.db.Preload("Submissions").First(&request, "request_id = ?", requestID).Error
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: failed to find reveal request %s: %v", requestID, err)
	}
	record, err := s.loadEscrow(request.EscrowRecordID)
	if err != nil {
		return nil, nil, err
	}
	return &request, record, nil
}

// terminateRequest closes a request without a reveal and mirrors the
// terminal status onto the escrow record, which may host a later request.
func (s *Service) terminateRequest(request *models.RevealRequest, record *models.EscrowRecord, status string) error {
	if err := s.transitionRequest(request, status); err != nil {
		return err
	}
	if err := s.db.Model(record).Update("status", status).Error; err != nil {
		return fmt.Errorf("escrow: updating escrow status: %v", err)
	}
	record.Status = status
	return nil
}

func (s *Service) transitionRequest(request *models.RevealRequest, status string) error {
	if err := s.db.Model(request).Update("status", status).Error; err != nil {
		return fmt.Errorf("escrow: transition to %s: %v", status, err)
	}
	request.Status = status
	return nil
}

func isTerminal(status string) bool {
	switch status {
	case models.StatusFinalized, models.StatusRejected, models.StatusExpired:
		return true
	}
	return false
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
