package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one append-only log entry. The memory ledger keeps the full
// ordered history so tests and local deployments can audit what happened.
type Event struct {
	Seq     int
	Kind    string
	Subject string
	At      time.Time
}

// MemoryLedger is an in-process Ledger for local deployments and tests. It
// preserves the contract of the real chain client: ordered events,
// idempotent writes, conflict detection.
type MemoryLedger struct {
	mu       sync.Mutex
	escrows  map[string]*EscrowState
	requests map[string]*RevealState
	events   []Event
	now      func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		escrows:  make(map[string]*EscrowState),
		requests: make(map[string]*RevealState),
		now:      time.Now,
	}
}

func (l *MemoryLedger) append(kind, subject string) {
	l.events = append(l.events, Event{
		Seq:     len(l.events) + 1,
		Kind:    kind,
		Subject: subject,
		At:      l.now(),
	})
}

// Events returns a copy of the ordered event log.
func (l *MemoryLedger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *MemoryLedger) CreateEscrow(_ context.Context, disputeID string, viewingKeyCommitment, encryptedDataHash []byte, threshold, totalShares int, holders, holderTypes []string) (string, error) {
	if threshold < 1 || threshold > totalShares {
		return "", fmt.Errorf("ledger: threshold %d out of range for %d shares", threshold, totalShares)
	}
	if len(holders) != totalShares || len(holderTypes) != totalShares {
		return "", fmt.Errorf("ledger: holder list length must equal total shares")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.New().String()
	l.escrows[id] = &EscrowState{
		EscrowID:             id,
		DisputeID:            disputeID,
		ViewingKeyCommitment: append([]byte(nil), viewingKeyCommitment...),
		EncryptedDataHash:    append([]byte(nil), encryptedDataHash...),
		Threshold:            threshold,
		TotalShares:          totalShares,
		Holders:              append([]string(nil), holders...),
		HolderTypes:          append([]string(nil), holderTypes...),
		ShareCommitments:     make(map[int][]byte),
	}
	l.append("EscrowCreated", id)
	return id, nil
}

func (l *MemoryLedger) SubmitShareCommitment(_ context.Context, escrowID string, shareIndex int, commitment []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[escrowID]
	if !ok {
		return fmt.Errorf("ledger: unknown escrow %s", escrowID)
	}
	if shareIndex < 1 || shareIndex > esc.TotalShares {
		return fmt.Errorf("ledger: share index %d out of range 1..%d", shareIndex, esc.TotalShares)
	}
	if existing, ok := esc.ShareCommitments[shareIndex]; ok {
		if bytes.Equal(existing, commitment) {
			return nil // idempotent resubmission
		}
		return fmt.Errorf("ledger: conflicting commitment for share %d of escrow %s", shareIndex, escrowID)
	}
	esc.ShareCommitments[shareIndex] = append([]byte(nil), commitment...)
	l.append("ShareCommitmentSubmitted", escrowID)
	return nil
}

func (l *MemoryLedger) RequestReveal(_ context.Context, escrowID, reason string, legalDocHash []byte, votingPeriod time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[escrowID]
	if !ok {
		return "", fmt.Errorf("ledger: unknown escrow %s", escrowID)
	}
	if esc.Revealed {
		return "", fmt.Errorf("ledger: escrow %s already revealed", escrowID)
	}
	id := uuid.New().String()
	l.requests[id] = &RevealState{
		RequestID:       id,
		EscrowID:        escrowID,
		Reason:          reason,
		LegalDocHash:    append([]byte(nil), legalDocHash...),
		VotingDeadline:  l.now().Add(votingPeriod),
		Voters:          make(map[string]bool),
		SubmittedShares: make(map[int][]byte),
	}
	l.append("RevealRequested", id)
	return id, nil
}

func (l *MemoryLedger) VoteOnReveal(_ context.Context, requestID, voter string, approve bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[requestID]
	if !ok {
		return fmt.Errorf("ledger: unknown reveal request %s", requestID)
	}
	if req.Finalized {
		return fmt.Errorf("ledger: reveal request %s already finalized", requestID)
	}
	if prev, voted := req.Voters[voter]; voted {
		if prev == approve {
			return nil // idempotent revote
		}
		return fmt.Errorf("ledger: %s already voted differently on %s", voter, requestID)
	}
	req.Voters[voter] = approve
	if approve {
		req.ApproveVotes++
	} else {
		req.RejectVotes++
	}
	l.append("RevealVoteCast", requestID)
	return nil
}

func (l *MemoryLedger) SubmitShareForReveal(_ context.Context, requestID string, shareIndex int, encryptedShare []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[requestID]
	if !ok {
		return fmt.Errorf("ledger: unknown reveal request %s", requestID)
	}
	if req.Finalized {
		return fmt.Errorf("ledger: reveal request %s already finalized", requestID)
	}
	if esc, ok := l.escrows[req.EscrowID]; ok {
		if shareIndex < 1 || shareIndex > esc.TotalShares {
			return fmt.Errorf("ledger: share index %d out of range 1..%d", shareIndex, esc.TotalShares)
		}
	}
	if existing, ok := req.SubmittedShares[shareIndex]; ok {
		if bytes.Equal(existing, encryptedShare) {
			return nil // idempotent resubmission
		}
		return fmt.Errorf("ledger: conflicting share %d for request %s", shareIndex, requestID)
	}
	req.SubmittedShares[shareIndex] = append([]byte(nil), encryptedShare...)
	l.append("RevealShareSubmitted", requestID)
	return nil
}

func (l *MemoryLedger) FinalizeReveal(_ context.Context, requestID string, reconstructedKeyHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[requestID]
	if !ok {
		return fmt.Errorf("ledger: unknown reveal request %s", requestID)
	}
	if req.Finalized {
		if bytes.Equal(req.ReconstructedKeyHash, reconstructedKeyHash) {
			return nil
		}
		return fmt.Errorf("ledger: reveal request %s finalized with a different key hash", requestID)
	}
	req.Finalized = true
	req.ReconstructedKeyHash = append([]byte(nil), reconstructedKeyHash...)
	if esc, ok := l.escrows[req.EscrowID]; ok {
		esc.Revealed = true
	}
	l.append("RevealFinalized", requestID)
	return nil
}

func (l *MemoryLedger) Escrow(_ context.Context, escrowID string) (*EscrowState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[escrowID]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown escrow %s", escrowID)
	}
	cp := *esc
	return &cp, nil
}

func (l *MemoryLedger) RevealRequest(_ context.Context, requestID string) (*RevealState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("ledger: unknown reveal request %s", requestID)
	}
	cp := *req
	return &cp, nil
}
