package handlers

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"escrow-node/internal/escrow"
	"escrow-node/internal/logger"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EscrowHandler exposes the escrow workflow over HTTP.
type EscrowHandler struct {
	Service *escrow.Service
}

// NewEscrowHandler creates a handler bound to the given service.
func NewEscrowHandler(svc *escrow.Service) *EscrowHandler {
	return &EscrowHandler{Service: svc}
}

type holderRequest struct {
	PublicKey string `json:"publicKey" binding:"required"` // hex uncompressed secp256k1
	Type      string `json:"type" binding:"required"`
}

type createEscrowRequest struct {
	DisputeID string          `json:"disputeId" binding:"required"`
	Metadata  string          `json:"metadata" binding:"required"` // base64
	Threshold int             `json:"threshold" binding:"required"`
	Holders   []holderRequest `json:"holders" binding:"required"`
}

// CreateEscrow handles POST /escrows.
func (h *EscrowHandler) CreateEscrow(c *gin.Context) {
	var req createEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	metadata, err := base64.StdEncoding.DecodeString(req.Metadata)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "metadata must be base64"})
		return
	}
	holders := make([]escrow.Holder, len(req.Holders))
	for i, hr := range req.Holders {
		raw, err := hex.DecodeString(hr.PublicKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "holder public key must be hex"})
			return
		}
		pub, err := secp256k1.ParsePubKey(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid holder public key: " + err.Error()})
			return
		}
		holders[i] = escrow.Holder{PublicKey: pub, Type: hr.Type}
	}

	record, err := h.Service.CreateEscrow(c.Request.Context(), req.DisputeID, metadata, holders, req.Threshold)
	if err != nil {
		logger.Log.Errorf("Create escrow failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// GetEscrow handles GET /escrows/:id.
func (h *EscrowHandler) GetEscrow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escrow id"})
		return
	}
	record, err := h.Service.GetEscrow(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

type holderShareResponse struct {
	HolderIndex    int             `json:"holderIndex"`
	EncryptedShare json.RawMessage `json:"encryptedShare"`
}

// GetHolderShare handles GET /escrows/:id/shares/:index. The share is only
// decryptable by the holder's private key, so serving the ciphertext is
// harmless to everyone else.
func (h *EscrowHandler) GetHolderShare(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escrow id"})
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid share index"})
		return
	}
	share, err := h.Service.HolderShare(id, index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, holderShareResponse{HolderIndex: index, EncryptedShare: share})
}

type requestRevealRequest struct {
	Reason              string `json:"reason" binding:"required"`
	LegalDocHash        string `json:"legalDocHash"` // hex
	VotingPeriodSeconds int    `json:"votingPeriodSeconds"`
}

// RequestReveal handles POST /escrows/:id/reveal.
func (h *EscrowHandler) RequestReveal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escrow id"})
		return
	}
	var req requestRevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	legalDocHash, err := hex.DecodeString(req.LegalDocHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "legalDocHash must be hex"})
		return
	}
	request, err := h.Service.RequestReveal(c.Request.Context(), id, req.Reason, legalDocHash, time.Duration(req.VotingPeriodSeconds)*time.Second)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, escrow.ErrAlreadyRevealed) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, request)
}

type voteRequest struct {
	Voter   string `json:"voter" binding:"required"`
	Approve *bool  `json:"approve" binding:"required"`
}

// VoteOnReveal handles POST /reveals/:id/votes.
func (h *EscrowHandler) VoteOnReveal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	request, err := h.Service.VoteOnReveal(c.Request.Context(), id, req.Voter, *req.Approve)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, escrow.ErrInvalidState) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, request)
}

type submitShareRequest struct {
	ShareIndex     int             `json:"shareIndex" binding:"required"`
	EncryptedShare json.RawMessage `json:"encryptedShare" binding:"required"` // ECIES wire form, addressed to the coordinator
}

// SubmitShare handles POST /reveals/:id/shares.
func (h *EscrowHandler) SubmitShare(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	var req submitShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	request, err := h.Service.SubmitShare(c.Request.Context(), id, req.ShareIndex, req.EncryptedShare)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, escrow.ErrInvalidState) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, request)
}

// Reconstruct handles POST /reveals/:id/reconstruct.
func (h *EscrowHandler) Reconstruct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	metadata, err := h.Service.Reconstruct(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, escrow.ErrInvalidState), errors.Is(err, escrow.ErrInsufficientShares):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": base64.StdEncoding.EncodeToString(metadata)})
}

// GetRevealRequest handles GET /reveals/:id.
func (h *EscrowHandler) GetRevealRequest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	request, err := h.Service.GetRevealRequest(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, request)
}

// CoordinatorKey handles GET /coordinator-key: the public key holders must
// re-encrypt their shares to when submitting for a reveal.
func (h *EscrowHandler) CoordinatorKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"publicKey": hex.EncodeToString(h.Service.CoordinatorPublicKey().SerializeUncompressed()),
	})
}
