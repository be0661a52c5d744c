package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-redis/redis/v8"
)

// WalletService exposes the three movement operations over HTTP and maps
// engine failures to stable status codes. All money logic lives in
// LedgerService; this layer only decodes, validates, and responds.
type WalletService struct {
	ledger    *LedgerService
	validator *ValidationHelper
}

func NewWalletService(db *sql.DB, redisClient *redis.Client) *WalletService {
	return &WalletService{
		ledger:    NewLedgerService(db, redisClient),
		validator: NewValidationHelper(),
	}
}

type TopUpRequest struct {
	UserID         int64  `json:"userId" validate:"required,gt=0"`
	AssetCode      string `json:"assetCode" validate:"required,max=32"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=48"`
}

type SpendRequest struct {
	UserID         int64  `json:"userId" validate:"required,gt=0"`
	AssetCode      string `json:"assetCode" validate:"required,max=32"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=48"`
}

type TransferRequest struct {
	FromUserID     int64  `json:"fromUserId" validate:"required,gt=0"`
	ToUserID       int64  `json:"toUserId" validate:"required,gt=0"`
	AssetCode      string `json:"assetCode" validate:"required,max=32"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" validate:"required,max=48"`
}

type TransactionResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// TopUp handles POST /v1/topup.
func (ws *WalletService) TopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if !ws.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := ws.ledger.TopUp(r.Context(), req.UserID, req.AssetCode, req.Amount, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			SendErrorResponse(w, "Insufficient treasury funds", http.StatusBadRequest, nil)
			return
		}
		sendMovementError(w, err)
		return
	}
	sendMovementResult(w, result)
}

// Spend handles POST /v1/spend.
func (ws *WalletService) Spend(w http.ResponseWriter, r *http.Request) {
	var req SpendRequest
	if !ws.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := ws.ledger.Spend(r.Context(), req.UserID, req.AssetCode, req.Amount, req.IdempotencyKey)
	if err != nil {
		sendMovementError(w, err)
		return
	}
	sendMovementResult(w, result)
}

// Transfer handles POST /v1/transfer.
func (ws *WalletService) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !ws.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := ws.ledger.Transfer(r.Context(), req.FromUserID, req.ToUserID, req.AssetCode, req.Amount, req.IdempotencyKey)
	if err != nil {
		sendMovementError(w, err)
		return
	}
	sendMovementResult(w, result)
}

// decodeAndValidate reads a single JSON object into dst and runs struct
// validation, writing the error response itself on failure.
func (ws *WalletService) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := ws.validator.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func sendMovementResult(w http.ResponseWriter, result *MoveResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(TransactionResponse{
		TransactionID: result.TransactionID,
		Status:        result.Status,
	})
}

func sendMovementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAsset):
		SendErrorResponse(w, "Invalid asset code", http.StatusBadRequest, nil)
	case errors.Is(err, ErrAccountNotFound):
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrBalanceRecordMissing):
		SendErrorResponse(w, "Balance record not found", http.StatusNotFound, nil)
	case errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, "Insufficient funds", http.StatusBadRequest, nil)
	case errors.Is(err, ErrSelfOperation):
		SendErrorResponse(w, "Cannot transfer to self", http.StatusBadRequest, nil)
	default:
		log.Printf("[WALLET] Movement failed: %v", err)
		SendErrorResponse(w, "Transaction failed", http.StatusInternalServerError, nil)
	}
}
