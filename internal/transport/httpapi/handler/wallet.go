package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/kislikjeka/chargehub/internal/ledger"
	"github.com/kislikjeka/chargehub/internal/platform/account"
	apperrors "github.com/kislikjeka/chargehub/internal/shared/errors"
	"github.com/kislikjeka/chargehub/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/chargehub/pkg/money"
)

// Credit request processing statuses on the wire.
const (
	processStatusEcho    = 1 // accepted but not acted on
	processStatusApprove = 2
	processStatusReject  = 3
)

// TransferService defines the transfer engine operations needed by WalletHandler
type TransferService interface {
	CreateCreditRequest(ctx context.Context, accountID int64, amount decimal.Decimal) (*ledger.CreditRequest, error)
	ApproveCreditRequest(ctx context.Context, requestID, adminID int64) (*ledger.CreditRequest, error)
	RejectCreditRequest(ctx context.Context, requestID, adminID int64) (*ledger.CreditRequest, error)
	CreateChargeSale(ctx context.Context, sellerID int64, targetPhone string, amount decimal.Decimal) (*ledger.ChargeSale, error)
	Balance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	ListEntries(ctx context.Context, accountID int64) ([]*ledger.Entry, error)
	ReconcileWallet(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// AccountDirectory defines the account lookups needed by WalletHandler
type AccountDirectory interface {
	LookupByPhone(ctx context.Context, phone string) (*account.Account, error)
}

// WalletHandler handles wallet and transfer HTTP requests
type WalletHandler struct {
	transfers TransferService
	accounts  AccountDirectory
	validate  *validator.Validate
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(transfers TransferService, accounts AccountDirectory) *WalletHandler {
	return &WalletHandler{
		transfers: transfers,
		accounts:  accounts,
		validate:  validator.New(),
	}
}

// CreditRequestRequest represents the credit request body
type CreditRequestRequest struct {
	SellerPhoneNumber string          `json:"seller_phone_number" validate:"required,len=11,numeric"`
	Amount            decimal.Decimal `json:"amount"`
}

// ChargeSaleRequest represents the charge sale body
type ChargeSaleRequest struct {
	SellerPhoneNumber   string          `json:"seller_phone_number" validate:"required,len=11,numeric"`
	ReceiverPhoneNumber string          `json:"receiver_phone_number" validate:"required,len=11,numeric"`
	Amount              decimal.Decimal `json:"amount"`
}

// ProcessCreditRequestRequest represents the admin processing body
type ProcessCreditRequestRequest struct {
	Status      int    `json:"status" validate:"required,oneof=1 2 3"`
	CreditID    int64  `json:"credit_id" validate:"required,min=1"`
	PhoneNumber string `json:"phone_number" validate:"required,len=11,numeric"`
}

// ReconcileWalletRequest represents the admin reconcile body
type ReconcileWalletRequest struct {
	PhoneNumber       string `json:"phone_number" validate:"required,len=11,numeric"`
	TargetPhoneNumber string `json:"target_phone_number" validate:"required,len=11,numeric"`
}

// CodeResponse carries the identifier of a created resource
type CodeResponse struct {
	Code string `json:"code"`
}

// CreateCreditRequest handles POST /credit_request
func (h *WalletHandler) CreateCreditRequest(w http.ResponseWriter, r *http.Request) {
	var req CreditRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	seller, ok := h.lookupAccount(w, r, req.SellerPhoneNumber)
	if !ok {
		return
	}

	cr, err := h.transfers.CreateCreditRequest(r.Context(), seller.ID, req.Amount)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, CodeResponse{Code: cr.ReferenceID()}, http.StatusCreated)
}

// CreateChargeSale handles POST /charge_sale
func (h *WalletHandler) CreateChargeSale(w http.ResponseWriter, r *http.Request) {
	var req ChargeSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	seller, ok := h.lookupAccount(w, r, req.SellerPhoneNumber)
	if !ok {
		return
	}

	cs, err := h.transfers.CreateChargeSale(r.Context(), seller.ID, req.ReceiverPhoneNumber, req.Amount)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, CodeResponse{Code: cs.ID.String()}, http.StatusCreated)
}

// ProcessCreditRequest handles POST /admin/process_credit_request
func (h *WalletHandler) ProcessCreditRequest(w http.ResponseWriter, r *http.Request) {
	var req ProcessCreditRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	admin, ok := h.lookupAccount(w, r, req.PhoneNumber)
	if !ok {
		return
	}
	if admin.Role != account.RoleAdmin {
		respondAppError(w, apperrors.PermissionDenied("only administrators can process credit requests"))
		return
	}

	switch req.Status {
	case processStatusEcho:
		// Acknowledged without action; the request stays WAITING.
	case processStatusApprove:
		if _, err := h.transfers.ApproveCreditRequest(r.Context(), req.CreditID, admin.ID); err != nil {
			respondAppError(w, err)
			return
		}
	case processStatusReject:
		if _, err := h.transfers.RejectCreditRequest(r.Context(), req.CreditID, admin.ID); err != nil {
			respondAppError(w, err)
			return
		}
	}

	respondJSON(w, map[string]string{"msg": "done"}, http.StatusAccepted)
}

// GetBalance handles GET /wallet/balance for the authenticated account
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	balance, err := h.transfers.Balance(r.Context(), accountID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, map[string]string{"balance": money.Canonical(balance)}, http.StatusOK)
}

// EntryResponse is the wire form of a ledger entry
type EntryResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	BalanceAfter string `json:"balance_after"`
	ReferenceID  string `json:"reference_id"`
	Description  string `json:"description"`
	CreatedAt    string `json:"created_at"`
}

// GetTransactions handles GET /wallet/transactions for the authenticated account
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.transfers.ListEntries(r.Context(), accountID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	resp := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, EntryResponse{
			ID:           e.ID.String(),
			Type:         string(e.Type),
			Amount:       money.Canonical(e.Amount),
			BalanceAfter: money.Canonical(e.BalanceAfter),
			ReferenceID:  e.ReferenceID,
			Description:  e.Description,
			CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	respondJSON(w, map[string]any{"transactions": resp}, http.StatusOK)
}

// ReconcileWallet handles POST /admin/reconcile_wallet
func (h *WalletHandler) ReconcileWallet(w http.ResponseWriter, r *http.Request) {
	var req ReconcileWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	admin, ok := h.lookupAccount(w, r, req.PhoneNumber)
	if !ok {
		return
	}
	if admin.Role != account.RoleAdmin {
		respondAppError(w, apperrors.PermissionDenied("only administrators can reconcile wallets"))
		return
	}

	target, ok := h.lookupAccount(w, r, req.TargetPhoneNumber)
	if !ok {
		return
	}

	balance, err := h.transfers.ReconcileWallet(r.Context(), target.ID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, map[string]string{"balance": money.Canonical(balance)}, http.StatusOK)
}

// lookupAccount resolves a phone number to an account, responding on failure.
func (h *WalletHandler) lookupAccount(w http.ResponseWriter, r *http.Request, phone string) (*account.Account, bool) {
	a, err := h.accounts.LookupByPhone(r.Context(), phone)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) || errors.Is(err, account.ErrInvalidPhone) {
			respondAppError(w, apperrors.InvalidInput("unknown account for phone number"))
			return nil, false
		}
		respondError(w, "failed to look up account", http.StatusInternalServerError)
		return nil, false
	}
	return a, true
}
