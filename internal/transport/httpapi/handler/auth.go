package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	validator "gopkg.in/go-playground/validator.v9"

	"github.com/kislikjeka/chargehub/internal/platform/account"
)

// AccountService defines the account operations needed by AuthHandler
type AccountService interface {
	Register(ctx context.Context, phone, password string, role account.Role) (*account.Account, error)
	Authenticate(ctx context.Context, phone, password string) (*account.Account, error)
}

// JWTServiceInterface defines the interface for JWT operations
type JWTServiceInterface interface {
	GenerateToken(accountID int64, phone, role string) (string, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	accounts   AccountService
	jwtService JWTServiceInterface
	validate   *validator.Validate
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts AccountService, jwtService JWTServiceInterface) *AuthHandler {
	return &AuthHandler{
		accounts:   accounts,
		jwtService: jwtService,
		validate:   validator.New(),
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,len=11,numeric"`
	Password    string `json:"password" validate:"required"`
	Role        string `json:"role" validate:"omitempty,oneof=SELLER USER"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,len=11,numeric"`
	Password    string `json:"password" validate:"required"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token   string       `json:"token"`
	Account *AccountInfo `json:"account"`
}

// AccountInfo represents account information (without sensitive data)
type AccountInfo struct {
	ID          int64  `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

// Register handles account registration (POST /auth/register).
// Administrators are provisioned out of band, never through this endpoint.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	role := account.Role(req.Role)
	if role == "" {
		role = account.RoleSeller
	}

	registered, err := h.accounts.Register(r.Context(), req.PhoneNumber, req.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrAccountExists):
			respondError(w, "account with this phone number already exists", http.StatusConflict)
		case errors.Is(err, account.ErrPasswordTooShort):
			respondError(w, "password must be at least 8 characters", http.StatusBadRequest)
		case errors.Is(err, account.ErrInvalidPhone):
			respondError(w, "phone number must be 11 digits", http.StatusBadRequest)
		default:
			respondError(w, "failed to register account", http.StatusInternalServerError)
		}
		return
	}

	token, err := h.jwtService.GenerateToken(registered.ID, registered.PhoneNumber, string(registered.Role))
	if err != nil {
		respondError(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, AuthResponse{
		Token: token,
		Account: &AccountInfo{
			ID:          registered.ID,
			PhoneNumber: registered.PhoneNumber,
			Role:        string(registered.Role),
		},
	}, http.StatusCreated)
}

// Login handles account login (POST /auth/login)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	authenticated, err := h.accounts.Authenticate(r.Context(), req.PhoneNumber, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidPassword) {
			respondError(w, "invalid phone number or password", http.StatusUnauthorized)
			return
		}
		respondError(w, "failed to login", http.StatusInternalServerError)
		return
	}

	token, err := h.jwtService.GenerateToken(authenticated.ID, authenticated.PhoneNumber, string(authenticated.Role))
	if err != nil {
		respondError(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, AuthResponse{
		Token: token,
		Account: &AccountInfo{
			ID:          authenticated.ID,
			PhoneNumber: authenticated.PhoneNumber,
			Role:        string(authenticated.Role),
		},
	}, http.StatusOK)
}
