package services

import (
	"errors"
	"log"
	"net/http"

	"github.com/kirpputori/backend/internal/middleware"
	"github.com/kirpputori/backend/internal/session"
	"github.com/kirpputori/backend/internal/store"
)

// TransactionService handles direct transfers and the transaction log.
type TransactionService struct {
	store     *store.Store
	trade     *TradeService
	sessions  *session.Manager
	validator *ValidationHelper
	debug     bool
}

// TransferRequest moves money to another account by username.
type TransferRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required"`
	Recipient   string `json:"recipient" validate:"required"`
}

// LogQuery widens the log beyond the session user. Only honored in debug
// mode.
type LogQuery struct {
	UserID      *int64 `json:"user_id"`
	ForEveryone bool   `json:"for_everyone"`
}

func NewTransactionService(st *store.Store, trade *TradeService, sessions *session.Manager, debug bool) *TransactionService {
	return &TransactionService{
		store:     st,
		trade:     trade,
		sessions:  sessions,
		validator: NewValidationHelper(),
		debug:     debug,
	}
}

// Transfer moves money from the session user to the named recipient.
func (s *TransactionService) Transfer(w http.ResponseWriter, r *http.Request) {
	payerID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
		return
	}

	var req TransferRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := s.trade.Transfer(r.Context(), payerID, req.Recipient, req.AmountCents); err != nil {
		SendServiceError(w, err)
		return
	}

	log.Printf("[TRANSFER] User %d sent %d cents to %s", payerID, req.AmountCents, req.Recipient)
	SendJSONResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}

// Log returns the session user's transaction log. A query body widens it to
// another user or the whole log, but only in debug mode.
func (s *TransactionService) Log(w http.ResponseWriter, r *http.Request) {
	var query LogQuery
	hasQuery, err := DecodeOptionalJSONBody(w, r, &query)
	if err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	var userID int64
	switch {
	case hasQuery && (query.UserID != nil || query.ForEveryone):
		if !s.debug {
			SendErrorResponse(w, "Feature only available in debug mode", http.StatusNotFound, nil)
			return
		}
		if query.UserID != nil {
			if _, err := s.store.GetUser(r.Context(), *query.UserID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
					return
				}
				log.Printf("[LOG] User lookup failed: %v", err)
				SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
				return
			}
			userID = *query.UserID
		}
	default:
		token := session.TokenFromRequest(r)
		if token == "" {
			SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
			return
		}
		userID, err = s.sessions.Resolve(r.Context(), token)
		if err != nil {
			SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
			return
		}
	}

	entries, err := s.store.LogEntries(r.Context(), userID)
	if err != nil {
		log.Printf("[LOG] Log query failed: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}
	SendJSONResponse(w, http.StatusOK, entries)
}
