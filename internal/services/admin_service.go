package services

import (
	"log"
	"net/http"

	"github.com/kirpputori/backend/internal/session"
	"github.com/kirpputori/backend/internal/store"
)

// AdminService handles the debug-only money grant and database reset
// endpoints. Both respond 404 outside debug mode so they are
// indistinguishable from unknown routes.
type AdminService struct {
	store     *store.Store
	trade     *TradeService
	sessions  *session.Manager
	validator *ValidationHelper
	enabled   bool
}

// GiveRequest adjusts a balance by a signed cent delta. Without a user id
// the session user is adjusted.
type GiveRequest struct {
	UserID      *int64 `json:"user_id"`
	AmountCents int64  `json:"amount_cents" validate:"required"`
}

func NewAdminService(st *store.Store, trade *TradeService, sessions *session.Manager, enabled bool) *AdminService {
	return &AdminService{
		store:     st,
		trade:     trade,
		sessions:  sessions,
		validator: NewValidationHelper(),
		enabled:   enabled,
	}
}

// Give applies a balance adjustment outside of any trade.
func (s *AdminService) Give(w http.ResponseWriter, r *http.Request) {
	if !s.enabled {
		SendErrorResponse(w, "Feature only available in debug mode", http.StatusNotFound, nil)
		return
	}

	var req GiveRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var targetID int64
	if req.UserID != nil {
		targetID = *req.UserID
	} else {
		token := session.TokenFromRequest(r)
		if token == "" {
			SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
			return
		}
		userID, err := s.sessions.Resolve(r.Context(), token)
		if err != nil {
			SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
			return
		}
		targetID = userID
	}

	if err := s.trade.AdminAdjust(r.Context(), targetID, req.AmountCents); err != nil {
		SendServiceError(w, err)
		return
	}

	log.Printf("[ADMIN] Granted %d cents to user %d", req.AmountCents, targetID)
	SendJSONResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}

// ClearDB wipes every table.
func (s *AdminService) ClearDB(w http.ResponseWriter, r *http.Request) {
	if !s.enabled {
		SendErrorResponse(w, "Feature only available in debug mode", http.StatusNotFound, nil)
		return
	}

	if err := s.store.ClearAll(r.Context()); err != nil {
		log.Printf("[ADMIN] Database clear failed: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ADMIN] Database cleared")
	SendJSONResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}
