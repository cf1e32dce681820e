package services

import (
	"errors"
	"log"
	"net/http"

	"github.com/kirpputori/backend/internal/models"
	"github.com/kirpputori/backend/internal/session"
	"github.com/kirpputori/backend/internal/store"
)

// AuthService handles account creation and cookie sessions.
type AuthService struct {
	store     *store.Store
	sessions  *session.Manager
	validator *ValidationHelper
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20,alphanum"` // Account name, unique
	Password string `json:"password" validate:"required,min=4,max=72"`          // Plaintext password
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserQuery selects which account to describe. With neither field set the
// session user is described.
type UserQuery struct {
	UserID   *int64  `json:"user_id"`
	Username *string `json:"username"`
}

func NewAuthService(st *store.Store, sessions *session.Manager) *AuthService {
	return &AuthService{
		store:     st,
		sessions:  sessions,
		validator: NewValidationHelper(),
	}
}

// Register creates an account and logs it straight in.
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Printf("[AUTH] Username already taken: %s", req.Username)
			SendErrorResponse(w, "Username is already taken", http.StatusConflict, nil)
			return
		}
		log.Printf("[AUTH] User creation failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	token, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		log.Printf("[AUTH] Session creation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create session", http.StatusInternalServerError, nil)
		return
	}
	s.sessions.SetCookie(w, token)

	log.Printf("[AUTH] User created successfully - ID: %d, Username: %s", user.ID, user.Username)
	SendJSONResponse(w, http.StatusOK, user)
}

// Login authenticates and opens a new session.
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		log.Printf("[AUTH] User not found: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, user.PasswordHash) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		log.Printf("[AUTH] Session creation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create session", http.StatusInternalServerError, nil)
		return
	}
	s.sessions.SetCookie(w, token)

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	SendJSONResponse(w, http.StatusOK, user)
}

// Logout destroys the caller's session and clears the cookie.
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if token == "" {
		SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
		return
	}

	if err := s.sessions.Destroy(r.Context(), token); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
			return
		}
		log.Printf("[AUTH] Logout failed: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	s.sessions.ClearCookie(w)
	SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// UserInfo describes an account. With a query body any account can be looked
// up without logging in; without one the session user is described.
func (s *AuthService) UserInfo(w http.ResponseWriter, r *http.Request) {
	var query UserQuery
	hasQuery, err := DecodeOptionalJSONBody(w, r, &query)
	if err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	var user *models.User
	switch {
	case hasQuery && query.UserID != nil:
		user, err = s.store.GetUser(r.Context(), *query.UserID)
	case hasQuery && query.Username != nil:
		user, err = s.store.GetUserByUsername(r.Context(), *query.Username)
	default:
		token := session.TokenFromRequest(r)
		if token == "" {
			SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
			return
		}
		var userID int64
		userID, err = s.sessions.Resolve(r.Context(), token)
		if err != nil {
			SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
			return
		}
		user, err = s.store.GetUser(r.Context(), userID)
	}

	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[AUTH] Failed to fetch user: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}
	SendJSONResponse(w, http.StatusOK, user)
}
