package services

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirpputori/backend/internal/store"
)

// Business rule failures. Any of these aborts the in-flight store
// transaction; no partial state is ever persisted.
var (
	ErrInsufficientFunds = errors.New("you don't have enough balance on your account")
	ErrInsufficientStock = errors.New("not enough item in stock")
	ErrRecipientNotFound = errors.New("recipient does not exist")
)

// ValidationError covers malformed or out-of-range input caught before any
// store access.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// AttachmentUnavailableError reports attachment ids that could not be bound
// to a listing. Ownership violations and double-use are indistinguishable
// to the caller on purpose.
type AttachmentUnavailableError struct {
	Missing []int64
}

func (e *AttachmentUnavailableError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("following attachments could not be used: %s. Try uploading them again", strings.Join(ids, ", "))
}

// SendServiceError maps engine and store errors onto HTTP responses.
func SendServiceError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	var attachmentErr *AttachmentUnavailableError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &attachmentErr):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientStock):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrRecipientNotFound), errors.Is(err, store.ErrNotFound):
		SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConflict):
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	default:
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
