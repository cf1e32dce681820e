package services

import (
	"errors"
	"log"
	"net/http"

	"github.com/kirpputori/backend/internal/middleware"
	"github.com/kirpputori/backend/internal/models"
	"github.com/kirpputori/backend/internal/money"
	"github.com/kirpputori/backend/internal/store"
)

// Listing query limits.
const (
	maxSearchTermLength = 50
	maxPageSize         = 100
	defaultPageSize     = 20
)

// ItemService handles the listing read and write endpoints. All money and
// stock movement is delegated to the trade engine.
type ItemService struct {
	store     *store.Store
	trade     *TradeService
	validator *ValidationHelper
}

// ListRequest narrows the listing search. Every field is optional.
type ListRequest struct {
	SearchTerm           string `json:"search_term"`
	Offset               int64  `json:"offset"`
	Limit                *int64 `json:"limit"`
	GetItemsWithoutStock bool   `json:"get_items_without_stock"`
}

// NewItemRequest creates a listing. Price is a decimal string so clients
// never do cent arithmetic.
type NewItemRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	Amount      int64   `json:"amount" validate:"required"`
	Price       string  `json:"price" validate:"required"`
	Attachments []int64 `json:"attachments"`
}

// BuyRequest purchases from a listing. Amount defaults to one.
type BuyRequest struct {
	ItemID int64  `json:"item_id" validate:"required"`
	Amount *int64 `json:"amount"`
}

// ItemResult is a listing together with its attachments.
type ItemResult struct {
	*models.Item
	Attachments []models.Attachment `json:"attachments"`
}

func NewItemService(st *store.Store, trade *TradeService) *ItemService {
	return &ItemService{
		store:     st,
		trade:     trade,
		validator: NewValidationHelper(),
	}
}

// List returns listings matching an optional search query.
func (s *ItemService) List(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if _, err := DecodeOptionalJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if len(req.SearchTerm) > maxSearchTermLength {
		SendErrorResponse(w, "Search term is too long", http.StatusBadRequest, nil)
		return
	}
	if req.Offset < 0 {
		SendErrorResponse(w, "Offset must be non-negative", http.StatusBadRequest, nil)
		return
	}
	limit := int64(defaultPageSize)
	if req.Limit != nil {
		limit = *req.Limit
		if limit < 1 || limit > maxPageSize {
			SendErrorResponse(w, "Limit must be between 1 and 100", http.StatusBadRequest, nil)
			return
		}
	}
	minimumStock := int64(1)
	if req.GetItemsWithoutStock {
		minimumStock = 0
	}

	items, err := s.store.SearchItems(r.Context(), store.SearchParams{
		SearchTerm:   req.SearchTerm,
		Offset:       req.Offset,
		Limit:        limit,
		MinimumStock: minimumStock,
	})
	if err != nil {
		log.Printf("[ITEM] Listing search failed: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	itemIDs := make([]int64, len(items))
	for i, item := range items {
		itemIDs[i] = item.ID
	}
	attachments, err := s.store.AttachmentsForItems(r.Context(), itemIDs)
	if err != nil {
		log.Printf("[ITEM] Attachment fetch failed: %v", err)
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	results := make([]ItemResult, len(items))
	for i := range items {
		atts := attachments[items[i].ID]
		if atts == nil {
			atts = []models.Attachment{}
		}
		results[i] = ItemResult{Item: &items[i], Attachments: atts}
	}
	SendJSONResponse(w, http.StatusOK, results)
}

// New creates a listing owned by the session user.
func (s *ItemService) New(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
		return
	}

	var req NewItemRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	priceCents, err := money.ParseDecimalCents(req.Price)
	if err != nil {
		SendErrorResponse(w, "Price must be in decimal format with cents, i.e 9.95", http.StatusBadRequest, nil)
		return
	}

	item, attachments, err := s.trade.CreateListing(r.Context(), sellerID, NewListing{
		Title:         req.Title,
		Description:   req.Description,
		PriceCents:    priceCents,
		Amount:        req.Amount,
		AttachmentIDs: req.Attachments,
	})
	if err != nil {
		SendServiceError(w, err)
		return
	}

	log.Printf("[ITEM] User %d listed item %d (%s)", sellerID, item.ID, item.Title)
	SendJSONResponse(w, http.StatusOK, ItemResult{Item: item, Attachments: attachments})
}

// Buy purchases from a listing on behalf of the session user.
func (s *ItemService) Buy(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := middleware.UserID(r.Context())
	if !ok {
		SendErrorResponse(w, "Not logged in", http.StatusUnauthorized, nil)
		return
	}

	var req BuyRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	quantity := int64(1)
	if req.Amount != nil {
		quantity = *req.Amount
	}

	if err := s.trade.Purchase(r.Context(), buyerID, req.ItemID, quantity); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[ITEM] Purchase of item %d by user %d failed: %v", req.ItemID, buyerID, err)
		}
		SendServiceError(w, err)
		return
	}

	log.Printf("[ITEM] User %d bought %d of item %d", buyerID, quantity, req.ItemID)
	SendJSONResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}
