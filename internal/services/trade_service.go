package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kirpputori/backend/internal/models"
	"github.com/kirpputori/backend/internal/money"
	"github.com/kirpputori/backend/internal/store"
)

// Listing limits.
const (
	maxTitleLength        = 50
	maxDescriptionLength  = 500
	maxListingAmount      = 50
	maxListingPriceCents  = 1500
	maxAttachmentsPerItem = 5
)

// TradeService is the transaction engine. Every balance or stock mutation in
// the system goes through one of its methods, inside a single serializable
// store transaction.
type TradeService struct {
	store     *store.Store
	now       func() time.Time
	txTimeout time.Duration
}

// NewTradeService creates the transaction engine. The clock is injected so
// tests can pin ledger timestamps.
func NewTradeService(st *store.Store, now func() time.Time) *TradeService {
	viper.SetDefault("store.tx_timeout", "5s")
	return &TradeService{
		store:     st,
		now:       now,
		txTimeout: viper.GetDuration("store.tx_timeout"),
	}
}

// Purchase moves quantity units of an item from its seller to the buyer and
// the item's price times quantity the other way. The listing row is locked
// before any account row so concurrent purchases of the same item serialize
// on it.
func (t *TradeService) Purchase(ctx context.Context, buyerID, itemID, quantity int64) error {
	if quantity <= 0 {
		return Validationf("Amount must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, t.txTimeout)
	defer cancel()

	return t.store.RunSerializable(ctx, func(tx *sql.Tx) error {
		item, err := t.store.ItemForUpdate(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item.Amount < quantity {
			return ErrInsufficientStock
		}

		total, err := money.MulChecked(item.PriceCents, quantity)
		if err != nil {
			return Validationf("Total price is out of range")
		}

		// Account rows are locked in ascending id order to avoid
		// deadlocking against a purchase going the other way.
		lockIDs := []int64{buyerID}
		if item.SellerID != buyerID {
			if item.SellerID < buyerID {
				lockIDs = []int64{item.SellerID, buyerID}
			} else {
				lockIDs = append(lockIDs, item.SellerID)
			}
		}

		var buyer, seller *models.User
		for _, id := range lockIDs {
			u, err := t.store.UserForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if u.ID == buyerID {
				buyer = u
			}
			if u.ID == item.SellerID {
				seller = u
			}
		}
		if buyer.BalanceCents < total {
			return ErrInsufficientFunds
		}
		// A self-purchase nets to zero, so the credit guard only applies
		// when the money actually moves.
		if seller.ID != buyer.ID {
			if _, err := money.AddChecked(seller.BalanceCents, total); err != nil {
				return Validationf("Purchase would overflow the seller's balance")
			}
		}

		if err := t.store.AdjustStock(ctx, tx, itemID, -quantity); err != nil {
			return err
		}
		if err := t.store.AdjustBalance(ctx, tx, buyerID, -total); err != nil {
			return err
		}
		if err := t.store.AdjustBalance(ctx, tx, item.SellerID, total); err != nil {
			return err
		}

		return t.store.AppendLogEntry(ctx, tx, &models.LedgerEntry{
			ItemID:       &itemID,
			PayerID:      &buyerID,
			ReceiverID:   item.SellerID,
			AmountCents:  total,
			ItemAmount:   &quantity,
			TransactedAt: t.now(),
		})
	})
}

// Transfer moves amountCents from the payer to the named recipient.
func (t *TradeService) Transfer(ctx context.Context, payerID int64, recipient string, amountCents int64) error {
	if amountCents <= 0 {
		return Validationf("Amount must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, t.txTimeout)
	defer cancel()

	return t.store.RunSerializable(ctx, func(tx *sql.Tx) error {
		payer, err := t.store.UserForUpdate(ctx, tx, payerID)
		if err != nil {
			return err
		}
		if payer.BalanceCents < amountCents {
			return ErrInsufficientFunds
		}

		// Opposite-direction transfers can lock these two rows in the
		// opposite order; the retry loop absorbs the resulting deadlock.
		rec, err := t.store.UserByUsernameForUpdate(ctx, tx, recipient)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}
		if rec.ID == payer.ID {
			return Validationf("Cannot transfer money to yourself")
		}
		if _, err := money.AddChecked(rec.BalanceCents, amountCents); err != nil {
			return Validationf("Transfer would overflow the recipient's balance")
		}

		if err := t.store.AdjustBalance(ctx, tx, payer.ID, -amountCents); err != nil {
			return err
		}
		if err := t.store.AdjustBalance(ctx, tx, rec.ID, amountCents); err != nil {
			return err
		}

		return t.store.AppendLogEntry(ctx, tx, &models.LedgerEntry{
			PayerID:      &payerID,
			ReceiverID:   rec.ID,
			AmountCents:  amountCents,
			TransactedAt: t.now(),
		})
	})
}

// AdminAdjust applies a signed balance delta outside of any trade. The entry
// is logged with no payer. Deltas may push a balance below zero; the floor
// is deliberately not enforced here.
func (t *TradeService) AdminAdjust(ctx context.Context, targetID, deltaCents int64) error {
	if deltaCents == 0 {
		return Validationf("Amount must be non-zero")
	}

	ctx, cancel := context.WithTimeout(ctx, t.txTimeout)
	defer cancel()

	return t.store.RunSerializable(ctx, func(tx *sql.Tx) error {
		if _, err := t.store.UserForUpdate(ctx, tx, targetID); err != nil {
			return err
		}
		if err := t.store.AdjustBalance(ctx, tx, targetID, deltaCents); err != nil {
			return err
		}
		return t.store.AppendLogEntry(ctx, tx, &models.LedgerEntry{
			ReceiverID:   targetID,
			AmountCents:  deltaCents,
			TransactedAt: t.now(),
		})
	})
}

// NewListing describes a listing to be created.
type NewListing struct {
	Title         string
	Description   string
	PriceCents    int64
	Amount        int64
	AttachmentIDs []int64
}

// CreateListing validates and persists a new listing, binding the given
// attachments to it. Attachment ids are deduplicated before binding so the
// same upload cannot be counted twice.
func (t *TradeService) CreateListing(ctx context.Context, sellerID int64, listing NewListing) (*models.Item, []models.Attachment, error) {
	title := strings.TrimSpace(listing.Title)
	description := strings.TrimSpace(listing.Description)

	if len(title) == 0 || len(title) > maxTitleLength {
		return nil, nil, Validationf("Title must be between 1 and %d characters long", maxTitleLength)
	}
	if len(description) > maxDescriptionLength {
		return nil, nil, Validationf("Description can be at most %d characters long", maxDescriptionLength)
	}
	if listing.Amount < 1 || listing.Amount > maxListingAmount {
		return nil, nil, Validationf("Amount must be between 1 and %d", maxListingAmount)
	}
	if listing.PriceCents < 1 || listing.PriceCents > maxListingPriceCents {
		return nil, nil, Validationf("Price must be between %s and %s", money.FormatCents(1), money.FormatCents(maxListingPriceCents))
	}

	attachmentIDs := dedupeIDs(listing.AttachmentIDs)
	if len(attachmentIDs) > maxAttachmentsPerItem {
		return nil, nil, Validationf("A listing can have at most %d attachments", maxAttachmentsPerItem)
	}

	ctx, cancel := context.WithTimeout(ctx, t.txTimeout)
	defer cancel()

	item := &models.Item{
		Title:       title,
		Description: description,
		PriceCents:  listing.PriceCents,
		Amount:      listing.Amount,
		SellerID:    sellerID,
	}
	var bound []models.Attachment

	err := t.store.RunSerializable(ctx, func(tx *sql.Tx) error {
		bound = nil

		if len(attachmentIDs) > 0 {
			usable, err := t.store.AttachmentsForBinding(ctx, tx, attachmentIDs, sellerID)
			if err != nil {
				return err
			}
			if len(usable) != len(attachmentIDs) {
				return &AttachmentUnavailableError{Missing: missingIDs(attachmentIDs, usable)}
			}
			bound = usable
		}

		if err := t.store.CreateItem(ctx, tx, item); err != nil {
			return err
		}

		if len(attachmentIDs) > 0 {
			if err := t.store.BindAttachments(ctx, tx, attachmentIDs, item.ID); err != nil {
				return err
			}
			for i := range bound {
				bound[i].ItemID = &item.ID
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return item, bound, nil
}

// dedupeIDs drops repeated ids, keeping first-seen order.
func dedupeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// missingIDs reports which requested ids did not come back usable.
func missingIDs(requested []int64, usable []models.Attachment) []int64 {
	have := make(map[int64]struct{}, len(usable))
	for _, a := range usable {
		have[a.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
