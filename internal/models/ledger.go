package models

import "time"

// LedgerEntry is one committed monetary movement. Rows are append-only and
// are never updated or deleted outside of the debug reset.
//
// PayerID is nil for admin grants. ItemID and ItemAmount are set only for
// purchases.
type LedgerEntry struct {
	ID           int64     `json:"id" db:"id"`
	ItemID       *int64    `json:"item_id" db:"item_id"`
	PayerID      *int64    `json:"payer_id" db:"payer_id"`
	ReceiverID   int64     `json:"receiver_id" db:"receiver_id"`
	AmountCents  int64     `json:"amount_cents" db:"amount_cents"`
	ItemAmount   *int64    `json:"item_amount" db:"item_amount"`
	TransactedAt time.Time `json:"transacted_at" db:"transacted_at"`
}
