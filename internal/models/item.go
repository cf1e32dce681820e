package models

import "time"

// Item is a listing offered for sale. Amount is the remaining stock and is
// only ever decremented by purchases.
type Item struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	PriceCents  int64     `json:"price_cents" db:"price_cents"`
	Amount      int64     `json:"amount" db:"amount"`
	SellerID    int64     `json:"seller_id" db:"seller_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Attachment is an uploaded image. ItemID stays nil until the attachment is
// bound to a listing; binding happens exactly once and is never undone.
// Unbound attachments past their timeout are removed by the sweeper.
type Attachment struct {
	ID            int64     `json:"id" db:"id"`
	FilePath      string    `json:"file_path" db:"file_path"`
	ThumbnailPath string    `json:"thumbnail_path" db:"thumbnail_path"`
	ItemID        *int64    `json:"item_id" db:"item_id"`
	UploaderID    int64     `json:"uploader_id" db:"uploader_id"`
	UploadedAt    time.Time `json:"uploaded_at" db:"uploaded_at"`
}
