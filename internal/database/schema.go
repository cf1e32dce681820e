package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Schema statements are idempotent so they can run at every startup. The
// balance column carries no CHECK floor: the trade service enforces the
// non-negative invariant on every normal path, and admin grants are allowed
// to push a balance below zero.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(20) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		balance_cents BIGINT NOT NULL DEFAULT 0,
		is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id          BIGSERIAL PRIMARY KEY,
		title       VARCHAR(50) NOT NULL,
		description VARCHAR(500) NOT NULL,
		price_cents BIGINT NOT NULL,
		amount      BIGINT NOT NULL CHECK (amount >= 0),
		seller_id   BIGINT NOT NULL REFERENCES users(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id             BIGSERIAL PRIMARY KEY,
		file_path      VARCHAR(255) NOT NULL,
		thumbnail_path VARCHAR(255) NOT NULL,
		item_id        BIGINT REFERENCES items(id),
		uploader_id    BIGINT NOT NULL REFERENCES users(id),
		uploaded_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id            BIGSERIAL PRIMARY KEY,
		item_id       BIGINT REFERENCES items(id),
		payer_id      BIGINT REFERENCES users(id),
		receiver_id   BIGINT NOT NULL REFERENCES users(id),
		amount_cents  BIGINT NOT NULL,
		item_amount   BIGINT,
		transacted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_title ON items (title)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_item ON attachments (item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_payer ON transactions (payer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions (receiver_id)`,
}

// Migrate applies the schema to the connected database.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	log.Println("Database schema up to date")
	return nil
}
