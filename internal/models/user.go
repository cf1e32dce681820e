package models

import "time"

// User is a marketplace account. BalanceCents is mutated only by the trade
// service; every normal mutation keeps it at or above zero.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	BalanceCents int64     `json:"balance_cents" db:"balance_cents"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
