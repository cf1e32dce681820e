package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

const (
	maxTxAttempts = 3
	retryBackoff  = 25 * time.Millisecond
)

// RunSerializable runs fn inside a serializable transaction. The transaction
// is rolled back on any error or panic before control returns to the caller.
// Serialization failures and deadlocks abort the attempt and are retried a
// bounded number of times; once retries are exhausted ErrConflict is
// returned. The transaction is never committed after ctx is cancelled.
func (s *Store) RunSerializable(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		log.Printf("[STORE] Serialization conflict on attempt %d/%d: %v", attempt, maxTxAttempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func (s *Store) runOnce(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	// A cancelled caller must never observe a commit.
	if err = ctx.Err(); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
