// Package sweeper reaps uploaded attachments that were never bound to a
// listing, removing both the database rows and the files on disk.
package sweeper

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/kirpputori/backend/internal/store"
)

// Sweeper periodically deletes expired unbound attachments.
type Sweeper struct {
	store    *store.Store
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

func New(st *store.Store, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		store:    st,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[SWEEPER] Running every %s, reaping unbound attachments older than %s", s.interval, s.maxAge)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[SWEEPER] Stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Row deletion and file removal are not atomic; a
// crash between the two leaves orphan files, never dangling rows.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.maxAge)
	removed, err := s.store.DeleteExpiredUnboundAttachments(ctx, cutoff)
	if err != nil {
		log.Printf("[SWEEPER] Failed to delete expired attachments: %v", err)
		return
	}
	if len(removed) == 0 {
		return
	}

	for _, attachment := range removed {
		for _, path := range []string{attachment.FilePath, attachment.ThumbnailPath} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Printf("[SWEEPER] Failed to remove %s: %v", path, err)
			}
		}
	}
	log.Printf("[SWEEPER] Reaped %d expired attachments", len(removed))
}
