// Package store is the relational ledger store. It owns every SQL statement
// in the system: row fetches, the relative balance/stock updates used by the
// trade service, the append-only transaction log and the serializable
// transaction runner in tx.go.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kirpputori/backend/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = "id, username, password_hash, balance_cents, is_admin, created_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.BalanceCents, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetUser fetches a user outside of any transaction.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByUsername fetches a user by unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// UserForUpdate locks a user row inside tx for the rest of the transaction.
func (s *Store) UserForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
}

// UserByUsernameForUpdate locks a user row by username inside tx.
func (s *Store) UserByUsernameForUpdate(ctx context.Context, tx *sql.Tx, username string) (*models.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 FOR UPDATE`, username))
}

// CreateUser inserts a new user with a zero balance. ErrDuplicate is
// returned when the username is taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, balance_cents, created_at)
		 VALUES ($1, $2, 0, NOW())
		 RETURNING `+userColumns, username, passwordHash)
	user, err := scanUser(row)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return user, err
}

const itemColumns = "id, title, description, price_cents, amount, seller_id, created_at"

func scanItem(row *sql.Row) (*models.Item, error) {
	var it models.Item
	err := row.Scan(&it.ID, &it.Title, &it.Description, &it.PriceCents, &it.Amount, &it.SellerID, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return &it, nil
}

// GetItem fetches a listing outside of any transaction.
func (s *Store) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	return scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
}

// ItemForUpdate locks a listing row inside tx. Purchases lock the listing
// before any account row so concurrent buys of the same item serialize here.
func (s *Store) ItemForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Item, error) {
	return scanItem(tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
}

// CreateItem inserts a listing inside tx and fills in its id and timestamp.
func (s *Store) CreateItem(ctx context.Context, tx *sql.Tx, item *models.Item) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO items (title, description, price_cents, amount, seller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		item.Title, item.Description, item.PriceCents, item.Amount, item.SellerID,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// AdjustBalance applies a relative balance update inside tx. Callers are
// responsible for holding the row lock and checking the balance floor; the
// admin grant path deliberately skips the floor check.
func (s *Store) AdjustBalance(ctx context.Context, tx *sql.Tx, userID, deltaCents int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET balance_cents = balance_cents + $1 WHERE id = $2`, deltaCents, userID)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustStock applies a relative stock update inside tx.
func (s *Store) AdjustStock(ctx context.Context, tx *sql.Tx, itemID, deltaUnits int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE items SET amount = amount + $1 WHERE id = $2`, deltaUnits, itemID)
	if err != nil {
		return fmt.Errorf("failed to adjust stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendLogEntry appends one row to the transaction log inside tx.
func (s *Store) AppendLogEntry(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (item_id, payer_id, receiver_id, amount_cents, item_amount, transacted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ItemID, entry.PayerID, entry.ReceiverID, entry.AmountCents, entry.ItemAmount, entry.TransactedAt)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// LogEntries returns transaction log rows. With userID <= 0 the whole log is
// returned; otherwise only rows where the user paid or received.
func (s *Store) LogEntries(ctx context.Context, userID int64) ([]models.LedgerEntry, error) {
	query := `SELECT id, item_id, payer_id, receiver_id, amount_cents, item_amount, transacted_at
	          FROM transactions`
	args := []any{}
	if userID > 0 {
		query += ` WHERE payer_id = $1 OR receiver_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY transacted_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log: %w", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.PayerID, &e.ReceiverID, &e.AmountCents, &e.ItemAmount, &e.TransactedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const attachmentColumns = "id, file_path, thumbnail_path, item_id, uploader_id, uploaded_at"

// CreateAttachment inserts an unbound attachment row.
func (s *Store) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO attachments (file_path, thumbnail_path, uploader_id, uploaded_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, uploaded_at`,
		a.FilePath, a.ThumbnailPath, a.UploaderID,
	).Scan(&a.ID, &a.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// AttachmentsForBinding locks and returns the attachments from ids that are
// owned by uploaderID and not yet bound to any item. The FOR UPDATE lock is
// what keeps two concurrent listing creations from binding the same
// attachment: the second transaction blocks here and then sees item_id set.
func (s *Store) AttachmentsForBinding(ctx context.Context, tx *sql.Tx, ids []int64, uploaderID int64) ([]models.Attachment, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments
		 WHERE id = ANY($1) AND uploader_id = $2 AND item_id IS NULL
		 FOR UPDATE`,
		pq.Array(ids), uploaderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()
	return collectAttachments(rows)
}

// BindAttachments points the given attachments at an item. Binding is final.
func (s *Store) BindAttachments(ctx context.Context, tx *sql.Tx, ids []int64, itemID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE attachments SET item_id = $1 WHERE id = ANY($2)`, itemID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to bind attachments: %w", err)
	}
	return nil
}

// AttachmentsForItems returns the attachments of each listed item keyed by
// item id, for read paths outside of any transaction.
func (s *Store) AttachmentsForItems(ctx context.Context, itemIDs []int64) (map[int64][]models.Attachment, error) {
	result := make(map[int64][]models.Attachment, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE item_id = ANY($1)`, pq.Array(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()
	attachments, err := collectAttachments(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		if a.ItemID != nil {
			result[*a.ItemID] = append(result[*a.ItemID], a)
		}
	}
	return result, nil
}

// DeleteExpiredUnboundAttachments removes attachments that never got bound
// to an item before the cutoff and returns the removed rows so the caller
// can unlink their files.
func (s *Store) DeleteExpiredUnboundAttachments(ctx context.Context, cutoff time.Time) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM attachments WHERE item_id IS NULL AND uploaded_at < $1
		 RETURNING `+attachmentColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired attachments: %w", err)
	}
	defer rows.Close()
	return collectAttachments(rows)
}

func collectAttachments(rows *sql.Rows) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.FilePath, &a.ThumbnailPath, &a.ItemID, &a.UploaderID, &a.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// SearchParams narrows an item listing query. Limit and Offset are assumed
// validated by the caller.
type SearchParams struct {
	SearchTerm   string
	Offset       int64
	Limit        int64
	MinimumStock int64
}

// SearchItems lists items for sale. The search term is matched against the
// title case-insensitively with user provided wildcard characters escaped.
func (s *Store) SearchItems(ctx context.Context, params SearchParams) ([]models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE amount >= $1`
	args := []any{params.MinimumStock}
	if params.SearchTerm != "" {
		query += ` AND title ILIKE $2 ESCAPE '\'`
		args = append(args, "%"+escapeLike(params.SearchTerm)+"%")
	}
	query += fmt.Sprintf(` ORDER BY id OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	args = append(args, params.Offset, params.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.Title, &it.Description, &it.PriceCents, &it.Amount, &it.SellerID, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// ClearAll deletes every row in dependency order. Debug builds only; gated
// by the caller.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, table := range []string{"attachments", "transactions", "items", "users"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
