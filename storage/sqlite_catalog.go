package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"price_tracker/models"
)

// Timestamps are stored as fixed-width UTC text so ORDER BY on the column
// matches chronological order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

const sqliteCatalogSchema = `
CREATE TABLE IF NOT EXISTS category (
	category_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	parent_id INTEGER,
	level INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_category_name ON category (name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS product (
	id INTEGER PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	raw_condition TEXT NOT NULL DEFAULT '',
	normalized_condition TEXT NOT NULL DEFAULT 'Used',
	signed BOOLEAN NOT NULL DEFAULT FALSE,
	in_box BOOLEAN NOT NULL DEFAULT TRUE,
	listing_type TEXT NOT NULL DEFAULT 'fixed_price',
	bids_count INTEGER,
	time_remaining TEXT,
	buy_it_now_price REAL,
	ended BOOLEAN NOT NULL DEFAULT FALSE,
	seller_username TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	image_key TEXT,
	breadcrumb_category TEXT NOT NULL DEFAULT '',
	category_id INTEGER,
	epid TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_product_ended ON product (ended, updated_at);

CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY,
	product_id INTEGER NOT NULL REFERENCES product(id),
	price REAL NOT NULL,
	buy_it_now_price REAL,
	bids_count INTEGER,
	time_remaining TEXT,
	date_scraped TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_latest ON price_history (product_id, date_scraped DESC, id DESC);
`

const sqliteProductColumns = `
	p.id, p.external_id, p.url, p.title, p.raw_condition, p.normalized_condition,
	p.signed, p.in_box, p.listing_type, p.bids_count, p.time_remaining,
	p.buy_it_now_price, p.ended, p.seller_username, p.image_url, p.image_key,
	p.breadcrumb_category, p.category_id, p.epid, p.created_at, p.updated_at`

// SQLiteCatalog is the single-file catalog backend for local runs.
// Transactions open with BEGIN IMMEDIATE so concurrent ingests of the same
// item serialize on the write lock.
type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(sqliteCatalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func (s *SQLiteCatalog) Close() {
	s.db.Close()
}

func (s *SQLiteCatalog) WithTx(ctx context.Context, fn func(tx CatalogTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
}

// scanSQLiteProduct scans sqliteProductColumns followed by extra destinations.
func scanSQLiteProduct(row rowScanner, p *models.Product, extra ...any) error {
	var created, updated string
	dest := []any{
		&p.ID, &p.ExternalID, &p.URL, &p.Title, &p.RawCondition, &p.NormalizedCondition,
		&p.Signed, &p.InBox, &p.ListingType, &p.BidsCount, &p.TimeRemaining,
		&p.BuyItNowPrice, &p.Ended, &p.SellerUsername, &p.ImageURL, &p.ImageKey,
		&p.BreadcrumbCategory, &p.CategoryID, &p.EPID, &created, &updated,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	return nil
}

func scanSQLitePrice(row rowScanner, ph *models.PriceHistory) error {
	var scraped string
	if err := row.Scan(&ph.ID, &ph.ProductID, &ph.Price, &ph.BuyItNowPrice, &ph.BidsCount, &ph.TimeRemaining, &scraped); err != nil {
		return err
	}
	t, err := parseTime(scraped)
	if err != nil {
		return fmt.Errorf("date_scraped: %w", err)
	}
	ph.DateScraped = t
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// =============================================================================
// Ingest transaction
// =============================================================================

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LockProduct(ctx context.Context, externalID string) (*models.Product, error) {
	query := `SELECT ` + sqliteProductColumns + ` FROM product p WHERE p.external_id = ?`

	var p models.Product
	err := scanSQLiteProduct(t.tx.QueryRowContext(ctx, query, externalID), &p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return &p, nil
}

func (t *sqliteTx) InsertProduct(ctx context.Context, p *models.Product) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO product (
			external_id, url, title, raw_condition, normalized_condition, signed, in_box,
			listing_type, bids_count, time_remaining, buy_it_now_price, ended,
			seller_username, image_url, breadcrumb_category, category_id, epid,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ExternalID, p.URL, p.Title, p.RawCondition, string(p.NormalizedCondition), p.Signed, p.InBox,
		string(p.ListingType), p.BidsCount, p.TimeRemaining, p.BuyItNowPrice, p.Ended,
		p.SellerUsername, p.ImageURL, p.BreadcrumbCategory, p.CategoryID, p.EPID,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isSQLiteUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.ID, err = result.LastInsertId()
	return err
}

func (t *sqliteTx) UpdateProduct(ctx context.Context, p *models.Product) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE product SET
			url = ?, title = ?, raw_condition = ?, normalized_condition = ?,
			signed = ?, in_box = ?, listing_type = ?, bids_count = ?,
			time_remaining = ?, buy_it_now_price = ?, ended = ?,
			seller_username = ?, image_url = ?, breadcrumb_category = ?,
			category_id = ?, epid = ?, updated_at = ?
		WHERE id = ?`,
		p.URL, p.Title, p.RawCondition, string(p.NormalizedCondition),
		p.Signed, p.InBox, string(p.ListingType), p.BidsCount,
		p.TimeRemaining, p.BuyItNowPrice, p.Ended,
		p.SellerUsername, p.ImageURL, p.BreadcrumbCategory,
		p.CategoryID, p.EPID, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (t *sqliteTx) LatestPrice(ctx context.Context, productID int64) (*models.PriceHistory, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, product_id, price, buy_it_now_price, bids_count, time_remaining, date_scraped
		FROM price_history
		WHERE product_id = ?
		ORDER BY date_scraped DESC, id DESC
		LIMIT 1`, productID)

	var ph models.PriceHistory
	err := scanSQLitePrice(row, &ph)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest price: %w", err)
	}
	return &ph, nil
}

func (t *sqliteTx) InsertPrice(ctx context.Context, ph *models.PriceHistory) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO price_history (product_id, price, buy_it_now_price, bids_count, time_remaining, date_scraped)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ph.ProductID, ph.Price, ph.BuyItNowPrice, ph.BidsCount, ph.TimeRemaining, formatTime(ph.DateScraped))
	if err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	ph.ID, err = result.LastInsertId()
	return err
}

// =============================================================================
// Categories
// =============================================================================

func (s *SQLiteCatalog) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category_id, name, parent_id, level FROM category ORDER BY category_id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.ParentID, &c.Level); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *SQLiteCatalog) UpsertCategories(ctx context.Context, cats []models.Category) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO category (category_id, name, parent_id, level)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category_id) DO UPDATE SET
			name = excluded.name,
			parent_id = excluded.parent_id,
			level = excluded.level`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cats {
		if _, err := stmt.ExecContext(ctx, c.CategoryID, c.Name, c.ParentID, c.Level); err != nil {
			return fmt.Errorf("upsert category %d: %w", c.CategoryID, err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// Read model
// =============================================================================

const sqliteSnapshotSelect = `SELECT ` + sqliteProductColumns + `, c.name, lp.price, lp.date_scraped
	FROM product p
	LEFT JOIN category c ON c.category_id = p.category_id
	LEFT JOIN price_history lp ON lp.id = (
		SELECT ph.id FROM price_history ph
		WHERE ph.product_id = p.id
		ORDER BY ph.date_scraped DESC, ph.id DESC
		LIMIT 1
	)`

func (s *SQLiteCatalog) scanSnapshot(row rowScanner) (*models.ProductSnapshot, error) {
	var ps models.ProductSnapshot
	var scraped sql.NullString
	if err := scanSQLiteProduct(row, &ps.Product, &ps.CategoryName, &ps.LastPrice, &scraped); err != nil {
		return nil, err
	}
	if scraped.Valid {
		t, err := parseTime(scraped.String)
		if err != nil {
			return nil, fmt.Errorf("date_scraped: %w", err)
		}
		ps.LastScraped = &t
	}
	return &ps, nil
}

func (s *SQLiteCatalog) ListProducts(ctx context.Context, f ProductFilter) ([]models.ProductSnapshot, error) {
	query := sqliteSnapshotSelect
	var args []any
	if f.Ended != nil {
		query += ` WHERE p.ended = ?`
		args = append(args, *f.Ended)
	}
	query += ` ORDER BY p.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.ProductSnapshot
	for rows.Next() {
		ps, err := s.scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ps)
	}
	return out, rows.Err()
}

func (s *SQLiteCatalog) GetProduct(ctx context.Context, id int64) (*models.ProductSnapshot, error) {
	ps, err := s.scanSnapshot(s.db.QueryRowContext(ctx, sqliteSnapshotSelect+` WHERE p.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return ps, nil
}

func (s *SQLiteCatalog) PriceHistory(ctx context.Context, productID int64) ([]models.PriceHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, price, buy_it_now_price, bids_count, time_remaining, date_scraped
		FROM price_history
		WHERE product_id = ?
		ORDER BY date_scraped ASC, id ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	defer rows.Close()

	var out []models.PriceHistory
	for rows.Next() {
		var ph models.PriceHistory
		if err := scanSQLitePrice(rows, &ph); err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

// =============================================================================
// Workers
// =============================================================================

func (s *SQLiteCatalog) StaleActiveProducts(ctx context.Context, olderThan time.Duration, limit int) ([]models.Product, error) {
	return s.queryProducts(ctx, `SELECT `+sqliteProductColumns+`
		FROM product p
		WHERE p.ended = FALSE AND p.url <> '' AND p.updated_at < ?
		ORDER BY p.updated_at ASC
		LIMIT ?`, formatTime(time.Now().Add(-olderThan)), limit)
}

func (s *SQLiteCatalog) ProductsMissingImage(ctx context.Context, limit int) ([]models.Product, error) {
	return s.queryProducts(ctx, `SELECT `+sqliteProductColumns+`
		FROM product p
		WHERE p.image_url <> '' AND p.image_key IS NULL
		ORDER BY p.id
		LIMIT ?`, limit)
}

func (s *SQLiteCatalog) SetImageKey(ctx context.Context, productID int64, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE product SET image_key = ? WHERE id = ?`, key, productID)
	if err != nil {
		return fmt.Errorf("set image key: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var p models.Product
		if err := scanSQLiteProduct(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
