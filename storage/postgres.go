package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"price_tracker/models"
)

const productUniqueConstraint = "product_external_id_key"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS category (
	category_id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	parent_id BIGINT,
	level INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_category_name ON category (LOWER(name));

CREATE TABLE IF NOT EXISTS product (
	id BIGSERIAL PRIMARY KEY,
	external_id TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	raw_condition TEXT NOT NULL DEFAULT '',
	normalized_condition TEXT NOT NULL DEFAULT 'Used',
	signed BOOLEAN NOT NULL DEFAULT FALSE,
	in_box BOOLEAN NOT NULL DEFAULT TRUE,
	listing_type TEXT NOT NULL DEFAULT 'fixed_price',
	bids_count INT,
	time_remaining TEXT,
	buy_it_now_price NUMERIC(12,2),
	ended BOOLEAN NOT NULL DEFAULT FALSE,
	seller_username TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	image_key TEXT,
	breadcrumb_category TEXT NOT NULL DEFAULT '',
	category_id BIGINT,
	epid TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT product_external_id_key UNIQUE (external_id)
);
CREATE INDEX IF NOT EXISTS idx_product_ended ON product (ended, updated_at);

CREATE TABLE IF NOT EXISTS price_history (
	id BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES product(id),
	price NUMERIC(12,2) NOT NULL,
	buy_it_now_price NUMERIC(12,2),
	bids_count INT,
	time_remaining TEXT,
	date_scraped TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_latest ON price_history (product_id, date_scraped DESC, id DESC);
`

const productColumns = `
	p.id, p.external_id, p.url, p.title, p.raw_condition, p.normalized_condition,
	p.signed, p.in_box, p.listing_type, p.bids_count, p.time_remaining,
	p.buy_it_now_price::float8, p.ended, p.seller_username, p.image_url, p.image_key,
	p.breadcrumb_category, p.category_id, p.epid, p.created_at, p.updated_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// WithTx runs fn in one transaction, committing only when fn returns nil.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx CatalogTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *models.Product, extra ...any) error {
	dest := []any{
		&p.ID, &p.ExternalID, &p.URL, &p.Title, &p.RawCondition, &p.NormalizedCondition,
		&p.Signed, &p.InBox, &p.ListingType, &p.BidsCount, &p.TimeRemaining,
		&p.BuyItNowPrice, &p.Ended, &p.SellerUsername, &p.ImageURL, &p.ImageKey,
		&p.BreadcrumbCategory, &p.CategoryID, &p.EPID, &p.CreatedAt, &p.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == productUniqueConstraint
}

// =============================================================================
// Ingest transaction
// =============================================================================

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProduct(ctx context.Context, externalID string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM product p WHERE p.external_id = $1 FOR UPDATE`

	var p models.Product
	err := scanProduct(t.tx.QueryRow(ctx, query, externalID), &p)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return &p, nil
}

func (t *pgTx) InsertProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO product (
			external_id, url, title, raw_condition, normalized_condition, signed, in_box,
			listing_type, bids_count, time_remaining, buy_it_now_price, ended,
			seller_username, image_url, breadcrumb_category, category_id, epid,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id`

	err := t.tx.QueryRow(ctx, query,
		p.ExternalID, p.URL, p.Title, p.RawCondition, string(p.NormalizedCondition), p.Signed, p.InBox,
		string(p.ListingType), p.BidsCount, p.TimeRemaining, p.BuyItNowPrice, p.Ended,
		p.SellerUsername, p.ImageURL, p.BreadcrumbCategory, p.CategoryID, p.EPID,
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE product SET
			url = $2, title = $3, raw_condition = $4, normalized_condition = $5,
			signed = $6, in_box = $7, listing_type = $8, bids_count = $9,
			time_remaining = $10, buy_it_now_price = $11, ended = $12,
			seller_username = $13, image_url = $14, breadcrumb_category = $15,
			category_id = $16, epid = $17, updated_at = $18
		WHERE id = $1`

	_, err := t.tx.Exec(ctx, query,
		p.ID, p.URL, p.Title, p.RawCondition, string(p.NormalizedCondition),
		p.Signed, p.InBox, string(p.ListingType), p.BidsCount,
		p.TimeRemaining, p.BuyItNowPrice, p.Ended,
		p.SellerUsername, p.ImageURL, p.BreadcrumbCategory,
		p.CategoryID, p.EPID, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (t *pgTx) LatestPrice(ctx context.Context, productID int64) (*models.PriceHistory, error) {
	query := `
		SELECT id, product_id, price::float8, buy_it_now_price::float8, bids_count, time_remaining, date_scraped
		FROM price_history
		WHERE product_id = $1
		ORDER BY date_scraped DESC, id DESC
		LIMIT 1`

	var ph models.PriceHistory
	err := t.tx.QueryRow(ctx, query, productID).Scan(
		&ph.ID, &ph.ProductID, &ph.Price, &ph.BuyItNowPrice, &ph.BidsCount, &ph.TimeRemaining, &ph.DateScraped,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest price: %w", err)
	}
	return &ph, nil
}

func (t *pgTx) InsertPrice(ctx context.Context, ph *models.PriceHistory) error {
	query := `
		INSERT INTO price_history (product_id, price, buy_it_now_price, bids_count, time_remaining, date_scraped)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := t.tx.QueryRow(ctx, query,
		ph.ProductID, ph.Price, ph.BuyItNowPrice, ph.BidsCount, ph.TimeRemaining, ph.DateScraped,
	).Scan(&ph.ID)
	if err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

// =============================================================================
// Categories
// =============================================================================

func (s *PostgresStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT category_id, name, parent_id, level FROM category ORDER BY category_id`)
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

func (s *PostgresStore) UpsertCategories(ctx context.Context, cats []models.Category) error {
	batch := &pgx.Batch{}
	for _, c := range cats {
		batch.Queue(`
			INSERT INTO category (category_id, name, parent_id, level)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (category_id) DO UPDATE SET
				name = EXCLUDED.name,
				parent_id = EXCLUDED.parent_id,
				level = EXCLUDED.level`,
			c.CategoryID, c.Name, c.ParentID, c.Level)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert categories: %w", err)
	}
	return tx.Commit(ctx)
}

// =============================================================================
// Read model
// =============================================================================

const snapshotFrom = `
	FROM product p
	LEFT JOIN category c ON c.category_id = p.category_id
	LEFT JOIN LATERAL (
		SELECT price, date_scraped FROM price_history ph
		WHERE ph.product_id = p.id
		ORDER BY ph.date_scraped DESC, ph.id DESC
		LIMIT 1
	) lp ON TRUE`

func (s *PostgresStore) ListProducts(ctx context.Context, f ProductFilter) ([]models.ProductSnapshot, error) {
	query := `SELECT ` + productColumns + `, c.name, lp.price::float8, lp.date_scraped` + snapshotFrom + `
		WHERE ($1::boolean IS NULL OR p.ended = $1)
		ORDER BY p.id`

	rows, err := s.pool.Query(ctx, query, f.Ended)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []models.ProductSnapshot
	for rows.Next() {
		var ps models.ProductSnapshot
		if err := scanProduct(rows, &ps.Product, &ps.CategoryName, &ps.LastPrice, &ps.LastScraped); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*models.ProductSnapshot, error) {
	query := `SELECT ` + productColumns + `, c.name, lp.price::float8, lp.date_scraped` + snapshotFrom + `
		WHERE p.id = $1`

	var ps models.ProductSnapshot
	err := scanProduct(s.pool.QueryRow(ctx, query, id), &ps.Product, &ps.CategoryName, &ps.LastPrice, &ps.LastScraped)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &ps, nil
}

func (s *PostgresStore) PriceHistory(ctx context.Context, productID int64) ([]models.PriceHistory, error) {
	query := `
		SELECT id, product_id, price::float8, buy_it_now_price::float8, bids_count, time_remaining, date_scraped
		FROM price_history
		WHERE product_id = $1
		ORDER BY date_scraped ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	defer rows.Close()

	var out []models.PriceHistory
	for rows.Next() {
		var ph models.PriceHistory
		if err := rows.Scan(&ph.ID, &ph.ProductID, &ph.Price, &ph.BuyItNowPrice, &ph.BidsCount, &ph.TimeRemaining, &ph.DateScraped); err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, rows.Err()
}

// =============================================================================
// Workers
// =============================================================================

func (s *PostgresStore) StaleActiveProducts(ctx context.Context, olderThan time.Duration, limit int) ([]models.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM product p
		WHERE p.ended = FALSE AND p.url <> '' AND p.updated_at < $1
		ORDER BY p.updated_at ASC
		LIMIT $2`

	return s.queryProducts(ctx, query, time.Now().Add(-olderThan), limit)
}

func (s *PostgresStore) ProductsMissingImage(ctx context.Context, limit int) ([]models.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM product p
		WHERE p.image_url <> '' AND p.image_key IS NULL
		ORDER BY p.id
		LIMIT $1`

	return s.queryProducts(ctx, query, limit)
}

func (s *PostgresStore) SetImageKey(ctx context.Context, productID int64, key string) error {
	_, err := s.pool.Exec(ctx, `UPDATE product SET image_key = $2 WHERE id = $1`, productID, key)
	if err != nil {
		return fmt.Errorf("set image key: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
