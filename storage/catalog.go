package storage

import (
	"context"
	"errors"
	"time"

	"price_tracker/models"
)

// ErrConflict means a concurrent ingest inserted the same external id first.
// The whole transaction should be retried.
var ErrConflict = errors.New("product already exists")

// CatalogTx is what one ingest may do inside its transaction.
type CatalogTx interface {
	// LockProduct returns the product for externalID, holding a row lock
	// until the transaction ends. Returns nil, nil when absent.
	LockProduct(ctx context.Context, externalID string) (*models.Product, error)
	// InsertProduct sets p.ID. Returns ErrConflict on a duplicate external id.
	InsertProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	// LatestPrice returns nil, nil when the product has no history.
	LatestPrice(ctx context.Context, productID int64) (*models.PriceHistory, error)
	InsertPrice(ctx context.Context, ph *models.PriceHistory) error
}

// ProductFilter narrows product listings. A nil Ended means all products.
type ProductFilter struct {
	Ended *bool
}

// Catalog is the product store, backed by Postgres or SQLite.
type Catalog interface {
	WithTx(ctx context.Context, fn func(tx CatalogTx) error) error

	ListCategories(ctx context.Context) ([]models.Category, error)
	UpsertCategories(ctx context.Context, cats []models.Category) error

	ListProducts(ctx context.Context, f ProductFilter) ([]models.ProductSnapshot, error)
	// GetProduct returns nil, nil when absent.
	GetProduct(ctx context.Context, id int64) (*models.ProductSnapshot, error)
	// PriceHistory is ordered oldest first.
	PriceHistory(ctx context.Context, productID int64) ([]models.PriceHistory, error)

	StaleActiveProducts(ctx context.Context, olderThan time.Duration, limit int) ([]models.Product, error)
	ProductsMissingImage(ctx context.Context, limit int) ([]models.Product, error)
	SetImageKey(ctx context.Context, productID int64, key string) error

	Close()
}

var (
	_ Catalog = (*PostgresStore)(nil)
	_ Catalog = (*SQLiteCatalog)(nil)
)
