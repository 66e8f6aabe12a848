// Package product_repo implements the read-mostly product gateway. The
// engine does not own products; it reads identity and pricing, and writes
// only the aggregate stock field on behalf of reconciliation.
package product_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/product"
	"lotledger/internal/infrastructure/storage/postgres"
)

const productsTable = "cat_products"

var productColumns = []string{
	"id", "sku", "name", "stock",
	"purchase_price", "retail_price", "updated_at",
}

// Repo implements product.Gateway.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates a new product gateway.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID returns one product or NotFound.
func (r *Repo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// Exists reports whether the product is present.
func (r *Repo) Exists(ctx context.Context, productID id.ID) (bool, error) {
	sql := `SELECT EXISTS(SELECT 1 FROM cat_products WHERE id = $1)`

	var exists bool
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return exists, nil
}

// ListIDs returns every product id for sweep operations.
func (r *Repo) ListIDs(ctx context.Context) ([]id.ID, error) {
	sql := `SELECT id FROM cat_products ORDER BY id`

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &ids, sql); err != nil {
		return nil, fmt.Errorf("list product ids: %w", err)
	}
	return ids, nil
}

// UpdateStock writes the aggregate stock field. Reconciliation is the only
// caller.
func (r *Repo) UpdateStock(ctx context.Context, productID id.ID, stock types.Quantity) error {
	q := r.builder.Update(productsTable).
		Set("stock", stock).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": productID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID.String())
	}
	return nil
}

// Ensure interface compliance.
var _ product.Gateway = (*Repo)(nil)
