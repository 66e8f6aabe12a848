// Package ledger_repo provides the PostgreSQL implementation of the stock
// movement repository. Movements are append-only; there is no update or
// delete path by design.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "reg_stock_movements"

var movementColumns = []string{
	"id", "lot_id", "product_id", "movement_type",
	"quantity_delta", "resulting_quantity",
	"reason", "actor", "occurred_at",
}

// Repo implements ledger.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates a new movement repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create appends one movement.
func (r *Repo) Create(ctx context.Context, m *ledger.StockMovement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.LotID, m.ProductID, m.Type,
			m.QuantityDelta, m.ResultingQuantity,
			m.Reason, m.Actor, m.OccurredAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	_, err = r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// ListByProduct returns a product's movements newest first. limit <= 0 means
// unbounded.
func (r *Repo) ListByProduct(ctx context.Context, productID id.ID, limit, offset int) ([]*ledger.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("occurred_at DESC", "id DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*ledger.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// ListByLot returns a lot's movements oldest first for chain replay.
func (r *Repo) ListByLot(ctx context.Context, lotID id.ID) ([]*ledger.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"lot_id": lotID}).
		OrderBy("occurred_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*ledger.StockMovement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// CountByProduct returns the total number of movements for a product.
func (r *Repo) CountByProduct(ctx context.Context, productID id.ID) (int64, error) {
	sql := `SELECT COUNT(*) FROM reg_stock_movements WHERE product_id = $1`

	var count int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, productID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count movements: %w", err)
	}
	return count, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*Repo)(nil)
