// Package lot_repo provides the PostgreSQL implementation of the stock lot
// repository.
package lot_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/lot"
	"lotledger/internal/infrastructure/storage/postgres"
)

const lotsTable = "reg_stock_lots"

var lotColumns = []string{
	"id", "product_id", "lot_number",
	"initial_quantity", "remaining_quantity", "purchase_price",
	"expiry_date", "created_at",
}

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

// Repo implements lot.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates a new stock lot repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new lot.
func (r *Repo) Create(ctx context.Context, l *lot.StockLot) error {
	q := r.builder.Insert(lotsTable).
		Columns(lotColumns...).
		Values(
			l.ID, l.ProductID, l.LotNumber,
			l.InitialQuantity, l.RemainingQuantity, l.PurchasePrice,
			l.ExpiryDate, l.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	_, err = r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.NewDuplicate("lot", l.LotNumber).WithCause(err)
		}
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

// GetByID returns one lot or NotFound.
func (r *Repo) GetByID(ctx context.Context, lotID id.ID) (*lot.StockLot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"id": lotID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var l lot.StockLot
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &l, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("lot", lotID.String())
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return &l, nil
}

// GetByIDForUpdate returns one lot under a row lock. Must run inside a
// transaction; the lock is what serializes concurrent movements per lot.
func (r *Repo) GetByIDForUpdate(ctx context.Context, lotID id.ID) (*lot.StockLot, error) {
	sql := `
		SELECT id, product_id, lot_number,
		       initial_quantity, remaining_quantity, purchase_price,
		       expiry_date, created_at
		FROM reg_stock_lots
		WHERE id = $1
		FOR UPDATE
	`

	var l lot.StockLot
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &l, sql, lotID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("lot", lotID.String())
		}
		return nil, fmt.Errorf("get lot for update: %w", err)
	}
	return &l, nil
}

// ListByProduct returns a product's lots, oldest first.
func (r *Repo) ListByProduct(ctx context.Context, productID id.ID, includeEmpty bool) ([]*lot.StockLot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"product_id": productID})

	if !includeEmpty {
		q = q.Where(squirrel.Gt{"remaining_quantity": int64(0)})
	}

	q = q.OrderBy("created_at", "lot_number")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []*lot.StockLot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	return lots, nil
}

// ListByIDs returns the given lots. Fails with NotFound if any id is missing.
func (r *Repo) ListByIDs(ctx context.Context, lotIDs []id.ID) ([]*lot.StockLot, error) {
	return r.listByIDs(ctx, lotIDs, false)
}

// ListByIDsForUpdate locks and returns the given lots ordered by id. The
// fixed lock order prevents deadlocks between concurrent batches.
func (r *Repo) ListByIDsForUpdate(ctx context.Context, lotIDs []id.ID) ([]*lot.StockLot, error) {
	return r.listByIDs(ctx, lotIDs, true)
}

func (r *Repo) listByIDs(ctx context.Context, lotIDs []id.ID, forUpdate bool) ([]*lot.StockLot, error) {
	if len(lotIDs) == 0 {
		return nil, nil
	}

	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"id": lotIDs}).
		OrderBy("id")

	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []*lot.StockLot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	if len(lots) != len(lotIDs) {
		found := make(map[id.ID]struct{}, len(lots))
		for _, l := range lots {
			found[l.ID] = struct{}{}
		}
		for _, lid := range lotIDs {
			if _, ok := found[lid]; !ok {
				return nil, apperror.NewNotFound("lot", lid.String())
			}
		}
	}
	return lots, nil
}

// ListExpiring returns lots with quantity on hand whose expiry date is on or
// before the deadline.
func (r *Repo) ListExpiring(ctx context.Context, deadline time.Time) ([]*lot.StockLot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.NotEq{"expiry_date": nil}).
		Where(squirrel.LtOrEq{"expiry_date": deadline}).
		Where(squirrel.Gt{"remaining_quantity": int64(0)}).
		OrderBy("expiry_date", "lot_number")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lots []*lot.StockLot
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &lots, sql, args...); err != nil {
		return nil, fmt.Errorf("select expiring lots: %w", err)
	}
	return lots, nil
}

// SetRemaining writes a lot's remaining quantity. Only the movement ledger
// calls this, and only inside the transaction that appends the movement.
func (r *Repo) SetRemaining(ctx context.Context, lotID id.ID, remaining types.Quantity) error {
	q := r.builder.Update(lotsTable).
		Set("remaining_quantity", remaining).
		Where(squirrel.Eq{"id": lotID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update remaining quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("lot", lotID.String())
	}
	return nil
}

// SetExpiry writes a lot's expiry date. nil clears it.
func (r *Repo) SetExpiry(ctx context.Context, lotID id.ID, expiry *time.Time) error {
	q := r.builder.Update(lotsTable).
		Set("expiry_date", expiry).
		Where(squirrel.Eq{"id": lotID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update expiry date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("lot", lotID.String())
	}
	return nil
}

// Delete removes a lot row. Callers must have zeroed and logged it first.
func (r *Repo) Delete(ctx context.Context, lotID id.ID) error {
	q := r.builder.Delete(lotsTable).Where(squirrel.Eq{"id": lotID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("lot", lotID.String())
	}
	return nil
}

// SumRemaining returns the total remaining quantity across a product's lots.
func (r *Repo) SumRemaining(ctx context.Context, productID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(remaining_quantity), 0)
		FROM reg_stock_lots
		WHERE product_id = $1
	`

	var sumScaled int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, productID).Scan(&sumScaled)
	if err != nil {
		return 0, fmt.Errorf("sum remaining quantity: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(sumScaled), nil
}

// CountByProduct returns the number of lots for a product.
func (r *Repo) CountByProduct(ctx context.Context, productID id.ID) (int64, error) {
	sql := `SELECT COUNT(*) FROM reg_stock_lots WHERE product_id = $1`

	var count int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, productID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count lots: %w", err)
	}
	return count, nil
}

// Ensure interface compliance.
var _ lot.Repository = (*Repo)(nil)
