// Package costing_repo persists per-product valuation settings.
package costing_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/costing"
	"lotledger/internal/infrastructure/storage/postgres"
)

const settingsTable = "reg_valuation_settings"

// Repo implements costing.SettingsRepository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewRepo creates a new valuation settings repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the stored settings for a product, or nil when none exist so
// the costing service can apply its default.
func (r *Repo) Get(ctx context.Context, productID id.ID) (*costing.ValuationSettings, error) {
	q := r.builder.Select("product_id", "costing_method", "updated_at").
		From(settingsTable).
		Where(squirrel.Eq{"product_id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s costing.ValuationSettings
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get valuation settings: %w", err)
	}
	return &s, nil
}

// Upsert stores or replaces a product's settings.
func (r *Repo) Upsert(ctx context.Context, s *costing.ValuationSettings) error {
	sql := `
		INSERT INTO reg_valuation_settings (product_id, costing_method, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET
			costing_method = EXCLUDED.costing_method,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, s.ProductID, s.Method, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert valuation settings: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ costing.SettingsRepository = (*Repo)(nil)
