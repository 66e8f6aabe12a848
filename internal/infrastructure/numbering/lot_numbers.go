// Package numbering assigns human-readable lot numbers.
package numbering

import (
	"context"
	"fmt"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/lot"
	"lotledger/pkg/sequence"
)

const (
	lotNumberPrefix = "LOT"
	lotNumberWidth  = 5
)

// LotNumbers implements lot.NumberGenerator over a database-backed sequence,
// one counter per product. Numbers are allocated outside the creating
// transaction: gaps after a rollback are fine, duplicates are not.
type LotNumbers struct {
	sequences *sequence.Service
	opts      *sequence.Options
}

// New creates a lot number generator. The strict strategy trades one
// round-trip per number for gap-free allocation under normal operation.
func New(sequences *sequence.Service) *LotNumbers {
	return &LotNumbers{
		sequences: sequences,
		opts:      &sequence.Options{Strategy: sequence.StrategyStrict},
	}
}

// NextLotNumber returns the next number for a product, formatted LOT-00001.
func (g *LotNumbers) NextLotNumber(ctx context.Context, productID id.ID) (string, error) {
	key := "lot:" + productID.String()
	number, err := g.sequences.NextFormatted(ctx, key, lotNumberPrefix, lotNumberWidth, g.opts)
	if err != nil {
		return "", fmt.Errorf("next lot number: %w", err)
	}
	return number, nil
}

var _ lot.NumberGenerator = (*LotNumbers)(nil)
