package dto

import (
	"lotledger/internal/domain/reconcile"
)

// AdjustStockRequest sets a product's aggregate stock to an absolute value.
// The engine translates it into lot-level adjustments.
type AdjustStockRequest struct {
	NewStock float64 `json:"newStock" binding:"min=0"`
	Reason   string  `json:"reason,omitempty"`
}

// SyncErrorResponse is one per-product failure in a batch operation.
type SyncErrorResponse struct {
	ProductID string `json:"productId"`
	Error     string `json:"error"`
}

// FromSyncErrors converts batch failures to response DTOs.
func FromSyncErrors(errs []reconcile.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, SyncErrorResponse{
			ProductID: e.ProductID.String(),
			Error:     e.Err.Error(),
		})
	}
	return out
}

// SyncAllResponse reports a full aggregate stock reconciliation.
type SyncAllResponse struct {
	Success  bool                `json:"success"`
	Failures []SyncErrorResponse `json:"failures,omitempty"`
}

// MigrationResponse reports a legacy stock migration run.
type MigrationResponse struct {
	ProductsMigrated int                 `json:"productsMigrated"`
	LotsCreated      int                 `json:"lotsCreated"`
	Failures         []SyncErrorResponse `json:"failures,omitempty"`
}

// FromMigrationSummary converts a migration summary to a response DTO.
func FromMigrationSummary(s *reconcile.MigrationSummary) MigrationResponse {
	return MigrationResponse{
		ProductsMigrated: s.ProductsMigrated,
		LotsCreated:      s.LotsCreated,
		Failures:         FromSyncErrors(s.Failures),
	}
}
