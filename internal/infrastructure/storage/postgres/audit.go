package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/lotops"
	"lotledger/pkg/logger"
)

const auditTable = "sys_audit_log"

// CompressionAlgo specifies how an audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one recorded lot mutation.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	Action            string          `db:"action"`
	LotID             id.ID           `db:"lot_id"`
	Actor             string          `db:"actor"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// LotAuditor persists an audit trail of lot mutations. Large payloads are
// zstd-compressed. Writes are best-effort: a failed audit insert is logged
// and never fails the business operation.
type LotAuditor struct {
	txm               *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ lotops.ChangeAuditor = (*LotAuditor)(nil)

// NewLotAuditor creates the auditor.
func NewLotAuditor(txm *TxManager) (*LotAuditor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &LotAuditor{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// LogChange records a lot mutation. It runs on the surrounding transaction
// when one is active, so the audit row commits or rolls back with the
// business write.
func (a *LotAuditor) LogChange(ctx context.Context, action string, lotID id.ID, actor string, payload any) {
	if actor == "" {
		actor = appctx.GetActorID(ctx)
	}

	entry := AuditEntry{
		ID:              id.New(),
		Action:          action,
		LotID:           lotID,
		Actor:           actor,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			logger.Warn(ctx, "audit payload marshal failed", "action", action, "lot_id", lotID, "error", err)
			raw = nil
		}
		if len(raw) > a.compressThreshold {
			entry.PayloadCompressed = a.encoder.EncodeAll(raw, nil)
			entry.CompressionAlgo = CompressionZstd
		} else {
			entry.Payload = raw
		}
	}

	sql := `
		INSERT INTO sys_audit_log (
			id, action, lot_id, actor,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := a.txm.GetQuerier(ctx).Exec(ctx, sql,
		entry.ID, entry.Action, entry.LotID, entry.Actor,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo, entry.CreatedAt,
	)
	if err != nil {
		logger.Warn(ctx, "audit write failed", "action", action, "lot_id", lotID, "error", err)
	}
}

// History returns a lot's audit entries, newest first, with compressed
// payloads inflated.
func (a *LotAuditor) History(ctx context.Context, lotID id.ID, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := `
		SELECT id, action, lot_id, actor,
		       payload, payload_compressed, compression_algo, created_at
		FROM sys_audit_log
		WHERE lot_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := a.txm.GetQuerier(ctx).Query(ctx, sql, lotID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.Action, &e.LotID, &e.Actor,
			&e.Payload, &e.PayloadCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			raw, err := a.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit payload: %w", err)
			}
			e.Payload = raw
			e.PayloadCompressed = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
