package services

import (
	"context"
	"encoding/json"

	"splitledger/internal/money"
	"splitledger/internal/store"
)

type AuditLogStore interface {
	ListByEntity(ctx context.Context, tableName, entityID string) ([]store.AuditEntry, error)
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

// AuditTrailService reads the committed audit trail back for callers. It
// never writes; entries are produced by the ledger services inside their
// own transactions.
type AuditTrailService struct {
	logs AuditLogStore
}

func NewAuditTrailService(logs AuditLogStore) *AuditTrailService {
	return &AuditTrailService{logs: logs}
}

// EntityTrail returns every audit entry recorded for one row, oldest
// first.
func (s *AuditTrailService) EntityTrail(ctx context.Context, tableName, entityID string) ([]store.AuditEntry, error) {
	return s.logs.ListByEntity(ctx, tableName, entityID)
}

// Recent pages through the newest entries across all tables.
func (s *AuditTrailService) Recent(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	return s.logs.List(ctx, limit, offset)
}

// BalanceChange is one balance movement decoded from an audit entry's
// snapshots.
type BalanceChange struct {
	EntryID  string
	Action   string
	OldMinor *int64
	NewMinor *int64
}

// BalanceTrail decodes the balance snapshots recorded for a friendship or
// a group pair into minor units, oldest first. Entries whose snapshots
// carry no balance, such as expense row inserts, are skipped.
func (s *AuditTrailService) BalanceTrail(ctx context.Context, tableName, entityID string) ([]BalanceChange, error) {
	entries, err := s.logs.ListByEntity(ctx, tableName, entityID)
	if err != nil {
		return nil, err
	}
	changes := make([]BalanceChange, 0, len(entries))
	for _, entry := range entries {
		oldMinor, err := snapshotBalance(entry.OldData)
		if err != nil {
			return nil, err
		}
		newMinor, err := snapshotBalance(entry.NewData)
		if err != nil {
			return nil, err
		}
		if oldMinor == nil && newMinor == nil {
			continue
		}
		changes = append(changes, BalanceChange{
			EntryID:  entry.ID,
			Action:   entry.Action,
			OldMinor: oldMinor,
			NewMinor: newMinor,
		})
	}
	return changes, nil
}

func snapshotBalance(data *string) (*int64, error) {
	if data == nil {
		return nil, nil
	}
	var snapshot struct {
		Balance *string `json:"balance"`
	}
	if err := json.Unmarshal([]byte(*data), &snapshot); err != nil {
		return nil, err
	}
	if snapshot.Balance == nil {
		return nil, nil
	}
	minor, err := money.ParseMinor(*snapshot.Balance)
	if err != nil {
		return nil, err
	}
	return &minor, nil
}
