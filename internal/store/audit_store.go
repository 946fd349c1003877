package store

import "context"

const (
	AuditInsert = "INSERT"
	AuditUpdate = "UPDATE"
	AuditDelete = "DELETE"
)

// AuditEntry records one mutated row. Entries are batched per logical
// operation and written inside the owning transaction, so the trail can
// never show a mutation whose business writes were rolled back.
type AuditEntry struct {
	ID        string  `db:"id"`
	ActorID   string  `db:"actor_id"`
	Action    string  `db:"action"`
	TableName string  `db:"table_name"`
	EntityID  string  `db:"entity_id"`
	OldData   *string `db:"old_data"`
	NewData   *string `db:"new_data"`
	CreatedAt any     `db:"created_at"`
}

type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) InsertEntries(ctx context.Context, tx Execer, entries []AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, actor_id, action, table_name, entity_id, old_data, new_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query,
			entry.ID, entry.ActorID, entry.Action, entry.TableName,
			entry.EntityID, entry.OldData, entry.NewData,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *AuditStore) ListByEntity(ctx context.Context, tableName, entityID string) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, action, table_name, entity_id, old_data, new_data, created_at
		FROM audit_logs
		WHERE table_name = $1 AND entity_id = $2
		ORDER BY created_at
	`, tableName, entityID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, action, table_name, entity_id, old_data, new_data, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
