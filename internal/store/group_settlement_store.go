package store

import "context"

// GroupSettlementStore persists settlements between two group members.
// The payer is always the party receiving money; direction is validated
// against the pair balance before a row is written.
type GroupSettlementStore struct {
	db DB
}

type GroupSettlement struct {
	ID          string `db:"id"`
	GroupID     string `db:"group_id"`
	PayerID     string `db:"payer_id"`
	DebtorID    string `db:"debtor_id"`
	Amount      int64  `db:"amount"`
	Description string `db:"description"`
	CreatedAt   any    `db:"created_at"`
}

type GroupSettlementInput struct {
	ID          string
	GroupID     string
	PayerID     string
	DebtorID    string
	Amount      int64
	Description string
}

func NewGroupSettlementStore(db DB) *GroupSettlementStore {
	return &GroupSettlementStore{db: db}
}

func (s *GroupSettlementStore) Create(ctx context.Context, tx Execer, input GroupSettlementInput) error {
	query := `
		INSERT INTO group_settlements (id, group_id, payer_id, debtor_id, amount, description)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.GroupID, input.PayerID, input.DebtorID, input.Amount, input.Description,
	)
	return err
}

func (s *GroupSettlementStore) GetByID(ctx context.Context, settlementID string) (GroupSettlement, error) {
	var row GroupSettlement
	err := s.db.GetContext(ctx, &row, `
		SELECT id, group_id, payer_id, debtor_id, amount, description, created_at
		FROM group_settlements
		WHERE id = $1
	`, settlementID)
	if err != nil {
		return GroupSettlement{}, err
	}
	return row, nil
}

func (s *GroupSettlementStore) GetForUpdate(ctx context.Context, tx Getter, settlementID string) (GroupSettlement, error) {
	var row GroupSettlement
	err := tx.GetContext(ctx, &row, `
		SELECT id, group_id, payer_id, debtor_id, amount, description, created_at
		FROM group_settlements
		WHERE id = $1
		FOR UPDATE
	`, settlementID)
	if err != nil {
		return GroupSettlement{}, err
	}
	return row, nil
}

func (s *GroupSettlementStore) Update(ctx context.Context, tx Execer, input GroupSettlementInput) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_settlements
		SET amount = $1, description = $2, updated_at = NOW()
		WHERE id = $3
	`, input.Amount, input.Description, input.ID)
	return err
}

func (s *GroupSettlementStore) Delete(ctx context.Context, tx Execer, settlementID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM group_settlements WHERE id = $1`, settlementID)
	return err
}
