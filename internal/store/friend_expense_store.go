package store

import (
	"context"
	"database/sql"
	"errors"
)

var ErrAlreadyDeleted = errors.New("expense already deleted")

// FriendExpenseStore persists friend-ledger expenses. Settlements live in
// the same table with split_type SETTLEMENT; the stored debtor amount is
// what makes deletion an exact inverse later, so it is never recomputed.
type FriendExpenseStore struct {
	db DB
}

type FriendExpense struct {
	ID           string         `db:"id"`
	FriendshipID string         `db:"friendship_id"`
	PayerID      string         `db:"payer_id"`
	TotalAmount  int64          `db:"total_amount"`
	DebtorAmount int64          `db:"debtor_amount"`
	SplitType    string         `db:"split_type"`
	Description  string         `db:"description"`
	CreatedAt    any            `db:"created_at"`
	DeletedAt    sql.NullTime   `db:"deleted_at"`
}

type FriendExpenseInput struct {
	ID           string
	FriendshipID string
	PayerID      string
	TotalAmount  int64
	DebtorAmount int64
	SplitType    string
	Description  string
}

func NewFriendExpenseStore(db DB) *FriendExpenseStore {
	return &FriendExpenseStore{db: db}
}

func (s *FriendExpenseStore) Create(ctx context.Context, tx Execer, input FriendExpenseInput) error {
	query := `
		INSERT INTO friend_expenses (id, friendship_id, payer_id, total_amount, debtor_amount, split_type, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.FriendshipID, input.PayerID, input.TotalAmount,
		input.DebtorAmount, input.SplitType, input.Description,
	)
	return err
}

func (s *FriendExpenseStore) GetByID(ctx context.Context, expenseID string) (FriendExpense, error) {
	var row FriendExpense
	err := s.db.GetContext(ctx, &row, `
		SELECT id, friendship_id, payer_id, total_amount, debtor_amount, split_type, description, created_at, deleted_at
		FROM friend_expenses
		WHERE id = $1
	`, expenseID)
	if err != nil {
		return FriendExpense{}, err
	}
	return row, nil
}

func (s *FriendExpenseStore) GetForUpdate(ctx context.Context, tx Getter, expenseID string) (FriendExpense, error) {
	var row FriendExpense
	err := tx.GetContext(ctx, &row, `
		SELECT id, friendship_id, payer_id, total_amount, debtor_amount, split_type, description, created_at, deleted_at
		FROM friend_expenses
		WHERE id = $1
		FOR UPDATE
	`, expenseID)
	if err != nil {
		return FriendExpense{}, err
	}
	return row, nil
}

func (s *FriendExpenseStore) Update(ctx context.Context, tx Execer, input FriendExpenseInput) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE friend_expenses
		SET payer_id = $1, total_amount = $2, debtor_amount = $3, split_type = $4, description = $5, updated_at = NOW()
		WHERE id = $6
	`, input.PayerID, input.TotalAmount, input.DebtorAmount, input.SplitType, input.Description, input.ID)
	return err
}

func (s *FriendExpenseStore) UpdateDescription(ctx context.Context, tx Execer, expenseID, description string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE friend_expenses
		SET description = $1, updated_at = NOW()
		WHERE id = $2
	`, description, expenseID)
	return err
}

// SoftDelete marks the row deleted; the guard on deleted_at makes a repeat
// delete visible as zero affected rows.
func (s *FriendExpenseStore) SoftDelete(ctx context.Context, tx Execer, expenseID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE friend_expenses
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, expenseID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyDeleted
	}
	return nil
}

func (s *FriendExpenseStore) ListByFriendship(ctx context.Context, friendshipID string) ([]FriendExpense, error) {
	var rows []FriendExpense
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, friendship_id, payer_id, total_amount, debtor_amount, split_type, description, created_at, deleted_at
		FROM friend_expenses
		WHERE friendship_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, friendshipID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
