package store

import "context"

// GroupExpenseStore persists group expenses and their per-debtor lines.
// Participant rows store the computed amounts so edits and deletes can
// reverse exactly what was applied.
type GroupExpenseStore struct {
	db DB
}

type GroupExpense struct {
	ID          string `db:"id"`
	GroupID     string `db:"group_id"`
	PayerID     string `db:"payer_id"`
	TotalAmount int64  `db:"total_amount"`
	PayerShare  int64  `db:"payer_share"`
	SplitType   string `db:"split_type"`
	Description string `db:"description"`
	CreatedAt   any    `db:"created_at"`
}

type GroupExpenseParticipant struct {
	ID        string `db:"id"`
	ExpenseID string `db:"expense_id"`
	DebtorID  string `db:"debtor_id"`
	Amount    int64  `db:"amount"`
}

type GroupExpenseInput struct {
	ID          string
	GroupID     string
	PayerID     string
	TotalAmount int64
	PayerShare  int64
	SplitType   string
	Description string
}

func NewGroupExpenseStore(db DB) *GroupExpenseStore {
	return &GroupExpenseStore{db: db}
}

func (s *GroupExpenseStore) Create(ctx context.Context, tx Execer, input GroupExpenseInput) error {
	query := `
		INSERT INTO group_expenses (id, group_id, payer_id, total_amount, payer_share, split_type, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.GroupID, input.PayerID, input.TotalAmount,
		input.PayerShare, input.SplitType, input.Description,
	)
	return err
}

func (s *GroupExpenseStore) GetByID(ctx context.Context, expenseID string) (GroupExpense, error) {
	var row GroupExpense
	err := s.db.GetContext(ctx, &row, `
		SELECT id, group_id, payer_id, total_amount, payer_share, split_type, description, created_at
		FROM group_expenses
		WHERE id = $1
	`, expenseID)
	if err != nil {
		return GroupExpense{}, err
	}
	return row, nil
}

func (s *GroupExpenseStore) GetForUpdate(ctx context.Context, tx Getter, expenseID string) (GroupExpense, error) {
	var row GroupExpense
	err := tx.GetContext(ctx, &row, `
		SELECT id, group_id, payer_id, total_amount, payer_share, split_type, description, created_at
		FROM group_expenses
		WHERE id = $1
		FOR UPDATE
	`, expenseID)
	if err != nil {
		return GroupExpense{}, err
	}
	return row, nil
}

func (s *GroupExpenseStore) Update(ctx context.Context, tx Execer, input GroupExpenseInput) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_expenses
		SET payer_id = $1, total_amount = $2, payer_share = $3, split_type = $4, description = $5, updated_at = NOW()
		WHERE id = $6
	`, input.PayerID, input.TotalAmount, input.PayerShare, input.SplitType, input.Description, input.ID)
	return err
}

func (s *GroupExpenseStore) UpdateDescription(ctx context.Context, tx Execer, expenseID, description string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_expenses
		SET description = $1, updated_at = NOW()
		WHERE id = $2
	`, description, expenseID)
	return err
}

func (s *GroupExpenseStore) Delete(ctx context.Context, tx Execer, expenseID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM group_expenses WHERE id = $1`, expenseID)
	return err
}

func (s *GroupExpenseStore) InsertParticipants(ctx context.Context, tx Execer, rows []GroupExpenseParticipant) error {
	query := `
		INSERT INTO group_expense_participants (id, expense_id, debtor_id, amount)
		VALUES ($1, $2, $3, $4)
	`
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query, row.ID, row.ExpenseID, row.DebtorID, row.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (s *GroupExpenseStore) ListParticipants(ctx context.Context, q Selecter, expenseID string) ([]GroupExpenseParticipant, error) {
	var rows []GroupExpenseParticipant
	err := q.SelectContext(ctx, &rows, `
		SELECT id, expense_id, debtor_id, amount
		FROM group_expense_participants
		WHERE expense_id = $1
		ORDER BY debtor_id
	`, expenseID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GroupExpenseStore) DeleteParticipants(ctx context.Context, tx Execer, expenseID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM group_expense_participants WHERE expense_id = $1`, expenseID)
	return err
}

func (s *GroupExpenseStore) ListByGroup(ctx context.Context, groupID string) ([]GroupExpense, error) {
	var rows []GroupExpense
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, group_id, payer_id, total_amount, payer_share, split_type, description, created_at
		FROM group_expenses
		WHERE group_id = $1
		ORDER BY created_at DESC
	`, groupID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
