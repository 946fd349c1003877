package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"splitledger/internal/ledger"
)

// GroupBalanceStore maintains the group balance matrix: one row per
// canonical member pair per group. Creation-path deltas go through an
// atomic insert-or-increment so concurrent expenses on the same pair never
// lose an update; edit and delete paths instead lock the affected rows and
// overwrite them with recomputed absolute values.
type GroupBalanceStore struct {
	db DB
}

type GroupBalance struct {
	ID           string `db:"id"`
	GroupID      string `db:"group_id"`
	Participant1 string `db:"participant1"`
	Participant2 string `db:"participant2"`
	Balance      int64  `db:"balance"`
}

func (b GroupBalance) Key() ledger.PairKey {
	return ledger.PairKey{Participant1: b.Participant1, Participant2: b.Participant2}
}

func NewGroupBalanceStore(db DB) *GroupBalanceStore {
	return &GroupBalanceStore{db: db}
}

// ApplyDelta adds a signed delta to the pair's balance, creating the row
// at the delta when it does not exist yet. The whole step is one
// conditional upsert, not a read followed by a write.
func (s *GroupBalanceStore) ApplyDelta(ctx context.Context, tx Execer, id, groupID string, key ledger.PairKey, delta int64) error {
	query := `
		INSERT INTO group_balances (id, group_id, participant1, participant2, balance)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, participant1, participant2)
		DO UPDATE SET balance = group_balances.balance + EXCLUDED.balance, updated_at = NOW()
	`
	_, err := tx.ExecContext(ctx, query, id, groupID, key.Participant1, key.Participant2, delta)
	return err
}

func (s *GroupBalanceStore) Get(ctx context.Context, groupID string, key ledger.PairKey) (GroupBalance, error) {
	var row GroupBalance
	err := s.db.GetContext(ctx, &row, `
		SELECT id, group_id, participant1, participant2, balance
		FROM group_balances
		WHERE group_id = $1 AND participant1 = $2 AND participant2 = $3
	`, groupID, key.Participant1, key.Participant2)
	if err != nil {
		return GroupBalance{}, err
	}
	return row, nil
}

func (s *GroupBalanceStore) GetForUpdate(ctx context.Context, tx Getter, groupID string, key ledger.PairKey) (GroupBalance, error) {
	var row GroupBalance
	err := tx.GetContext(ctx, &row, `
		SELECT id, group_id, participant1, participant2, balance
		FROM group_balances
		WHERE group_id = $1 AND participant1 = $2 AND participant2 = $3
		FOR UPDATE
	`, groupID, key.Participant1, key.Participant2)
	if err != nil {
		return GroupBalance{}, err
	}
	return row, nil
}

// LockPairs locks every existing balance row for the given pair keys.
// Keys are locked in canonical order so two concurrent edits touching the
// same pairs cannot deadlock. Pairs with no row yet are simply absent from
// the result.
func (s *GroupBalanceStore) LockPairs(ctx context.Context, tx Selecter, groupID string, keys []ledger.PairKey) ([]GroupBalance, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ordered := make([]ledger.PairKey, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	args := []any{groupID}
	tuples := make([]string, len(ordered))
	for i, key := range ordered {
		tuples[i] = fmt.Sprintf("($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, key.Participant1, key.Participant2)
	}
	query := fmt.Sprintf(`
		SELECT id, group_id, participant1, participant2, balance
		FROM group_balances
		WHERE group_id = $1 AND (participant1, participant2) IN (%s)
		ORDER BY participant1, participant2
		FOR UPDATE
	`, strings.Join(tuples, ", "))

	var rows []GroupBalance
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertAbsolute writes fully recomputed balances keyed by canonical pair,
// overwriting whatever value is stored. Used by the edit and delete paths,
// where every touched row's absolute balance is already known.
func (s *GroupBalanceStore) UpsertAbsolute(ctx context.Context, tx Execer, rows []GroupBalance) error {
	query := `
		INSERT INTO group_balances (id, group_id, participant1, participant2, balance)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, participant1, participant2)
		DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()
	`
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query, row.ID, row.GroupID, row.Participant1, row.Participant2, row.Balance); err != nil {
			return err
		}
	}
	return nil
}

func (s *GroupBalanceStore) UpdateBalance(ctx context.Context, tx Execer, balanceID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE group_balances
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, balanceID)
	return err
}

func (s *GroupBalanceStore) ListByGroup(ctx context.Context, groupID string) ([]GroupBalance, error) {
	var rows []GroupBalance
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, group_id, participant1, participant2, balance
		FROM group_balances
		WHERE group_id = $1
		ORDER BY participant1, participant2
	`, groupID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
