package services

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"splitledger/internal/ledger"
	"splitledger/internal/store"
)

type fakeTxRunner struct {
	err error
	tx  *sqlx.Tx
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.tx)
}

type stubFriendshipStore struct {
	getByIDFn       func(ctx context.Context, friendshipID string) (store.Friendship, error)
	getForUpdateFn  func(ctx context.Context, tx store.Getter, friendshipID string) (store.Friendship, error)
	updateBalanceFn func(ctx context.Context, tx store.Execer, friendshipID string, balance int64) error
	setStatusFn     func(ctx context.Context, tx store.Execer, friendshipID, status string) error
	listByUserFn    func(ctx context.Context, userID string) ([]store.Friendship, error)
}

func (s stubFriendshipStore) GetByID(ctx context.Context, friendshipID string) (store.Friendship, error) {
	return s.getByIDFn(ctx, friendshipID)
}

func (s stubFriendshipStore) GetForUpdate(ctx context.Context, tx store.Getter, friendshipID string) (store.Friendship, error) {
	return s.getForUpdateFn(ctx, tx, friendshipID)
}

func (s stubFriendshipStore) UpdateBalance(ctx context.Context, tx store.Execer, friendshipID string, balance int64) error {
	if s.updateBalanceFn == nil {
		return nil
	}
	return s.updateBalanceFn(ctx, tx, friendshipID, balance)
}

func (s stubFriendshipStore) SetStatus(ctx context.Context, tx store.Execer, friendshipID, status string) error {
	if s.setStatusFn == nil {
		return nil
	}
	return s.setStatusFn(ctx, tx, friendshipID, status)
}

func (s stubFriendshipStore) ListByUser(ctx context.Context, userID string) ([]store.Friendship, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

type stubFriendExpenseStore struct {
	createFn            func(ctx context.Context, tx store.Execer, input store.FriendExpenseInput) error
	getForUpdateFn      func(ctx context.Context, tx store.Getter, expenseID string) (store.FriendExpense, error)
	updateFn            func(ctx context.Context, tx store.Execer, input store.FriendExpenseInput) error
	updateDescriptionFn func(ctx context.Context, tx store.Execer, expenseID, description string) error
	softDeleteFn        func(ctx context.Context, tx store.Execer, expenseID string) error
	listByFriendshipFn  func(ctx context.Context, friendshipID string) ([]store.FriendExpense, error)
}

func (s stubFriendExpenseStore) Create(ctx context.Context, tx store.Execer, input store.FriendExpenseInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubFriendExpenseStore) GetForUpdate(ctx context.Context, tx store.Getter, expenseID string) (store.FriendExpense, error) {
	return s.getForUpdateFn(ctx, tx, expenseID)
}

func (s stubFriendExpenseStore) Update(ctx context.Context, tx store.Execer, input store.FriendExpenseInput) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, tx, input)
}

func (s stubFriendExpenseStore) UpdateDescription(ctx context.Context, tx store.Execer, expenseID, description string) error {
	if s.updateDescriptionFn == nil {
		return nil
	}
	return s.updateDescriptionFn(ctx, tx, expenseID, description)
}

func (s stubFriendExpenseStore) SoftDelete(ctx context.Context, tx store.Execer, expenseID string) error {
	if s.softDeleteFn == nil {
		return nil
	}
	return s.softDeleteFn(ctx, tx, expenseID)
}

func (s stubFriendExpenseStore) ListByFriendship(ctx context.Context, friendshipID string) ([]store.FriendExpense, error) {
	if s.listByFriendshipFn == nil {
		return nil, nil
	}
	return s.listByFriendshipFn(ctx, friendshipID)
}

type stubGroupStore struct {
	countActiveMembersFn func(ctx context.Context, q store.Getter, groupID string, memberIDs []string) (int, error)
}

func (s stubGroupStore) CountActiveMembers(ctx context.Context, q store.Getter, groupID string, memberIDs []string) (int, error) {
	if s.countActiveMembersFn == nil {
		return len(memberIDs), nil
	}
	return s.countActiveMembersFn(ctx, q, groupID, memberIDs)
}

type stubGroupExpenseStore struct {
	createFn             func(ctx context.Context, tx store.Execer, input store.GroupExpenseInput) error
	getForUpdateFn       func(ctx context.Context, tx store.Getter, expenseID string) (store.GroupExpense, error)
	updateFn             func(ctx context.Context, tx store.Execer, input store.GroupExpenseInput) error
	updateDescriptionFn  func(ctx context.Context, tx store.Execer, expenseID, description string) error
	deleteFn             func(ctx context.Context, tx store.Execer, expenseID string) error
	insertParticipantsFn func(ctx context.Context, tx store.Execer, rows []store.GroupExpenseParticipant) error
	listParticipantsFn   func(ctx context.Context, q store.Selecter, expenseID string) ([]store.GroupExpenseParticipant, error)
	deleteParticipantsFn func(ctx context.Context, tx store.Execer, expenseID string) error
}

func (s stubGroupExpenseStore) Create(ctx context.Context, tx store.Execer, input store.GroupExpenseInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubGroupExpenseStore) GetForUpdate(ctx context.Context, tx store.Getter, expenseID string) (store.GroupExpense, error) {
	return s.getForUpdateFn(ctx, tx, expenseID)
}

func (s stubGroupExpenseStore) Update(ctx context.Context, tx store.Execer, input store.GroupExpenseInput) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, tx, input)
}

func (s stubGroupExpenseStore) UpdateDescription(ctx context.Context, tx store.Execer, expenseID, description string) error {
	if s.updateDescriptionFn == nil {
		return nil
	}
	return s.updateDescriptionFn(ctx, tx, expenseID, description)
}

func (s stubGroupExpenseStore) Delete(ctx context.Context, tx store.Execer, expenseID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, tx, expenseID)
}

func (s stubGroupExpenseStore) InsertParticipants(ctx context.Context, tx store.Execer, rows []store.GroupExpenseParticipant) error {
	if s.insertParticipantsFn == nil {
		return nil
	}
	return s.insertParticipantsFn(ctx, tx, rows)
}

func (s stubGroupExpenseStore) ListParticipants(ctx context.Context, q store.Selecter, expenseID string) ([]store.GroupExpenseParticipant, error) {
	if s.listParticipantsFn == nil {
		return nil, nil
	}
	return s.listParticipantsFn(ctx, q, expenseID)
}

func (s stubGroupExpenseStore) DeleteParticipants(ctx context.Context, tx store.Execer, expenseID string) error {
	if s.deleteParticipantsFn == nil {
		return nil
	}
	return s.deleteParticipantsFn(ctx, tx, expenseID)
}

type stubGroupBalanceStore struct {
	applyDeltaFn     func(ctx context.Context, tx store.Execer, id, groupID string, key ledger.PairKey, delta int64) error
	getFn            func(ctx context.Context, groupID string, key ledger.PairKey) (store.GroupBalance, error)
	getForUpdateFn   func(ctx context.Context, tx store.Getter, groupID string, key ledger.PairKey) (store.GroupBalance, error)
	lockPairsFn      func(ctx context.Context, tx store.Selecter, groupID string, keys []ledger.PairKey) ([]store.GroupBalance, error)
	upsertAbsoluteFn func(ctx context.Context, tx store.Execer, rows []store.GroupBalance) error
	updateBalanceFn  func(ctx context.Context, tx store.Execer, balanceID string, balance int64) error
	listByGroupFn    func(ctx context.Context, groupID string) ([]store.GroupBalance, error)
}

func (s stubGroupBalanceStore) ApplyDelta(ctx context.Context, tx store.Execer, id, groupID string, key ledger.PairKey, delta int64) error {
	if s.applyDeltaFn == nil {
		return nil
	}
	return s.applyDeltaFn(ctx, tx, id, groupID, key, delta)
}

func (s stubGroupBalanceStore) Get(ctx context.Context, groupID string, key ledger.PairKey) (store.GroupBalance, error) {
	return s.getFn(ctx, groupID, key)
}

func (s stubGroupBalanceStore) GetForUpdate(ctx context.Context, tx store.Getter, groupID string, key ledger.PairKey) (store.GroupBalance, error) {
	return s.getForUpdateFn(ctx, tx, groupID, key)
}

func (s stubGroupBalanceStore) LockPairs(ctx context.Context, tx store.Selecter, groupID string, keys []ledger.PairKey) ([]store.GroupBalance, error) {
	if s.lockPairsFn == nil {
		return nil, nil
	}
	return s.lockPairsFn(ctx, tx, groupID, keys)
}

func (s stubGroupBalanceStore) UpsertAbsolute(ctx context.Context, tx store.Execer, rows []store.GroupBalance) error {
	if s.upsertAbsoluteFn == nil {
		return nil
	}
	return s.upsertAbsoluteFn(ctx, tx, rows)
}

func (s stubGroupBalanceStore) UpdateBalance(ctx context.Context, tx store.Execer, balanceID string, balance int64) error {
	if s.updateBalanceFn == nil {
		return nil
	}
	return s.updateBalanceFn(ctx, tx, balanceID, balance)
}

func (s stubGroupBalanceStore) ListByGroup(ctx context.Context, groupID string) ([]store.GroupBalance, error) {
	if s.listByGroupFn == nil {
		return nil, nil
	}
	return s.listByGroupFn(ctx, groupID)
}

type stubGroupSettlementStore struct {
	createFn       func(ctx context.Context, tx store.Execer, input store.GroupSettlementInput) error
	getForUpdateFn func(ctx context.Context, tx store.Getter, settlementID string) (store.GroupSettlement, error)
	updateFn       func(ctx context.Context, tx store.Execer, input store.GroupSettlementInput) error
	deleteFn       func(ctx context.Context, tx store.Execer, settlementID string) error
}

func (s stubGroupSettlementStore) Create(ctx context.Context, tx store.Execer, input store.GroupSettlementInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubGroupSettlementStore) GetForUpdate(ctx context.Context, tx store.Getter, settlementID string) (store.GroupSettlement, error) {
	return s.getForUpdateFn(ctx, tx, settlementID)
}

func (s stubGroupSettlementStore) Update(ctx context.Context, tx store.Execer, input store.GroupSettlementInput) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, tx, input)
}

func (s stubGroupSettlementStore) Delete(ctx context.Context, tx store.Execer, settlementID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, tx, settlementID)
}

type stubAuditStore struct {
	insertFn func(ctx context.Context, tx store.Execer, entries []store.AuditEntry) error
}

func (s stubAuditStore) InsertEntries(ctx context.Context, tx store.Execer, entries []store.AuditEntry) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, entries)
}

type stubDispatcher struct {
	batches [][]store.AuditEntry
}

func (s *stubDispatcher) Dispatch(entries []store.AuditEntry) {
	s.batches = append(s.batches, entries)
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

func int64Ptr(v int64) *int64 {
	return &v
}
