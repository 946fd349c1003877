package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"splitledger/internal/db"
	"splitledger/internal/ledger"
	"splitledger/internal/ledgererr"
	"splitledger/internal/money"
	"splitledger/internal/split"
	"splitledger/internal/store"
)

type FriendshipStore interface {
	GetByID(ctx context.Context, friendshipID string) (store.Friendship, error)
	GetForUpdate(ctx context.Context, tx store.Getter, friendshipID string) (store.Friendship, error)
	UpdateBalance(ctx context.Context, tx store.Execer, friendshipID string, balance int64) error
	SetStatus(ctx context.Context, tx store.Execer, friendshipID, status string) error
	ListByUser(ctx context.Context, userID string) ([]store.Friendship, error)
}

type FriendExpenseStore interface {
	Create(ctx context.Context, tx store.Execer, input store.FriendExpenseInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, expenseID string) (store.FriendExpense, error)
	Update(ctx context.Context, tx store.Execer, input store.FriendExpenseInput) error
	UpdateDescription(ctx context.Context, tx store.Execer, expenseID, description string) error
	SoftDelete(ctx context.Context, tx store.Execer, expenseID string) error
	ListByFriendship(ctx context.Context, friendshipID string) ([]store.FriendExpense, error)
}

// FriendLedgerService mutates the friend pairwise ledger. The friendship
// row is the single source of truth for who owes whom; it is re-read under
// a row lock inside every transaction, never cached.
type FriendLedgerService struct {
	txRunner    db.TxRunner
	friendships FriendshipStore
	expenses    FriendExpenseStore
	audits      AuditStore
	dispatcher  AuditDispatcher
	log         *zap.Logger
}

func NewFriendLedgerService(txRunner db.TxRunner, friendships FriendshipStore, expenses FriendExpenseStore, audits AuditStore, dispatcher AuditDispatcher, log *zap.Logger) *FriendLedgerService {
	return &FriendLedgerService{
		txRunner:    txRunner,
		friendships: friendships,
		expenses:    expenses,
		audits:      audits,
		dispatcher:  dispatcher,
		log:         log,
	}
}

type CreateFriendExpenseRequest struct {
	ActorID          string
	FriendshipID     string
	PayerID          string
	TotalMinor       int64
	SplitType        split.SplitType
	DebtorShareMinor *int64
	DebtorPercent    *decimal.Decimal
	Description      string
}

func (s *FriendLedgerService) CreateExpense(ctx context.Context, req CreateFriendExpenseRequest) (store.FriendExpense, error) {
	if req.SplitType == split.SplitTypeSettlement {
		return store.FriendExpense{}, ErrSettlementViaExpense
	}
	var expense store.FriendExpense
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		friendship, err := s.lockActiveFriendship(ctx, tx, req.FriendshipID)
		if err != nil {
			return err
		}
		pair := ledger.FriendPair{Party1: friendship.Friend1ID, Party2: friendship.Friend2ID}
		debtorID, err := pair.Other(req.PayerID)
		if err != nil {
			return ledgererr.BadRequest("Payer must be part of this friendship")
		}
		amounts, err := split.Normalize(friendIntent(req, debtorID))
		if err != nil {
			return ledgererr.Wrap(err)
		}
		debtorAmount := amounts[0].AmountMinor

		impact, err := pair.SignedImpact(req.PayerID, debtorAmount)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		newBalance := friendship.Balance + impact

		expense = store.FriendExpense{
			ID:           uuid.NewString(),
			FriendshipID: friendship.ID,
			PayerID:      req.PayerID,
			TotalAmount:  req.TotalMinor,
			DebtorAmount: debtorAmount,
			SplitType:    string(req.SplitType),
			Description:  req.Description,
		}
		if err := s.expenses.Create(ctx, tx, store.FriendExpenseInput{
			ID:           expense.ID,
			FriendshipID: expense.FriendshipID,
			PayerID:      expense.PayerID,
			TotalAmount:  expense.TotalAmount,
			DebtorAmount: expense.DebtorAmount,
			SplitType:    expense.SplitType,
			Description:  expense.Description,
		}); err != nil {
			return err
		}
		if err := s.friendships.UpdateBalance(ctx, tx, friendship.ID, newBalance); err != nil {
			return err
		}
		entries = []store.AuditEntry{
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditInsert,
				TableName: "friend_expenses", EntityID: expense.ID,
				NewData: friendExpenseSnapshot(expense),
			},
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "friendships", EntityID: friendship.ID,
				OldData: balanceSnapshot(friendship.Balance),
				NewData: balanceSnapshot(newBalance),
			},
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return store.FriendExpense{}, err
	}
	s.dispatcher.Dispatch(entries)
	s.log.Debug("friend expense created",
		zap.String("expense_id", expense.ID),
		zap.String("friendship_id", expense.FriendshipID))
	return expense, nil
}

type SettleFriendRequest struct {
	ActorID      string
	FriendshipID string
	AmountMinor  int64
	Description  string
}

// SettleUp records a settlement against the friendship. The direction is
// derived from the current balance: the party currently owed money is the
// settlement's payer (the one receiving payment), and the balance moves
// toward zero, never past it.
func (s *FriendLedgerService) SettleUp(ctx context.Context, req SettleFriendRequest) (store.FriendExpense, error) {
	if req.AmountMinor <= 0 {
		return store.FriendExpense{}, ErrNonPositiveSettlement
	}
	if err := money.CheckRange(req.AmountMinor); err != nil {
		return store.FriendExpense{}, ledgererr.Wrap(err)
	}
	var settlement store.FriendExpense
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		friendship, err := s.lockActiveFriendship(ctx, tx, req.FriendshipID)
		if err != nil {
			return err
		}
		if friendship.Balance == 0 {
			return ErrAllSettledUp
		}
		if req.AmountMinor > money.Abs(friendship.Balance) {
			return ErrSettlementExceedsBalance
		}
		pair := ledger.FriendPair{Party1: friendship.Friend1ID, Party2: friendship.Friend2ID}
		payerID := pair.Creditor(friendship.Balance)
		impact, err := pair.SignedImpact(payerID, req.AmountMinor)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		newBalance := friendship.Balance - impact

		settlement = store.FriendExpense{
			ID:           uuid.NewString(),
			FriendshipID: friendship.ID,
			PayerID:      payerID,
			TotalAmount:  req.AmountMinor,
			DebtorAmount: req.AmountMinor,
			SplitType:    string(split.SplitTypeSettlement),
			Description:  req.Description,
		}
		if err := s.expenses.Create(ctx, tx, store.FriendExpenseInput{
			ID:           settlement.ID,
			FriendshipID: settlement.FriendshipID,
			PayerID:      settlement.PayerID,
			TotalAmount:  settlement.TotalAmount,
			DebtorAmount: settlement.DebtorAmount,
			SplitType:    settlement.SplitType,
			Description:  settlement.Description,
		}); err != nil {
			return err
		}
		if err := s.friendships.UpdateBalance(ctx, tx, friendship.ID, newBalance); err != nil {
			return err
		}
		entries = []store.AuditEntry{
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditInsert,
				TableName: "friend_expenses", EntityID: settlement.ID,
				NewData: friendExpenseSnapshot(settlement),
			},
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "friendships", EntityID: friendship.ID,
				OldData: balanceSnapshot(friendship.Balance),
				NewData: balanceSnapshot(newBalance),
			},
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return store.FriendExpense{}, err
	}
	s.dispatcher.Dispatch(entries)
	return settlement, nil
}

// UpdateFriendExpenseSplitRequest is the balance-affecting update variant.
// Metadata-only edits use UpdateFriendExpenseMetadataRequest instead; the
// distinction is a type-level fact, not a field-presence check.
type UpdateFriendExpenseSplitRequest struct {
	ActorID          string
	ExpenseID        string
	PayerID          string
	TotalMinor       int64
	SplitType        split.SplitType
	DebtorShareMinor *int64
	DebtorPercent    *decimal.Decimal
	Description      string
}

func (s *FriendLedgerService) UpdateExpenseSplit(ctx context.Context, req UpdateFriendExpenseSplitRequest) (store.FriendExpense, error) {
	var updated store.FriendExpense
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		expense, err := s.lockExpense(ctx, tx, req.ExpenseID)
		if err != nil {
			return err
		}
		friendship, err := s.lockActiveFriendship(ctx, tx, expense.FriendshipID)
		if err != nil {
			return err
		}
		pair := ledger.FriendPair{Party1: friendship.Friend1ID, Party2: friendship.Friend2ID}

		// Reverse the old record's impact under its original payer and
		// type, then apply the new intent as if fresh. This handles every
		// payer/debtor same-or-changed combination, including swaps.
		oldDelta, err := friendRecordDelta(pair, expense.PayerID, expense.SplitType, expense.DebtorAmount)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		interim := friendship.Balance - oldDelta

		var payerID string
		var debtorAmount int64
		if req.SplitType == split.SplitTypeSettlement {
			if req.TotalMinor <= 0 {
				return ErrNonPositiveSettlement
			}
			if interim == 0 {
				return ErrAllSettledUp
			}
			if req.TotalMinor > money.Abs(interim) {
				return ErrSettlementExceedsBalance
			}
			payerID = pair.Creditor(interim)
			debtorAmount = req.TotalMinor
		} else {
			payerID = req.PayerID
			debtorID, err := pair.Other(payerID)
			if err != nil {
				return ledgererr.BadRequest("Payer must be part of this friendship")
			}
			amounts, err := split.Normalize(friendIntent(CreateFriendExpenseRequest{
				PayerID:          payerID,
				TotalMinor:       req.TotalMinor,
				SplitType:        req.SplitType,
				DebtorShareMinor: req.DebtorShareMinor,
				DebtorPercent:    req.DebtorPercent,
			}, debtorID))
			if err != nil {
				return ledgererr.Wrap(err)
			}
			debtorAmount = amounts[0].AmountMinor
		}

		newDelta, err := friendRecordDelta(pair, payerID, string(req.SplitType), debtorAmount)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		newBalance := interim + newDelta

		updated = expense
		updated.PayerID = payerID
		updated.TotalAmount = req.TotalMinor
		updated.DebtorAmount = debtorAmount
		updated.SplitType = string(req.SplitType)
		updated.Description = req.Description

		if err := s.expenses.Update(ctx, tx, store.FriendExpenseInput{
			ID:           updated.ID,
			FriendshipID: updated.FriendshipID,
			PayerID:      updated.PayerID,
			TotalAmount:  updated.TotalAmount,
			DebtorAmount: updated.DebtorAmount,
			SplitType:    updated.SplitType,
			Description:  updated.Description,
		}); err != nil {
			return err
		}
		if err := s.friendships.UpdateBalance(ctx, tx, friendship.ID, newBalance); err != nil {
			return err
		}
		entries = []store.AuditEntry{
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "friend_expenses", EntityID: expense.ID,
				OldData: friendExpenseSnapshot(expense),
				NewData: friendExpenseSnapshot(updated),
			},
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "friendships", EntityID: friendship.ID,
				OldData: balanceSnapshot(friendship.Balance),
				NewData: balanceSnapshot(newBalance),
			},
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return store.FriendExpense{}, err
	}
	s.dispatcher.Dispatch(entries)
	return updated, nil
}

type UpdateFriendExpenseMetadataRequest struct {
	ActorID     string
	ExpenseID   string
	Description string
}

// UpdateExpenseMetadata changes descriptive fields only; no balance is
// read or written.
func (s *FriendLedgerService) UpdateExpenseMetadata(ctx context.Context, req UpdateFriendExpenseMetadataRequest) error {
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		expense, err := s.lockExpense(ctx, tx, req.ExpenseID)
		if err != nil {
			return err
		}
		if err := s.expenses.UpdateDescription(ctx, tx, expense.ID, req.Description); err != nil {
			return err
		}
		entries = []store.AuditEntry{{
			ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
			TableName: "friend_expenses", EntityID: expense.ID,
			OldData: jsonSnapshot(map[string]any{"description": expense.Description}),
			NewData: jsonSnapshot(map[string]any{"description": req.Description}),
		}}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return err
	}
	s.dispatcher.Dispatch(entries)
	return nil
}

type DeleteFriendExpenseRequest struct {
	ActorID   string
	ExpenseID string
}

// DeleteExpense reverses the stored record exactly: the persisted debtor
// amount makes the inverse always computable without recalculating the
// split.
func (s *FriendLedgerService) DeleteExpense(ctx context.Context, req DeleteFriendExpenseRequest) error {
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		expense, err := s.lockExpense(ctx, tx, req.ExpenseID)
		if err != nil {
			return err
		}
		friendship, err := s.lockActiveFriendship(ctx, tx, expense.FriendshipID)
		if err != nil {
			return err
		}
		pair := ledger.FriendPair{Party1: friendship.Friend1ID, Party2: friendship.Friend2ID}
		delta, err := friendRecordDelta(pair, expense.PayerID, expense.SplitType, expense.DebtorAmount)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		newBalance := friendship.Balance - delta

		if err := s.expenses.SoftDelete(ctx, tx, expense.ID); err != nil {
			if errors.Is(err, store.ErrAlreadyDeleted) {
				return ErrExpenseDeleted
			}
			return err
		}
		if err := s.friendships.UpdateBalance(ctx, tx, friendship.ID, newBalance); err != nil {
			return err
		}
		entries = []store.AuditEntry{
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditDelete,
				TableName: "friend_expenses", EntityID: expense.ID,
				OldData: friendExpenseSnapshot(expense),
			},
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "friendships", EntityID: friendship.ID,
				OldData: balanceSnapshot(friendship.Balance),
				NewData: balanceSnapshot(newBalance),
			},
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return err
	}
	s.dispatcher.Dispatch(entries)
	return nil
}

// ArchiveFriendship and BlockFriendship are gated on an exactly-zero
// balance; an open debt in either direction blocks the state change.
func (s *FriendLedgerService) ArchiveFriendship(ctx context.Context, actorID, friendshipID string) error {
	return s.setFriendshipStatus(ctx, actorID, friendshipID, store.FriendshipArchived)
}

func (s *FriendLedgerService) BlockFriendship(ctx context.Context, actorID, friendshipID string) error {
	return s.setFriendshipStatus(ctx, actorID, friendshipID, store.FriendshipBlocked)
}

func (s *FriendLedgerService) setFriendshipStatus(ctx context.Context, actorID, friendshipID, status string) error {
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		friendship, err := s.friendships.GetForUpdate(ctx, tx, friendshipID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrFriendshipNotFound
			}
			return err
		}
		if friendship.Balance != 0 {
			return ErrOutstandingBalance
		}
		if err := s.friendships.SetStatus(ctx, tx, friendship.ID, status); err != nil {
			return err
		}
		entries = []store.AuditEntry{{
			ID: uuid.NewString(), ActorID: actorID, Action: store.AuditUpdate,
			TableName: "friendships", EntityID: friendship.ID,
			OldData: jsonSnapshot(map[string]any{"status": friendship.Status}),
			NewData: jsonSnapshot(map[string]any{"status": status}),
		}}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return err
	}
	s.dispatcher.Dispatch(entries)
	return nil
}

// ListFriendships returns every friendship the user is a party of,
// newest first.
func (s *FriendLedgerService) ListFriendships(ctx context.Context, userID string) ([]store.Friendship, error) {
	return s.friendships.ListByUser(ctx, userID)
}

// ListExpenses returns the friendship's live expenses, newest first.
// Soft-deleted expenses are excluded.
func (s *FriendLedgerService) ListExpenses(ctx context.Context, friendshipID string) ([]store.FriendExpense, error) {
	if _, err := s.friendships.GetByID(ctx, friendshipID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFriendshipNotFound
		}
		return nil, err
	}
	return s.expenses.ListByFriendship(ctx, friendshipID)
}

// OwedTo reports the friendship balance from one party's point of view:
// positive means the other friend owes them.
func (s *FriendLedgerService) OwedTo(ctx context.Context, friendshipID, partyID string) (int64, error) {
	friendship, err := s.friendships.GetByID(ctx, friendshipID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrFriendshipNotFound
		}
		return 0, err
	}
	pair := ledger.FriendPair{Party1: friendship.Friend1ID, Party2: friendship.Friend2ID}
	owed, err := pair.OwedTo(partyID, friendship.Balance)
	if err != nil {
		return 0, ledgererr.BadRequest("Party must be part of this friendship")
	}
	return owed, nil
}

func (s *FriendLedgerService) lockActiveFriendship(ctx context.Context, tx store.Getter, friendshipID string) (store.Friendship, error) {
	friendship, err := s.friendships.GetForUpdate(ctx, tx, friendshipID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Friendship{}, ErrFriendshipNotFound
		}
		return store.Friendship{}, err
	}
	if friendship.Status != store.FriendshipActive {
		return store.Friendship{}, ErrFriendshipInactive
	}
	return friendship, nil
}

func (s *FriendLedgerService) lockExpense(ctx context.Context, tx store.Getter, expenseID string) (store.FriendExpense, error) {
	expense, err := s.expenses.GetForUpdate(ctx, tx, expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.FriendExpense{}, ErrExpenseNotFound
		}
		return store.FriendExpense{}, err
	}
	if expense.DeletedAt.Valid {
		return store.FriendExpense{}, ErrExpenseDeleted
	}
	return expense, nil
}

// friendIntent maps the two-party request onto a split intent. The payer's
// implied share is derived so the calculator's reconciliation checks hold.
func friendIntent(req CreateFriendExpenseRequest, debtorID string) split.Intent {
	intent := split.Intent{
		TotalMinor: req.TotalMinor,
		Type:       req.SplitType,
		PayerID:    req.PayerID,
	}
	switch req.SplitType {
	case split.SplitTypeUnequal:
		intent.Debtors = []split.DebtorInput{{PartyID: debtorID, AmountMinor: req.DebtorShareMinor}}
		if req.DebtorShareMinor != nil {
			payerShare := req.TotalMinor - *req.DebtorShareMinor
			intent.PayerShareMinor = &payerShare
		}
	case split.SplitTypePercentage:
		intent.Debtors = []split.DebtorInput{{PartyID: debtorID, Percent: req.DebtorPercent}}
		if req.DebtorPercent != nil {
			payerPercent := decimal.NewFromInt(100).Sub(*req.DebtorPercent)
			intent.PayerPercent = &payerPercent
		}
	default:
		intent.Debtors = []split.DebtorInput{{PartyID: debtorID}}
	}
	return intent
}

// friendRecordDelta is the signed balance impact a stored record applied
// when it was committed. Subtracting it reverses the record exactly.
func friendRecordDelta(pair ledger.FriendPair, payerID, splitType string, debtorAmount int64) (int64, error) {
	signed, err := pair.SignedImpact(payerID, debtorAmount)
	if err != nil {
		return 0, err
	}
	if splitType == string(split.SplitTypeSettlement) {
		return -signed, nil
	}
	return signed, nil
}

func friendExpenseSnapshot(expense store.FriendExpense) *string {
	return jsonSnapshot(map[string]any{
		"payer_id":      expense.PayerID,
		"total_amount":  money.FormatMinor(expense.TotalAmount),
		"debtor_amount": money.FormatMinor(expense.DebtorAmount),
		"split_type":    expense.SplitType,
		"description":   expense.Description,
	})
}

func balanceSnapshot(balance int64) *string {
	return jsonSnapshot(map[string]any{"balance": money.FormatMinor(balance)})
}
