package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"

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

var ErrBulkValidation = ledgererr.BadRequest("Bulk import failed validation")

type GroupStore interface {
	CountActiveMembers(ctx context.Context, q store.Getter, groupID string, memberIDs []string) (int, error)
}

type GroupExpenseStore interface {
	Create(ctx context.Context, tx store.Execer, input store.GroupExpenseInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, expenseID string) (store.GroupExpense, error)
	Update(ctx context.Context, tx store.Execer, input store.GroupExpenseInput) error
	UpdateDescription(ctx context.Context, tx store.Execer, expenseID, description string) error
	Delete(ctx context.Context, tx store.Execer, expenseID string) error
	InsertParticipants(ctx context.Context, tx store.Execer, rows []store.GroupExpenseParticipant) error
	ListParticipants(ctx context.Context, q store.Selecter, expenseID string) ([]store.GroupExpenseParticipant, error)
	DeleteParticipants(ctx context.Context, tx store.Execer, expenseID string) error
}

type GroupBalanceStore interface {
	ApplyDelta(ctx context.Context, tx store.Execer, id, groupID string, key ledger.PairKey, delta int64) error
	Get(ctx context.Context, groupID string, key ledger.PairKey) (store.GroupBalance, error)
	GetForUpdate(ctx context.Context, tx store.Getter, groupID string, key ledger.PairKey) (store.GroupBalance, error)
	LockPairs(ctx context.Context, tx store.Selecter, groupID string, keys []ledger.PairKey) ([]store.GroupBalance, error)
	UpsertAbsolute(ctx context.Context, tx store.Execer, rows []store.GroupBalance) error
	UpdateBalance(ctx context.Context, tx store.Execer, balanceID string, balance int64) error
	ListByGroup(ctx context.Context, groupID string) ([]store.GroupBalance, error)
}

type GroupSettlementStore interface {
	Create(ctx context.Context, tx store.Execer, input store.GroupSettlementInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, settlementID string) (store.GroupSettlement, error)
	Update(ctx context.Context, tx store.Execer, input store.GroupSettlementInput) error
	Delete(ctx context.Context, tx store.Execer, settlementID string) error
}

// GroupLedgerService maintains the group balance matrix. A single expense
// fans out to one pair row per debtor; creation uses an atomic
// insert-or-increment per pair, while edits and deletes lock every
// affected row, recompute absolute balances in memory and overwrite them
// by key.
type GroupLedgerService struct {
	txRunner    db.TxRunner
	groups      GroupStore
	expenses    GroupExpenseStore
	balances    GroupBalanceStore
	settlements GroupSettlementStore
	audits      AuditStore
	dispatcher  AuditDispatcher
	log         *zap.Logger
}

func NewGroupLedgerService(txRunner db.TxRunner, groups GroupStore, expenses GroupExpenseStore, balances GroupBalanceStore, settlements GroupSettlementStore, audits AuditStore, dispatcher AuditDispatcher, log *zap.Logger) *GroupLedgerService {
	return &GroupLedgerService{
		txRunner:    txRunner,
		groups:      groups,
		expenses:    expenses,
		balances:    balances,
		settlements: settlements,
		audits:      audits,
		dispatcher:  dispatcher,
		log:         log,
	}
}

// GroupExpenseItem is one expense intent. Parties are group membership
// ids; the payer's own share never appears in Debtors.
type GroupExpenseItem struct {
	PayerID         string
	TotalMinor      int64
	PayerShareMinor *int64
	PayerPercent    *decimal.Decimal
	SplitType       split.SplitType
	Debtors         []split.DebtorInput
	Description     string
}

func (item GroupExpenseItem) intent() split.Intent {
	return split.Intent{
		TotalMinor:      item.TotalMinor,
		Type:            item.SplitType,
		PayerID:         item.PayerID,
		PayerShareMinor: item.PayerShareMinor,
		PayerPercent:    item.PayerPercent,
		Debtors:         item.Debtors,
	}
}

type CreateGroupExpenseRequest struct {
	ActorID string
	GroupID string
	GroupExpenseItem
}

func (s *GroupLedgerService) CreateExpense(ctx context.Context, req CreateGroupExpenseRequest) (store.GroupExpense, []store.GroupExpenseParticipant, error) {
	if req.SplitType == split.SplitTypeSettlement {
		return store.GroupExpense{}, nil, ErrSettlementViaExpense
	}
	amounts, err := split.Normalize(req.intent())
	if err != nil {
		return store.GroupExpense{}, nil, ledgererr.Wrap(err)
	}
	var expense store.GroupExpense
	var participants []store.GroupExpenseParticipant
	var entries []store.AuditEntry
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.checkMembers(ctx, tx, req.GroupID, memberIDs(req.PayerID, amounts)); err != nil {
			return err
		}
		expense, participants, entries, err = s.applyNewExpense(ctx, tx, req.ActorID, req.GroupID, req.GroupExpenseItem, amounts)
		if err != nil {
			return err
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return store.GroupExpense{}, nil, err
	}
	s.dispatcher.Dispatch(entries)
	s.log.Debug("group expense created",
		zap.String("expense_id", expense.ID),
		zap.String("group_id", expense.GroupID),
		zap.Int("debtors", len(participants)))
	return expense, participants, nil
}

type UpdateGroupExpenseSplitRequest struct {
	ActorID   string
	ExpenseID string
	GroupExpenseItem
}

// UpdateExpenseSplit recomputes every affected pair. Old debtor lines are
// reversed under the old payer, new lines applied under the new payer;
// debtors retained across the edit are therefore reversed-then-reapplied,
// which stays correct even when the payer changed. All touched rows are
// locked up front and overwritten with their recomputed absolute values.
func (s *GroupLedgerService) UpdateExpenseSplit(ctx context.Context, req UpdateGroupExpenseSplitRequest) (store.GroupExpense, []store.GroupExpenseParticipant, error) {
	if req.SplitType == split.SplitTypeSettlement {
		return store.GroupExpense{}, nil, ErrSettlementViaExpense
	}
	amounts, err := split.Normalize(req.intent())
	if err != nil {
		return store.GroupExpense{}, nil, ledgererr.Wrap(err)
	}
	var updated store.GroupExpense
	var participants []store.GroupExpenseParticipant
	var entries []store.AuditEntry
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		expense, err := s.lockGroupExpense(ctx, tx, req.ExpenseID)
		if err != nil {
			return err
		}
		if err := s.checkMembers(ctx, tx, expense.GroupID, memberIDs(req.PayerID, amounts)); err != nil {
			return err
		}
		oldLines, err := s.expenses.ListParticipants(ctx, tx, expense.ID)
		if err != nil {
			return err
		}

		keys := collectPairKeys(expense.PayerID, oldLines, req.PayerID, amounts)
		working, rowByKey, err := s.lockWorkingSet(ctx, tx, expense.GroupID, keys)
		if err != nil {
			return err
		}
		for _, line := range oldLines {
			key := ledger.CanonicalPair(expense.PayerID, line.DebtorID)
			if _, ok := rowByKey[key]; !ok {
				return ErrBalanceRowMissing
			}
			delta, err := key.SignedImpact(expense.PayerID, line.Amount)
			if err != nil {
				return ledgererr.Wrap(err)
			}
			working[key] -= delta
		}
		for _, amount := range amounts {
			key := ledger.CanonicalPair(req.PayerID, amount.PartyID)
			delta, err := key.SignedImpact(req.PayerID, amount.AmountMinor)
			if err != nil {
				return ledgererr.Wrap(err)
			}
			working[key] += delta
		}

		balanceRows, balanceEntries := s.absoluteRows(req.ActorID, expense.GroupID, keys, working, rowByKey)
		if err := s.balances.UpsertAbsolute(ctx, tx, balanceRows); err != nil {
			return err
		}

		updated = expense
		updated.PayerID = req.PayerID
		updated.TotalAmount = req.TotalMinor
		updated.PayerShare = payerShareFrom(req.TotalMinor, amounts)
		updated.SplitType = string(req.SplitType)
		updated.Description = req.Description
		if err := s.expenses.Update(ctx, tx, store.GroupExpenseInput{
			ID:          updated.ID,
			GroupID:     updated.GroupID,
			PayerID:     updated.PayerID,
			TotalAmount: updated.TotalAmount,
			PayerShare:  updated.PayerShare,
			SplitType:   updated.SplitType,
			Description: updated.Description,
		}); err != nil {
			return err
		}
		if err := s.expenses.DeleteParticipants(ctx, tx, expense.ID); err != nil {
			return err
		}
		participants = participantRows(expense.ID, amounts)
		if err := s.expenses.InsertParticipants(ctx, tx, participants); err != nil {
			return err
		}

		entries = append([]store.AuditEntry{{
			ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
			TableName: "group_expenses", EntityID: expense.ID,
			OldData: groupExpenseSnapshot(expense),
			NewData: groupExpenseSnapshot(updated),
		}}, balanceEntries...)
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return store.GroupExpense{}, nil, err
	}
	s.dispatcher.Dispatch(entries)
	return updated, participants, nil
}

type UpdateGroupExpenseMetadataRequest struct {
	ActorID     string
	ExpenseID   string
	Description string
}

func (s *GroupLedgerService) UpdateExpenseMetadata(ctx context.Context, req UpdateGroupExpenseMetadataRequest) error {
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		expense, err := s.lockGroupExpense(ctx, tx, req.ExpenseID)
		if err != nil {
			return err
		}
		if err := s.expenses.UpdateDescription(ctx, tx, expense.ID, req.Description); err != nil {
			return err
		}
		entries = []store.AuditEntry{{
			ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
			TableName: "group_expenses", EntityID: expense.ID,
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

type DeleteGroupExpenseRequest struct {
	ActorID   string
	ExpenseID string
}

// DeleteExpense reverses every stored debtor line against its pair row and
// hard-deletes the expense and its participant rows.
func (s *GroupLedgerService) DeleteExpense(ctx context.Context, req DeleteGroupExpenseRequest) error {
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		expense, err := s.lockGroupExpense(ctx, tx, req.ExpenseID)
		if err != nil {
			return err
		}
		oldLines, err := s.expenses.ListParticipants(ctx, tx, expense.ID)
		if err != nil {
			return err
		}
		keys := collectPairKeys(expense.PayerID, oldLines, "", nil)
		working, rowByKey, err := s.lockWorkingSet(ctx, tx, expense.GroupID, keys)
		if err != nil {
			return err
		}
		for _, line := range oldLines {
			key := ledger.CanonicalPair(expense.PayerID, line.DebtorID)
			if _, ok := rowByKey[key]; !ok {
				return ErrBalanceRowMissing
			}
			delta, err := key.SignedImpact(expense.PayerID, line.Amount)
			if err != nil {
				return ledgererr.Wrap(err)
			}
			working[key] -= delta
		}
		balanceRows, balanceEntries := s.absoluteRows(req.ActorID, expense.GroupID, keys, working, rowByKey)
		if err := s.balances.UpsertAbsolute(ctx, tx, balanceRows); err != nil {
			return err
		}
		if err := s.expenses.DeleteParticipants(ctx, tx, expense.ID); err != nil {
			return err
		}
		if err := s.expenses.Delete(ctx, tx, expense.ID); err != nil {
			return err
		}
		entries = append([]store.AuditEntry{{
			ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditDelete,
			TableName: "group_expenses", EntityID: expense.ID,
			OldData: groupExpenseSnapshot(expense),
		}}, balanceEntries...)
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return err
	}
	s.dispatcher.Dispatch(entries)
	return nil
}

type CreateGroupSettlementRequest struct {
	ActorID     string
	GroupID     string
	PayerID     string
	DebtorID    string
	AmountMinor int64
	Description string
}

// CreateSettlement adjusts a single pair. The payer is the party receiving
// money and must be the one the balance says is owed; paying into the
// wrong direction or past zero is rejected, never clamped.
func (s *GroupLedgerService) CreateSettlement(ctx context.Context, req CreateGroupSettlementRequest) (store.GroupSettlement, error) {
	if req.AmountMinor <= 0 {
		return store.GroupSettlement{}, ErrNonPositiveSettlement
	}
	if err := money.CheckRange(req.AmountMinor); err != nil {
		return store.GroupSettlement{}, ledgererr.Wrap(err)
	}
	if req.PayerID == req.DebtorID {
		return store.GroupSettlement{}, ledgererr.BadRequest("Payer and debtor must differ")
	}
	var settlement store.GroupSettlement
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.checkMembers(ctx, tx, req.GroupID, []string{req.PayerID, req.DebtorID}); err != nil {
			return err
		}
		key := ledger.CanonicalPair(req.PayerID, req.DebtorID)
		row, err := s.balances.GetForUpdate(ctx, tx, req.GroupID, key)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAllSettledUp
			}
			return err
		}
		if row.Balance == 0 {
			return ErrAllSettledUp
		}
		if key.Creditor(row.Balance) != req.PayerID {
			return ErrWrongSettlementDirection
		}
		if req.AmountMinor > money.Abs(row.Balance) {
			return ErrSettlementExceedsBalance
		}
		impact, err := key.SignedImpact(req.PayerID, req.AmountMinor)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		newBalance := row.Balance - impact
		if err := s.balances.UpdateBalance(ctx, tx, row.ID, newBalance); err != nil {
			return err
		}
		settlement = store.GroupSettlement{
			ID:          uuid.NewString(),
			GroupID:     req.GroupID,
			PayerID:     req.PayerID,
			DebtorID:    req.DebtorID,
			Amount:      req.AmountMinor,
			Description: req.Description,
		}
		if err := s.settlements.Create(ctx, tx, store.GroupSettlementInput{
			ID:          settlement.ID,
			GroupID:     settlement.GroupID,
			PayerID:     settlement.PayerID,
			DebtorID:    settlement.DebtorID,
			Amount:      settlement.Amount,
			Description: settlement.Description,
		}); err != nil {
			return err
		}
		entries = []store.AuditEntry{
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditInsert,
				TableName: "group_settlements", EntityID: settlement.ID,
				NewData: settlementSnapshot(settlement),
			},
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "group_balances", EntityID: row.ID,
				OldData: balanceSnapshot(row.Balance),
				NewData: balanceSnapshot(newBalance),
			},
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return store.GroupSettlement{}, err
	}
	s.dispatcher.Dispatch(entries)
	return settlement, nil
}

type UpdateGroupSettlementRequest struct {
	ActorID      string
	SettlementID string
	AmountMinor  int64
	Description  string
}

func (s *GroupLedgerService) UpdateSettlement(ctx context.Context, req UpdateGroupSettlementRequest) (store.GroupSettlement, error) {
	if req.AmountMinor <= 0 {
		return store.GroupSettlement{}, ErrNonPositiveSettlement
	}
	if err := money.CheckRange(req.AmountMinor); err != nil {
		return store.GroupSettlement{}, ledgererr.Wrap(err)
	}
	var updated store.GroupSettlement
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		settlement, err := s.lockSettlement(ctx, tx, req.SettlementID)
		if err != nil {
			return err
		}
		key := ledger.CanonicalPair(settlement.PayerID, settlement.DebtorID)
		row, err := s.balances.GetForUpdate(ctx, tx, settlement.GroupID, key)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBalanceRowMissing
			}
			return err
		}
		oldImpact, err := key.SignedImpact(settlement.PayerID, settlement.Amount)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		interim := row.Balance + oldImpact
		if interim == 0 {
			return ErrAllSettledUp
		}
		if key.Creditor(interim) != settlement.PayerID {
			return ErrWrongSettlementDirection
		}
		if req.AmountMinor > money.Abs(interim) {
			return ErrSettlementExceedsBalance
		}
		newImpact, err := key.SignedImpact(settlement.PayerID, req.AmountMinor)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		newBalance := interim - newImpact
		if err := s.balances.UpdateBalance(ctx, tx, row.ID, newBalance); err != nil {
			return err
		}
		updated = settlement
		updated.Amount = req.AmountMinor
		updated.Description = req.Description
		if err := s.settlements.Update(ctx, tx, store.GroupSettlementInput{
			ID:          updated.ID,
			Amount:      updated.Amount,
			Description: updated.Description,
		}); err != nil {
			return err
		}
		entries = []store.AuditEntry{
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "group_settlements", EntityID: settlement.ID,
				OldData: settlementSnapshot(settlement),
				NewData: settlementSnapshot(updated),
			},
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "group_balances", EntityID: row.ID,
				OldData: balanceSnapshot(row.Balance),
				NewData: balanceSnapshot(newBalance),
			},
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return store.GroupSettlement{}, err
	}
	s.dispatcher.Dispatch(entries)
	return updated, nil
}

type DeleteGroupSettlementRequest struct {
	ActorID      string
	SettlementID string
}

func (s *GroupLedgerService) DeleteSettlement(ctx context.Context, req DeleteGroupSettlementRequest) error {
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		settlement, err := s.lockSettlement(ctx, tx, req.SettlementID)
		if err != nil {
			return err
		}
		key := ledger.CanonicalPair(settlement.PayerID, settlement.DebtorID)
		row, err := s.balances.GetForUpdate(ctx, tx, settlement.GroupID, key)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBalanceRowMissing
			}
			return err
		}
		impact, err := key.SignedImpact(settlement.PayerID, settlement.Amount)
		if err != nil {
			return ledgererr.Wrap(err)
		}
		newBalance := row.Balance + impact
		if err := s.balances.UpdateBalance(ctx, tx, row.ID, newBalance); err != nil {
			return err
		}
		if err := s.settlements.Delete(ctx, tx, settlement.ID); err != nil {
			return err
		}
		entries = []store.AuditEntry{
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditDelete,
				TableName: "group_settlements", EntityID: settlement.ID,
				OldData: settlementSnapshot(settlement),
			},
			{
				ID: uuid.NewString(), ActorID: req.ActorID, Action: store.AuditUpdate,
				TableName: "group_balances", EntityID: row.ID,
				OldData: balanceSnapshot(row.Balance),
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

type BulkCreateGroupExpensesRequest struct {
	ActorID string
	GroupID string
	Items   []GroupExpenseItem
}

// BulkCreateExpenses validates every row first and reports one structured
// error per failing row. Any failure means nothing commits; a clean batch
// commits in a single transaction.
func (s *GroupLedgerService) BulkCreateExpenses(ctx context.Context, req BulkCreateGroupExpensesRequest) ([]store.GroupExpense, []split.RowError, error) {
	normalized := make([][]split.DebtorAmount, len(req.Items))
	var rowErrs []split.RowError
	for i, item := range req.Items {
		if item.SplitType == split.SplitTypeSettlement {
			rowErrs = append(rowErrs, split.RowError{Index: i, Err: ErrSettlementViaExpense})
			continue
		}
		amounts, err := split.Normalize(item.intent())
		if err != nil {
			rowErrs = append(rowErrs, split.RowError{Index: i, Err: err})
			continue
		}
		normalized[i] = amounts
	}
	if len(rowErrs) > 0 {
		return nil, rowErrs, ErrBulkValidation
	}

	ids := make([]string, 0)
	for i, item := range req.Items {
		ids = append(ids, memberIDs(item.PayerID, normalized[i])...)
	}

	expenses := make([]store.GroupExpense, 0, len(req.Items))
	var entries []store.AuditEntry
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		expenses = expenses[:0]
		entries = entries[:0]
		if err := s.checkMembers(ctx, tx, req.GroupID, ids); err != nil {
			return err
		}
		for i, item := range req.Items {
			expense, _, itemEntries, err := s.applyNewExpense(ctx, tx, req.ActorID, req.GroupID, item, normalized[i])
			if err != nil {
				return err
			}
			expenses = append(expenses, expense)
			entries = append(entries, itemEntries...)
		}
		return s.audits.InsertEntries(ctx, tx, entries)
	})
	if err != nil {
		return nil, nil, err
	}
	s.dispatcher.Dispatch(entries)
	return expenses, nil, nil
}

// ListBalances returns every pair balance in the group in canonical
// participant order.
func (s *GroupLedgerService) ListBalances(ctx context.Context, groupID string) ([]store.GroupBalance, error) {
	return s.balances.ListByGroup(ctx, groupID)
}

// OwedBetween reports the balance between two members from the first
// party's point of view. A missing row means nothing has ever been owed.
func (s *GroupLedgerService) OwedBetween(ctx context.Context, groupID, partyID, otherID string) (int64, error) {
	key := ledger.CanonicalPair(partyID, otherID)
	row, err := s.balances.Get(ctx, groupID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	owed, err := key.OwedTo(partyID, row.Balance)
	if err != nil {
		return 0, ledgererr.Wrap(err)
	}
	return owed, nil
}

func (s *GroupLedgerService) applyNewExpense(ctx context.Context, tx *sqlx.Tx, actorID, groupID string, item GroupExpenseItem, amounts []split.DebtorAmount) (store.GroupExpense, []store.GroupExpenseParticipant, []store.AuditEntry, error) {
	expense := store.GroupExpense{
		ID:          uuid.NewString(),
		GroupID:     groupID,
		PayerID:     item.PayerID,
		TotalAmount: item.TotalMinor,
		PayerShare:  payerShareFrom(item.TotalMinor, amounts),
		SplitType:   string(item.SplitType),
		Description: item.Description,
	}
	if err := s.expenses.Create(ctx, tx, store.GroupExpenseInput{
		ID:          expense.ID,
		GroupID:     expense.GroupID,
		PayerID:     expense.PayerID,
		TotalAmount: expense.TotalAmount,
		PayerShare:  expense.PayerShare,
		SplitType:   expense.SplitType,
		Description: expense.Description,
	}); err != nil {
		return store.GroupExpense{}, nil, nil, err
	}
	participants := participantRows(expense.ID, amounts)
	if err := s.expenses.InsertParticipants(ctx, tx, participants); err != nil {
		return store.GroupExpense{}, nil, nil, err
	}

	entries := []store.AuditEntry{{
		ID: uuid.NewString(), ActorID: actorID, Action: store.AuditInsert,
		TableName: "group_expenses", EntityID: expense.ID,
		NewData: groupExpenseSnapshot(expense),
	}}
	for _, amount := range amounts {
		key := ledger.CanonicalPair(item.PayerID, amount.PartyID)
		delta, err := key.SignedImpact(item.PayerID, amount.AmountMinor)
		if err != nil {
			return store.GroupExpense{}, nil, nil, ledgererr.Wrap(err)
		}
		if err := s.balances.ApplyDelta(ctx, tx, uuid.NewString(), groupID, key, delta); err != nil {
			return store.GroupExpense{}, nil, nil, err
		}
		entries = append(entries, store.AuditEntry{
			ID: uuid.NewString(), ActorID: actorID, Action: store.AuditUpdate,
			TableName: "group_balances", EntityID: pairEntityID(groupID, key),
			NewData: jsonSnapshot(map[string]any{"delta": money.FormatMinor(delta)}),
		})
	}
	return expense, participants, entries, nil
}

// lockWorkingSet locks every existing row for the given keys and returns
// the balances as an in-memory working copy, plus the rows by key so ids
// survive into the overwrite.
func (s *GroupLedgerService) lockWorkingSet(ctx context.Context, tx *sqlx.Tx, groupID string, keys []ledger.PairKey) (map[ledger.PairKey]int64, map[ledger.PairKey]store.GroupBalance, error) {
	locked, err := s.balances.LockPairs(ctx, tx, groupID, keys)
	if err != nil {
		return nil, nil, err
	}
	working := make(map[ledger.PairKey]int64, len(keys))
	rowByKey := make(map[ledger.PairKey]store.GroupBalance, len(locked))
	for _, row := range locked {
		rowByKey[row.Key()] = row
		working[row.Key()] = row.Balance
	}
	return working, rowByKey, nil
}

// absoluteRows turns the recomputed working set into upsert rows and their
// audit entries, in canonical key order.
func (s *GroupLedgerService) absoluteRows(actorID, groupID string, keys []ledger.PairKey, working map[ledger.PairKey]int64, rowByKey map[ledger.PairKey]store.GroupBalance) ([]store.GroupBalance, []store.AuditEntry) {
	rows := make([]store.GroupBalance, 0, len(keys))
	entries := make([]store.AuditEntry, 0, len(keys))
	for _, key := range keys {
		balance, touched := working[key]
		if !touched {
			continue
		}
		row, exists := rowByKey[key]
		if !exists {
			row = store.GroupBalance{
				ID:           uuid.NewString(),
				GroupID:      groupID,
				Participant1: key.Participant1,
				Participant2: key.Participant2,
			}
		}
		entry := store.AuditEntry{
			ID: uuid.NewString(), ActorID: actorID, Action: store.AuditUpdate,
			TableName: "group_balances", EntityID: row.ID,
			NewData: balanceSnapshot(balance),
		}
		if exists {
			entry.OldData = balanceSnapshot(row.Balance)
		}
		row.Balance = balance
		rows = append(rows, row)
		entries = append(entries, entry)
	}
	return rows, entries
}

func (s *GroupLedgerService) lockGroupExpense(ctx context.Context, tx store.Getter, expenseID string) (store.GroupExpense, error) {
	expense, err := s.expenses.GetForUpdate(ctx, tx, expenseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.GroupExpense{}, ErrExpenseNotFound
		}
		return store.GroupExpense{}, err
	}
	return expense, nil
}

func (s *GroupLedgerService) lockSettlement(ctx context.Context, tx store.Getter, settlementID string) (store.GroupSettlement, error) {
	settlement, err := s.settlements.GetForUpdate(ctx, tx, settlementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.GroupSettlement{}, ErrSettlementNotFound
		}
		return store.GroupSettlement{}, err
	}
	return settlement, nil
}

// checkMembers runs on the mutating transaction: a concurrent membership
// change cannot slip in between the check and the commit.
func (s *GroupLedgerService) checkMembers(ctx context.Context, q store.Getter, groupID string, memberIDs []string) error {
	unique := make([]string, 0, len(memberIDs))
	seen := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	count, err := s.groups.CountActiveMembers(ctx, q, groupID, unique)
	if err != nil {
		return err
	}
	if count != len(unique) {
		return ErrNotAMember
	}
	return nil
}

func memberIDs(payerID string, amounts []split.DebtorAmount) []string {
	ids := make([]string, 0, len(amounts)+1)
	ids = append(ids, payerID)
	for _, amount := range amounts {
		ids = append(ids, amount.PartyID)
	}
	return ids
}

// collectPairKeys gathers every pair touched by an edit: the old payer
// against each old line and the new payer against each new amount,
// deduplicated and canonically ordered.
func collectPairKeys(oldPayerID string, oldLines []store.GroupExpenseParticipant, newPayerID string, amounts []split.DebtorAmount) []ledger.PairKey {
	seen := make(map[ledger.PairKey]struct{})
	keys := make([]ledger.PairKey, 0, len(oldLines)+len(amounts))
	add := func(key ledger.PairKey) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, line := range oldLines {
		add(ledger.CanonicalPair(oldPayerID, line.DebtorID))
	}
	for _, amount := range amounts {
		add(ledger.CanonicalPair(newPayerID, amount.PartyID))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func participantRows(expenseID string, amounts []split.DebtorAmount) []store.GroupExpenseParticipant {
	rows := make([]store.GroupExpenseParticipant, len(amounts))
	for i, amount := range amounts {
		rows[i] = store.GroupExpenseParticipant{
			ID:        uuid.NewString(),
			ExpenseID: expenseID,
			DebtorID:  amount.PartyID,
			Amount:    amount.AmountMinor,
		}
	}
	return rows
}

func payerShareFrom(totalMinor int64, amounts []split.DebtorAmount) int64 {
	var debtorSum int64
	for _, amount := range amounts {
		debtorSum += amount.AmountMinor
	}
	return totalMinor - debtorSum
}

func groupExpenseSnapshot(expense store.GroupExpense) *string {
	return jsonSnapshot(map[string]any{
		"payer_id":     expense.PayerID,
		"total_amount": money.FormatMinor(expense.TotalAmount),
		"payer_share":  money.FormatMinor(expense.PayerShare),
		"split_type":   expense.SplitType,
		"description":  expense.Description,
	})
}

func settlementSnapshot(settlement store.GroupSettlement) *string {
	return jsonSnapshot(map[string]any{
		"payer_id":    settlement.PayerID,
		"debtor_id":   settlement.DebtorID,
		"amount":      money.FormatMinor(settlement.Amount),
		"description": settlement.Description,
	})
}

func pairEntityID(groupID string, key ledger.PairKey) string {
	return groupID + "/" + key.Participant1 + "/" + key.Participant2
}
