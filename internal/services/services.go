// Package services hosts the ledger's mutating operations. Every
// operation runs inside one serializable transaction: domain record,
// balance mutation(s) and audit rows commit together or not at all, and
// the committed audit batch is then handed to the dispatcher outside the
// transaction.
package services

import (
	"context"
	"encoding/json"

	"splitledger/internal/ledgererr"
	"splitledger/internal/store"
)

var (
	ErrFriendshipNotFound       = ledgererr.NotFound("Friendship not found")
	ErrExpenseNotFound          = ledgererr.NotFound("Expense not found")
	ErrSettlementNotFound       = ledgererr.NotFound("Settlement not found")
	ErrFriendshipInactive       = ledgererr.Conflict("Friendship is not active")
	ErrAllSettledUp             = ledgererr.Conflict("You are all settled up")
	ErrSettlementExceedsBalance = ledgererr.BadRequest("Settlement amount cannot exceed current balance")
	ErrWrongSettlementDirection = ledgererr.BadRequest("Settlement payer must be the party who is owed")
	ErrOutstandingBalance       = ledgererr.Conflict("Balance must be zero before this action")
	ErrNotAMember               = ledgererr.BadRequest("Payer and all debtors must be members of this group")
	ErrExpenseDeleted           = ledgererr.Conflict("Expense has been deleted")
	ErrSettlementViaExpense     = ledgererr.BadRequest("Settlements are recorded through settle up")
	ErrNonPositiveSettlement    = ledgererr.BadRequest("Settlement amount must be positive")
	ErrBalanceRowMissing        = ledgererr.Retryable("Balance row changed during update, retry the operation", nil)
)

type AuditStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.AuditEntry) error
}

// AuditDispatcher receives committed batches; implementations must never
// block the caller.
type AuditDispatcher interface {
	Dispatch(entries []store.AuditEntry)
}

func jsonSnapshot(fields map[string]any) *string {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
