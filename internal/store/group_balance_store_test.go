package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"splitledger/internal/ledger"
)

func TestGroupBalanceStoreApplyDeltaIsConditionalUpsert(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "ON CONFLICT (group_id, participant1, participant2)") {
				t.Fatalf("expected conflict clause: %s", query)
			}
			if !strings.Contains(query, "group_balances.balance + EXCLUDED.balance") {
				t.Fatalf("expected additive upsert: %s", query)
			}
			if args[2] != "m1" || args[3] != "m2" || args[4] != int64(-700) {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewGroupBalanceStore(stubDB{})
	key := ledger.CanonicalPair("m2", "m1")
	if err := store.ApplyDelta(ctx, execer, "b-1", "g-1", key, -700); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGroupBalanceStoreLockPairsOrdersKeys(t *testing.T) {
	ctx := context.Background()
	tx := stubTx{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected row locks: %s", query)
			}
			// Keys passed out of order must be locked in canonical order.
			want := []any{"g-1", "m1", "m3", "m2", "m3"}
			if len(args) != len(want) {
				t.Fatalf("unexpected args: %#v", args)
			}
			for i := range want {
				if args[i] != want[i] {
					t.Fatalf("arg %d = %v, want %v", i, args[i], want[i])
				}
			}
			*dest.(*[]GroupBalance) = []GroupBalance{
				{ID: "b-1", GroupID: "g-1", Participant1: "m1", Participant2: "m3", Balance: 3000},
			}
			return nil
		},
	}
	store := NewGroupBalanceStore(stubDB{})
	rows, err := store.LockPairs(ctx, tx, "g-1", []ledger.PairKey{
		ledger.CanonicalPair("m3", "m2"),
		ledger.CanonicalPair("m3", "m1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Balance != 3000 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestGroupBalanceStoreLockPairsEmpty(t *testing.T) {
	store := NewGroupBalanceStore(stubDB{})
	rows, err := store.LockPairs(context.Background(), stubTx{}, "g-1", nil)
	if err != nil || rows != nil {
		t.Fatalf("expected no-op, got %#v, %v", rows, err)
	}
}

func TestGroupBalanceStoreUpsertAbsoluteOverwrites(t *testing.T) {
	ctx := context.Background()
	calls := 0
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "DO UPDATE SET balance = EXCLUDED.balance") {
				t.Fatalf("expected overwrite upsert: %s", query)
			}
			if strings.Contains(query, "group_balances.balance +") {
				t.Fatalf("absolute upsert must not be additive: %s", query)
			}
			calls++
			return stubResult{rows: 1}, nil
		},
	}
	store := NewGroupBalanceStore(stubDB{})
	rows := []GroupBalance{
		{ID: "b-1", GroupID: "g-1", Participant1: "m1", Participant2: "m2", Balance: 5000},
		{ID: "b-2", GroupID: "g-1", Participant1: "m1", Participant2: "m3", Balance: 2000},
	}
	if err := store.UpsertAbsolute(ctx, execer, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 upserts, got %d", calls)
	}
}
