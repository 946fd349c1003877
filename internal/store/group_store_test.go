package store

import (
	"context"
	"strings"
	"testing"
)

func TestGroupStoreCountActiveMembers(t *testing.T) {
	ctx := context.Background()
	db := stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "COUNT(DISTINCT id)") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "id = ANY($3)") {
				t.Fatalf("expected membership id filter: %s", query)
			}
			if len(args) != 3 || args[0] != "g1" || args[1] != GroupMemberActive {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int) = 2
			return nil
		},
	}
	store := NewGroupStore(stubDB{})
	count, err := store.CountActiveMembers(ctx, db, "g1", []string{"m1", "m2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
}
