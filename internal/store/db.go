package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate reports a unique-constraint violation, such as creating a
// friendship pair or group membership that already exists.
var ErrDuplicate = errors.New("row already exists")

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

// Tx is the transaction-scoped view a store needs. The group ledger's
// batch lock reads require SelectContext inside the transaction, so Tx
// carries all three capabilities.
type Tx interface {
	Execer
	Getter
	Selecter
}
