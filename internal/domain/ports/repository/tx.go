package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `tx`.
//
// Repository methods accept `qx any` so they can detect a tx handle
// (implementation side) and run SELECT ... FOR UPDATE / tx-bound Exec as
// needed. Repositories MUST gracefully accept nil qx (non-transactional
// path). The concrete type of the handle is infra-defined (pgx.Tx for
// Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
