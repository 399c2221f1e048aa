package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a database transaction,
// passing the transaction handle via `tx`.
//
// Use-case interfaces stay clean (no driver types leak out); repository
// methods accept `tx Tx` and detect a transactional handle implementation
// side. Repositories MUST gracefully accept nil (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
