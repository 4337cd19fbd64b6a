package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must accept nil for the
// non-transactional path.
type Tx interface{}

// NoTx is passed by callers that do not hold a transaction.
var NoTx Tx

// TransactionManager runs fn inside one database transaction, passing the
// transaction handle through tx. If fn returns an error the transaction is
// rolled back, otherwise committed. Keeping the handle opaque means use-case
// code can compose multi-repository commits without importing the driver.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
