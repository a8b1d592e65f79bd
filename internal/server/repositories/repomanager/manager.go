// Package repomanager vends repository implementations bound to a DBTX and
// owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/pyoneerc/deadhand/internal/dbx"
	"github.com/pyoneerc/deadhand/internal/server/repositories/vaults"
)

// RepositoryManager hands out repositories bound to either a *sql.DB or a
// *sql.Tx, so services can run multi-statement operations inside a single
// transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Vaults(db dbx.DBTX) vaults.Repository
}
