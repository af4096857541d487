package repomanager

import (
	"context"
	"database/sql"

	"github.com/adventuresafari/identity/internal/dbx"
	"github.com/adventuresafari/identity/internal/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DB handle
// and exposes a schema migration hook.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
