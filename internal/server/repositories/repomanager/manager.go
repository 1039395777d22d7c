package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/videotube/internal/dbx"
	"github.com/dmitrijs2005/videotube/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DB handle or transaction
// and owns schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
