package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/groupware/internal/dbx"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/aliases"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/folders"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/objects"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/sequences"
	"github.com/dmitrijs2005/groupware/internal/server/repositories/tombstones"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Folders(db dbx.DBTX) folders.Repository
	Objects(db dbx.DBTX) objects.Repository
	Tombstones(db dbx.DBTX) tombstones.Repository
	Sequences(db dbx.DBTX) sequences.Repository
	Aliases(db dbx.DBTX) aliases.Repository
}
