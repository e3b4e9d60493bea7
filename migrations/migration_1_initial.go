package migrations

import (
	"context"

	"go.uber.org/zap"
)

// migrationInitial marks a fresh database. It exists so later migrations can
// assume the completion marker machinery works.
var migrationInitial = Migration{
	Name: "migration_1_initial",
	Run: func(ctx context.Context, logger *zap.Logger, opt Options, key []byte) error {
		return markCompleted(opt.Db, key)
	},
}
