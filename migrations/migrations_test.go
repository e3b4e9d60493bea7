package migrations

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetstake/fleetstake/logging"
	"github.com/fleetstake/fleetstake/storage/basedb"
	"github.com/fleetstake/fleetstake/storage/kv"
)

func setupDB(t *testing.T) *kv.BadgerDB {
	db, err := kv.NewInMemory(logging.TestLogger(t), basedb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestMigrationsRunOnce(t *testing.T) {
	ctx := context.Background()
	logger := logging.TestLogger(t)
	db := setupDB(t)

	var runs int
	m := Migrations{{
		Name: "migration_counting",
		Run: func(_ context.Context, _ *zap.Logger, opt Options, key []byte) error {
			runs++
			return markCompleted(opt.Db, key)
		},
	}}

	applied, err := m.Run(ctx, logger, Options{Db: db})
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Equal(t, 1, runs)

	applied, err = m.Run(ctx, logger, Options{Db: db})
	require.NoError(t, err)
	require.Zero(t, applied)
	require.Equal(t, 1, runs)
}

func TestMigrationFailureIsNotMarked(t *testing.T) {
	ctx := context.Background()
	logger := logging.TestLogger(t)
	db := setupDB(t)

	attempts := 0
	m := Migrations{{
		Name: "migration_flaky",
		Run: func(_ context.Context, _ *zap.Logger, opt Options, key []byte) error {
			attempts++
			if attempts == 1 {
				return errors.New("transient")
			}
			return markCompleted(opt.Db, key)
		},
	}}

	_, err := m.Run(ctx, logger, Options{Db: db})
	require.Error(t, err)

	applied, err := m.Run(ctx, logger, Options{Db: db})
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.Equal(t, 2, attempts)
}

func TestDefaultMigrations(t *testing.T) {
	ctx := context.Background()
	logger := logging.TestLogger(t)
	db := setupDB(t)

	applied, err := Run(ctx, logger, Options{Db: db})
	require.NoError(t, err)
	require.Equal(t, len(defaultMigrations), applied)
}
