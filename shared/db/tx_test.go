package db_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfryer1193/publog/shared/db"
	"github.com/dfryer1193/publog/shared/db/sqlite"
)

const insertGroup = `INSERT INTO groups (slug, name, mode, created_at) VALUES (?, ?, 'slug', CURRENT_TIMESTAMP)`

var errAbort = errors.New("abort")

func openSchema(t *testing.T) *sql.DB {
	t.Helper()
	database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: filepath.Join(t.TempDir(), "tx.db")})
	require.NoError(t, database.Connect())
	t.Cleanup(func() { database.Close() })
	return database.DB()
}

func countGroups(t *testing.T, ctx context.Context, exec db.Executor) int {
	t.Helper()
	var n int
	require.NoError(t, exec.QueryRowContext(ctx, "SELECT COUNT(*) FROM groups").Scan(&n))
	return n
}

func TestRunInTransaction_Commits(t *testing.T) {
	conn := openSchema(t)
	ctx := context.Background()

	err := db.RunInTransaction(ctx, conn, func(txCtx context.Context) error {
		_, ok := db.GetTx(txCtx)
		assert.True(t, ok, "transaction should ride on the context")

		_, err := db.GetExecutor(txCtx, conn).ExecContext(txCtx, insertGroup, "blog", "Blog")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countGroups(t, ctx, conn))
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	conn := openSchema(t)
	ctx := context.Background()

	err := db.RunInTransaction(ctx, conn, func(txCtx context.Context) error {
		if _, err := db.GetExecutor(txCtx, conn).ExecContext(txCtx, insertGroup, "blog", "Blog"); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	assert.Equal(t, 0, countGroups(t, ctx, conn))
}

func TestRunInTransaction_NestedCallsShareTheTransaction(t *testing.T) {
	conn := openSchema(t)
	ctx := context.Background()

	err := db.RunInTransaction(ctx, conn, func(outerCtx context.Context) error {
		if _, err := db.GetExecutor(outerCtx, conn).ExecContext(outerCtx, insertGroup, "blog", "Blog"); err != nil {
			return err
		}

		return db.RunInTransaction(outerCtx, conn, func(innerCtx context.Context) error {
			outerTx, _ := db.GetTx(outerCtx)
			innerTx, _ := db.GetTx(innerCtx)
			assert.Same(t, outerTx, innerTx)

			_, err := db.GetExecutor(innerCtx, conn).ExecContext(innerCtx, insertGroup, "notes", "Notes")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countGroups(t, ctx, conn))
}

func TestRunInTransaction_NestedErrorRollsBackEverything(t *testing.T) {
	conn := openSchema(t)
	ctx := context.Background()

	err := db.RunInTransaction(ctx, conn, func(outerCtx context.Context) error {
		if _, err := db.GetExecutor(outerCtx, conn).ExecContext(outerCtx, insertGroup, "blog", "Blog"); err != nil {
			return err
		}
		return db.RunInTransaction(outerCtx, conn, func(innerCtx context.Context) error {
			if _, err := db.GetExecutor(innerCtx, conn).ExecContext(innerCtx, insertGroup, "notes", "Notes"); err != nil {
				return err
			}
			return errAbort
		})
	})
	assert.ErrorIs(t, err, errAbort)
	assert.Equal(t, 0, countGroups(t, ctx, conn))
}

func TestRunInTransaction_ForeignKeyViolationRollsBack(t *testing.T) {
	conn := openSchema(t)
	ctx := context.Background()

	err := db.RunInTransaction(ctx, conn, func(txCtx context.Context) error {
		exec := db.GetExecutor(txCtx, conn)
		if _, err := exec.ExecContext(txCtx, insertGroup, "blog", "Blog"); err != nil {
			return err
		}
		_, err := exec.ExecContext(txCtx,
			`INSERT INTO posts (group_id, slug, mode, created_at) VALUES (99, 'hello', 'slug', CURRENT_TIMESTAMP)`)
		return err
	})
	assert.Error(t, err)
	assert.Equal(t, 0, countGroups(t, ctx, conn))
}

func TestGetExecutor(t *testing.T) {
	conn := openSchema(t)
	ctx := context.Background()

	assert.Equal(t, db.Executor(conn), db.GetExecutor(ctx, conn))

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	assert.Equal(t, db.Executor(tx), db.GetExecutor(db.WithTx(ctx, tx), conn))
}

func TestRunReadOnly_SeesOneSnapshot(t *testing.T) {
	conn := openSchema(t)
	ctx := context.Background()

	_, err := conn.ExecContext(ctx, insertGroup, "blog", "Blog")
	require.NoError(t, err)

	var before, after int
	err = db.RunReadOnly(ctx, conn, func(txCtx context.Context) error {
		before = countGroups(t, txCtx, db.GetExecutor(txCtx, conn))

		// Commits on a second pooled connection while the snapshot is open.
		if _, err := conn.ExecContext(ctx, insertGroup, "notes", "Notes"); err != nil {
			return err
		}

		after = countGroups(t, txCtx, db.GetExecutor(txCtx, conn))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, before)
	assert.Equal(t, 1, after, "reads inside the transaction should not see the concurrent commit")
	assert.Equal(t, 2, countGroups(t, ctx, conn))
}
