package rowtrail_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guillermoBallester/rowtrail"
)

const testSchema = `
	CREATE TABLE "Users" (
		id         SERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		password   TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	INSERT INTO "Users" (name, email, password) VALUES
		('Alice', 'alice@example.com', 'hunter2'),
		('Bob', 'bob@example.com', 'swordfish');
`

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:18-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	return pool
}

type auditRow struct {
	Event     string
	Statement string
	Before    map[string]any
	After     map[string]any
	Table     string
	Operation string
	ActorName *string
}

func auditRows(t *testing.T, pool *pgxpool.Pool) []auditRow {
	t.Helper()
	rows, err := pool.Query(context.Background(), `
		SELECT event_name, query_text, before_image, after_image,
		       table_name, operation, actor_name
		FROM rowtrail_audit_log ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var out []auditRow
	for rows.Next() {
		var r auditRow
		require.NoError(t, rows.Scan(&r.Event, &r.Statement, &r.Before, &r.After,
			&r.Table, &r.Operation, &r.ActorName))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestWrap_UpdateProducesBothImages(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Exec(ctx, `UPDATE "Users" SET name = $1 WHERE email = $2`,
		"Alicia", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs := auditRows(t, pool)
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, "Users_Modified", rec.Event)
	assert.Equal(t, "Users", rec.Table)
	assert.Equal(t, "UPDATE", rec.Operation)
	assert.Equal(t, "Alice", rec.Before["name"])
	assert.Equal(t, "Alicia", rec.After["name"])
	assert.Equal(t, rec.Before["id"], rec.After["id"])
	assert.Contains(t, rec.Statement, "SET name = $1",
		"the record carries the original statement text, not the rewritten form")
}

func TestWrap_InsertCapturesGeneratedValues(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Exec(ctx, `INSERT INTO "Users" (name, email) VALUES ($1, $2)`,
		"Carol", "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs := auditRows(t, pool)
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, "Users_Created", rec.Event)
	assert.Empty(t, rec.Before)
	assert.Equal(t, "Carol", rec.After["name"])
	assert.NotNil(t, rec.After["id"], "row image includes database-generated values")
	assert.NotNil(t, rec.After["created_at"])
}

func TestWrap_DeleteHasEmptyAfterImage(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Exec(ctx, `DELETE FROM "Users" WHERE email = $1`, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs := auditRows(t, pool)
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, "Users_Deleted", rec.Event)
	assert.Equal(t, "Bob", rec.Before["name"])
	assert.Empty(t, rec.After)
}

func TestWrap_MultiRowDelete(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Exec(ctx, `DELETE FROM "Users" WHERE id > $1`, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestWrap_FailedStatementProducesNoRecord(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `INSERT INTO "Users" (name, email) VALUES ($1, $2)`,
		"Dup", "alice@example.com")
	require.Error(t, err, "unique violation must reach the caller unchanged")

	// The audit table may not even exist yet; either way there is no record.
	var count int
	scanErr := pool.QueryRow(ctx,
		`SELECT count(*) FROM rowtrail_audit_log`).Scan(&count)
	if scanErr == nil {
		assert.Zero(t, count)
	}
}

func TestWrap_ActorFromContext(t *testing.T) {
	pool := setupPool(t)
	ctx := rowtrail.WithActor(context.Background(), rowtrail.Actor{
		ID:   "u-17",
		Name: "ada",
	})

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `UPDATE "Users" SET name = $1 WHERE id = $2`, "X", 1)
	require.NoError(t, err)

	recs := auditRows(t, pool)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].ActorName)
	assert.Equal(t, "ada", *recs[0].ActorName)
}

func TestWrap_NonMutatingPassthrough(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `CREATE TABLE scratch (id int)`)
	require.NoError(t, err)

	var exists bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT to_regclass('rowtrail_audit_log') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists, "nothing was audited, so the audit table was never created")
}

func TestWrap_ReloadStrategy(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool, rowtrail.WithStrategy(rowtrail.StrategyReload))
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Exec(ctx, `UPDATE "Users" SET name = $1 WHERE email = $2`,
		"Alicia", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs := auditRows(t, pool)
	require.Len(t, recs, 1)
	assert.Equal(t, "Alice", recs[0].Before["name"])
	assert.Equal(t, "Alicia", recs[0].After["name"])

	// Insert relocation picks up the generated primary key.
	_, err = db.Exec(ctx, `INSERT INTO "Users" (name, email) VALUES ($1, $2)`,
		"Dave", "dave@example.com")
	require.NoError(t, err)

	recs = auditRows(t, pool)
	require.Len(t, recs, 2)
	assert.Equal(t, "Users_Created", recs[1].Event)
	assert.NotNil(t, recs[1].After["id"])
}

func TestWrap_FileSink(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.ndjson")

	db, err := rowtrail.Wrap(pool, rowtrail.WithFileSink(path))
	require.NoError(t, err)

	_, err = db.Exec(ctx, `DELETE FROM "Users" WHERE id = $1`, 1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Users_Deleted", entry["event"])

	var exists bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT to_regclass('rowtrail_audit_log') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists, "file sink never touches the database")
}

func TestWrap_PolicyMasking(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`
columns:
  public.users:
    password: redact
    email: hash
`), 0o600))

	db, err := rowtrail.Wrap(pool, rowtrail.WithPolicyFile(policyPath))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `DELETE FROM "Users" WHERE id = $1`, 1)
	require.NoError(t, err)

	recs := auditRows(t, pool)
	require.Len(t, recs, 1)
	assert.Equal(t, "***", recs[0].Before["password"])
	assert.NotEqual(t, "alice@example.com", recs[0].Before["email"])
	assert.Equal(t, "Alice", recs[0].Before["name"], "unlisted columns pass through")
}

func TestWrap_PolicyTableExclusion(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(policyPath, []byte(`
tables:
  exclude:
    - public.users
`), 0o600))

	db, err := rowtrail.Wrap(pool, rowtrail.WithPolicyFile(policyPath))
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Exec(ctx, `DELETE FROM "Users" WHERE id = $1`, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "excluded tables still execute")

	var exists bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT to_regclass('rowtrail_audit_log') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists)
}

func TestWrap_InvalidateTableAfterDDL(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	db, err := rowtrail.Wrap(pool)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `UPDATE "Users" SET name = $1 WHERE id = $2`, "A", 1)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `ALTER TABLE "Users" ADD COLUMN nickname TEXT`)
	require.NoError(t, err)
	db.InvalidateTable("", "Users")

	_, err = db.Exec(ctx, `UPDATE "Users" SET nickname = $1 WHERE id = $2`, "al", 1)
	require.NoError(t, err)

	recs := auditRows(t, pool)
	require.Len(t, recs, 2)
	assert.Equal(t, "al", recs[1].After["nickname"], "fresh column list after invalidation")
}
