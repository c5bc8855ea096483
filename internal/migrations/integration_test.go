//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phenoquery/phenoquery/internal/audit"
	auditpostgres "github.com/phenoquery/phenoquery/internal/audit/postgres"
)

func TestAuditSchemaLifecycle(t *testing.T) {
	db := scratchDatabase(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runner := NewRunner()
	embedded, err := loadMigrations(runner.fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	applied, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != len(embedded) {
		t.Fatalf("Up() applied %d, want %d", applied, len(embedded))
	}
	if again, err := runner.Up(ctx, db, 0); err != nil || again != 0 {
		t.Fatalf("second Up() = %d, %v; want 0, nil", again, err)
	}

	recorder := auditpostgres.NewRecorder(db)
	entry := audit.NewEntry("trace-it", audit.OperationFetchData,
		[]string{"temp_pheno_batch_1", "temp_pheno_batch_2"}, []string{"x", "z"}, 5, nil, 1500*time.Millisecond)
	if err := recorder.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	failed := audit.NewEntry("trace-it", audit.OperationDiscoverColumns,
		[]string{"temp_pheno_batch_9"}, nil, 3, errors.New("no columns"), time.Millisecond)
	if err := recorder.Record(ctx, failed); err != nil {
		t.Fatalf("Record(failed) error = %v", err)
	}

	var (
		files, columns, status string
		rows                   int
		durationMS             int64
	)
	err = db.QueryRowContext(ctx, `
SELECT files::text, columns::text, row_count, status, duration_ms
FROM phenoquery_fetch_audit
WHERE trace_id = $1 AND operation = $2`, "trace-it", audit.OperationFetchData).
		Scan(&files, &columns, &rows, &status, &durationMS)
	if err != nil {
		t.Fatalf("select audit row: %v", err)
	}
	if files != `["temp_pheno_batch_1", "temp_pheno_batch_2"]` || columns != `["x", "z"]` {
		t.Fatalf("files = %s, columns = %s", files, columns)
	}
	if rows != 5 || status != audit.StatusOK || durationMS != 1500 {
		t.Fatalf("row_count = %d, status = %q, duration_ms = %d", rows, status, durationMS)
	}

	var errorMessage string
	err = db.QueryRowContext(ctx, `
SELECT columns::text, row_count, status, error_message
FROM phenoquery_fetch_audit
WHERE operation = $1`, audit.OperationDiscoverColumns).
		Scan(&columns, &rows, &status, &errorMessage)
	if err != nil {
		t.Fatalf("select failed audit row: %v", err)
	}
	if columns != "[]" || rows != 0 || status != audit.StatusError || errorMessage != "no columns" {
		t.Fatalf("failed row = %s, %d, %q, %q", columns, rows, status, errorMessage)
	}

	rolledBack, err := runner.Down(ctx, db, 1)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("Down() rolled back %d, want 1", rolledBack)
	}
	if tableExists(t, db, "phenoquery_fetch_audit") {
		t.Fatal("phenoquery_fetch_audit still exists after Down")
	}
	if !tableExists(t, db, migrationTable) {
		t.Fatalf("%s should survive Down", migrationTable)
	}
}

// scratchDatabase creates a throwaway database next to the one named by
// PHENOQUERY_TEST_AUDIT_DSN and drops it when the test ends.
func scratchDatabase(t *testing.T) *sql.DB {
	t.Helper()
	adminDSN := strings.TrimSpace(os.Getenv("PHENOQUERY_TEST_AUDIT_DSN"))
	if adminDSN == "" {
		t.Skip("PHENOQUERY_TEST_AUDIT_DSN is not set")
	}
	parsed, err := url.Parse(adminDSN)
	if err != nil || strings.TrimPrefix(parsed.Path, "/") == "" {
		t.Fatalf("PHENOQUERY_TEST_AUDIT_DSN must be a URL with a database name (err=%v)", err)
	}

	admin, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("open admin db: %v", err)
	}
	name := fmt.Sprintf("phenoquery_audit_it_%d", time.Now().UnixNano())
	if _, err := admin.Exec(`CREATE DATABASE ` + name); err != nil {
		_ = admin.Close()
		t.Fatalf("create scratch database: %v", err)
	}

	scratch := *parsed
	scratch.Path = "/" + name
	db, err := sql.Open("pgx", scratch.String())
	if err != nil {
		t.Fatalf("open scratch db: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_, _ = admin.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name)
		if _, err := admin.Exec(`DROP DATABASE ` + name); err != nil {
			t.Errorf("drop scratch database: %v", err)
		}
		_ = admin.Close()
	})
	return db
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = $1)`, table).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %q: %v", table, err)
	}
	return exists
}
