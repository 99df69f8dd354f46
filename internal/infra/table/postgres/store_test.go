package postgres

import (
	"cellenics/internal/infra/table/postgres/testutil"
	"cellenics/internal/table/core"
	"context"
	"database/sql"
	"strings"
	"testing"
)

func resolver(string) (core.KeySchema, error) {
	return core.KeySchema{Partition: "experimentId", Sort: "plotUuid"}, nil
}

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "", resolver)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if gotDriver != "pgx" || gotDSN != defaultDSN {
		t.Fatalf("unexpected open args %q %q", gotDriver, gotDSN)
	}
	return store, conn
}

func TestNewStoreEnsuresItemsTable(t *testing.T) {
	store, conn := openStub(t)
	var sawTable bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt.Query, "CREATE TABLE IF NOT EXISTS items") {
			sawTable = true
		}
	}
	if !sawTable {
		t.Fatalf("expected items DDL, got %#v", conn.Execs)
	}
	if store.Driver() != core.DriverPostgres {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://x", resolver); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestGetItemUsesNumberedPlaceholders(t *testing.T) {
	store, conn := openStub(t)
	doc, err := core.MarshalRecord(core.Record{"experimentId": "e1", "plotUuid": "p1", "config": map[string]any{"a": "b"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	conn.Respond = func(string, []any) testutil.Result {
		return testutil.Result{Columns: []string{"doc"}, Rows: [][]any{{string(doc)}}}
	}
	rec, found, err := store.GetItem(context.Background(), "plots-tables-staging", core.Record{"experimentId": "e1", "plotUuid": "p1"})
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if rec["config"].(map[string]any)["a"] != "b" {
		t.Fatalf("unexpected record %#v", rec)
	}
	last := conn.Queries[len(conn.Queries)-1]
	if !strings.Contains(last.Query, "tbl = $1 AND pk = $2 AND sk = $3") {
		t.Fatalf("placeholders not rebound: %s", last.Query)
	}
	if last.Args[0] != "plots-tables-staging" || last.Args[1] != "e1" || last.Args[2] != "p1" {
		t.Fatalf("unexpected args %#v", last.Args)
	}
}

func TestScanSegmentReportsNextCursor(t *testing.T) {
	store, conn := openStub(t)
	store.SetPageSize(2)
	conn.Respond = func(string, []any) testutil.Result {
		var rows [][]any
		for _, sk := range []string{"a", "b", "c"} {
			doc, _ := core.MarshalRecord(core.Record{"experimentId": "e1", "plotUuid": sk})
			rows = append(rows, []any{"e1", sk, string(doc)})
		}
		return testutil.Result{Columns: []string{"pk", "sk", "doc"}, Rows: rows}
	}
	page, err := store.ScanSegment(context.Background(), "plots-tables-staging", 1, 4, "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(page.Records) != 2 || page.Next == "" {
		t.Fatalf("expected a full page with cursor, got %d records next=%q", len(page.Records), page.Next)
	}
	last := conn.Queries[len(conn.Queries)-1]
	if !strings.Contains(last.Query, "bucket % $2 = $3") || last.Args[1] != int64(4) || last.Args[2] != int64(1) {
		t.Fatalf("unexpected scan statement %s %#v", last.Query, last.Args)
	}

	if _, err := store.ScanSegment(context.Background(), "plots-tables-staging", 1, 4, page.Next); err != nil {
		t.Fatalf("resume: %v", err)
	}
	resume := conn.Queries[len(conn.Queries)-1]
	if !strings.Contains(resume.Query, "(pk > $4 OR (pk = $5 AND sk > $6))") || resume.Args[5] != "b" {
		t.Fatalf("cursor not applied: %s %#v", resume.Query, resume.Args)
	}
}

func TestBatchWriteUpsertsInTransaction(t *testing.T) {
	store, conn := openStub(t)
	conn.Execs = nil
	err := store.BatchWrite(context.Background(), "plots-tables-staging", []core.Record{
		{"experimentId": "e1", "plotUuid": "p1"},
		{"experimentId": "e1", "plotUuid": "p2"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(conn.Execs) != 2 || conn.Commits != 1 {
		t.Fatalf("expected 2 upserts in one commit, got %d execs %d commits", len(conn.Execs), conn.Commits)
	}
	if !strings.Contains(conn.Execs[0].Query, "ON CONFLICT (tbl, pk, sk)") || !strings.Contains(conn.Execs[0].Query, "$5") {
		t.Fatalf("unexpected upsert %s", conn.Execs[0].Query)
	}

	conn.FailCommit = true
	if err := store.BatchWrite(context.Background(), "plots-tables-staging", []core.Record{{"experimentId": "e1", "plotUuid": "p3"}}); err == nil {
		t.Fatalf("expected commit failure")
	}
	if err := store.BatchWrite(context.Background(), "plots-tables-staging", []core.Record{{"experimentId": "e1"}}); err == nil {
		t.Fatalf("expected key failure")
	}
}
