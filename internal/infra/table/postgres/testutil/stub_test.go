package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBRecordsAndAnswers(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO items (tbl) VALUES ($1)", []driver.NamedValue{{Value: "t"}}); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if len(conn.Execs) != 1 || conn.Execs[0].Args[0] != "t" {
		t.Fatalf("exec not recorded: %#v", conn.Execs)
	}

	conn.Respond = func(string, []any) Result {
		return Result{Columns: []string{"doc"}, Rows: [][]any{{"x"}}}
	}
	rows, err := conn.QueryContext(ctx, "SELECT doc FROM items", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 1)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "x" {
		t.Fatalf("unexpected row %v", dest)
	}
}
