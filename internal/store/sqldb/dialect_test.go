package sqldb

import "testing"

func TestRebind(t *testing.T) {
	query := "UPDATE t SET a = ? WHERE b = ? AND c IN (?, ?)"

	if got := SQLite.Rebind(query); got != query {
		t.Fatalf("sqlite should keep placeholders, got %q", got)
	}

	want := "UPDATE t SET a = $1 WHERE b = $2 AND c IN ($3, $4)"
	if got := Postgres.Rebind(query); got != want {
		t.Fatalf("unexpected postgres query:\n got %q\nwant %q", got, want)
	}
}
