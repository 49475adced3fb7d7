package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "agg", User: "u", Password: "p"})
	if got != "postgres://u:p@db:5432/agg?sslmode=disable" {
		t.Fatalf("DSN = %q", got)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN = %q", got)
	}
}

func TestListQuery(t *testing.T) {
	since := time.Unix(100, 0)
	q, args := listQuery("bybit", "", domain.ListOpts{Since: &since, Limit: 50, Offset: 10})

	for _, want := range []string{"venue = $1", "at >= $2", "ORDER BY at DESC", "LIMIT $3", "OFFSET $4"} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q: %s", want, q)
		}
	}
	if strings.Contains(q, "symbol =") {
		t.Errorf("empty symbol should not filter: %s", q)
	}
	if len(args) != 4 || args[0] != "bybit" || args[2] != 50 || args[3] != 10 {
		t.Fatalf("args = %v", args)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_source_events.sql" {
		t.Fatalf("migrations = %v", names)
	}
}
