package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns != 10 || got.MaxIdleConns != 5 {
		t.Fatalf("unexpected pool sizes: %+v", got)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %s", got.PingTimeout)
	}

	capped := PostgresPoolConfig{MaxOpenConns: 2, MaxIdleConns: 8}.withDefaults()
	if capped.MaxIdleConns != 2 {
		t.Fatalf("expected idle conns capped at open conns, got %d", capped.MaxIdleConns)
	}
}
