package migrate

import (
	"os"
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		err := Run(dsn, "up")
		if err == nil {
			t.Fatalf("Run(%q) should return error", dsn)
		}
		if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
			t.Errorf("error = %q, should mention DATABASE_URL", err.Error())
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, dir := range []string{"", "invalid", "UP", "Up", "both"} {
		err := Run("postgres://localhost/test", dir)
		if err == nil {
			t.Errorf("Run with direction %q should return error", dir)
			continue
		}
		if !strings.Contains(err.Error(), "direction") {
			t.Errorf("error = %q, should mention direction", err.Error())
		}
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://localhost with spaces/test"} {
		if err := Run(dsn, "up"); err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
	}
}

func TestVersion_EmptyDSN(t *testing.T) {
	if _, _, err := Version(""); err == nil {
		t.Fatal("Version with empty DSN should return error")
	}
}

func TestRun_UpDownLive(t *testing.T) {
	dsn := os.Getenv("CHABAQA_TEST_MIGRATE_URL")
	if dsn == "" {
		t.Skip("CHABAQA_TEST_MIGRATE_URL not set")
	}
	if err := Run(dsn, "up"); err != nil {
		t.Fatalf("up: %v", err)
	}
	v, dirty, err := Version(dsn)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v == 0 || dirty {
		t.Errorf("after up: version=%d dirty=%v", v, dirty)
	}
	if err := Run(dsn, "up"); err != nil {
		t.Errorf("second up should be a no-op, got %v", err)
	}
	if err := Run(dsn, "down"); err != nil {
		t.Fatalf("down: %v", err)
	}
	if v, _, _ := Version(dsn); v != 0 {
		t.Errorf("after down: version=%d, want 0", v)
	}
}
