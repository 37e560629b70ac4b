package repository

import (
	"database/sql"
	"testing"

	"chabaqa/backend/internal/db"
)

func openTestDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
