package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/stayspot-realtime/internal/config"
)

type recordingExecer struct {
	stmts []string
	err   error
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.stmts = append(r.stmts, sql)
	return pgconn.CommandTag{}, r.err
}

func TestEnsureSchema(t *testing.T) {
	db := &recordingExecer{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	if len(db.stmts) != len(schema) {
		t.Fatalf("executed %d statements, want %d", len(db.stmts), len(schema))
	}
	if !strings.Contains(db.stmts[0], "CREATE TABLE IF NOT EXISTS connection_status") {
		t.Errorf("first statement = %q, want table creation", db.stmts[0])
	}
}

func TestEnsureSchema_Error(t *testing.T) {
	boom := errors.New("permission denied")
	db := &recordingExecer{err: boom}

	err := EnsureSchema(context.Background(), db)
	if !errors.Is(err, boom) {
		t.Errorf("EnsureSchema() error = %v, want %v", err, boom)
	}
	if len(db.stmts) != 1 {
		t.Errorf("executed %d statements, want 1", len(db.stmts))
	}
}

func TestOpen_Disabled(t *testing.T) {
	pool, err := Open(context.Background(), config.DatabaseConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if pool != nil {
		t.Errorf("Open() pool = %v, want nil", pool)
	}
}
