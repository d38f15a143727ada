package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgconn", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pq", err: &pq.Error{Code: "23505"}, want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: payment_webhook_events.provider_event_id"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKeyErr(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDialectRejectsUnknownType(t *testing.T) {
	if _, err := Dialect(Config{Type: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	d, err := Dialect(Config{Type: "postgres", Host: "localhost", Port: "5432"})
	if err != nil {
		t.Fatalf("expected postgres dialect, got %v", err)
	}
	if d.Name() != "postgres" {
		t.Fatalf("expected postgres, got %s", d.Name())
	}
}
