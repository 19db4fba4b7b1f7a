package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/testutil"
)

func TestIsConstraintViolation(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestSQLite(t)

	insert := func() error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO events (id, title, description, location, date, capacity, held_seats, status, created_at, updated_at)
			 VALUES ('e1', 't', '', '', 1, 1, 0, 'draft', 1, 1)`)
		return err
	}
	if err := insert(); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dupErr := insert()
	if dupErr == nil {
		t.Fatal("expected a primary key failure")
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"primary key", dupErr, true},
		{"wrapped", fmt.Errorf("insert event: %w", dupErr), true},
		{"text only", errors.New("UNIQUE constraint failed: events.id"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConstraintViolation(tt.err); got != tt.want {
				t.Fatalf("isConstraintViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	_, err := db.ExecContext(ctx, `INSERT INTO events (id) VALUES (NULL)`)
	if err == nil || isConstraintViolation(err) {
		t.Fatalf("a NOT NULL failure is not a uniqueness violation: %v", err)
	}
}
