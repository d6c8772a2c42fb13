package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	uniqueErr := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_slot_unique"}

	if !IsUniqueViolation(uniqueErr, "") {
		t.Error("expected any-constraint match for 23505")
	}
	if !IsUniqueViolation(uniqueErr, "appointments_slot_unique") {
		t.Error("expected match on named constraint")
	}
	if IsUniqueViolation(uniqueErr, "other_constraint") {
		t.Error("expected no match for different constraint name")
	}
}

func TestIsUniqueViolation_OtherErrors(t *testing.T) {
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Error("plain error should not be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation should not be a unique violation")
	}
	if IsUniqueViolation(nil, "") {
		t.Error("nil error should not be a unique violation")
	}
}

func TestIsUniqueViolation_Wrapped(t *testing.T) {
	inner := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_slot_unique"}
	wrapped := fmt.Errorf("insert appointment: %w", inner)

	if !IsUniqueViolation(wrapped, "appointments_slot_unique") {
		t.Error("expected match through error wrapping")
	}
}

func TestConnFromContext_Empty(t *testing.T) {
	if tx := ConnFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx outside a transaction, got %v", tx)
	}
}
