package repo

import (
	"context"
	"errors"
	"testing"
)

func TestDeliveryRepo_List_InvalidLimit(t *testing.T) {
	r := NewDeliveryRepo(nil)

	if _, err := r.List(context.Background(), DeliveryFilter{}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestNewPool_EmptyDSN(t *testing.T) {
	if _, err := NewPool(context.Background(), ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should map to NULL")
	}
	if p := nullString("c-1"); p == nil || *p != "c-1" {
		t.Errorf("unexpected pointer %v", p)
	}
	if deref(nil) != "" || deref(nullString("x")) != "x" {
		t.Error("deref should round-trip")
	}
}
