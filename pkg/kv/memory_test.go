package kv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	v, err := s.Get(ctx, "a")
	if err != nil || string(v) != "1" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Errorf("Delete of missing key should be nil, got %v", err)
	}
}

func TestMemoryStore_TakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Set(ctx, "state", []byte("x"), time.Minute)

	if v, err := s.Take(ctx, "state"); err != nil || string(v) != "x" {
		t.Fatalf("first Take = %q, %v", v, err)
	}
	if _, err := s.Take(ctx, "state"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Take = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	s.Set(ctx, "k", []byte("v"), time.Hour)
	now = now.Add(30 * time.Minute)

	if err := s.Touch(ctx, "k", time.Hour); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	now = now.Add(45 * time.Minute)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Fatalf("key should survive after Touch: %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired Get = %v, want ErrNotFound", err)
	}
	if err := s.Touch(ctx, "k", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Errorf("Touch on expired key = %v, want ErrNotFound", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	buf := []byte("abc")
	s.Set(ctx, "k", buf, 0)
	buf[0] = 'z'

	v, _ := s.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("stored value mutated through caller slice: %q", v)
	}
}

func TestMemoryStore_SetSweepsExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	for i := 0; i < 10000; i++ {
		s.Set(ctx, fmt.Sprintf("session:%d", i), []byte("x"), time.Minute)
	}

	// Within the sweep interval nothing is scanned.
	now = now.Add(30 * time.Second)
	s.Set(ctx, "early", []byte("x"), time.Minute)
	if got := len(s.entries); got != 10001 {
		t.Fatalf("entries before expiry = %d, want 10001", got)
	}

	now = now.Add(time.Hour)
	s.Set(ctx, "fresh", []byte("y"), time.Minute)

	if got := len(s.entries); got != 1 {
		t.Errorf("retained entries = %d, want 1", got)
	}
	if v, err := s.Get(ctx, "fresh"); err != nil || string(v) != "y" {
		t.Errorf("Get(fresh) = %q, %v", v, err)
	}
}
