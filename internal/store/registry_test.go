package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestRegistryCachesPerUser(t *testing.T) {
	r := NewRegistry("")
	t.Cleanup(func() { r.CloseAll() })
	ctx := context.Background()

	a1, err := r.Open(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := r.Open(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Fatal("expected the cached handle for the same user")
	}
	b, err := r.Open(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if b == a1 {
		t.Fatal("different users must not share a handle")
	}
	if a1.UserID() != "alice" || b.UserID() != "bob" {
		t.Fatalf("unexpected user ids %q %q", a1.UserID(), b.UserID())
	}
}

func TestRegistryRejectsEmptyUser(t *testing.T) {
	r := NewRegistry("")
	if _, err := r.Open(context.Background(), ""); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
}

func TestRegistryConcurrentOpen(t *testing.T) {
	r := NewRegistry(t.TempDir())
	t.Cleanup(func() { r.CloseAll() })

	const n = 8
	stores := make([]*Store, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Open(context.Background(), "carol")
			if err != nil {
				t.Error(err)
				return
			}
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if stores[i] != stores[0] {
			t.Fatal("concurrent opens produced different handles")
		}
	}
}

func TestRegistryCloseAllDropsHandles(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	ctx := context.Background()

	s1, err := r.Open(ctx, "dave")
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Items().Put(ctx, testItem("i1", "Kept on disk")); err != nil {
		t.Fatal(err)
	}
	if err := r.CloseAll(); err != nil {
		t.Fatal(err)
	}
	if len(r.Users()) != 0 {
		t.Fatalf("expected no cached users, got %v", r.Users())
	}

	s2, err := r.Open(ctx, "dave")
	if err != nil {
		t.Fatal(err)
	}
	defer r.CloseAll()
	if s2 == s1 {
		t.Fatal("expected a fresh handle after CloseAll")
	}
	if _, err := s2.Items().Get(ctx, "i1"); err != nil {
		t.Fatalf("expected data to survive reopen: %v", err)
	}
}

func TestRegistryPathIsPerUser(t *testing.T) {
	r := NewRegistry("/data")
	a := r.PathFor("alice")
	b := r.PathFor("bob")
	if a == b {
		t.Fatal("users share a database path")
	}
	if strings.Contains(a, "alice") {
		t.Fatalf("path leaks the raw user id: %s", a)
	}
	if NewRegistry("").PathFor("alice") != ":memory:" {
		t.Fatal("dir-less registry should use memory databases")
	}
}
