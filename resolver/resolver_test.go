package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/resolver"
)

func TestStatic_Resolve(t *testing.T) {
	r := resolver.NewStatic(map[string]map[string]string{
		"lead-1": {"firstName": "Ada", "email": "ada@example.com"},
	})

	got, err := r.Resolve(context.Background(), "lead-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got["firstName"] != "Ada" {
		t.Fatalf("firstName = %q, want Ada", got["firstName"])
	}
}

func TestStatic_UnknownEntity(t *testing.T) {
	r := resolver.NewStatic(nil)

	_, err := r.Resolve(context.Background(), "lead-404")
	if !errors.Is(err, cadence.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestStatic_ResolveReturnsCopy(t *testing.T) {
	r := resolver.NewStatic(map[string]map[string]string{
		"lead-1": {"firstName": "Ada"},
	})

	got, _ := r.Resolve(context.Background(), "lead-1")
	got["firstName"] = "Mutated"

	again, _ := r.Resolve(context.Background(), "lead-1")
	if again["firstName"] != "Ada" {
		t.Fatal("mutating a resolved binding leaked into the resolver")
	}
}

func TestStatic_Put(t *testing.T) {
	r := resolver.NewStatic(nil)
	r.Put("lead-2", map[string]string{"email": "bob@example.com"})

	got, err := r.Resolve(context.Background(), "lead-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got["email"] != "bob@example.com" {
		t.Fatalf("email = %q", got["email"])
	}
}
