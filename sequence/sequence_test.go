package sequence_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/sequence"
)

func validDefinition() *sequence.Definition {
	return &sequence.Definition{
		ID: "onboarding",
		Steps: []sequence.Step{
			{ID: "welcome", Subject: "Welcome [firstName]", Delay: 0},
			{ID: "nudge", Subject: "Still there?", Delay: 24 * time.Hour},
		},
	}
}

// ──────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*sequence.Definition)
		wantErr bool
	}{
		{"valid", func(*sequence.Definition) {}, false},
		{"missing id", func(d *sequence.Definition) { d.ID = "" }, true},
		{"no steps", func(d *sequence.Definition) { d.Steps = nil }, true},
		{"empty step id", func(d *sequence.Definition) { d.Steps[0].ID = "" }, true},
		{"duplicate step id", func(d *sequence.Definition) { d.Steps[1].ID = d.Steps[0].ID }, true},
		{"negative delay", func(d *sequence.Definition) { d.Steps[1].Delay = -time.Hour }, true},
		{"missing subject", func(d *sequence.Definition) { d.Steps[0].Subject = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantErr && !errors.Is(err, cadence.ErrInvalidSequence) {
				t.Fatalf("expected ErrInvalidSequence, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefinitionStepLookup(t *testing.T) {
	def := validDefinition()

	step, ok := def.Step("nudge")
	if !ok {
		t.Fatal("expected to find step nudge")
	}
	if step.Delay != 24*time.Hour {
		t.Errorf("step.Delay = %v, want 24h", step.Delay)
	}

	if _, ok := def.Step("missing"); ok {
		t.Error("expected lookup miss for unknown step")
	}
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

func TestCatalogRegisterAndGet(t *testing.T) {
	c := sequence.NewCatalog()

	if err := c.Register(validDefinition()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := c.Get("onboarding")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Steps) != 2 {
		t.Errorf("got %d steps, want 2", len(got.Steps))
	}

	// Duplicate registration.
	if err := c.Register(validDefinition()); !errors.Is(err, cadence.ErrDuplicateSequence) {
		t.Fatalf("expected ErrDuplicateSequence, got %v", err)
	}

	// Unknown sequence.
	if _, err := c.Get("nope"); !errors.Is(err, cadence.ErrSequenceNotFound) {
		t.Fatalf("expected ErrSequenceNotFound, got %v", err)
	}
}

func TestCatalogRejectsInvalid(t *testing.T) {
	c := sequence.NewCatalog()
	def := validDefinition()
	def.Steps = nil
	if err := c.Register(def); !errors.Is(err, cadence.ErrInvalidSequence) {
		t.Fatalf("expected ErrInvalidSequence, got %v", err)
	}
}

func TestCatalogNames(t *testing.T) {
	c := sequence.NewCatalog()
	for _, name := range []string{"zeta", "alpha"} {
		def := validDefinition()
		def.ID = name
		if err := c.Register(def); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	names := c.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names() = %v, want sorted [alpha zeta]", names)
	}
}

// ──────────────────────────────────────────────────
// Builtins
// ──────────────────────────────────────────────────

func TestBuiltinSequences(t *testing.T) {
	defs, err := sequence.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}

	byID := make(map[string]*sequence.Definition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
		if def.Source != "builtin" {
			t.Errorf("sequence %q Source = %q, want builtin", def.ID, def.Source)
		}
	}

	trial, ok := byID["trial-nurture"]
	if !ok {
		t.Fatal("missing builtin trial-nurture")
	}
	if trial.Steps[0].Delay != 0 {
		t.Errorf("trial-nurture first step delay = %v, want 0", trial.Steps[0].Delay)
	}

	if _, ok := byID["demo-follow-up"]; !ok {
		t.Fatal("missing builtin demo-follow-up")
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := sequence.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	for _, name := range []string{"trial-nurture", "demo-follow-up"} {
		if _, err := c.Get(name); err != nil {
			t.Errorf("Get(%q): %v", name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// YAML loading
// ──────────────────────────────────────────────────

const sampleYAML = `id: winback
description: Re-engage churned accounts.
steps:
  - id: miss-you
    subject: "We miss you, [firstName]"
    text: "Come back and see what changed."
    delay: 0s
  - id: offer
    subject: "A little something for [company]"
    text: "Here is 20% off your first month back."
    delay: 96h
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "winback.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	def, err := sequence.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if def.ID != "winback" {
		t.Errorf("def.ID = %q, want winback", def.ID)
	}
	if def.Source != path {
		t.Errorf("def.Source = %q, want %q", def.Source, path)
	}
	if def.Steps[1].Delay != 96*time.Hour {
		t.Errorf("delay = %v, want 96h", def.Steps[1].Delay)
	}
}

func TestLoadFileRejectsBadDelay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	bad := "id: bad\nsteps:\n  - id: a\n    subject: s\n    delay: soon\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := sequence.LoadFile(path); err == nil {
		t.Fatal("expected error for unparseable delay")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "winback.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	defs, err := sequence.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(defs) != 1 || defs[0].ID != "winback" {
		t.Errorf("LoadDir = %v, want one winback definition", defs)
	}

	// Missing directory is not an error.
	none, err := sequence.LoadDir(filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatalf("LoadDir(missing): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no definitions, got %d", len(none))
	}
}
