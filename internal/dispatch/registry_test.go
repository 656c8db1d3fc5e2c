package dispatch

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/tessera-games/riftgate/internal/actor"
	apperrors "github.com/tessera-games/riftgate/internal/platform/errors"
	"github.com/tessera-games/riftgate/internal/schema"
)

func noopHandler(context.Context, *actor.Actor, []any) (any, error) {
	return nil, nil
}

func TestRegisterDuplicateWarnsAndLastWins(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRegistry(log.New(&buf, "", 0))

	if err := r.Register(Descriptor{Name: "who", Description: "first"}, noopHandler); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(Descriptor{Name: "WHO", Description: "second"}, noopHandler); err != nil {
		t.Fatalf("second register: %v", err)
	}
	if !strings.Contains(buf.String(), "registered twice") {
		t.Fatalf("expected conflict warning, log = %q", buf.String())
	}

	e, ok := r.lookup("who")
	if !ok || e.desc.Description != "second" {
		t.Fatalf("lookup = %+v, want last registration", e)
	}
}

func TestRegisterRejectsStructuralErrors(t *testing.T) {
	t.Parallel()

	r := NewRegistry(log.New(&bytes.Buffer{}, "", 0))

	if err := r.Register(Descriptor{}, noopHandler); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := r.Register(Descriptor{Name: "x"}, nil); err == nil {
		t.Fatal("nil handler accepted for local command")
	}
	if err := r.Register(Descriptor{
		Name:   "x",
		Params: []schema.ParamKind{schema.KindString},
	}, noopHandler); err == nil {
		t.Fatal("non-actor first parameter accepted")
	}
	if err := r.Register(Descriptor{
		Name:       "x",
		Named:      &schema.Named{},
		Positional: &schema.Positional{},
	}, noopHandler); err == nil {
		t.Fatal("two explicit schemas accepted")
	}
}

func TestRegisterRemoteCommandWithoutHandler(t *testing.T) {
	t.Parallel()

	r := NewRegistry(log.New(&bytes.Buffer{}, "", 0))
	if err := r.Register(Descriptor{Name: "promote", Owner: "world-1"}, nil); err != nil {
		t.Fatalf("remote register: %v", err)
	}
}

func TestRegisterOpaqueKindWithoutExplicitSchemaDisables(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRegistry(log.New(&buf, "", 0))

	err := r.Register(Descriptor{
		Name:   "give",
		Params: []schema.ParamKind{schema.KindActor, schema.KindObject},
	}, noopHandler)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	e, _ := r.lookup("give")
	if !e.disabled {
		t.Fatal("expected descriptor disabled, no schema derivable")
	}
	if !strings.Contains(buf.String(), "disabled") {
		t.Fatalf("expected disabled warning, log = %q", buf.String())
	}
}

func TestDisabledDescriptorSurfacesConfigurationError(t *testing.T) {
	t.Parallel()

	f := newFixture(nil)
	_ = f.service.Register(Descriptor{
		Name:   "give",
		Params: []schema.ParamKind{schema.KindActor, schema.KindObject},
	}, noopHandler)

	_, err := f.service.Execute(context.Background(), actor.New("conn-1"), "give", []any{"x"})
	if apperrors.CodeOf(err) != apperrors.CodeSchemaMismatch {
		t.Fatalf("err = %v, want schema mismatch", err)
	}
}
