package actor

import "testing"

func TestAttachAndAuthenticated(t *testing.T) {
	t.Parallel()

	a := New("conn-1")
	if a.Authenticated() {
		t.Fatal("new actor should be anonymous")
	}
	a.Attach("acct-9")
	if !a.Authenticated() {
		t.Fatal("expected authenticated after attach")
	}
	if got := a.AccountID(); got != "acct-9" {
		t.Fatalf("account id = %q, want %q", got, "acct-9")
	}
	if got := a.ConnectionID(); got != "conn-1" {
		t.Fatalf("connection id = %q, want %q", got, "conn-1")
	}
}

func TestIncrementMetaCountsFromZero(t *testing.T) {
	t.Parallel()

	a := New("conn-1")
	if got := a.IncrementMeta("invalid_payloads.trade"); got != 1 {
		t.Fatalf("first increment = %d, want 1", got)
	}
	if got := a.IncrementMeta("invalid_payloads.trade"); got != 2 {
		t.Fatalf("second increment = %d, want 2", got)
	}
	v, ok := a.Meta("invalid_payloads.trade")
	if !ok || v.(int) != 2 {
		t.Fatalf("meta = %v %v, want 2 true", v, ok)
	}
}

func TestIncrementMetaOverwritesNonInteger(t *testing.T) {
	t.Parallel()

	a := New("conn-1")
	a.SetMeta("counter", "garbage")
	if got := a.IncrementMeta("counter"); got != 1 {
		t.Fatalf("increment over non-int = %d, want 1", got)
	}
}

func TestStates(t *testing.T) {
	t.Parallel()

	a := New("conn-1")
	if a.HasState("incapacitated") {
		t.Fatal("state should start unset")
	}
	a.AddState("incapacitated")
	if !a.HasState("incapacitated") {
		t.Fatal("expected state set")
	}
	a.RemoveState("incapacitated")
	if a.HasState("incapacitated") {
		t.Fatal("expected state cleared")
	}
}

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := New("conn-1")
	r.Add(a)
	if got, ok := r.GetByConnection("conn-1"); !ok || got != a {
		t.Fatal("expected to resolve added actor")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
	r.Remove("conn-1")
	if _, ok := r.GetByConnection("conn-1"); ok {
		t.Fatal("expected actor removed")
	}
}
