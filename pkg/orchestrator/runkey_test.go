package orchestrator

import "testing"

func TestComputeRunKeyIsStableAndRepoScoped(t *testing.T) {
	a := ComputeRunKey("acme/widgets", "main", "test", "assertion_failure")
	b := ComputeRunKey("acme/widgets", "main", "test", "assertion_failure")
	if a != b {
		t.Fatalf("expected deterministic run key, got %q and %q", a, b)
	}

	other := ComputeRunKey("acme/widgets", "main", "test", "timeout")
	if a == other {
		t.Fatalf("expected different failure types to produce different run keys")
	}

	otherRepo := ComputeRunKey("acme/gadgets", "main", "test", "assertion_failure")
	if a == otherRepo {
		t.Fatalf("expected different repos to produce different run keys")
	}
	if a[:len("acme/widgets")] != "acme/widgets" {
		t.Fatalf("expected run key to be prefixed with repo name, got %q", a)
	}
}

func TestComputeRunKeyIgnoresCommitSHA(t *testing.T) {
	// A retry of the same recurring flake on a new commit must still
	// collide on the same run key so the cooldown guard can catch it.
	a := ComputeRunKey("acme/widgets", "main", "test", "assertion_failure")
	b := ComputeRunKey("acme/widgets", "main", "test", "assertion_failure")
	if a != b {
		t.Fatalf("expected commit-independent run key")
	}
}
