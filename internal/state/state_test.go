package state

import "testing"

func TestReduceFilesRightBiased(t *testing.T) {
	l := map[string]string{"a": "1", "b": "2"}
	r := map[string]string{"b": "3", "c": "4"}
	out := ReduceFiles(l, r)
	if out["a"] != "1" || out["b"] != "3" || out["c"] != "4" {
		t.Fatalf("unexpected merge result: %+v", out)
	}
}

func TestReduceTodosEmptyPreserves(t *testing.T) {
	existing := []TodoItem{{Content: "x", Status: TodoPending}}
	out := ReduceTodos(existing, nil)
	if len(out) != 1 || out[0].Content != "x" {
		t.Fatalf("empty replacement should preserve existing todos, got %+v", out)
	}
}

func TestReduceTodosNonEmptyReplaces(t *testing.T) {
	existing := []TodoItem{{Content: "x", Status: TodoPending}}
	replacement := []TodoItem{{Content: "y", Status: TodoCompleted}}
	out := ReduceTodos(existing, replacement)
	if len(out) != 1 || out[0].Content != "y" {
		t.Fatalf("non-empty replacement should win, got %+v", out)
	}
}

func TestApplyIdempotentOnEmptyDiff(t *testing.T) {
	s := New()
	s.Files["a"] = "1"
	before := s.Snapshot()
	Apply(s, StateDiff{})
	if s.Files["a"] != before.Files["a"] || len(s.Files) != len(before.Files) {
		t.Fatalf("applying empty diff mutated state: %+v", s)
	}
}

func TestApplySameDiffTwiceConverges(t *testing.T) {
	s := New()
	d := StateDiff{Files: map[string]string{"a": "1"}}
	Apply(s, d)
	first := s.Snapshot()
	Apply(s, d)
	if s.Files["a"] != first.Files["a"] {
		t.Fatalf("right-biased merge did not converge after repeated apply")
	}
}

func TestHandleReadIsolated(t *testing.T) {
	h := NewHandle(New())
	snap := h.Read()
	snap.Files["z"] = "leaked"
	if _, ok := h.Read().Files["z"]; ok {
		t.Fatalf("mutating a snapshot must not affect the guarded state")
	}
}

func TestHandleApplyAndReplace(t *testing.T) {
	h := NewHandle(New())
	h.Apply(StateDiff{Scratchpad: map[string]any{"k": "v"}})
	if h.Read().Scratchpad["k"] != "v" {
		t.Fatalf("handle apply did not take effect")
	}
	h.Replace(New())
	if len(h.Read().Scratchpad) != 0 {
		t.Fatalf("replace did not reset state")
	}
}
