package rules

import (
	"context"
	"strings"
	"testing"
	"time"
)

const reachProgram = `
Decl edge(A, B) descr [mode("-", "-")].
Decl reach(A, B) descr [mode("-", "-")].
reach(A, B) :- edge(A, B).
reach(A, C) :- edge(A, B), reach(B, C).
`

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if engine == nil {
		t.Fatal("NewEngine() returned nil engine")
	}
	stats := engine.GetStats()
	if stats.TotalFacts != 0 {
		t.Errorf("fresh engine holds %d facts, want 0", stats.TotalFacts)
	}
}

func TestNewEngineParseError(t *testing.T) {
	if _, err := NewEngine(`Decl broken(`); err == nil {
		t.Fatal("NewEngine() accepted a malformed program")
	}
}

func TestEngineAddFactDerives(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	// Auto-eval is on by default, so derivations land immediately.
	if err := engine.AddFact("edge", "a", "b"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}
	if err := engine.AddFact("edge", "b", "c"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}

	reach, err := engine.GetFacts("reach")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if len(reach) != 3 {
		t.Fatalf("GetFacts(reach) returned %d facts, want 3", len(reach))
	}
}

func TestEngineToggleAutoEval(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engine.ToggleAutoEval(false)

	facts := []Fact{
		{Predicate: "edge", Args: []interface{}{"a", "b"}},
		{Predicate: "edge", Args: []interface{}{"b", "c"}},
	}
	if err := engine.AddFacts(facts); err != nil {
		t.Fatalf("AddFacts() error = %v", err)
	}

	reach, err := engine.GetFacts("reach")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if len(reach) != 0 {
		t.Fatalf("derived %d reach facts before Evaluate()", len(reach))
	}

	if err := engine.Evaluate(); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	reach, err = engine.GetFacts("reach")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if len(reach) != 3 {
		t.Fatalf("GetFacts(reach) returned %d facts after eval, want 3", len(reach))
	}
}

func TestEngineAddFactArityMismatch(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddFact("edge", "a"); err == nil {
		t.Fatal("AddFact() accepted wrong arity")
	}
	if err := engine.AddFact("unknown_pred", "a"); err == nil {
		t.Fatal("AddFact() accepted undeclared predicate")
	}
}

func TestEngineNameAtomization(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddFact("edge", "alpha", "/beta"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}

	edges, err := engine.GetFacts("edge")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("GetFacts(edge) returned %d facts, want 1", len(edges))
	}
	// Identifier strings and explicit /name syntax both become names.
	if got := edges[0].Args[0]; got != "/alpha" {
		t.Errorf("Args[0] = %v, want /alpha", got)
	}
	if got := edges[0].Args[1]; got != "/beta" {
		t.Errorf("Args[1] = %v, want /beta", got)
	}
}

func TestEngineQuery(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddFact("edge", "a", "b"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}
	if err := engine.AddFact("edge", "b", "c"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := engine.Query(ctx, "?reach(From, To)")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Bindings) != 3 {
		t.Fatalf("Query() returned %d bindings, want 3", len(result.Bindings))
	}
	seen := make(map[string]bool)
	for _, row := range result.Bindings {
		from, _ := row["From"].(string)
		to, _ := row["To"].(string)
		seen[from+"->"+to] = true
	}
	if !seen["/a->/c"] {
		t.Error("transitive reach /a -> /c not derived")
	}
}

func TestEngineClearKeepsRules(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddFact("edge", "a", "b"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}

	engine.Clear()
	if stats := engine.GetStats(); stats.TotalFacts != 0 {
		t.Fatalf("Clear() left %d facts behind", stats.TotalFacts)
	}

	// Rules survive a clear; only the facts reset.
	if err := engine.AddFact("edge", "x", "y"); err != nil {
		t.Fatalf("AddFact() after Clear() error = %v", err)
	}
	reach, err := engine.GetFacts("reach")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if len(reach) != 1 {
		t.Fatalf("GetFacts(reach) after Clear() returned %d facts, want 1", len(reach))
	}
}

func TestEngineLoadProgramMerges(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	extra := `
Decl hub(A).
hub(A) :- reach(A, _).
`
	if err := engine.LoadProgram(extra); err != nil {
		t.Fatalf("LoadProgram() error = %v", err)
	}
	if err := engine.AddFact("edge", "a", "b"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}

	hubs, err := engine.GetFacts("hub")
	if err != nil {
		t.Fatalf("GetFacts() error = %v", err)
	}
	if len(hubs) != 1 {
		t.Fatalf("GetFacts(hub) returned %d facts, want 1", len(hubs))
	}
}

func TestEngineGetStats(t *testing.T) {
	engine, err := NewEngine(reachProgram)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddFact("edge", "a", "b"); err != nil {
		t.Fatalf("AddFact() error = %v", err)
	}

	stats := engine.GetStats()
	if stats.PredicateCounts["edge"] != 1 {
		t.Errorf("PredicateCounts[edge] = %d, want 1", stats.PredicateCounts["edge"])
	}
	if stats.PredicateCounts["reach"] != 1 {
		t.Errorf("PredicateCounts[reach] = %d, want 1", stats.PredicateCounts["reach"])
	}
	if stats.TotalFacts < 2 {
		t.Errorf("TotalFacts = %d, want at least 2", stats.TotalFacts)
	}
}

func TestFactString(t *testing.T) {
	f := Fact{Predicate: "motor_kv", Args: []interface{}{"/motor_1", int64(1750)}}
	got := f.String()
	if !strings.Contains(got, "motor_kv") || !strings.Contains(got, "1750") {
		t.Errorf("Fact.String() = %q", got)
	}
}
