package condition_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/journey/internal/condition"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/value"
)

type fakeSource map[string]*domain.ValueRow

func (f fakeSource) Value(name string) *domain.ValueRow { return f[name] }

func setRow(v value.Value) *domain.ValueRow {
	t := time.Now()
	return &domain.ValueRow{NodeValue: v, SetTime: &t}
}

func TestEvaluate_LeafUnsetIsUnmet(t *testing.T) {
	src := fakeSource{}
	r := condition.Evaluate(condition.Leaf{NodeName: "x", Predicate: condition.Provided}, src)
	if r.Met {
		t.Fatal("expected unmet for unset node")
	}
	if len(r.LeavesUnmet) != 1 || r.LeavesUnmet[0] != "x" {
		t.Fatalf("unexpected unmet leaves: %v", r.LeavesUnmet)
	}
}

func TestEvaluate_AndRequiresAllChildren(t *testing.T) {
	src := fakeSource{"a": setRow(value.Bool(true))}
	c := condition.And{Children: []condition.Cond{
		condition.Leaf{NodeName: "a", Predicate: condition.Provided},
		condition.Leaf{NodeName: "b", Predicate: condition.Provided},
	}}
	r := condition.Evaluate(c, src)
	if r.Met {
		t.Fatal("expected unmet: b is not set")
	}
	if len(r.LeavesMet) != 1 || len(r.LeavesUnmet) != 1 {
		t.Fatalf("got met=%v unmet=%v", r.LeavesMet, r.LeavesUnmet)
	}
}

func TestEvaluate_OrSatisfiedByOneChild(t *testing.T) {
	src := fakeSource{"a": setRow(value.Bool(true))}
	c := condition.Or{Children: []condition.Cond{
		condition.Leaf{NodeName: "a", Predicate: condition.Provided},
		condition.Leaf{NodeName: "b", Predicate: condition.Provided},
	}}
	if !condition.Evaluate(c, src).Met {
		t.Fatal("expected met")
	}
}

func TestEvaluate_NotInvertsPolarity(t *testing.T) {
	src := fakeSource{"a": setRow(value.Bool(true))}
	c := condition.Not{Child: condition.Leaf{NodeName: "a", Predicate: condition.Provided}}
	if condition.Evaluate(c, src).Met {
		t.Fatal("expected unmet: Not(set) over a set node")
	}
}

func TestEvaluate_PredicateOverValue(t *testing.T) {
	src := fakeSource{"n": setRow(value.Int(5))}
	isPositive := func(v value.Value) bool { return v.Kind() == value.KindInt && v.IntValue() > 0 }
	c := condition.Leaf{NodeName: "n", Predicate: isPositive}
	if !condition.Evaluate(c, src).Met {
		t.Fatal("expected met: 5 > 0")
	}
}

func TestEvaluate_UnknownNodeTreatedAsUnmet(t *testing.T) {
	src := fakeSource{}
	c := condition.FromNodeList("missing")
	if condition.Evaluate(c, src).Met {
		t.Fatal("expected unmet for unknown node reference")
	}
}

func TestEvaluate_NullSetValueIsStillMet(t *testing.T) {
	// An explicit null-set (set_time != nil, value == null) must be
	// distinguishable from unset — Provided should still be true.
	src := fakeSource{"n": setRow(value.Null())}
	c := condition.Leaf{NodeName: "n", Predicate: condition.Provided}
	if !condition.Evaluate(c, src).Met {
		t.Fatal("expected met: explicit null is still 'set'")
	}
}

func TestEvaluate_DueNodeGatesOnFireTime(t *testing.T) {
	now := time.Now().Unix()

	past := fakeSource{"fire_at": setRow(value.Int(now - 10))}
	if !condition.Evaluate(condition.DueNode("fire_at"), past).Met {
		t.Fatal("expected met: the schedule value is in the past")
	}

	future := fakeSource{"fire_at": setRow(value.Int(now + 3600))}
	if condition.Evaluate(condition.DueNode("fire_at"), future).Met {
		t.Fatal("expected unmet: the schedule value has not arrived")
	}

	unset := fakeSource{}
	if condition.Evaluate(condition.DueNode("fire_at"), unset).Met {
		t.Fatal("expected unmet: the schedule node has not fired at all")
	}
}
