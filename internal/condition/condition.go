// Package condition evaluates the gating expressions that decide whether
// a derived node's computation is unblocked. Evaluation is pure and
// I/O-free: it only ever looks at the value snapshot it is given (plus,
// for Due, the wall clock).
package condition

import (
	"time"

	"github.com/ErlanBelekov/journey/internal/value"
)

// Predicate tests a node's current value. Predicates are registered by a
// stable string ID (see Leaf.PredicateID) so that two conditions can be
// compared for equality when the graph definition is content-hashed —
// Go closures are never comparable, so the ID is the thing that actually
// participates in the hash.
type Predicate func(v value.Value) bool

// Provided is the default predicate used by the bare-list sugar form: the
// node merely needs to have been set, regardless of its value.
func Provided(value.Value) bool { return true }

// Due is the predicate downstream nodes gate on a schedule node with:
// the schedule's epoch-second value has arrived. A false here is never
// final — the UnblockedBySchedule sweep re-advances the execution once
// the fire time passes.
func Due(v value.Value) bool { return v.IntValue() <= time.Now().Unix() }

// Cond is the gating expression tree: Leaf | And | Or | Not.
type Cond interface {
	cond()
}

// Leaf is satisfied iff the named node's value has been set (set_time is
// non-nil) and Predicate(value) is true.
type Leaf struct {
	NodeName    string
	PredicateID string
	Predicate   Predicate
}

// And is satisfied iff every child is.
type And struct{ Children []Cond }

// Or is satisfied iff at least one child is.
type Or struct{ Children []Cond }

// Not is satisfied iff its child is not.
type Not struct{ Child Cond }

func (Leaf) cond() {}
func (And) cond()  {}
func (Or) cond()   {}
func (Not) cond()  {}

// FromNodeList builds the common "all of these are set" gate: an And of
// one Provided leaf per name.
func FromNodeList(names ...string) Cond {
	children := make([]Cond, len(names))
	for i, n := range names {
		children[i] = Leaf{NodeName: n, PredicateID: "provided", Predicate: Provided}
	}
	return And{Children: children}
}

// DueNode builds the leaf that gates a node on a schedule node's fire
// time: set, and at or past due.
func DueNode(name string) Cond {
	return Leaf{NodeName: name, PredicateID: "due", Predicate: Due}
}

// Nodes returns every node name referenced anywhere in the tree, used by
// graph validation to reject conditions that reference unknown nodes
// up-front (evaluation itself is total, but construction-time validation
// rejects unknown references).
func Nodes(c Cond) []string {
	var out []string
	var walk func(Cond)
	walk = func(c Cond) {
		switch t := c.(type) {
		case Leaf:
			out = append(out, t.NodeName)
		case And:
			for _, ch := range t.Children {
				walk(ch)
			}
		case Or:
			for _, ch := range t.Children {
				walk(ch)
			}
		case Not:
			walk(t.Child)
		}
	}
	walk(c)
	return out
}

// Fingerprint renders the tree's shape as a stable string: operators,
// node names, and predicate IDs, but never the (uncomparable) predicate
// closures. Graph content-hashing builds on this.
func Fingerprint(c Cond) string {
	switch t := c.(type) {
	case Leaf:
		id := t.PredicateID
		if id == "" {
			id = "provided"
		}
		return t.NodeName + "?" + id
	case And:
		return "and(" + joinFingerprints(t.Children) + ")"
	case Or:
		return "or(" + joinFingerprints(t.Children) + ")"
	case Not:
		return "not(" + Fingerprint(t.Child) + ")"
	default:
		return ""
	}
}

func joinFingerprints(children []Cond) string {
	s := ""
	for i, ch := range children {
		if i > 0 {
			s += ","
		}
		s += Fingerprint(ch)
	}
	return s
}
