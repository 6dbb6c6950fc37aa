package condition

import "github.com/ErlanBelekov/journey/internal/domain"

// ValueSource is the read-only view Evaluate needs of current execution
// state. *domain.Execution satisfies it via its Value method; tests can
// supply a plain map-backed implementation.
type ValueSource interface {
	Value(nodeName string) *domain.ValueRow
}

// Result explains why a node is or isn't unblocked, so tooling (and the
// scheduler's own logs) can report which leaves are met and which are
// still pending.
type Result struct {
	Met         bool
	LeavesMet   []string
	LeavesUnmet []string
}

// Evaluate walks c against src. It is total: a Leaf referencing a node
// that isn't present in src is treated as unmet, never as an error —
// graph validation is responsible for rejecting such references before
// the condition ever reaches a running execution.
func Evaluate(c Cond, src ValueSource) Result {
	var r Result
	r.Met = eval(c, src, &r)
	return r
}

func eval(c Cond, src ValueSource, r *Result) bool {
	switch t := c.(type) {
	case Leaf:
		v := src.Value(t.NodeName)
		met := v.IsSet() && t.Predicate(v.NodeValue)
		if met {
			r.LeavesMet = append(r.LeavesMet, t.NodeName)
		} else {
			r.LeavesUnmet = append(r.LeavesUnmet, t.NodeName)
		}
		return met
	case And:
		met := true
		for _, ch := range t.Children {
			if !eval(ch, src, r) {
				met = false
			}
		}
		return met
	case Or:
		met := false
		for _, ch := range t.Children {
			if eval(ch, src, r) {
				met = true
			}
		}
		return met
	case Not:
		// A Not's subtree still records its own leaves for explainability;
		// only the polarity of the overall result is inverted.
		sub := Evaluate(t.Child, src)
		r.LeavesMet = append(r.LeavesMet, sub.LeavesMet...)
		r.LeavesUnmet = append(r.LeavesUnmet, sub.LeavesUnmet...)
		return !sub.Met
	default:
		return false
	}
}
