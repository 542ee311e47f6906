package memo

import "github.com/kamkernel/cascadeopt/opt"

// InputNode is the narrow interface the memo expects of an operator tree
// produced by a parser/binder living outside this module. It is
// intentionally minimal: an operator plus an ordered list of children.
type InputNode interface {
	Op() opt.Operator
	Children() []InputNode
}

// Record walks the input tree bottom-up, inserting each node into the
// memo as a group-expression. A node's children are recorded
// first, and the resulting child GroupIDs become the new expression's
// children. Record is idempotent: ingesting the same tree twice produces
// the same root GroupID, because every node canonicalizes to the same
// memo slot both times.
func (m *Memo) Record(root InputNode) (opt.GroupID, *Expr, error) {
	children := root.Children()
	childIDs := make([]opt.GroupID, len(children))
	for i, c := range children {
		id, _, err := m.Record(c)
		if err != nil {
			return opt.UndefinedGroup, nil, err
		}
		childIDs[i] = id
	}
	groupID, expr, _, err := m.Insert(root.Op(), childIDs, opt.UndefinedGroup)
	if err != nil {
		return opt.UndefinedGroup, nil, err
	}
	return groupID, expr, nil
}
