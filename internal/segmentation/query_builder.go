package segmentation

// BuildClause maps one filter to a query-language clause. It never fails:
// an operator it does not recognise degrades to equality against Value.
func BuildClause(f FilterValue) Clause {
	ref := FieldRef(f.FieldID)

	switch f.Operator {
	case OpEquals:
		return eachOperand(KindOr, f.operands(), func(v any) Clause {
			return Clause{KindEquals, ref, v}
		})

	case OpNotEquals:
		return eachOperand(KindAnd, f.operands(), func(v any) Clause {
			return Clause{KindNotEquals, ref, v}
		})

	case OpContains:
		return eachOperand(KindOr, f.operands(), func(v any) Clause {
			return Clause{KindContains, ref, v, caseInsensitive()}
		})

	case OpStartsWith:
		return eachOperand(KindOr, f.operands(), func(v any) Clause {
			return Clause{KindStartsWith, ref, v, caseInsensitive()}
		})

	case OpEndsWith:
		return eachOperand(KindOr, f.operands(), func(v any) Clause {
			return Clause{KindEndsWith, ref, v, caseInsensitive()}
		})

	case OpGreaterThan:
		return Clause{KindGreater, ref, f.Value}

	case OpLessThan:
		return Clause{KindLess, ref, f.Value}

	case OpBetween:
		// Missing bounds pass through as null; the BI tool decides.
		return Clause{KindBetween, ref, f.Value, f.ValueTo}

	case OpIsNull:
		return Clause{KindIsNull, ref}

	case OpIsNotNull:
		return Clause{KindNotNull, ref}

	default:
		return Clause{KindEquals, ref, f.Value}
	}
}

// eachOperand builds one comparison per operand and joins them with kind
// when there is more than one, preserving input order.
func eachOperand(kind string, operands []any, build func(v any) Clause) Clause {
	if len(operands) == 1 {
		return build(operands[0])
	}
	out := Clause{kind}
	for _, v := range operands {
		out = append(out, build(v))
	}
	return out
}

func caseInsensitive() map[string]any {
	return map[string]any{"case-sensitive": false}
}

// Combine compiles a filter set into one predicate, or nil when there are
// no filters.
//
// Filters are grouped by field in first-seen order. A group whose filters
// all use equals/contains/starts_with/ends_with is OR-ed (the user is
// widening one field's match set); any other group is AND-ed, e.g.
// greater_than plus less_than on one field. Groups are always AND-ed with
// each other, so a cross-field OR cannot be expressed.
func Combine(filters []FilterValue) Clause {
	if len(filters) == 0 {
		return nil
	}

	order := []int{}
	groups := map[int][]FilterValue{}
	for _, f := range filters {
		if _, seen := groups[f.FieldID]; !seen {
			order = append(order, f.FieldID)
		}
		groups[f.FieldID] = append(groups[f.FieldID], f)
	}

	clauses := make([]Clause, 0, len(order))
	for _, fieldID := range order {
		clauses = append(clauses, combineGroup(groups[fieldID]))
	}

	if len(clauses) == 1 {
		return clauses[0]
	}
	out := Clause{KindAnd}
	for _, c := range clauses {
		out = append(out, c)
	}
	return out
}

func combineGroup(group []FilterValue) Clause {
	if len(group) == 1 {
		return BuildClause(group[0])
	}

	kind := KindOr
	for _, f := range group {
		if !f.Operator.inclusive() {
			kind = KindAnd
			break
		}
	}

	out := Clause{kind}
	for _, f := range group {
		out = append(out, BuildClause(f))
	}
	return out
}
