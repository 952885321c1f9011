package pps

import (
	"fmt"
	"sort"
	"strings"
)

var (
	none = noneConstraint{}
	any  = anyConstraint{}
)

// A Constraint provides structured limitations on the versions that are
// admissible for a given package.
//
// It has a private method because the solver's internal implementation of the
// problem is complete, and the system relies on type magic to operate.
type Constraint interface {
	fmt.Stringer
	// Matches indicates if the provided Version is allowed by the Constraint.
	Matches(Version) bool
	// MatchesAny indicates if the intersection of the Constraint with the
	// provided Constraint would yield a Constraint that could allow *any*
	// Version.
	MatchesAny(Constraint) bool
	// Intersect computes the intersection of the Constraint with the
	// provided Constraint.
	Intersect(Constraint) Constraint
	// prereleaseHint reports whether the constraint explicitly references a
	// prerelease, which opts the package into prerelease candidates.
	prereleaseHint() bool
	_private()
}

func (rangeConstraint) _private() {}
func (anyConstraint) _private()   {}
func (noneConstraint) _private()  {}

// MalformedConstraintError is returned when a constraint expression cannot be
// parsed.
type MalformedConstraintError struct {
	Expr   string
	Reason string
}

func (e *MalformedConstraintError) Error() string {
	return fmt.Sprintf("malformed constraint %q: %s", e.Expr, e.Reason)
}

// UnsatisfiableConstraintError is returned when the intersection of two
// constraints on the same package is provably empty. Both operands are
// carried for diagnostics; Contributing is populated when the operands came
// from distinct workspace members.
type UnsatisfiableConstraintError struct {
	Package      PackageName
	Left, Right  string
	Contributing []ContributingConstraint
}

func (e *UnsatisfiableConstraintError) Error() string {
	if e.Package == "" {
		return fmt.Sprintf("constraints %q and %q have an empty intersection", e.Left, e.Right)
	}
	return fmt.Sprintf("constraints %q and %q on %s have an empty intersection", e.Left, e.Right, e.Package)
}

// ParseConstraint parses a comma-separated AND of PEP 440 version specifier
// clauses (==, !=, >=, <=, >, <, ~=) into a Constraint. The empty string and
// "*" are the unbounded constraint. Compatible-release clauses and ==X.Y.*
// wildcards are expanded into simple bound pairs at parse time, so the solver
// only ever deals in bound comparisons.
func ParseConstraint(expr string) (Constraint, error) {
	s := strings.TrimSpace(expr)
	if s == "" || s == "*" {
		return any, nil
	}

	c := Constraint(any)
	for _, rawClause := range strings.Split(s, ",") {
		clause := strings.TrimSpace(rawClause)
		if clause == "" {
			return nil, &MalformedConstraintError{Expr: expr, Reason: "empty clause"}
		}

		cc, err := parseClause(expr, clause)
		if err != nil {
			return nil, err
		}

		nc := c.Intersect(cc)
		if nc == Constraint(none) {
			return nil, &UnsatisfiableConstraintError{Left: c.String(), Right: cc.String()}
		}
		c = nc
	}

	return c, nil
}

func parseClause(expr, clause string) (Constraint, error) {
	var op, body string
	for _, cand := range []string{"===", "==", "!=", "~=", ">=", "<=", ">", "<"} {
		if strings.HasPrefix(clause, cand) {
			op, body = cand, strings.TrimSpace(clause[len(cand):])
			break
		}
	}
	if op == "" {
		return nil, &MalformedConstraintError{Expr: expr, Reason: fmt.Sprintf("clause %q has no comparison operator", clause)}
	}
	if body == "" {
		return nil, &MalformedConstraintError{Expr: expr, Reason: fmt.Sprintf("operator %q has no operand", op)}
	}

	wildcard := strings.HasSuffix(body, ".*")
	if wildcard {
		if op != "==" {
			return nil, &MalformedConstraintError{Expr: expr, Reason: fmt.Sprintf("wildcard is only supported with ==, not %s", op)}
		}
		body = strings.TrimSuffix(body, ".*")
	}

	v, err := NewVersion(body)
	if err != nil {
		return nil, &MalformedConstraintError{Expr: expr, Reason: err.Error()}
	}

	switch {
	case wildcard:
		return prefixRange(v), nil
	case op == "==" || op == "===":
		return v, nil
	case op == "!=":
		return rangeConstraint{excl: []Version{v}}, nil
	case op == "~=":
		return compatibleRange(expr, v)
	case op == ">=":
		return rangeConstraint{min: v, includeMin: true}, nil
	case op == ">":
		return rangeConstraint{min: v}, nil
	case op == "<=":
		return rangeConstraint{max: v, includeMax: true}, nil
	default: // "<"
		return rangeConstraint{max: v}, nil
	}
}

// prefixRange expands ==X.Y.* into [X.Y, X.Y+1).
func prefixRange(v Version) Constraint {
	rel := v.Release()
	upper := make([]int, len(rel))
	copy(upper, rel)
	upper[len(upper)-1]++
	return rangeConstraint{
		min:        v,
		includeMin: true,
		max:        releaseVersion(upper),
	}
}

// compatibleRange expands ~=X.Y(.Z) into [X.Y.Z, X.Y+1) per the
// compatible-release rules; a single-segment operand is malformed.
func compatibleRange(expr string, v Version) (Constraint, error) {
	rel := v.Release()
	if len(rel) < 2 {
		return nil, &MalformedConstraintError{Expr: expr, Reason: "~= requires at least two release segments"}
	}
	upper := make([]int, len(rel)-1)
	copy(upper, rel[:len(rel)-1])
	upper[len(upper)-1]++
	return rangeConstraint{
		min:        v,
		includeMin: true,
		max:        releaseVersion(upper),
	}, nil
}

func releaseVersion(rel []int) Version {
	segs := make([]string, len(rel))
	for i, n := range rel {
		segs[i] = fmt.Sprintf("%d", n)
	}
	v, err := NewVersion(strings.Join(segs, "."))
	if err != nil {
		panic("canary - synthesized release version failed to parse")
	}
	return v
}

// IsAny indicates if the provided constraint is the wildcard "Any" constraint.
func IsAny(c Constraint) bool {
	_, ok := c.(anyConstraint)
	return ok
}

// IsNone indicates if the provided constraint matches no versions.
func IsNone(c Constraint) bool {
	_, ok := c.(noneConstraint)
	return ok
}

// Any returns a constraint that will match anything.
func Any() Constraint {
	return anyConstraint{}
}

// None returns a constraint that matches nothing.
func None() Constraint {
	return noneConstraint{}
}

// anyConstraint is an unbounded constraint - it matches all versions.
type anyConstraint struct{}

func (anyConstraint) String() string             { return "*" }
func (anyConstraint) Matches(Version) bool       { return true }
func (anyConstraint) MatchesAny(Constraint) bool { return true }
func (anyConstraint) Intersect(c Constraint) Constraint {
	return c
}
func (anyConstraint) prereleaseHint() bool { return false }

// noneConstraint is the empty set - it matches no versions.
type noneConstraint struct{}

func (noneConstraint) String() string                  { return "<none>" }
func (noneConstraint) Matches(Version) bool            { return false }
func (noneConstraint) MatchesAny(Constraint) bool      { return false }
func (noneConstraint) Intersect(Constraint) Constraint { return none }
func (noneConstraint) prereleaseHint() bool            { return false }

// rangeConstraint is a bounded interval with optional exclusions, the
// internal form every specifier expression reduces to.
type rangeConstraint struct {
	min, max               Version // nil when unbounded on that side
	includeMin, includeMax bool
	excl                   []Version
}

func (c rangeConstraint) String() string {
	var parts []string
	if c.min != nil {
		op := ">"
		if c.includeMin {
			op = ">="
		}
		parts = append(parts, op+c.min.String())
	}
	if c.max != nil {
		op := "<"
		if c.includeMax {
			op = "<="
		}
		parts = append(parts, op+c.max.String())
	}
	for _, e := range c.excl {
		parts = append(parts, "!="+e.String())
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ",")
}

func (c rangeConstraint) Matches(v Version) bool {
	if c.min != nil {
		cmp := v.Compare(c.min)
		if cmp < 0 || (cmp == 0 && !c.includeMin) {
			return false
		}
	}
	if c.max != nil {
		cmp := v.Compare(c.max)
		if cmp > 0 || (cmp == 0 && !c.includeMax) {
			return false
		}
	}
	for _, e := range c.excl {
		if v.Compare(e) == 0 {
			return false
		}
	}
	return true
}

func (c rangeConstraint) MatchesAny(c2 Constraint) bool {
	return c.Intersect(c2) != Constraint(none)
}

func (c rangeConstraint) Intersect(c2 Constraint) Constraint {
	switch tc := c2.(type) {
	case anyConstraint:
		return c
	case noneConstraint:
		return none
	case Version:
		if c.Matches(tc) {
			return tc
		}
		return none
	case rangeConstraint:
		nc := rangeConstraint{
			min:        c.min,
			max:        c.max,
			includeMin: c.includeMin,
			includeMax: c.includeMax,
		}

		if nc.min == nil || (tc.min != nil && tc.min.Compare(nc.min) > 0) {
			nc.min, nc.includeMin = tc.min, tc.includeMin
		} else if tc.min != nil && tc.min.Compare(nc.min) == 0 {
			nc.includeMin = nc.includeMin && tc.includeMin
		}

		if nc.max == nil || (tc.max != nil && tc.max.Compare(nc.max) < 0) {
			nc.max, nc.includeMax = tc.max, tc.includeMax
		} else if tc.max != nil && tc.max.Compare(nc.max) == 0 {
			nc.includeMax = nc.includeMax && tc.includeMax
		}

		nc.excl = mergeExclusions(c.excl, tc.excl)

		if nc.empty() {
			return none
		}
		return nc
	}

	panic(fmt.Sprintf("canary - unknown Constraint impl %T", c2))
}

func (c rangeConstraint) empty() bool {
	if c.min == nil || c.max == nil {
		return false
	}
	cmp := c.min.Compare(c.max)
	if cmp > 0 {
		return true
	}
	if cmp == 0 {
		if !c.includeMin || !c.includeMax {
			return true
		}
		// Degenerate single-point range; empty if that point is excluded.
		for _, e := range c.excl {
			if e.Compare(c.min) == 0 {
				return true
			}
		}
	}
	return false
}

func (c rangeConstraint) prereleaseHint() bool {
	if c.min != nil && c.min.Prerelease() {
		return true
	}
	if c.max != nil && c.max.Prerelease() {
		return true
	}
	for _, e := range c.excl {
		if e.Prerelease() {
			return true
		}
	}
	return false
}

func mergeExclusions(a, b []Version) []Version {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]Version, 0, len(a)+len(b))
	out = append(out, a...)
	for _, v := range b {
		dup := false
		for _, e := range out {
			if e.Compare(v) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
