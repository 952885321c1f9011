package pps

import (
	"bytes"
	"fmt"
	"strings"
)

// traceError is implemented by failures that have a compact rendering for
// the solver's structured trace output.
type traceError interface {
	traceString() string
}

// ConflictReport is the structured explanation produced when no version
// assignment can satisfy all constraints on a package. It carries the full
// ordered provenance chain so a presentation layer can explain the conflict
// without re-deriving it.
type ConflictReport struct {
	Package      PackageName
	Contributing []ContributingConstraint
}

// ConflictError is the terminal resolution failure: backtracking exhausted
// the root decision for Package. It wraps the individual per-version
// failures encountered along the way.
type ConflictError struct {
	report ConflictReport
	fails  []failedVersion
}

func (e *ConflictError) Report() ConflictReport {
	return e.report
}

func (e *ConflictError) Error() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "no version of %s satisfies all constraints:", e.report.Package)
	for _, cc := range e.report.Contributing {
		who := cc.Member
		if who == "" {
			who = cc.Depender
		}
		fmt.Fprintf(&buf, "\n\t%s from %s", cc.Constraint, who)
	}
	if len(e.fails) > 0 {
		fmt.Fprintf(&buf, "\nversions tried:")
		for _, f := range e.fails {
			fmt.Fprintf(&buf, "\n\t%s: %s", f.v, f.f.Error())
		}
	}
	return buf.String()
}

// UnknownPackageError indicates the metadata provider knows nothing about a
// package. Provider failures that are not otherwise typed are folded into
// this, carrying the underlying error.
type UnknownPackageError struct {
	Name PackageName
	Err  error
}

func (e *UnknownPackageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("package %s could not be located: %s", e.Name, e.Err)
	}
	return fmt.Sprintf("package %s could not be located", e.Name)
}

func (e *UnknownPackageError) Unwrap() error { return e.Err }

// SourceMismatchError indicates two requirements name the same package from
// irreconcilable sources. It is fatal for the resolution attempt; the solver
// never guesses a precedence order between sources.
type SourceMismatchError struct {
	Package      PackageName
	Current      Source
	Mismatch     Source
	Contributing []ContributingConstraint
}

func (e *SourceMismatchError) Error() string {
	var who []string
	for _, cc := range e.Contributing {
		if cc.Member != "" {
			who = append(who, cc.Member)
		} else if cc.Depender != "" {
			who = append(who, cc.Depender)
		}
	}
	return fmt.Sprintf("%s is required from %s, but is already marked as coming from %s by %s",
		e.Package, e.Mismatch, e.Current, strings.Join(who, ", "))
}

func (e *SourceMismatchError) traceString() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "disagreement on source for %s:\n", e.Package)
	fmt.Fprintf(&buf, "  %s\n", e.Mismatch)
	fmt.Fprintf(&buf, "  %s\n", e.Current)
	return buf.String()
}

// ResolutionTimeoutError indicates the solver exceeded its candidate-check
// ceiling without reaching a decision; the search was cut off rather than
// allowed to run unbounded.
type ResolutionTimeoutError struct {
	Attempts int
}

func (e *ResolutionTimeoutError) Error() string {
	return fmt.Sprintf("resolution abandoned after %d candidate checks", e.Attempts)
}

type failedVersion struct {
	v Version
	f error
}

// noVersionError is raised when a package's version queue is exhausted with
// no acceptable candidate. It is the unit the backtracker propagates; if it
// survives to the root, it becomes a ConflictError.
type noVersionError struct {
	id    ProjectIdentifier
	fails []failedVersion
}

func (e *noVersionError) Error() string {
	if len(e.fails) == 0 {
		return fmt.Sprintf("no versions could be found for %s", e.id.errString())
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "could not find any version of %s that met constraints:", e.id.errString())
	for _, f := range e.fails {
		fmt.Fprintf(&buf, "\n\t%s: %s", f.v, f.f.Error())
	}
	return buf.String()
}

func (e *noVersionError) traceString() string {
	if len(e.fails) == 0 {
		return "no versions found"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "no versions of %s met constraints:", e.id.Name)
	for _, f := range e.fails {
		if te, ok := f.f.(traceError); ok {
			fmt.Fprintf(&buf, "\n  %s: %s", f.v, te.traceString())
		} else {
			fmt.Fprintf(&buf, "\n  %s: %s", f.v, f.f.Error())
		}
	}
	return buf.String()
}

// versionNotAllowedFailure: an atom's own version is rejected by the
// accumulated constraint on its package.
type versionNotAllowedFailure struct {
	goal       atom
	failparent []Dependency
	c          Constraint
}

func (e *versionNotAllowedFailure) Error() string {
	if len(e.failparent) == 1 {
		return fmt.Sprintf("could not introduce %s, as it is not allowed by constraint %s from %s",
			a2vs(e.goal), constraintDisplay(e.failparent[0].Dep.Constraint), e.failparent[0].describeDepender())
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "could not introduce %s, as it is not allowed by constraints from:\n", a2vs(e.goal))
	for _, f := range e.failparent {
		fmt.Fprintf(&buf, "\t%s from %s\n", constraintDisplay(f.Dep.Constraint), f.describeDepender())
	}
	return buf.String()
}

func (e *versionNotAllowedFailure) traceString() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s not allowed by constraint %s:\n", a2vs(e.goal), constraintDisplay(e.c))
	for _, f := range e.failparent {
		fmt.Fprintf(&buf, "  %s from %s\n", constraintDisplay(f.Dep.Constraint), f.describeDepender())
	}
	return buf.String()
}

// disjointConstraintFailure: an atom introduces a constraint with no overlap
// with the accumulated constraint from currently selected dependers.
type disjointConstraintFailure struct {
	goal      Dependency
	failsib   []Dependency
	nofailsib []Dependency
	c         Constraint
}

func (e *disjointConstraintFailure) Error() string {
	if len(e.failsib) == 1 {
		return fmt.Sprintf("could not introduce %s, as it requires %s %s, which has no overlap with existing constraint %s from %s",
			a2vs(e.goal.Depender), e.goal.Dep.Name, constraintDisplay(e.goal.Dep.Constraint),
			constraintDisplay(e.failsib[0].Dep.Constraint), e.failsib[0].describeDepender())
	}

	var buf bytes.Buffer
	sibs := e.failsib
	if len(sibs) == 0 {
		sibs = e.nofailsib
	}
	fmt.Fprintf(&buf, "could not introduce %s, as it requires %s %s, which has no overlap with the following existing constraints:\n",
		a2vs(e.goal.Depender), e.goal.Dep.Name, constraintDisplay(e.goal.Dep.Constraint))
	for _, s := range sibs {
		fmt.Fprintf(&buf, "\t%s from %s\n", constraintDisplay(s.Dep.Constraint), s.describeDepender())
	}
	return buf.String()
}

func (e *disjointConstraintFailure) traceString() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "constraint %s on %s disjoint with other dependers:\n",
		constraintDisplay(e.goal.Dep.Constraint), e.goal.Dep.Name)
	for _, f := range e.failsib {
		fmt.Fprintf(&buf, "%s from %s (no overlap)\n", constraintDisplay(f.Dep.Constraint), f.describeDepender())
	}
	for _, f := range e.nofailsib {
		fmt.Fprintf(&buf, "%s from %s (some overlap)\n", constraintDisplay(f.Dep.Constraint), f.describeDepender())
	}
	return buf.String()
}

// constraintNotAllowedFailure: an atom's constraint on a dep does not admit
// the already-selected version of that dep.
type constraintNotAllowedFailure struct {
	goal Dependency
	v    Version
}

func (e *constraintNotAllowedFailure) Error() string {
	return fmt.Sprintf("could not introduce %s, as it requires %s %s, which does not allow the currently selected version %s",
		a2vs(e.goal.Depender), e.goal.Dep.Name, constraintDisplay(e.goal.Dep.Constraint), e.v)
}

func (e *constraintNotAllowedFailure) traceString() string {
	return fmt.Sprintf("%s requires %s %s, but %s is already selected",
		a2vs(e.goal.Depender), e.goal.Dep.Name, constraintDisplay(e.goal.Dep.Constraint), e.v)
}

// conflictFromError folds a terminal backtracking failure into an exported
// ConflictError with a deduplicated, ordered provenance chain.
func conflictFromError(err error) error {
	nve, ok := err.(*noVersionError)
	if !ok {
		return err
	}

	report := ConflictReport{Package: nve.id.Name}
	seen := make(map[ContributingConstraint]bool)
	add := func(d Dependency) {
		cc := ContributingConstraint{
			Constraint: constraintDisplay(d.Dep.Constraint),
		}
		if d.ViaMember != "" {
			cc.Member = d.ViaMember
		} else {
			cc.Depender = a2vs(d.Depender)
		}
		if !seen[cc] {
			seen[cc] = true
			report.Contributing = append(report.Contributing, cc)
		}
	}

	for _, fv := range nve.fails {
		switch f := fv.f.(type) {
		case *versionNotAllowedFailure:
			for _, d := range f.failparent {
				add(d)
			}
		case *disjointConstraintFailure:
			add(f.goal)
			for _, d := range f.failsib {
				add(d)
			}
		case *constraintNotAllowedFailure:
			add(f.goal)
		}
	}

	return &ConflictError{report: report, fails: nve.fails}
}

// fatalSolveError reports whether err must abort the solve outright instead
// of triggering backtracking.
func fatalSolveError(err error) bool {
	switch err.(type) {
	case *SourceMismatchError, *UnknownPackageError, *ResolutionTimeoutError:
		return true
	}
	return false
}
