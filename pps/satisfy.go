package pps

// satisfiable is the central checking method. It determines whether
// introducing the candidate atom would leave the partial solution in a state
// where every accumulated requirement is still satisfiable.
func (s *solver) satisfiable(a atom) error {
	if nilpa == a {
		// This shouldn't be able to happen, but if it does, it unequivocally
		// indicates a logical bug somewhere, so blowing up is preferable
		panic("canary - checking version of empty atom")
	}

	if err := s.checkAtomAllowable(a); err != nil {
		return err
	}

	deps, err := s.getDependenciesOf(a)
	if err != nil {
		return err
	}

	for _, dep := range deps {
		if err := s.checkIdentMatches(a, dep); err != nil {
			return err
		}
		if err := s.checkDepsConstraintsAllowable(a, dep); err != nil {
			return err
		}
		if err := s.checkDepsDisallowsSelected(a, dep); err != nil {
			return err
		}
	}

	return nil
}

// checkAtomAllowable ensures that an atom itself is acceptable with respect
// to the constraints established by the current solution.
func (s *solver) checkAtomAllowable(a atom) error {
	constraint := s.sel.getConstraint(a.id.Name)
	if constraint.Matches(a.v) {
		return nil
	}

	deps := s.sel.getDependenciesOn(a.id.Name)
	var failparent []Dependency
	for _, dep := range deps {
		if !dep.Dep.Constraint.Matches(a.v) {
			s.fail(dep.Depender.id.Name)
			failparent = append(failparent, dep)
		}
	}

	err := &versionNotAllowedFailure{
		goal:       a,
		failparent: failparent,
		c:          constraint,
	}
	s.traceFailure(err)
	return err
}

// checkIdentMatches ensures a dependency introduced by the atom does not
// disagree with the source already bound for that package. Two explicit,
// differing sources for one name are never reconciled by precedence; the
// whole solve aborts.
func (s *solver) checkIdentMatches(a atom, dep Dependency) error {
	if dep.Dep.Source.IsDefault() {
		return nil
	}

	cur := s.sourceInForce(dep.Dep.Name)
	if cur.IsDefault() || cur.Equal(dep.Dep.Source) {
		return nil
	}

	var contribs []ContributingConstraint
	for _, d := range s.sel.getDependenciesOn(dep.Dep.Name) {
		contribs = append(contribs, ContributingConstraint{
			Member:     d.ViaMember,
			Depender:   a2vs(d.Depender),
			Constraint: d.Dep.Source.String(),
		})
	}
	contribs = append(contribs, ContributingConstraint{
		Depender:   a2vs(a),
		Constraint: dep.Dep.Source.String(),
	})

	err := &SourceMismatchError{
		Package:      dep.Dep.Name,
		Current:      cur,
		Mismatch:     dep.Dep.Source,
		Contributing: contribs,
	}
	s.traceFailure(err)
	return err
}

// checkDepsConstraintsAllowable checks that the constraint the atom places
// on a dep has at least some overlap with the constraints already in force.
func (s *solver) checkDepsConstraintsAllowable(a atom, dep Dependency) error {
	constraint := s.sel.getConstraint(dep.Dep.Name)
	if constraint.MatchesAny(dep.Dep.Constraint) {
		return nil
	}

	// No admissible versions - visit all siblings and identify the disagreement(s)
	var failsib, nofailsib []Dependency
	for _, sibling := range s.sel.getDependenciesOn(dep.Dep.Name) {
		if !sibling.Dep.Constraint.MatchesAny(dep.Dep.Constraint) {
			s.fail(sibling.Depender.id.Name)
			failsib = append(failsib, sibling)
		} else {
			nofailsib = append(nofailsib, sibling)
		}
	}

	err := &disjointConstraintFailure{
		goal:      dep,
		failsib:   failsib,
		nofailsib: nofailsib,
		c:         constraint,
	}
	s.traceFailure(err)
	return err
}

// checkDepsDisallowsSelected ensures that the constraint the atom places on
// a dep is not incompatible with the version of that dep already selected.
func (s *solver) checkDepsDisallowsSelected(a atom, dep Dependency) error {
	selected, exists := s.sel.selected(dep.Dep.Name)
	if !exists || dep.Dep.Constraint.Matches(selected.v) {
		return nil
	}

	s.fail(dep.Dep.Name)

	err := &constraintNotAllowedFailure{
		goal: dep,
		v:    selected.v,
	}
	s.traceFailure(err)
	return err
}
