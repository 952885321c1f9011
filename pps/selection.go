package pps

// selectedAtom is one solver decision together with the dependencies that
// decision introduced. Capturing the dependency list at selection time means
// unselecting removes exactly what selecting added.
type selectedAtom struct {
	a    atom
	deps []Dependency
}

// selection is the solver's in-flight decision stack: the ordered atoms
// chosen so far, plus an index of all constraints currently bearing on each
// package.
type selection struct {
	projects []selectedAtom
	deps     map[PackageName][]Dependency
}

func newSelection() *selection {
	return &selection{
		deps: make(map[PackageName][]Dependency),
	}
}

func (s *selection) getDependenciesOn(name PackageName) []Dependency {
	if deps, has := s.deps[name]; has {
		return deps
	}
	return nil
}

// pushDep records a dependency bearing on its target package.
func (s *selection) pushDep(dep Dependency) {
	s.deps[dep.Dep.Name] = append(s.deps[dep.Dep.Name], dep)
}

// popDep removes the most recently pushed dependency on name.
func (s *selection) popDep(name PackageName) (dep Dependency) {
	deps := s.deps[name]
	dep, s.deps[name] = deps[len(deps)-1], deps[:len(deps)-1]
	return dep
}

func (s *selection) depperCount(name PackageName) int {
	return len(s.deps[name])
}

func (s *selection) pushSelection(a atom, deps []Dependency) {
	s.projects = append(s.projects, selectedAtom{a: a, deps: deps})
}

func (s *selection) popSelection() (atom, []Dependency) {
	var sel selectedAtom
	sel, s.projects = s.projects[len(s.projects)-1], s.projects[:len(s.projects)-1]
	return sel.a, sel.deps
}

// selected returns the current decision for name, if one has been made.
func (s *selection) selected(name PackageName) (atom, bool) {
	for _, p := range s.projects {
		if p.a.id.Name == name {
			return p.a, true
		}
	}
	return nilpa, false
}

// getConstraint folds every active dependency on name into the single
// constraint a candidate version must satisfy.
func (s *selection) getConstraint(name PackageName) Constraint {
	deps, has := s.deps[name]
	if !has || len(deps) == 0 {
		return Any()
	}

	ret := Constraint(Any())
	for _, dep := range deps {
		ret = ret.Intersect(dep.Dep.Constraint)
	}
	return ret
}

// getSource returns the source binding in force for name. Dependencies with
// an explicit source win; with none, the default index is in force.
func (s *selection) getSource(name PackageName) Source {
	for _, dep := range s.deps[name] {
		if !dep.Dep.Source.IsDefault() {
			return dep.Dep.Source
		}
	}
	return Source{}
}
