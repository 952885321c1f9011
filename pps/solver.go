package pps

import (
	"container/heap"
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sdboyer/constext"
	"github.com/sirupsen/logrus"
)

// rootName is the pseudo-package standing in for the workspace itself at the
// base of the decision stack. It is never a real package and never appears in
// a solution.
const rootName PackageName = "(workspace)"

// defaultMaxAttempts bounds how many candidate checks a solve may perform
// before it is abandoned. Pathological constraint sets can force exponential
// backtracking; the ceiling converts that into a typed failure.
const defaultMaxAttempts = 10000

// SolveParameters holds everything a solve needs beyond the metadata
// provider itself.
type SolveParameters struct {
	// Members are the workspace projects whose requirements are jointly
	// resolved.
	Members []WorkspaceMember

	// Groups selects which dependency groups participate.
	Groups GroupSelection

	// Overrides routes packages to alternate sources by name prefix.
	Overrides *SourceOverrides

	// Lock is the previous solution, if any. Locked versions that remain
	// admissible are preferred over newer ones.
	Lock Lock

	// ToChange names packages whose locked versions should be ignored so
	// they can float to the newest admissible version.
	ToChange []PackageName

	// ChangeAll ignores the lock entirely.
	ChangeAll bool

	// MaxAttempts caps candidate checks; zero means the default ceiling.
	MaxAttempts int

	// Logger receives trace output. Nil gets a default logger.
	Logger *logrus.Logger
}

// A Solver runs one resolution over a fixed set of inputs.
type Solver interface {
	// Solve runs the resolution. The returned Solution is complete and
	// consistent; any error is one of the exported failure types.
	Solve(ctx context.Context) (Solution, error)

	// HashInputs returns the digest of all solve inputs, for lock staleness
	// checks.
	HashInputs() []byte

	// Release ends the solver's lifetime. An in-flight Solve observes it as
	// cancellation.
	Release()
}

// solver is a backtracking constraint solver over package version
// candidates. One instance runs one solve.
type solver struct {
	params SolveParameters
	l      *logrus.Logger
	cp     CandidateProvider
	b      *sourceBridge
	g      *workspaceGraph
	ctx    context.Context

	sel      *selection
	unsel    *unselected
	vqs      []*versionQueue
	rootDeps []Dependency

	// rlm indexes the previous lock by package name.
	rlm  map[PackageName]LockedPackage
	chng map[PackageName]struct{}

	attempts    int
	maxAttempts int

	lifetime context.Context
	stop     context.CancelFunc
	relOnce  sync.Once

	hd []byte
}

// Prepare validates solve inputs and constructs a Solver. Requirement-level
// conflicts that need no candidate metadata - disjoint root constraints,
// disagreeing member sources - surface here rather than from Solve.
func Prepare(params SolveParameters, cp CandidateProvider) (Solver, error) {
	if cp == nil {
		return nil, errors.New("a candidate provider is required to solve")
	}

	l := params.Logger
	if l == nil {
		l = logrus.New()
		l.Level = logrus.WarnLevel
	}

	g, err := newWorkspaceGraph(params.Members, params.Groups, params.Overrides)
	if err != nil {
		return nil, err
	}

	s := &solver{
		params:      params,
		l:           l,
		cp:          cp,
		g:           g,
		rlm:         make(map[PackageName]LockedPackage),
		chng:        make(map[PackageName]struct{}),
		maxAttempts: params.MaxAttempts,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}

	if params.Lock != nil {
		for _, lp := range params.Lock.Packages() {
			s.rlm[lp.Ident().Name] = lp
		}
	}
	for _, n := range params.ToChange {
		s.chng[NormalizeName(string(n))] = struct{}{}
	}

	// The workspace root is a pseudo-atom whose dependencies are each
	// member's original declarations, so every constraint on the stack
	// carries its declaring member.
	ra := atom{id: ProjectIdentifier{Name: rootName}}
	for _, name := range g.names {
		mr := g.reqs[name]
		for _, rc := range mr.contribs {
			req := rc.req
			req.Source = mr.source
			s.rootDeps = append(s.rootDeps, Dependency{
				Depender:  ra,
				ViaMember: rc.member,
				Dep:       req,
			})
		}
	}

	s.lifetime, s.stop = context.WithCancel(context.Background())
	return s, nil
}

func (s *solver) HashInputs() []byte {
	if s.hd == nil {
		s.hd = s.g.hashInputs()
	}
	return s.hd
}

func (s *solver) Release() {
	s.relOnce.Do(s.stop)
}

func (s *solver) Solve(ctx context.Context) (Solution, error) {
	cctx, cancel := constext.Cons(ctx, s.lifetime)
	defer cancel()
	s.ctx = cctx
	s.b = newSourceBridge(s.cp, s.l, cctx)

	s.sel = newSelection()
	s.unsel = &unselected{cmp: s.unselectedComparator}
	heap.Init(s.unsel)

	s.selectRoot()

	all, err := s.solve()
	if err != nil {
		return nil, err
	}

	return s.buildSolution(all), nil
}

// solve is the top-level loop: pick the next undecided package, build its
// version queue, select the first workable version, repeat. A dead end
// triggers backtracking; an empty unselected queue means a solution.
func (s *solver) solve() ([]selectedAtom, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}

		name, has := s.nextUnselected()
		if !has {
			break
		}

		if s.l.Level >= logrus.DebugLevel {
			s.l.WithFields(logrus.Fields{
				"attempts": s.attempts,
				"name":     name,
				"selcount": len(s.sel.projects),
			}).Debug("beginning step in solve loop")
		}

		queue, err := s.createVersionQueue(name)
		if err != nil {
			if fatalSolveError(err) {
				return nil, err
			}
			if _, ok := err.(*noVersionError); ok {
				ok, berr := s.backtrack()
				if berr != nil {
					return nil, berr
				}
				if ok {
					continue
				}
				return nil, conflictFromError(err)
			}
			return nil, err
		}

		if queue.current() == nil {
			panic("canary - queue is empty, but flow indicates success")
		}

		if s.l.Level >= logrus.InfoLevel {
			s.l.WithFields(logrus.Fields{
				"name":    queue.id.Name,
				"version": queue.current().String(),
			}).Info("accepted package version")
		}

		s.selectAtom(atom{id: queue.id, v: queue.current()})
		s.vqs = append(s.vqs, queue)
	}

	return s.sel.projects, nil
}

func (s *solver) nextUnselected() (PackageName, bool) {
	if len(s.unsel.sl) > 0 {
		return s.unsel.sl[0], true
	}
	return "", false
}

// unselectedComparator drives decision order: packages with fewer candidate
// versions first (they are the most constrained choices), then lexical order
// so ties break deterministically.
func (s *solver) unselectedComparator(i, j int) bool {
	iname, jname := s.unsel.sl[i], s.unsel.sl[j]
	if iname == jname {
		return false
	}

	icount := s.b.countVersions(ProjectIdentifier{Name: iname, Source: s.sourceInForce(iname)})
	jcount := s.b.countVersions(ProjectIdentifier{Name: jname, Source: s.sourceInForce(jname)})
	if icount != jcount {
		return icount < jcount
	}

	return iname < jname
}

// sourceInForce reports which source governs name right now: a selected
// atom's source wins, else the first explicit source among active deps, else
// the default index.
func (s *solver) sourceInForce(name PackageName) Source {
	if a, ok := s.sel.selected(name); ok {
		return a.id.Source
	}
	return s.sel.getSource(name)
}

func (s *solver) createVersionQueue(name PackageName) (*versionQueue, error) {
	id := ProjectIdentifier{Name: name, Source: s.sourceInForce(name)}

	lockv := s.getLockVersionIfValid(name)
	allowPre := s.sel.getConstraint(name).prereleaseHint()

	q, err := newVersionQueue(id, lockv, allowPre, s.b)
	if err != nil {
		if s.l.Level >= logrus.WarnLevel {
			s.l.WithFields(logrus.Fields{
				"name": name,
				"err":  err,
			}).Warn("failed to create a version queue")
		}
		return nil, err
	}

	if s.l.Level >= logrus.DebugLevel {
		s.l.WithFields(logrus.Fields{
			"name":     name,
			"queue":    q,
			"fromLock": lockv != nil,
		}).Debug("created version queue")
	}

	return q, s.findValidVersion(q)
}

// getLockVersionIfValid returns the previously locked version of name when
// the lock is being honored for it and the locked version is still allowed
// by the constraints currently in force.
func (s *solver) getLockVersionIfValid(name PackageName) Version {
	if s.params.ChangeAll {
		return nil
	}
	if _, has := s.chng[name]; has {
		return nil
	}

	lp, has := s.rlm[name]
	if !has {
		return nil
	}

	if !s.sel.getConstraint(name).Matches(lp.Version()) {
		if s.l.Level >= logrus.InfoLevel {
			s.l.WithFields(logrus.Fields{
				"name":    name,
				"version": lp.Version().String(),
			}).Info("package found in lock, but version not allowed by current constraints")
		}
		return nil
	}

	return lp.Version()
}

// findValidVersion walks a versionQueue until it finds a version satisfying
// the current constraint state. Every version checked counts against the
// attempts ceiling.
func (s *solver) findValidVersion(q *versionQueue) error {
	if q.current() == nil {
		panic("canary - version queue is empty, should not happen")
	}

	faillen := len(q.fails)

	for {
		s.attempts++
		if s.attempts > s.maxAttempts {
			return &ResolutionTimeoutError{Attempts: s.attempts - 1}
		}

		cur := q.current()
		err := s.satisfiable(atom{id: q.id, v: cur})
		if err == nil {
			if s.l.Level >= logrus.DebugLevel {
				s.l.WithFields(logrus.Fields{
					"name":    q.id.Name,
					"version": cur.String(),
				}).Debug("found acceptable version")
			}
			return nil
		}
		if fatalSolveError(err) {
			return err
		}

		if aerr := q.advance(err); aerr != nil {
			// The lazy full listing failed; that is a provider-level
			// problem, not a version conflict.
			return aerr
		}
		if q.isExhausted() {
			if s.l.Level >= logrus.InfoLevel {
				s.l.WithField("name", q.id.Name).Info("version queue completely exhausted, marking package as failed")
			}
			break
		}
	}

	if deps := s.sel.getDependenciesOn(q.id.Name); len(deps) > 0 {
		s.fail(deps[0].Depender.id.Name)
	}

	return &noVersionError{
		id:    q.id,
		fails: q.fails[faillen:],
	}
}

// backtrack unwinds the decision stack to the most recent frame marked as
// implicated in a failure and tries its next version. Frames that were never
// implicated are skipped outright; their alternatives cannot change the
// failure.
func (s *solver) backtrack() (bool, error) {
	if len(s.vqs) == 0 {
		return false, nil
	}

	if s.l.Level >= logrus.DebugLevel {
		s.l.WithFields(logrus.Fields{
			"selcount":   len(s.sel.projects),
			"queuecount": len(s.vqs),
			"attempts":   s.attempts,
		}).Debug("beginning backtracking")
	}

	for {
		if err := s.ctx.Err(); err != nil {
			return false, err
		}

		for {
			if len(s.vqs) == 0 {
				return false, nil
			}
			if s.vqs[len(s.vqs)-1].failed {
				break
			}

			// An unimplicated frame; drop it without retrying alternatives.
			s.vqs, s.vqs[len(s.vqs)-1] = s.vqs[:len(s.vqs)-1], nil
			s.unselectLast()
		}

		q := s.vqs[len(s.vqs)-1]
		s.unselectLast()

		if s.l.Level >= logrus.DebugLevel {
			s.l.WithFields(logrus.Fields{
				"name":    q.id.Name,
				"failver": q.current().String(),
			}).Debug("trying failed queue with next version")
		}

		if q.advance(nil) == nil && !q.isExhausted() {
			err := s.findValidVersion(q)
			if err == nil {
				if s.l.Level >= logrus.InfoLevel {
					s.l.WithFields(logrus.Fields{
						"name":    q.id.Name,
						"version": q.current().String(),
					}).Info("backtracking found valid version, attempting next solution")
				}

				s.selectAtom(atom{id: q.id, v: q.current()})
				break
			}
			if fatalSolveError(err) {
				return false, err
			}
		}

		// No workable alternative in this queue; pop it and keep unwinding.
		s.vqs, s.vqs[len(s.vqs)-1] = s.vqs[:len(s.vqs)-1], nil
	}

	return true, nil
}

// fail marks the oldest decision frame for name as implicated in a failure.
// The backtracker only retries alternatives of implicated frames.
func (s *solver) fail(name PackageName) {
	if name == rootName {
		return
	}

	for _, vq := range s.vqs {
		if vq.id.Name == name {
			vq.failed = true
			return
		}
	}
}

// getDependenciesOf returns the dependencies selecting a would introduce,
// normalized and routed through source overrides. Requirements a candidate
// declares outside the default group do not propagate transitively.
func (s *solver) getDependenciesOf(a atom) ([]Dependency, error) {
	if a.id.Name == rootName {
		return s.rootDeps, nil
	}

	reqs, err := s.b.getDependencies(a)
	if err != nil {
		return nil, err
	}

	deps := make([]Dependency, 0, len(reqs))
	for _, req := range reqs {
		if req.Group != GroupDefault {
			continue
		}
		req.Name = NormalizeName(string(req.Name))
		req = s.g.applyOverride(req)
		if req.Constraint == nil {
			req.Constraint = Any()
		}
		deps = append(deps, Dependency{Depender: a, Dep: req})
	}
	return deps, nil
}

func (s *solver) selectRoot() {
	ra := atom{id: ProjectIdentifier{Name: rootName}}
	s.pushAtom(ra, s.rootDeps)
}

func (s *solver) selectAtom(a atom) {
	s.unsel.remove(a.id.Name)

	deps, err := s.getDependenciesOf(a)
	if err != nil {
		// satisfiable already fetched and vetted this atom's deps
		panic("canary - selecting atom with unfetchable dependencies")
	}
	s.pushAtom(a, deps)
}

// pushAtom records a decision and its introduced dependencies, enqueues any
// newly-referenced packages, and warms the metadata cache for them.
func (s *solver) pushAtom(a atom, deps []Dependency) {
	var fresh []ProjectIdentifier
	for _, dep := range deps {
		s.sel.pushDep(dep)
		if s.sel.depperCount(dep.Dep.Name) == 1 {
			heap.Push(s.unsel, dep.Dep.Name)
			fresh = append(fresh, ProjectIdentifier{
				Name:   dep.Dep.Name,
				Source: s.sourceInForce(dep.Dep.Name),
			})
		}
	}
	s.sel.pushSelection(a, deps)

	if len(fresh) > 0 {
		s.b.prefetch(fresh)
	}
}

// unselectLast undoes the most recent decision, removing exactly the
// dependencies that decision introduced.
func (s *solver) unselectLast() {
	a, deps := s.sel.popSelection()
	heap.Push(s.unsel, a.id.Name)

	for _, dep := range deps {
		s.sel.popDep(dep.Dep.Name)
		if s.sel.depperCount(dep.Dep.Name) == 0 {
			s.unsel.remove(dep.Dep.Name)
		}
	}
}

func (s *solver) traceFailure(err error) {
	if s.l.Level < logrus.DebugLevel {
		return
	}
	if te, ok := err.(traceError); ok {
		s.l.Debug(te.traceString())
	} else {
		s.l.Debug(err.Error())
	}
}

// buildSolution converts the final decision stack into an immutable
// Solution, attributing each package to the workspace members whose
// requirement graphs reach it.
func (s *solver) buildSolution(all []selectedAtom) Solution {
	reach := s.memberReachability(all)

	var pkgs []LockedPackage
	for _, sel := range all {
		if sel.a.id.Name == rootName {
			continue
		}

		depNames := make([]PackageName, 0, len(sel.deps))
		seen := make(map[PackageName]bool, len(sel.deps))
		for _, d := range sel.deps {
			if !seen[d.Dep.Name] {
				seen[d.Dep.Name] = true
				depNames = append(depNames, d.Dep.Name)
			}
		}
		sort.Slice(depNames, func(i, j int) bool { return depNames[i] < depNames[j] })

		var members []string
		for m := range reach[sel.a.id.Name] {
			members = append(members, m)
		}
		sort.Strings(members)

		pkgs = append(pkgs, NewLockedPackage(sel.a.id, sel.a.v, depNames, members))
	}

	return solution{
		p:   pkgs,
		hd:  s.HashInputs(),
		att: s.attempts,
	}
}

// memberReachability computes, for every selected package, the set of
// workspace members from whose declarations it is transitively reachable.
func (s *solver) memberReachability(all []selectedAtom) map[PackageName]map[string]bool {
	edges := make(map[PackageName][]PackageName, len(all))
	reach := make(map[PackageName]map[string]bool, len(all))
	for _, sel := range all {
		if sel.a.id.Name == rootName {
			continue
		}
		for _, d := range sel.deps {
			edges[sel.a.id.Name] = append(edges[sel.a.id.Name], d.Dep.Name)
		}
	}

	mark := func(name PackageName, m string) bool {
		if reach[name] == nil {
			reach[name] = make(map[string]bool)
		}
		if reach[name][m] {
			return false
		}
		reach[name][m] = true
		return true
	}

	var queue []PackageName
	for _, d := range s.rootDeps {
		if mark(d.Dep.Name, d.ViaMember) {
			queue = append(queue, d.Dep.Name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for m := range reach[name] {
			for _, next := range edges[name] {
				if mark(next, m) {
					queue = append(queue, next)
				}
			}
		}
	}

	return reach
}
