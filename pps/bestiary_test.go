package pps

import (
	"context"
	"fmt"
	"strings"
)

// nvSplit splits an "info" string on " " into the pair of package name and
// version/constraint, and returns each individually.
//
// This is for narrow use - panics if there are less than two resulting items
// in the slice.
func nvSplit(info string) (name, version string) {
	s := strings.SplitN(info, " ", 2)
	if len(s) < 2 {
		panic(fmt.Sprintf("malformed name/version info string %q", info))
	}
	return s[0], s[1]
}

// mkreq - "make requirement"
//
// Splits the input string on a space, and uses the elements as the package
// name and constraint expression, respectively. A bare name gets the
// unbounded constraint. "name from <source> <constraint>" pins a source.
func mkreq(info string) Requirement {
	var name, expr, srcstr string
	if strings.Contains(info, " from ") {
		parts := strings.SplitN(info, " from ", 2)
		name = parts[0]
		rest := strings.SplitN(parts[1], " ", 2)
		srcstr = rest[0]
		if len(rest) == 2 {
			expr = rest[1]
		}
	} else if strings.Contains(info, " ") {
		name, expr = nvSplit(info)
	} else {
		name = info
	}

	c, err := ParseConstraint(expr)
	if err != nil {
		// don't want to allow bad test data at this level, so just panic
		panic(fmt.Sprintf("error when parsing constraint %q: %s", expr, err))
	}

	req := Requirement{
		Name:       NormalizeName(name),
		Constraint: c,
	}
	if srcstr != "" {
		src, err := ParseSource(srcstr)
		if err != nil {
			panic(fmt.Sprintf("error when parsing source %q: %s", srcstr, err))
		}
		req.Source = src
	}
	return req
}

// depspec describes one candidate version of one package, plus the
// requirements selecting it introduces.
type depspec struct {
	name PackageName
	v    Version
	deps []Requirement
	src  Source
}

// dsp - "depspec" (make a depspec)
//
// First string is broken out into the name/version of the package; the rest
// are its requirements.
func dsp(pi string, deps ...string) depspec {
	name, version := nvSplit(pi)
	ds := depspec{
		name: NormalizeName(name),
		v:    mkv(version),
	}
	for _, d := range deps {
		ds.deps = append(ds.deps, mkreq(d))
	}
	return ds
}

// dspFrom is dsp for a package served from a non-default source.
func dspFrom(srcstr, pi string, deps ...string) depspec {
	ds := dsp(pi, deps...)
	src, err := ParseSource(srcstr)
	if err != nil {
		panic(fmt.Sprintf("error when parsing source %q: %s", srcstr, err))
	}
	ds.src = src
	return ds
}

// mkmember assembles a workspace member from requirement strings.
func mkmember(id string, reqs ...string) WorkspaceMember {
	m := WorkspaceMember{ID: id}
	for _, r := range reqs {
		m.Requirements = append(m.Requirements, mkreq(r))
	}
	return m
}

// mkresults makes an expected result set from "name version" pairs.
func mkresults(pairs ...string) map[PackageName]string {
	m := make(map[PackageName]string)
	for _, pair := range pairs {
		name, version := nvSplit(pair)
		m[NormalizeName(name)] = version
	}
	return m
}

// mklock builds a lock from "name version" pairs.
func mklock(pairs ...string) Lock {
	var pkgs []LockedPackage
	for _, pair := range pairs {
		name, version := nvSplit(pair)
		pkgs = append(pkgs, NewLockedPackage(
			ProjectIdentifier{Name: NormalizeName(name)}, mkv(version), nil, nil))
	}
	return fixLock{pkgs: pkgs}
}

type fixLock struct {
	pkgs []LockedPackage
}

func (l fixLock) InputsDigest() []byte      { return nil }
func (l fixLock) Packages() []LockedPackage { return l.pkgs }

// depspecProvider serves candidates straight from a depspec list, newest
// declaration order irrelevant; the bridge orders them.
type depspecProvider struct {
	specs []depspec
	// calls counts ListCandidates invocations per identifier, for cache and
	// memoization assertions.
	calls map[string]int
}

func newdepspecProvider(specs []depspec) *depspecProvider {
	return &depspecProvider{
		specs: specs,
		calls: make(map[string]int),
	}
}

func (p *depspecProvider) ListCandidates(_ context.Context, name PackageName, source Source) ([]Candidate, error) {
	p.calls[string(name)+"|"+source.String()]++

	var cands []Candidate
	for _, ds := range p.specs {
		if ds.name == name && ds.src.Equal(source) {
			cands = append(cands, Candidate{
				Version:      ds.v,
				Requirements: ds.deps,
			})
		}
	}
	if len(cands) == 0 {
		return nil, &UnknownPackageError{Name: name}
	}
	return cands, nil
}

// basicFixture is one solver scenario: workspace members, an index universe,
// and the expected outcome.
type basicFixture struct {
	// name of this fixture datum
	n string
	// workspace members; root requirements come from these
	members []WorkspaceMember
	// depspecs forming the candidate universe
	ds []depspec
	// results; expected version pins, nil if an error is expected instead
	r map[PackageName]string
	// lock simulator, if one is to be used at all
	l Lock
	// packages to let float despite the lock
	change []PackageName
	// ignore the lock entirely
	changeall bool
	// group selection; zero value selects only the default group
	groups GroupSelection
	// overrides routing table, if any
	overrides *SourceOverrides
	// ceiling on candidate checks; 0 means the default
	maxAttempts int
}

func (f basicFixture) solve() (Solution, error) {
	params := SolveParameters{
		Members:     f.members,
		Groups:      f.groups,
		Overrides:   f.overrides,
		Lock:        f.l,
		ToChange:    f.change,
		ChangeAll:   f.changeall,
		MaxAttempts: f.maxAttempts,
	}

	s, err := Prepare(params, newdepspecProvider(f.ds))
	if err != nil {
		return nil, err
	}
	defer s.Release()

	return s.Solve(context.Background())
}
