package pps

import (
	"sort"

	radix "github.com/armon/go-radix"
	"github.com/pkg/errors"
)

// WorkspaceMember is one project participating in a joint resolution. Many
// members may constrain the same package; their constraints are merged, never
// overridden.
type WorkspaceMember struct {
	ID           string
	Requirements []Requirement
}

// GroupSelection states which dependency groups participate in a resolution
// pass. The default group always participates.
type GroupSelection struct {
	Dev      bool
	Optional []string
}

func (gs GroupSelection) includes(g DependencyGroup) bool {
	switch g {
	case GroupDefault:
		return true
	case GroupDev:
		return gs.Dev
	}
	for _, o := range gs.Optional {
		if NormalizeName(o) == PackageName(g) {
			return true
		}
	}
	return false
}

// canonical is the stable form folded into the input digest.
func (gs GroupSelection) canonical() string {
	opts := make([]string, len(gs.Optional))
	for i, o := range gs.Optional {
		opts[i] = string(NormalizeName(o))
	}
	sort.Strings(opts)
	s := "groups:"
	if gs.Dev {
		s += "dev;"
	}
	for _, o := range opts {
		s += o + ";"
	}
	return s
}

// SourceOverrides is an explicit package-name-prefix routing table mapping
// packages onto alternate sources. It exists because source precedence is
// never inferred; routing a package anywhere but the default index is a
// deliberate configuration act.
type SourceOverrides struct {
	t *radix.Tree
}

func NewSourceOverrides() *SourceOverrides {
	return &SourceOverrides{t: radix.New()}
}

// Add routes every package whose normalized name starts with prefix to src.
// Longer prefixes win.
func (so *SourceOverrides) Add(prefix string, src Source) {
	so.t.Insert(string(NormalizeName(prefix)), src)
}

func (so *SourceOverrides) lookup(name PackageName) (Source, bool) {
	if so == nil || so.t == nil {
		return Source{}, false
	}
	_, v, ok := so.t.LongestPrefix(string(name))
	if !ok {
		return Source{}, false
	}
	return v.(Source), true
}

// ContributingConstraint is one entry in a conflict's provenance chain: who
// declared a constraint, and what it was. Member is set for workspace-root
// declarations; Depender is set for constraints introduced by a selected
// package version.
type ContributingConstraint struct {
	Member     string
	Depender   string
	Constraint string
}

// rootContribution records one member's original, unmerged requirement.
type rootContribution struct {
	member string
	req    Requirement
}

// mergedRequirement is the running fold state for one package across all
// members: the intersected constraint plus full ordered provenance.
type mergedRequirement struct {
	name     PackageName
	c        Constraint
	source   Source
	srcSet   bool
	srcBy    string
	extras   []string
	contribs []rootContribution
}

func (mr *mergedRequirement) contributing() []ContributingConstraint {
	ccs := make([]ContributingConstraint, len(mr.contribs))
	for i, rc := range mr.contribs {
		ccs[i] = ContributingConstraint{
			Member:     rc.member,
			Constraint: constraintDisplay(rc.req.Constraint),
		}
	}
	return ccs
}

func constraintDisplay(c Constraint) string {
	if e := constraintExpr(c); e != "" {
		return e
	}
	return "*"
}

// workspaceGraph aggregates the requirement sets of all members into one
// resolution problem. It is a pure fold over the ordered member sequence; no
// member's constraint is ever discarded, even when another member's is
// strictly looser.
type workspaceGraph struct {
	names     []PackageName // sorted for deterministic iteration
	reqs      map[PackageName]*mergedRequirement
	groups    GroupSelection
	overrides *SourceOverrides
}

func newWorkspaceGraph(members []WorkspaceMember, groups GroupSelection, overrides *SourceOverrides) (*workspaceGraph, error) {
	g := &workspaceGraph{
		reqs:      make(map[PackageName]*mergedRequirement),
		groups:    groups,
		overrides: overrides,
	}

	for _, m := range members {
		for _, req := range m.Requirements {
			if !groups.includes(req.Group) {
				continue
			}
			if err := g.fold(m.ID, req); err != nil {
				return nil, err
			}
		}
	}

	g.names = make([]PackageName, 0, len(g.reqs))
	for name := range g.reqs {
		g.names = append(g.names, name)
	}
	sort.Slice(g.names, func(i, j int) bool { return g.names[i] < g.names[j] })

	return g, nil
}

func (g *workspaceGraph) fold(member string, req Requirement) error {
	req = g.applyOverride(req)

	mr, has := g.reqs[req.Name]
	if !has {
		mr = &mergedRequirement{name: req.Name, c: Any()}
		g.reqs[req.Name] = mr
	}

	if !req.Source.IsDefault() {
		if mr.srcSet && !mr.source.Equal(req.Source) {
			return &SourceMismatchError{
				Package:  req.Name,
				Current:  mr.source,
				Mismatch: req.Source,
				Contributing: append(mr.contributing(), ContributingConstraint{
					Member:     member,
					Constraint: req.Source.String(),
				}),
			}
		}
		mr.source, mr.srcSet, mr.srcBy = req.Source, true, member
	}

	nc := mr.c.Intersect(req.Constraint)
	if nc == Constraint(none) {
		return &UnsatisfiableConstraintError{
			Package: req.Name,
			Left:    constraintDisplay(mr.c),
			Right:   constraintDisplay(req.Constraint),
			Contributing: append(mr.contributing(), ContributingConstraint{
				Member:     member,
				Constraint: constraintDisplay(req.Constraint),
			}),
		}
	}
	mr.c = nc
	mr.extras = unionExtras(mr.extras, req.Extras)
	mr.contribs = append(mr.contribs, rootContribution{member: member, req: req})

	return nil
}

// applyOverride routes default-index requirements through the override table.
// Explicitly-sourced requirements are never rerouted.
func (g *workspaceGraph) applyOverride(req Requirement) Requirement {
	if !req.Source.IsDefault() {
		return req
	}
	if src, ok := g.overrides.lookup(req.Name); ok {
		req.Source = src
	}
	return req
}

// identifierFor returns the solver-facing identifier for a merged package.
func (g *workspaceGraph) identifierFor(name PackageName) ProjectIdentifier {
	mr := g.reqs[name]
	return ProjectIdentifier{Name: name, Source: mr.source}
}

// HashWorkspaceInputs computes the content digest of a workspace's merged
// requirement set without preparing a solver, for staleness checks that need
// no metadata provider.
func HashWorkspaceInputs(members []WorkspaceMember, groups GroupSelection, overrides *SourceOverrides) ([]byte, error) {
	g, err := newWorkspaceGraph(members, groups, overrides)
	if err != nil {
		return nil, errors.Wrap(err, "building workspace graph")
	}
	return g.hashInputs(), nil
}
