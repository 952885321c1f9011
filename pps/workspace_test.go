package pps

import (
	"bytes"
	"testing"
)

func TestWorkspaceGraphMerge(t *testing.T) {
	members := []WorkspaceMember{
		mkmember("m1", "shared >=1.0"),
		mkmember("m2", "shared <2.0", "only-m2"),
	}

	g, err := newWorkspaceGraph(members, GroupSelection{}, nil)
	if err != nil {
		t.Fatalf("graph build failed: %s", err)
	}

	mr := g.reqs["shared"]
	if mr == nil {
		t.Fatal("shared was not merged into the graph")
	}
	if !mr.c.Matches(mkv("1.5")) || mr.c.Matches(mkv("2.0")) || mr.c.Matches(mkv("0.9")) {
		t.Errorf("merged constraint misbehaves: %s", mr.c)
	}
	if len(mr.contribs) != 2 {
		t.Errorf("got %d contributions, wanted 2", len(mr.contribs))
	}

	if _, has := g.reqs["only-m2"]; !has {
		t.Error("single-member requirement missing from graph")
	}
}

func TestWorkspaceGraphUnsatisfiable(t *testing.T) {
	members := []WorkspaceMember{
		mkmember("m1", "shared >=2.0"),
		mkmember("m2", "shared <2.0"),
	}

	_, err := newWorkspaceGraph(members, GroupSelection{}, nil)
	if err == nil {
		t.Fatal("expected an unsatisfiable-constraint error, got none")
	}
	uce, ok := err.(*UnsatisfiableConstraintError)
	if !ok {
		t.Fatalf("expected *UnsatisfiableConstraintError, got %T: %s", err, err)
	}
	if uce.Package != "shared" {
		t.Errorf("error names %s, wanted shared", uce.Package)
	}
	if len(uce.Contributing) != 2 {
		t.Errorf("got %d contributing constraints, wanted 2: %v", len(uce.Contributing), uce.Contributing)
	}
}

func TestWorkspaceGraphNameNormalization(t *testing.T) {
	members := []WorkspaceMember{
		mkmember("m1", "My_Package.Core >=1.0"),
		mkmember("m2", "my-package-core <2.0"),
	}

	g, err := newWorkspaceGraph(members, GroupSelection{}, nil)
	if err != nil {
		t.Fatalf("graph build failed: %s", err)
	}

	if len(g.names) != 1 {
		t.Fatalf("name variants did not merge: %v", g.names)
	}
	if g.names[0] != "my-package-core" {
		t.Errorf("got normalized name %s, wanted my-package-core", g.names[0])
	}
}

func TestSourceOverrideRouting(t *testing.T) {
	alt := Source{Type: SourceIndex, URL: "https://internal.example/simple"}
	so := NewSourceOverrides()
	so.Add("corp-", alt)

	members := []WorkspaceMember{
		mkmember("m1", "corp-auth >=1.0", "requests >=2.0"),
	}

	g, err := newWorkspaceGraph(members, GroupSelection{}, so)
	if err != nil {
		t.Fatalf("graph build failed: %s", err)
	}

	if got := g.reqs["corp-auth"].source; !got.Equal(alt) {
		t.Errorf("corp-auth routed to %s, wanted %s", got, alt)
	}
	if got := g.reqs["requests"].source; !got.IsDefault() {
		t.Errorf("requests routed to %s, should stay on the default index", got)
	}
}

func TestSourceOverrideNeverReroutesExplicit(t *testing.T) {
	so := NewSourceOverrides()
	so.Add("pinned", Source{Type: SourceIndex, URL: "https://a.example"})

	members := []WorkspaceMember{
		mkmember("m1", "pinned-pkg from index+https://b.example *"),
	}

	g, err := newWorkspaceGraph(members, GroupSelection{}, so)
	if err != nil {
		t.Fatalf("graph build failed: %s", err)
	}

	got := g.reqs["pinned-pkg"].source
	if got.URL != "https://b.example" {
		t.Errorf("explicitly-sourced requirement was rerouted to %s", got)
	}
}

func TestGroupSelectionIncludes(t *testing.T) {
	gs := GroupSelection{Dev: true, Optional: []string{"Extra_One"}}

	if !gs.includes(GroupDefault) {
		t.Error("the default group must always be included")
	}
	if !gs.includes(GroupDev) {
		t.Error("dev group should be included when Dev is set")
	}
	if !gs.includes(DependencyGroup("extra-one")) {
		t.Error("optional group names should match after normalization")
	}
	if gs.includes(DependencyGroup("other")) {
		t.Error("unselected optional group should be excluded")
	}
}

func TestHashWorkspaceInputs(t *testing.T) {
	members := []WorkspaceMember{
		mkmember("m1", "a >=1.0", "b"),
		mkmember("m2", "a <2.0"),
	}

	h1, err := HashWorkspaceInputs(members, GroupSelection{}, nil)
	if err != nil {
		t.Fatalf("hash failed: %s", err)
	}
	h2, err := HashWorkspaceInputs(members, GroupSelection{}, nil)
	if err != nil {
		t.Fatalf("hash failed: %s", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Error("identical inputs must produce identical digests")
	}

	// constraint change must change the digest
	changed := []WorkspaceMember{
		mkmember("m1", "a >=1.1", "b"),
		mkmember("m2", "a <2.0"),
	}
	h3, err := HashWorkspaceInputs(changed, GroupSelection{}, nil)
	if err != nil {
		t.Fatalf("hash failed: %s", err)
	}
	if bytes.Equal(h1, h3) {
		t.Error("changing a constraint must change the digest")
	}

	// group selection change must change the digest
	h4, err := HashWorkspaceInputs(members, GroupSelection{Dev: true}, nil)
	if err != nil {
		t.Fatalf("hash failed: %s", err)
	}
	if bytes.Equal(h1, h4) {
		t.Error("changing the group selection must change the digest")
	}
}

func TestSolverHashInputsMatchesStandalone(t *testing.T) {
	members := []WorkspaceMember{mkmember("m1", "a >=1.0")}

	s, err := Prepare(SolveParameters{Members: members}, newdepspecProvider(nil))
	if err != nil {
		t.Fatalf("prepare failed: %s", err)
	}
	defer s.Release()

	standalone, err := HashWorkspaceInputs(members, GroupSelection{}, nil)
	if err != nil {
		t.Fatalf("hash failed: %s", err)
	}

	if !bytes.Equal(s.HashInputs(), standalone) {
		t.Error("solver digest and standalone digest must agree")
	}
}
