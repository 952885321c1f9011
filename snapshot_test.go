package openrye

import (
	"context"
	"strings"
	"testing"

	"github.com/armyknife-tools/openrye/pps"
)

const testSnapshot = `{
    "packages": {
        "Flask": [
            {"version": "2.0.1", "requires": ["werkzeug>=2.0", "jinja2>=3.0"]},
            {"version": "2.2.5", "requires": ["werkzeug>=2.2", "jinja2>=3.0"]}
        ],
        "werkzeug": [
            {"version": "2.3.0"}
        ],
        "jinja2": [
            {"version": "3.1.2"}
        ],
        "corp-auth": [
            {"version": "1.0.0", "source": "index+https://pypi.corp.example/simple"}
        ]
    }
}
`

func TestReadSnapshot(t *testing.T) {
	s, err := ReadSnapshot(strings.NewReader(testSnapshot))
	if err != nil {
		t.Fatalf("snapshot parse failed: %s", err)
	}

	ctx := context.Background()

	cands, err := s.ListCandidates(ctx, "flask", pps.Source{})
	if err != nil {
		t.Fatalf("listing failed: %s", err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d flask candidates, wanted 2", len(cands))
	}
	if len(cands[0].Requirements) != 2 {
		t.Errorf("flask 2.0.1 should carry 2 requirements, got %d", len(cands[0].Requirements))
	}

	// entries with an explicit source are invisible on the default index
	if _, err := s.ListCandidates(ctx, "corp-auth", pps.Source{}); err == nil {
		t.Error("corp-auth should not be served from the default index")
	}
	alt := pps.Source{Type: pps.SourceIndex, URL: "https://pypi.corp.example/simple"}
	if _, err := s.ListCandidates(ctx, "corp-auth", alt); err != nil {
		t.Errorf("corp-auth missing from its declared source: %s", err)
	}
}

func TestSnapshotUnknownPackage(t *testing.T) {
	s, err := ReadSnapshot(strings.NewReader(testSnapshot))
	if err != nil {
		t.Fatalf("snapshot parse failed: %s", err)
	}

	_, err = s.ListCandidates(context.Background(), "ghost", pps.Source{})
	if err == nil {
		t.Fatal("expected an error for an unknown package")
	}
	if _, ok := err.(*pps.UnknownPackageError); !ok {
		t.Fatalf("expected *pps.UnknownPackageError, got %T: %s", err, err)
	}
}

func TestReadSnapshotErrors(t *testing.T) {
	table := []struct {
		n  string
		in string
	}{
		{"not json", "flask: 2.0"},
		{"bad version", `{"packages": {"flask": [{"version": "nope"}]}}`},
		{"bad requirement", `{"packages": {"flask": [{"version": "2.0", "requires": ["w >><2"]}]}}`},
		{"bad source", `{"packages": {"flask": [{"version": "2.0", "source": "smoke-signal+x"}]}}`},
	}

	for _, tc := range table {
		t.Run(tc.n, func(t *testing.T) {
			if _, err := ReadSnapshot(strings.NewReader(tc.in)); err == nil {
				t.Error("expected an error, got none")
			}
		})
	}
}

func TestSolveFromSnapshot(t *testing.T) {
	s, err := ReadSnapshot(strings.NewReader(testSnapshot))
	if err != nil {
		t.Fatalf("snapshot parse failed: %s", err)
	}

	members := []pps.WorkspaceMember{{
		ID: "app",
		Requirements: []pps.Requirement{
			mustRequirement(t, "flask>=2.0"),
		},
	}}

	slvr, err := pps.Prepare(pps.SolveParameters{Members: members}, s)
	if err != nil {
		t.Fatalf("prepare failed: %s", err)
	}
	defer slvr.Release()

	soln, err := slvr.Solve(context.Background())
	if err != nil {
		t.Fatalf("solve failed: %s", err)
	}

	pins := make(map[pps.PackageName]string)
	for _, lp := range soln.Packages() {
		pins[lp.Ident().Name] = lp.Version().String()
	}
	want := map[pps.PackageName]string{
		"flask":    "2.2.5",
		"werkzeug": "2.3.0",
		"jinja2":   "3.1.2",
	}
	if len(pins) != len(want) {
		t.Fatalf("got pins %v, wanted %v", pins, want)
	}
	for name, v := range want {
		if pins[name] != v {
			t.Errorf("%s pinned to %s, wanted %s", name, pins[name], v)
		}
	}
}

func mustRequirement(t *testing.T, s string) pps.Requirement {
	t.Helper()
	req, err := pps.ParseRequirement(s)
	if err != nil {
		t.Fatalf("bad requirement %q in test: %s", s, err)
	}
	return req
}
