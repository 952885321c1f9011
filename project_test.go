package openrye

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/armyknife-tools/openrye/pps"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0666); err != nil {
		t.Fatal(err)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), "[project]\nname = \"x\"\n")

	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0777); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("root discovery failed: %s", err)
	}
	if got != root {
		t.Errorf("got root %s, wanted %s", got, root)
	}

	if _, err := FindProjectRoot(t.TempDir()); err == nil {
		t.Error("expected an error when no manifest exists anywhere above")
	}
}

func TestLoadProjectSingle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), `
[project]
name = "solo"
dependencies = ["flask>=2.0"]
`)

	p, err := LoadProject(root)
	if err != nil {
		t.Fatalf("project load failed: %s", err)
	}

	if len(p.Members) != 1 || p.Members[0].ID != "solo" {
		t.Errorf("got members %v, wanted just solo", p.Members)
	}
	if p.Lock != nil {
		t.Error("project without a lock file must load with a nil lock")
	}
}

func TestLoadProjectWorkspace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), `
[project]
name = "platform"
dependencies = ["click>=8.0"]

[tool.rye.workspace]
members = ["packages/*"]
`)
	writeFile(t, filepath.Join(root, "packages", "svc-api", ManifestName), `
[project]
name = "svc-api"
dependencies = ["flask>=2.0"]
`)
	writeFile(t, filepath.Join(root, "packages", "svc-worker", ManifestName), `
[project]
name = "svc-worker"
dependencies = ["celery>=5.0"]
`)
	// directories the walk must never pick up
	writeFile(t, filepath.Join(root, ".venv", "packages", "bogus", ManifestName), "[project]\nname = \"bogus\"\n")
	writeFile(t, filepath.Join(root, "packages", "no-manifest", "README.md"), "empty\n")

	p, err := LoadProject(root)
	if err != nil {
		t.Fatalf("project load failed: %s", err)
	}

	ids := make(map[string]bool)
	for _, m := range p.Members {
		ids[m.ID] = true
	}
	if len(p.Members) != 3 || !ids["platform"] || !ids["svc-api"] || !ids["svc-worker"] {
		t.Errorf("got members %v, wanted platform, svc-api, svc-worker", ids)
	}
	if ids["bogus"] {
		t.Error("hidden directories must not contribute members")
	}
}

func TestLoadProjectReadsLock(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), "[project]\nname = \"x\"\n")
	writeFile(t, filepath.Join(root, LockName), testLock)

	p, err := LoadProject(root)
	if err != nil {
		t.Fatalf("project load failed: %s", err)
	}
	if p.Lock == nil {
		t.Fatal("lock file on disk was not loaded")
	}
	if len(p.Lock.P) != 3 {
		t.Errorf("lock loaded with %d packages, wanted 3", len(p.Lock.P))
	}
}

func TestLoadProjectBadLock(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), "[project]\nname = \"x\"\n")
	writeFile(t, filepath.Join(root, LockName), "not json")

	if _, err := LoadProject(root); err == nil {
		t.Error("corrupt lock file should fail the load")
	}
}

func TestProjectSolveParameters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), `
[project]
name = "x"
dependencies = ["flask>=2.0"]

[[tool.rye.sources]]
name = "corp"
prefix = "corp-"
url = "https://pypi.corp.example/simple"
`)
	writeFile(t, filepath.Join(root, LockName), testLock)

	p, err := LoadProject(root)
	if err != nil {
		t.Fatalf("project load failed: %s", err)
	}

	params, err := p.SolveParameters(pps.GroupSelection{Dev: true})
	if err != nil {
		t.Fatalf("parameter assembly failed: %s", err)
	}
	if len(params.Members) != 1 {
		t.Errorf("got %d members, wanted 1", len(params.Members))
	}
	if !params.Groups.Dev {
		t.Error("group selection was not carried through")
	}
	if params.Overrides == nil {
		t.Error("source routes did not become overrides")
	}
	if params.Lock == nil {
		t.Error("the on-disk lock was not handed to the solver")
	}
}
