package openrye

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/armyknife-tools/openrye/pps"
)

func seedArtifact(t *testing.T, root, name, version string) {
	t.Helper()
	writeFile(t, filepath.Join(root, name, version, name+".py"), "# "+name+" "+version+"\n")
}

func TestDirArtifactCache(t *testing.T) {
	root := t.TempDir()
	seedArtifact(t, root, "flask", "2.0")

	cache := DirArtifactCache{Root: root}

	flask := pps.ProjectIdentifier{Name: "flask"}
	p, err := cache.PathFor(flask, mustVersion(t, "2.0"))
	if err != nil {
		t.Fatalf("cached artifact not found: %s", err)
	}
	if p != filepath.Join(root, "flask", "2.0") {
		t.Errorf("got path %s", p)
	}

	if _, err := cache.PathFor(flask, mustVersion(t, "3.0")); err == nil {
		t.Error("missing version should be an error")
	}
}

func TestCreateSiteTree(t *testing.T) {
	arts := t.TempDir()
	seedArtifact(t, arts, "flask", "2.0")
	seedArtifact(t, arts, "click", "8.1")

	l := mklockfile(t, 0x01, "flask", "2.0", "click", "8.1")

	dest := filepath.Join(t.TempDir(), "site")
	if err := CreateSiteTree(dest, l, DirArtifactCache{Root: arts}); err != nil {
		t.Fatalf("site tree creation failed: %s", err)
	}

	for _, name := range []string{"flask", "click"} {
		if _, err := os.Stat(filepath.Join(dest, name, name+".py")); err != nil {
			t.Errorf("%s missing from site tree: %s", name, err)
		}
	}
}

func TestCreateSiteTreeReplacesAtomically(t *testing.T) {
	arts := t.TempDir()
	seedArtifact(t, arts, "flask", "2.2")

	dest := filepath.Join(t.TempDir(), "site")
	writeFile(t, filepath.Join(dest, "stale", "stale.py"), "old\n")

	l := mklockfile(t, 0x01, "flask", "2.2")
	if err := CreateSiteTree(dest, l, DirArtifactCache{Root: arts}); err != nil {
		t.Fatalf("site tree replacement failed: %s", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "stale")); !os.IsNotExist(err) {
		t.Error("old tree contents survived the replacement")
	}
	if _, err := os.Stat(filepath.Join(dest, "flask", "flask.py")); err != nil {
		t.Errorf("new tree contents missing: %s", err)
	}
	if _, err := os.Stat(dest + ".orig"); !os.IsNotExist(err) {
		t.Error("backup of the old tree was not cleaned up")
	}
}

func TestCreateSiteTreeKeepsOldOnFailure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "site")
	writeFile(t, filepath.Join(dest, "keep", "keep.py"), "still here\n")

	// empty artifact cache: every lookup fails before any move happens
	l := mklockfile(t, 0x01, "flask", "2.0")
	if err := CreateSiteTree(dest, l, DirArtifactCache{Root: t.TempDir()}); err == nil {
		t.Fatal("expected an error for a missing artifact")
	}

	if _, err := os.Stat(filepath.Join(dest, "keep", "keep.py")); err != nil {
		t.Errorf("existing tree was disturbed by a failed build: %s", err)
	}
}

func TestCreateSiteTreeNilLock(t *testing.T) {
	if err := CreateSiteTree(filepath.Join(t.TempDir(), "site"), nil, DirArtifactCache{}); err == nil {
		t.Error("a nil lock must be rejected")
	}
}
