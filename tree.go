package openrye

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"github.com/armyknife-tools/openrye/pps"
)

// ArtifactCache resolves a pinned package to a directory holding its
// unpacked contents, fetching and unpacking on demand.
type ArtifactCache interface {
	PathFor(id pps.ProjectIdentifier, v pps.Version) (string, error)
}

// DirArtifactCache is an ArtifactCache over a directory of pre-unpacked
// packages laid out as <root>/<name>/<version>/.
type DirArtifactCache struct {
	Root string
}

func (c DirArtifactCache) PathFor(id pps.ProjectIdentifier, v pps.Version) (string, error) {
	p := filepath.Join(c.Root, string(id.Name), v.String())
	if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
		return "", errors.Errorf("no cached artifact for %s@%s", id.Name, v)
	}
	return p, nil
}

// CreateSiteTree materializes a lock into a site directory: one subdirectory
// per pinned package, copied from the artifact cache. The tree is assembled
// in a temp directory and moved into place as a unit; an existing tree at
// dest is only replaced once the new one is complete.
func CreateSiteTree(dest string, l *Lock, cache ArtifactCache) error {
	if l == nil {
		return errors.New("cannot create a site tree from a nil lock")
	}

	td, err := ioutil.TempDir(filepath.Dir(dest), ".rye-site-")
	if err != nil {
		return errors.Wrap(err, "creating temp dir for site tree")
	}
	defer os.RemoveAll(td)

	for _, lp := range l.Packages() {
		src, err := cache.PathFor(lp.Ident(), lp.Version())
		if err != nil {
			return err
		}

		to := filepath.Join(td, string(lp.Ident().Name))
		if err := shutil.CopyTree(src, to, nil); err != nil {
			return errors.Wrapf(err, "copying %s into site tree", lp.Ident().Name)
		}
	}

	var backup string
	if _, err := os.Stat(dest); err == nil {
		backup = dest + ".orig"
		if err := renameWithFallback(dest, backup); err != nil {
			return errors.Wrap(err, "moving old site tree aside")
		}
	}

	if err := renameWithFallback(td, dest); err != nil {
		if backup != "" {
			renameWithFallback(backup, dest)
		}
		return errors.Wrap(err, "moving site tree into place")
	}

	if backup != "" {
		os.RemoveAll(backup)
	}
	return nil
}
