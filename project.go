package openrye

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/armyknife-tools/openrye/pps"
)

var errProjectNotFound = errors.Errorf("no %s found in directory or any parent", ManifestName)

// FindProjectRoot walks upwards from the given path until it finds a
// directory containing a manifest.
func FindProjectRoot(from string) (string, error) {
	for {
		mp := filepath.Join(from, ManifestName)
		if _, err := os.Stat(mp); err == nil {
			return from, nil
		}

		parent := filepath.Dir(from)
		if parent == from {
			return "", errProjectNotFound
		}
		from = parent
	}
}

// Project is a loaded workspace: the root manifest, every discovered member
// manifest, and the current lock, if one exists on disk.
type Project struct {
	Root     string
	Manifest *Manifest
	Lock     *Lock
	Members  []pps.WorkspaceMember
}

// LoadProject reads the manifest at root, discovers workspace members, and
// reads the lock file when present.
func LoadProject(root string) (*Project, error) {
	m, err := readManifestFile(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, err
	}

	p := &Project{
		Root:     root,
		Manifest: m,
		Members:  []pps.WorkspaceMember{m.Member()},
	}

	if len(m.WorkspaceMembers) > 0 {
		members, err := discoverMembers(root, m.WorkspaceMembers)
		if err != nil {
			return nil, err
		}
		p.Members = append(p.Members, members...)
	}

	lp := filepath.Join(root, LockName)
	f, err := os.Open(lp)
	if err == nil {
		defer f.Close()
		p.Lock, err = readLock(f)
		if err != nil {
			return nil, errors.Wrapf(err, "while parsing %s", lp)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "while opening %s", lp)
	}

	return p, nil
}

func readManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "while opening %s", path)
	}
	defer f.Close()

	m, err := readManifest(f)
	if err != nil {
		return nil, errors.Wrapf(err, "while parsing %s", path)
	}
	return m, nil
}

// discoverMembers expands the workspace member glob patterns into loaded
// member manifests. Hidden directories and virtualenvs are never descended
// into.
func discoverMembers(root string, patterns []string) ([]pps.WorkspaceMember, error) {
	var members []pps.WorkspaceMember
	seen := map[string]bool{root: true}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			name := de.Name()
			if osPathname != root && (strings.HasPrefix(name, ".") || name == "__pycache__" || name == "node_modules") {
				return filepath.SkipDir
			}
			if seen[osPathname] {
				return nil
			}

			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			for _, pat := range patterns {
				ok, err := filepath.Match(pat, rel)
				if err != nil {
					return errors.Wrapf(err, "bad workspace member pattern %q", pat)
				}
				if !ok {
					continue
				}

				mp := filepath.Join(osPathname, ManifestName)
				if _, serr := os.Stat(mp); serr != nil {
					continue
				}
				m, err := readManifestFile(mp)
				if err != nil {
					return err
				}
				seen[osPathname] = true
				members = append(members, m.Member())
				break
			}
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "while discovering workspace members")
	}

	return members, nil
}

// SolveParameters assembles the solver inputs for this project.
func (p *Project) SolveParameters(groups pps.GroupSelection) (pps.SolveParameters, error) {
	overrides, err := p.Manifest.Overrides()
	if err != nil {
		return pps.SolveParameters{}, err
	}

	params := pps.SolveParameters{
		Members:   p.Members,
		Groups:    groups,
		Overrides: overrides,
	}
	if p.Lock != nil {
		params.Lock = p.Lock
	}
	return params, nil
}
