package openrye

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/armyknife-tools/openrye/pps"
)

// Snapshot is a frozen package index: a full candidate listing loaded from a
// JSON document. Solving against a snapshot is fully reproducible, which is
// what the resolver's determinism guarantees assume.
//
// The document maps package names to candidate entries:
//
//	{
//	    "packages": {
//	        "flask": [
//	            {"version": "2.0.1", "requires": ["werkzeug>=2.0", "jinja2>=3.0"]}
//	        ]
//	    }
//	}
//
// An entry may carry a "source" field; entries without one belong to the
// default index.
type Snapshot struct {
	cands map[snapshotKey][]pps.Candidate
}

type snapshotKey struct {
	name pps.PackageName
	src  pps.Source
}

type rawSnapshot struct {
	Packages map[string][]rawSnapshotEntry `json:"packages"`
}

type rawSnapshotEntry struct {
	Version  string   `json:"version"`
	Requires []string `json:"requires,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// ReadSnapshot parses a snapshot document.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var raw rawSnapshot
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "unable to parse the snapshot as JSON")
	}

	s := &Snapshot{cands: make(map[snapshotKey][]pps.Candidate)}
	for name, entries := range raw.Packages {
		pn := pps.NormalizeName(name)
		for _, e := range entries {
			v, err := pps.NewVersion(e.Version)
			if err != nil {
				return nil, errors.Wrapf(err, "snapshot entry for %s", name)
			}
			src, err := pps.ParseSource(e.Source)
			if err != nil {
				return nil, errors.Wrapf(err, "snapshot entry for %s", name)
			}

			cand := pps.Candidate{Version: v}
			for _, rs := range e.Requires {
				req, err := pps.ParseRequirement(rs)
				if err != nil {
					return nil, errors.Wrapf(err, "snapshot entry for %s %s", name, e.Version)
				}
				cand.Requirements = append(cand.Requirements, req)
			}

			key := snapshotKey{name: pn, src: src}
			s.cands[key] = append(s.cands[key], cand)
		}
	}
	return s, nil
}

// ReadSnapshotFile reads a snapshot document from disk.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "while opening %s", path)
	}
	defer f.Close()

	s, err := ReadSnapshot(f)
	if err != nil {
		return nil, errors.Wrapf(err, "while parsing %s", path)
	}
	return s, nil
}

// ListCandidates implements pps.CandidateProvider.
func (s *Snapshot) ListCandidates(_ context.Context, name pps.PackageName, source pps.Source) ([]pps.Candidate, error) {
	cands, has := s.cands[snapshotKey{name: name, src: source}]
	if !has || len(cands) == 0 {
		return nil, &pps.UnknownPackageError{Name: name}
	}

	out := make([]pps.Candidate, len(cands))
	copy(out, cands)
	return out, nil
}
