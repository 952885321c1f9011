package openrye

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/armyknife-tools/openrye/pps"
)

// LockName is the lock file name used on disk.
const LockName = "rye.lock"

// Lock is the on-disk representation of a resolution: the digest of the
// inputs it was computed from, plus every pinned package.
type Lock struct {
	Memo []byte
	P    []pps.LockedPackage
}

type rawLock struct {
	Memo string      `json:"requirements-hash"`
	P    []lockedDep `json:"packages"`
}

type lockedDep struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Source       string   `json:"source,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Members      []string `json:"members,omitempty"`
}

func readLock(r io.Reader) (*Lock, error) {
	rl := rawLock{}
	if err := json.NewDecoder(r).Decode(&rl); err != nil {
		return nil, errors.Wrap(err, "unable to parse the lock as JSON")
	}

	memo, err := hex.DecodeString(rl.Memo)
	if err != nil {
		return nil, errors.New("invalid hash digest in lock's requirements-hash field")
	}

	l := &Lock{
		Memo: memo,
		P:    make([]pps.LockedPackage, len(rl.P)),
	}

	for i, ld := range rl.P {
		if ld.Version == "" {
			return nil, errors.Errorf("lock file has entry for %s, but specifies no version", ld.Name)
		}
		v, err := pps.NewVersion(ld.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "lock file pins %s to unparseable version %q", ld.Name, ld.Version)
		}
		src, err := pps.ParseSource(ld.Source)
		if err != nil {
			return nil, errors.Wrapf(err, "lock file entry for %s", ld.Name)
		}

		deps := make([]pps.PackageName, len(ld.Dependencies))
		for j, d := range ld.Dependencies {
			deps[j] = pps.NormalizeName(d)
		}

		id := pps.ProjectIdentifier{Name: pps.NormalizeName(ld.Name), Source: src}
		l.P[i] = pps.NewLockedPackage(id, v, deps, ld.Members)
	}

	return l, nil
}

func (l *Lock) InputsDigest() []byte {
	return l.Memo
}

func (l *Lock) Packages() []pps.LockedPackage {
	return l.P
}

// Stale reports whether the lock no longer corresponds to the given input
// digest, meaning a re-solve is needed before it can be trusted.
func (l *Lock) Stale(digest []byte) bool {
	return !bytes.Equal(l.Memo, digest)
}

func (l *Lock) MarshalJSON() ([]byte, error) {
	raw := rawLock{
		Memo: hex.EncodeToString(l.Memo),
		P:    make([]lockedDep, len(l.P)),
	}

	sort.Sort(SortedLockedPackages(l.P))

	for k, lp := range l.P {
		id := lp.Ident()
		ld := lockedDep{
			Name:    string(id.Name),
			Version: lp.Version().String(),
			Members: lp.Members(),
		}
		if !id.Source.IsDefault() {
			ld.Source = id.Source.String()
		}
		for _, d := range lp.Dependencies() {
			ld.Dependencies = append(ld.Dependencies, string(d))
		}
		raw.P[k] = ld
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	err := enc.Encode(raw)

	return buf.Bytes(), err
}

// LockFromSolution converts any pps.Lock (including a fresh Solution) to the
// on-disk representation. If the input is already a *Lock it is returned
// directly; otherwise data is copied so the result shares no memory with the
// input.
func LockFromSolution(in pps.Lock) *Lock {
	if in == nil {
		return nil
	} else if l, ok := in.(*Lock); ok {
		return l
	}

	h, p := in.InputsDigest(), in.Packages()

	l := &Lock{
		Memo: make([]byte, len(h)),
		P:    make([]pps.LockedPackage, len(p)),
	}
	copy(l.Memo, h)
	copy(l.P, p)
	return l
}

type SortedLockedPackages []pps.LockedPackage

func (s SortedLockedPackages) Len() int      { return len(s) }
func (s SortedLockedPackages) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s SortedLockedPackages) Less(i, j int) bool {
	l, r := s[i].Ident(), s[j].Ident()
	if l.Name != r.Name {
		return l.Name < r.Name
	}
	return l.Source.String() < r.Source.String()
}

// locksAreEquivalent compares two locks. If EITHER lock is nil, or their
// memos do not match, or any pinned packages differ, false is returned.
func locksAreEquivalent(l, r *Lock) bool {
	if l == nil || r == nil {
		return false
	}

	if !bytes.Equal(l.Memo, r.Memo) {
		return false
	}
	if len(l.P) != len(r.P) {
		return false
	}

	sort.Sort(SortedLockedPackages(l.P))
	sort.Sort(SortedLockedPackages(r.P))

	for k, lp := range l.P {
		if !lp.Eq(r.P[k]) {
			return false
		}
	}
	return true
}
