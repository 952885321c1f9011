// Package pps (python packaging solver) implements deterministic dependency
// resolution for Python package workspaces: PEP 440 versions and constraint
// algebra, workspace-wide requirement merging with provenance, a backtracking
// version solver with conflict-directed backjumping, and lock synthesis
// primitives.
package pps

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Version represents a single PEP 440 version. All versions are usable
// directly as Constraints, where they act as exact-match (==) constraints.
type Version interface {
	Constraint
	// Compare returns -1, 0 or 1 as v sorts below, equal to, or above v2.
	// Local labels are ignored for ordering, per PEP 440.
	Compare(v2 Version) int
	Epoch() int
	Release() []int
	// Prerelease indicates the version carries a pre or dev segment, which
	// places it below the corresponding final release in ordering.
	Prerelease() bool
	// Local returns the local version label ("+<label>"), or the empty
	// string. Preserved for display only.
	Local() string
}

const (
	phaseNone  = -1
	phaseAlpha = 0
	phaseBeta  = 1
	phaseRC    = 2
)

type pepVersion struct {
	raw     string
	epoch   int
	release []int
	pre     int // phase constant
	preNum  int
	post    int // -1 when absent
	dev     int // -1 when absent
	local   string
}

// Accepts the full PEP 440 grammar, normalized: optional epoch, dotted
// release, pre/post/dev segments with their spelling variants, local label.
var versionRx = regexp.MustCompile(`^v?(?:(\d+)!)?(\d+(?:\.\d+)*)` +
	`(?:[._-]?(a|alpha|b|beta|c|rc|pre|preview)[._-]?(\d*))?` +
	`(?:(?:-(\d+))|(?:[._-]?(post|rev|r)[._-]?(\d*)))?` +
	`(?:[._-]?dev[._-]?(\d*))?` +
	`(?:\+([a-z0-9]+(?:[._-][a-z0-9]+)*))?$`)

// NewVersion parses body as a PEP 440 version.
func NewVersion(body string) (Version, error) {
	s := strings.ToLower(strings.TrimSpace(body))
	loc := versionRx.FindStringSubmatchIndex(s)
	if loc == nil {
		return nil, fmt.Errorf("malformed version %q", body)
	}

	// group returns capture group i, and whether it participated in the
	// match at all (an optional group can match the empty string).
	group := func(i int) (string, bool) {
		if loc[2*i] < 0 {
			return "", false
		}
		return s[loc[2*i]:loc[2*i+1]], true
	}
	m := make([]string, 10)
	for i := 1; i < 10; i++ {
		m[i], _ = group(i)
	}

	v := &pepVersion{
		raw:   strings.TrimSpace(body),
		pre:   phaseNone,
		post:  -1,
		dev:   -1,
		local: m[9],
	}

	if m[1] != "" {
		v.epoch, _ = strconv.Atoi(m[1])
	}
	for _, seg := range strings.Split(m[2], ".") {
		n, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("malformed version %q: release segment %q", body, seg)
		}
		v.release = append(v.release, n)
	}

	if m[3] != "" {
		switch m[3] {
		case "a", "alpha":
			v.pre = phaseAlpha
		case "b", "beta":
			v.pre = phaseBeta
		default: // c, rc, pre, preview
			v.pre = phaseRC
		}
		if m[4] != "" {
			v.preNum, _ = strconv.Atoi(m[4])
		}
	}

	switch {
	case m[5] != "": // "-N" implicit post
		v.post, _ = strconv.Atoi(m[5])
	case m[6] != "":
		v.post = 0
		if m[7] != "" {
			v.post, _ = strconv.Atoi(m[7])
		}
	}

	// The dev segment may carry no explicit number ("1.0.dev"), so presence
	// is judged by group participation rather than emptiness.
	if _, ok := group(8); ok {
		v.dev = 0
		if m[8] != "" {
			v.dev, _ = strconv.Atoi(m[8])
		}
	}

	return v, nil
}

func (v *pepVersion) String() string { return v.raw }

func (v *pepVersion) Epoch() int     { return v.epoch }
func (v *pepVersion) Release() []int { return v.release }
func (v *pepVersion) Local() string  { return v.local }

func (v *pepVersion) Prerelease() bool {
	return v.pre != phaseNone || v.dev >= 0
}

// Compare implements the PEP 440 total order: epoch, then zero-padded release
// segments, then pre/post/dev segment ordering. Local labels never affect
// ordering.
func (v *pepVersion) Compare(o2 Version) int {
	v2, ok := o2.(*pepVersion)
	if !ok {
		panic(fmt.Sprintf("canary - unknown Version impl %T", o2))
	}

	if v.epoch != v2.epoch {
		return intCompare(v.epoch, v2.epoch)
	}
	if c := compareRelease(v.release, v2.release); c != 0 {
		return c
	}
	if c := comparePre(v, v2); c != 0 {
		return c
	}
	// Absent post sorts below any present post.
	if c := intCompare(sentinelLow(v.post), sentinelLow(v2.post)); c != 0 {
		return c
	}
	// Absent dev sorts above any present dev.
	return intCompare(sentinelHigh(v.dev), sentinelHigh(v2.dev))
}

func intCompare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sentinelLow(n int) int {
	if n < 0 {
		return -1 << 30
	}
	return n
}

func sentinelHigh(n int) int {
	if n < 0 {
		return 1 << 30
	}
	return n
}

func compareRelease(a, b []int) int {
	l := len(a)
	if len(b) > l {
		l = len(b)
	}
	for i := 0; i < l; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			return intCompare(av, bv)
		}
	}
	return 0
}

// comparePre orders the pre segment per PEP 440: a version with only a dev
// segment sorts below any prerelease, prereleases sort below the final
// release.
func comparePre(a, b *pepVersion) int {
	ak, an := preKey(a)
	bk, bn := preKey(b)
	if ak != bk {
		return intCompare(ak, bk)
	}
	return intCompare(an, bn)
}

func preKey(v *pepVersion) (rank, num int) {
	switch {
	case v.pre != phaseNone:
		return v.pre, v.preNum
	case v.post < 0 && v.dev >= 0:
		return -1 << 30, 0
	default:
		return 1 << 30, 0
	}
}

// Constraint behavior: a version matches only versions ordering-equal to it.

func (v *pepVersion) Matches(v2 Version) bool {
	return v.Compare(v2) == 0
}

func (v *pepVersion) MatchesAny(c Constraint) bool {
	return c.Matches(v)
}

func (v *pepVersion) Intersect(c Constraint) Constraint {
	if c.Matches(v) {
		return v
	}
	return none
}

func (v *pepVersion) prereleaseHint() bool { return v.Prerelease() }

func (v *pepVersion) _private() {}

// SortDescending orders versions newest-first, in place. The order is total,
// so the result is deterministic for any input permutation.
func SortDescending(vs []Version) {
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].Compare(vs[j]) > 0
	})
}
