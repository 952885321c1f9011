package pps

import (
	"crypto/sha256"
	"io"
	"sort"
)

// hashInputs computes a digest of every input that can influence a solve: the
// group selection and, per package in normalized-name order, the merged
// constraint, the resolved source, the extras union, and each member's
// original declaration in member order.
//
// The digest is the value stored in a lock artifact's memo field. If the
// digest of the current workspace matches a lock's memo, manifest and lock
// are in sync and there is no need to re-solve.
func (g *workspaceGraph) hashInputs() []byte {
	h := sha256.New()

	io.WriteString(h, g.groups.canonical())
	for _, name := range g.names {
		mr := g.reqs[name]
		io.WriteString(h, string(name))
		io.WriteString(h, constraintDisplay(mr.c))
		io.WriteString(h, mr.source.String())
		for _, e := range mr.extras {
			io.WriteString(h, "["+e+"]")
		}
		for _, rc := range mr.contribs {
			io.WriteString(h, rc.member+":"+rc.req.String())
		}
	}

	return h.Sum(nil)
}

func unionExtras(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, lst := range [][]string{a, b} {
		for _, e := range lst {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	sort.Strings(out)
	return out
}
