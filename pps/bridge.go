package pps

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// concurrentFetches caps how many candidate listings a prefetch batch runs at
// once.
const concurrentFetches = 4

// sourceBridge mediates between the solver and a CandidateProvider. It
// memoizes every listing (including failures) so a provider is asked about
// each identifier at most once per solve, which both keeps repeated
// backtracking visits cheap and pins the solve to a single metadata snapshot.
type sourceBridge struct {
	cp  CandidateProvider
	l   *logrus.Logger
	ctx context.Context

	mu    sync.Mutex
	cands map[ProjectIdentifier][]Candidate
	errs  map[ProjectIdentifier]error
}

func newSourceBridge(cp CandidateProvider, l *logrus.Logger, ctx context.Context) *sourceBridge {
	return &sourceBridge{
		cp:    cp,
		l:     l,
		ctx:   ctx,
		cands: make(map[ProjectIdentifier][]Candidate),
		errs:  make(map[ProjectIdentifier]error),
	}
}

// prefetch lists candidates for a batch of identifiers concurrently, then
// waits for the whole batch. Fetching is the only concurrent phase; by the
// time prefetch returns, every result is memoized and all later reads are
// pure map lookups, so solve order stays deterministic regardless of how the
// fetches interleaved.
func (b *sourceBridge) prefetch(ids []ProjectIdentifier) {
	var todo []ProjectIdentifier
	b.mu.Lock()
	for _, id := range ids {
		if _, has := b.cands[id]; has {
			continue
		}
		if _, has := b.errs[id]; has {
			continue
		}
		todo = append(todo, id)
	}
	b.mu.Unlock()

	if len(todo) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(b.ctx)
	g.SetLimit(concurrentFetches)
	for _, id := range todo {
		id := id
		g.Go(func() error {
			b.fetch(ctx, id)
			return nil
		})
	}
	g.Wait()
}

// fetch performs one provider call and memoizes the outcome. Candidates are
// sorted newest-first on arrival so every later consumer sees them in
// decision order.
func (b *sourceBridge) fetch(ctx context.Context, id ProjectIdentifier) {
	cands, err := b.cp.ListCandidates(ctx, id.Name, id.Source)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, has := b.cands[id]; has {
		return
	}
	if _, has := b.errs[id]; has {
		return
	}

	if err != nil {
		if _, ok := err.(*UnknownPackageError); !ok {
			err = &UnknownPackageError{Name: id.Name, Err: err}
		}
		b.errs[id] = err
		if b.l.Level >= logrus.DebugLevel {
			b.l.WithFields(logrus.Fields{
				"package": id.Name,
				"source":  id.Source.String(),
			}).WithError(err).Debug("candidate listing failed")
		}
		return
	}

	vs := make([]Candidate, len(cands))
	copy(vs, cands)
	sortCandidates(vs)
	b.cands[id] = vs
	if b.l.Level >= logrus.DebugLevel {
		b.l.WithFields(logrus.Fields{
			"package":    id.Name,
			"source":     id.Source.String(),
			"candidates": len(vs),
		}).Debug("candidate listing memoized")
	}
}

func sortCandidates(cs []Candidate) {
	// insertion sort; candidate lists are short and often nearly ordered
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j-1].Version.Compare(cs[j].Version) < 0; j-- {
			cs[j-1], cs[j] = cs[j], cs[j-1]
		}
	}
}

// candidates returns the memoized listing for id, fetching synchronously on a
// miss. An empty listing is an unknown package.
func (b *sourceBridge) candidates(id ProjectIdentifier) ([]Candidate, error) {
	b.mu.Lock()
	cs, has := b.cands[id]
	err, hasErr := b.errs[id]
	b.mu.Unlock()

	if !has && !hasErr {
		b.fetch(b.ctx, id)
		b.mu.Lock()
		cs, has = b.cands[id]
		err, hasErr = b.errs[id]
		b.mu.Unlock()
	}

	if hasErr {
		return nil, err
	}
	if has && len(cs) == 0 {
		return nil, &UnknownPackageError{Name: id.Name}
	}
	return cs, nil
}

// listVersions returns id's versions newest-first. Prerelease versions are
// excluded unless allowPre is set, except when a package publishes nothing
// but prereleases.
func (b *sourceBridge) listVersions(id ProjectIdentifier, allowPre bool) ([]Version, error) {
	cs, err := b.candidates(id)
	if err != nil {
		return nil, err
	}

	vs := make([]Version, 0, len(cs))
	for _, c := range cs {
		if !allowPre && c.Version.Prerelease() {
			continue
		}
		vs = append(vs, c.Version)
	}
	if len(vs) == 0 {
		// all-prerelease packages are usable even without a gate
		for _, c := range cs {
			vs = append(vs, c.Version)
		}
	}
	return vs, nil
}

// countVersions reports how many candidate versions id has, for the
// fewest-candidates-first ordering of the unselected queue. Unknown packages
// count as zero so they surface immediately.
func (b *sourceBridge) countVersions(id ProjectIdentifier) int {
	cs, err := b.candidates(id)
	if err != nil {
		return 0
	}
	return len(cs)
}

// getDependencies returns the requirements introduced by selecting a.
func (b *sourceBridge) getDependencies(a atom) ([]Requirement, error) {
	cs, err := b.candidates(a.id)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		if c.Version.Compare(a.v) == 0 {
			return c.Requirements, nil
		}
	}
	return nil, &UnknownPackageError{Name: a.id.Name}
}
