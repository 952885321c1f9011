package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/armyknife-tools/openrye"
	"github.com/armyknife-tools/openrye/pps"
)

const lockShortHelp = `Resolve the workspace and write rye.lock`
const lockLongHelp = `
Lock resolves every workspace member's requirements against a package index
snapshot and writes the resulting pinned set to rye.lock. When a lock already
exists, versions pinned in it are kept as long as they still satisfy all
constraints; pass -update to let everything float, or -change to float
specific packages.

The index snapshot is a JSON candidate listing; see the snapshot documentation
for the format. Listings are cached between runs in a local database.
`

type lockCommand struct {
	snapshot string
	update   bool
	change   stringSlice
	dev      bool
	features stringSlice
	noCache  bool
}

type stringSlice []string

func (s *stringSlice) String() string {
	if len(*s) == 0 {
		return "<none>"
	}
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (cmd *lockCommand) Name() string { return "lock" }
func (cmd *lockCommand) Args() string {
	return "[-update] [-change <package>...] [-dev] [-features <name>...] -snapshot <file>"
}
func (cmd *lockCommand) ShortHelp() string { return lockShortHelp }
func (cmd *lockCommand) LongHelp() string  { return lockLongHelp }
func (cmd *lockCommand) Hidden() bool      { return false }

func (cmd *lockCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.snapshot, "snapshot", "", "path to the package index snapshot to resolve against")
	fs.BoolVar(&cmd.update, "update", false, "ignore locked versions and re-resolve everything")
	fs.Var(&cmd.change, "change", "re-resolve a specific package, ignoring its locked version (can be repeated)")
	fs.BoolVar(&cmd.dev, "dev", false, "include dev dependencies")
	fs.Var(&cmd.features, "features", "include an optional dependency group (can be repeated)")
	fs.BoolVar(&cmd.noCache, "no-cache", false, "bypass the candidate listing cache")
}

func (cmd *lockCommand) Run(ctx *openrye.Ctx, args []string) error {
	if cmd.snapshot == "" {
		return errors.New("the -snapshot flag is required")
	}

	p, err := ctx.LoadProject()
	if err != nil {
		return err
	}

	snap, err := openrye.ReadSnapshotFile(cmd.snapshot)
	if err != nil {
		return err
	}

	var provider pps.CandidateProvider = snap
	if !cmd.noCache && ctx.CacheDir != "" {
		if err := os.MkdirAll(ctx.CacheDir, 0777); err != nil {
			return errors.Wrap(err, "creating cache dir")
		}
		cache, err := pps.NewBoltCandidateCache(filepath.Join(ctx.CacheDir, "candidates.db"), snap, 24*time.Hour)
		if err != nil {
			return err
		}
		defer cache.Close()
		provider = cache
	}

	groups := pps.GroupSelection{Dev: cmd.dev, Optional: cmd.features}
	params, err := p.SolveParameters(groups)
	if err != nil {
		return err
	}
	params.ChangeAll = cmd.update
	for _, name := range cmd.change {
		params.ToChange = append(params.ToChange, pps.NormalizeName(name))
	}
	params.Logger = ctx.SolveLogger()

	solver, err := pps.Prepare(params, provider)
	if err != nil {
		return errors.Wrap(err, "could not set up the solve")
	}
	defer solver.Release()

	soln, err := solver.Solve(context.Background())
	if err != nil {
		return err
	}

	newLock := openrye.LockFromSolution(soln)
	sw := openrye.NewSafeWriter(p.Root, p.Lock, newLock)
	if !sw.HasWork() {
		ctx.Out.Printf("%s is already up to date\n", openrye.LockName)
		return nil
	}

	if err := sw.Write(); err != nil {
		return err
	}

	ctx.Out.Printf("wrote %s with %d packages (%d candidate checks)\n",
		openrye.LockName, len(newLock.P), soln.Attempts())
	return nil
}
