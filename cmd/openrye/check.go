package main

import (
	"flag"
	"io/ioutil"
	"log"

	"github.com/pkg/errors"

	"github.com/armyknife-tools/openrye"
	"github.com/armyknife-tools/openrye/pps"
)

const checkShortHelp = `Check whether rye.lock is in sync with pyproject.toml`
const checkLongHelp = `
Check recomputes the digest of the workspace's requirements and compares it
against the digest recorded in rye.lock. If they differ, the lock is stale
and the command exits 1. Passing -q suppresses output.

The check needs no index access: it only inspects manifests and the lock.
`

type checkCommand struct {
	quiet    bool
	dev      bool
	features stringSlice
}

func (cmd *checkCommand) Name() string { return "check" }
func (cmd *checkCommand) Args() string {
	return "[-q] [-dev] [-features <name>...]"
}
func (cmd *checkCommand) ShortHelp() string { return checkShortHelp }
func (cmd *checkCommand) LongHelp() string  { return checkLongHelp }
func (cmd *checkCommand) Hidden() bool      { return false }

func (cmd *checkCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.quiet, "q", false, "suppress non-error output")
	fs.BoolVar(&cmd.dev, "dev", false, "include dev dependencies")
	fs.Var(&cmd.features, "features", "include an optional dependency group (can be repeated)")
}

// silentfail is an error with no message, for when the output already says
// everything and only the exit code is left to deliver.
type silentfail struct{}

func (silentfail) Error() string { return "" }

func (cmd *checkCommand) Run(ctx *openrye.Ctx, args []string) error {
	logger := ctx.Out
	if cmd.quiet {
		logger = log.New(ioutil.Discard, "", 0)
	}

	p, err := ctx.LoadProject()
	if err != nil {
		return err
	}

	if p.Lock == nil {
		return errors.Errorf("%s does not exist, cannot check it against %s", openrye.LockName, openrye.ManifestName)
	}

	groups := pps.GroupSelection{Dev: cmd.dev, Optional: cmd.features}
	overrides, err := p.Manifest.Overrides()
	if err != nil {
		return err
	}

	digest, err := pps.HashWorkspaceInputs(p.Members, groups, overrides)
	if err != nil {
		return err
	}

	if p.Lock.Stale(digest) {
		logger.Printf("# %s is out of sync with %s\n", openrye.LockName, openrye.ManifestName)
		return silentfail{}
	}

	logger.Printf("%s is in sync\n", openrye.LockName)
	return nil
}
