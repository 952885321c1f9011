package openrye

import (
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Ctx defines the environment one invocation runs in: where it was invoked,
// where the candidate cache lives, and where output goes.
type Ctx struct {
	WorkingDir string
	CacheDir   string
	Out, Err   *log.Logger
	Verbose    bool
}

// LoadProject locates and loads the project containing the working
// directory.
func (c *Ctx) LoadProject() (*Project, error) {
	root, err := FindProjectRoot(c.WorkingDir)
	if err != nil {
		return nil, err
	}
	return LoadProject(root)
}

// SolveLogger builds the structured logger handed to the solver. Verbose
// turns on per-step trace output.
func (c *Ctx) SolveLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	if c.Verbose {
		l.Level = logrus.DebugLevel
	} else {
		l.Level = logrus.WarnLevel
	}
	return l
}

// ValidateParams reports whether the context is usable.
func (c *Ctx) ValidateParams() error {
	if c.WorkingDir == "" {
		return errors.New("context has no working directory")
	}
	return nil
}
