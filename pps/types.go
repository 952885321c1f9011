package pps

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// PackageName is a normalized Python package name. Equality is defined on the
// normalized form.
type PackageName string

var nameSepRx = regexp.MustCompile(`[-_.]+`)

// NormalizeName case-folds a package name and collapses runs of `-`, `_` and
// `.` into a single `-`, per the registry normalization rules.
func NormalizeName(s string) PackageName {
	return PackageName(nameSepRx.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"))
}

// SourceType enumerates where a package's artifacts come from.
type SourceType uint8

const (
	// SourceIndex is a package index; URL empty means the default index.
	SourceIndex SourceType = iota
	// SourceGit is a git repository pinned to a revision.
	SourceGit
	// SourcePath is a local filesystem path.
	SourcePath
)

// Source identifies the origin of a package's candidates. The zero value is
// the default index.
type Source struct {
	Type SourceType
	URL  string // index or git URL
	Rev  string // git revision
	Path string // local path
}

// IsDefault reports whether s is the default package index.
func (s Source) IsDefault() bool {
	return s.Type == SourceIndex && s.URL == ""
}

func (s Source) Equal(o Source) bool {
	return s == o
}

func (s Source) String() string {
	switch s.Type {
	case SourceGit:
		if s.Rev != "" {
			return fmt.Sprintf("git+%s@%s", s.URL, s.Rev)
		}
		return "git+" + s.URL
	case SourcePath:
		return "path+" + s.Path
	default:
		if s.URL != "" {
			return "index+" + s.URL
		}
		return "index"
	}
}

// ParseSource is the inverse of Source.String, used when reading lock
// artifacts and cached metadata.
func ParseSource(s string) (Source, error) {
	switch {
	case s == "index" || s == "":
		return Source{}, nil
	case strings.HasPrefix(s, "index+"):
		return Source{Type: SourceIndex, URL: strings.TrimPrefix(s, "index+")}, nil
	case strings.HasPrefix(s, "git+"):
		body := strings.TrimPrefix(s, "git+")
		if at := strings.LastIndex(body, "@"); at > strings.LastIndex(body, "/") {
			return Source{Type: SourceGit, URL: body[:at], Rev: body[at+1:]}, nil
		}
		return Source{Type: SourceGit, URL: body}, nil
	case strings.HasPrefix(s, "path+"):
		return Source{Type: SourcePath, Path: strings.TrimPrefix(s, "path+")}, nil
	}
	return Source{}, errors.Errorf("unrecognized source %q", s)
}

// ProjectIdentifier fully identifies a package as the solver sees it: the
// normalized name plus the source its candidates are drawn from.
type ProjectIdentifier struct {
	Name   PackageName
	Source Source
}

// errString is the identifier form used in failure messages; the source is
// omitted when it is the default index.
func (id ProjectIdentifier) errString() string {
	if id.Source.IsDefault() {
		return string(id.Name)
	}
	return fmt.Sprintf("%s (from %s)", id.Name, id.Source)
}

// DependencyGroup names the group a requirement was declared under. The
// default group is the empty string.
type DependencyGroup string

const (
	GroupDefault DependencyGroup = ""
	GroupDev     DependencyGroup = "dev"
)

// Requirement is one declared dependency: a named package, the versions
// admitted for it, the source it must come from, optional extras, and the
// group it was declared under. Requirements are immutable once constructed.
type Requirement struct {
	Name       PackageName
	Constraint Constraint
	Source     Source
	Extras     []string
	Group      DependencyGroup
}

// atom is a specific (package, version, source) triple - the unit the solver
// selects.
type atom struct {
	id ProjectIdentifier
	v  Version
}

var nilpa = atom{}

// a2vs stringifies an atom for failure and trace output.
func a2vs(a atom) string {
	if a.v == nil {
		return a.id.errString()
	}
	return fmt.Sprintf("%s@%s", a.id.errString(), a.v)
}

// Dependency pairs a requirement with the depender that introduced it. For
// requirements declared at the workspace root, ViaMember carries the id of
// the declaring member.
type Dependency struct {
	Depender  atom
	ViaMember string
	Dep       Requirement
}

// describeDepender renders the origin of a Dependency for reports.
func (d Dependency) describeDepender() string {
	if d.ViaMember != "" {
		return d.ViaMember
	}
	return a2vs(d.Depender)
}

// Candidate is one installable version of a package together with the
// requirements it would introduce.
type Candidate struct {
	Version      Version
	Requirements []Requirement
}

// CandidateProvider is the metadata capability the solver runs against. For a
// fixed snapshot it must be deterministic: same (name, source), same ordered
// candidate metadata. Implementations are expected to be safe for concurrent
// use; the solver prefetches frontier packages concurrently.
type CandidateProvider interface {
	ListCandidates(ctx context.Context, name PackageName, source Source) ([]Candidate, error)
}
