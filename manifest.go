package openrye

import (
	"io"

	toml "github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/armyknife-tools/openrye/pps"
)

// ManifestName is the manifest file name used on disk.
const ManifestName = "pyproject.toml"

// Manifest holds the parts of a pyproject file that matter for resolution:
// the project's declared dependencies in all their groups, workspace member
// patterns, and source routing.
type Manifest struct {
	Name string

	// Requirements is every declared dependency, tagged with its group.
	Requirements []pps.Requirement

	// WorkspaceMembers are the glob patterns from [tool.rye.workspace],
	// empty for a single-project manifest.
	WorkspaceMembers []string

	// Sources are the alternate source routes declared in
	// [[tool.rye.sources]].
	Sources []SourceRoute
}

// SourceRoute is one [[tool.rye.sources]] entry: packages whose normalized
// name starts with Prefix are fetched from the configured source instead of
// the default index.
type SourceRoute struct {
	Name   string
	Prefix string
	URL    string
	Type   string
}

// Member renders the manifest as a workspace member for resolution.
func (m *Manifest) Member() pps.WorkspaceMember {
	return pps.WorkspaceMember{
		ID:           m.Name,
		Requirements: m.Requirements,
	}
}

// Overrides builds the source routing table from the manifest's source
// entries.
func (m *Manifest) Overrides() (*pps.SourceOverrides, error) {
	if len(m.Sources) == 0 {
		return nil, nil
	}

	so := pps.NewSourceOverrides()
	for _, sr := range m.Sources {
		if sr.Prefix == "" {
			continue
		}
		var src pps.Source
		switch sr.Type {
		case "", "index":
			src = pps.Source{Type: pps.SourceIndex, URL: sr.URL}
		case "git":
			src = pps.Source{Type: pps.SourceGit, URL: sr.URL}
		case "path":
			src = pps.Source{Type: pps.SourcePath, Path: sr.URL}
		default:
			return nil, errors.Errorf("unknown source type %q for source %q", sr.Type, sr.Name)
		}
		so.Add(sr.Prefix, src)
	}
	return so, nil
}

type tomlMapper struct {
	Tree  *toml.Tree
	Error error
}

func readManifest(r io.Reader) (*Manifest, error) {
	tree, err := toml.LoadReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse the manifest as TOML")
	}

	mapper := &tomlMapper{Tree: tree}
	m := &Manifest{
		Name:             readKeyAsString(mapper, "project.name"),
		WorkspaceMembers: readKeyAsStringList(mapper, "tool.rye.workspace.members"),
		Sources:          readSources(mapper),
	}

	for _, dep := range readKeyAsStringList(mapper, "project.dependencies") {
		appendRequirement(mapper, m, dep, pps.GroupDefault)
	}
	for _, dep := range readKeyAsStringList(mapper, "tool.rye.dev-dependencies") {
		appendRequirement(mapper, m, dep, pps.GroupDev)
	}
	readOptionalDependencies(mapper, m)

	if mapper.Error != nil {
		return nil, mapper.Error
	}
	if m.Name == "" {
		return nil, errors.New("manifest has no project.name")
	}
	return m, nil
}

func appendRequirement(mapper *tomlMapper, m *Manifest, dep string, group pps.DependencyGroup) {
	if mapper.Error != nil {
		return
	}
	req, err := pps.ParseRequirement(dep)
	if err != nil {
		mapper.Error = errors.Wrapf(err, "invalid requirement %q", dep)
		return
	}
	req.Group = group
	m.Requirements = append(m.Requirements, req)
}

// readOptionalDependencies maps each [project.optional-dependencies] table
// entry onto a named dependency group.
func readOptionalDependencies(mapper *tomlMapper, m *Manifest) {
	if mapper.Error != nil {
		return
	}

	raw := mapper.Tree.Get("project.optional-dependencies")
	if raw == nil {
		return
	}
	tbl, ok := raw.(*toml.Tree)
	if !ok {
		mapper.Error = errors.Errorf("invalid type for [project.optional-dependencies], should be a table but got %T", raw)
		return
	}

	for _, group := range tbl.Keys() {
		sub := &tomlMapper{Tree: tbl}
		for _, dep := range readKeyAsStringList(sub, group) {
			appendRequirement(sub, m, dep, pps.DependencyGroup(pps.NormalizeName(group)))
		}
		if sub.Error != nil {
			mapper.Error = sub.Error
			return
		}
	}
}

func readSources(mapper *tomlMapper) []SourceRoute {
	if mapper.Error != nil {
		return nil
	}

	raw := mapper.Tree.Get("tool.rye.sources")
	if raw == nil {
		return nil
	}
	tables, ok := raw.([]*toml.Tree)
	if !ok {
		mapper.Error = errors.Errorf("invalid type for [[tool.rye.sources]], should be a TOML array of tables but got %T", raw)
		return nil
	}

	sub := &tomlMapper{}
	routes := make([]SourceRoute, len(tables))
	for i, t := range tables {
		sub.Tree = t
		routes[i] = SourceRoute{
			Name:   readKeyAsString(sub, "name"),
			Prefix: readKeyAsString(sub, "prefix"),
			URL:    readKeyAsString(sub, "url"),
			Type:   readKeyAsString(sub, "type"),
		}
	}

	if sub.Error != nil {
		mapper.Error = sub.Error
		return nil
	}
	return routes
}

func readKeyAsString(mapper *tomlMapper, key string) string {
	if mapper.Error != nil {
		return ""
	}

	raw := mapper.Tree.Get(key)
	if raw == nil {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		mapper.Error = errors.Errorf("invalid type for %s, should be a string but got %T", key, raw)
		return ""
	}
	return value
}

func readKeyAsStringList(mapper *tomlMapper, key string) []string {
	if mapper.Error != nil {
		return nil
	}

	raw := mapper.Tree.Get(key)
	if raw == nil {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		mapper.Error = errors.Errorf("invalid type for %s, should be a TOML list but got %T", key, raw)
		return nil
	}

	results := make([]string, len(list))
	for i := range list {
		s, ok := list[i].(string)
		if !ok {
			mapper.Error = errors.Errorf("invalid item type in %s, should be a list of strings but got %T", key, list[i])
			return nil
		}
		results[i] = s
	}
	return results
}
