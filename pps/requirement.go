package pps

import (
	"fmt"
	"strings"
)

// ParseRequirement parses a single declared dependency in the subset of the
// requirement grammar the manifest uses:
//
//	flask
//	flask>=2.0,<3.0
//	flask[dotenv,async]~=2.0
//	sqlalchemy @ git+https://github.com/sqlalchemy/sqlalchemy@rel_1_4_46
//	mylib @ file:../mylib
//
// The resulting Requirement is in the default group; loaders re-tag group
// membership.
func ParseRequirement(s string) (Requirement, error) {
	full := strings.TrimSpace(s)
	if full == "" {
		return Requirement{}, &MalformedConstraintError{Expr: s, Reason: "empty requirement"}
	}

	namePart := full
	var source Source
	var haveSource bool
	if idx := strings.Index(full, " @ "); idx >= 0 {
		namePart = strings.TrimSpace(full[:idx])
		var err error
		source, err = parseRequirementSource(full, strings.TrimSpace(full[idx+3:]))
		if err != nil {
			return Requirement{}, err
		}
		haveSource = true
	}

	name, extras, constraintExpr, err := splitNameExtras(full, namePart)
	if err != nil {
		return Requirement{}, err
	}

	if haveSource && constraintExpr != "" {
		return Requirement{}, &MalformedConstraintError{Expr: full, Reason: "a requirement with a direct source cannot also carry version constraints"}
	}

	c, err := ParseConstraint(constraintExpr)
	if err != nil {
		return Requirement{}, err
	}

	return Requirement{
		Name:       NormalizeName(name),
		Constraint: c,
		Source:     source,
		Extras:     extras,
	}, nil
}

func parseRequirementSource(full, s string) (Source, error) {
	switch {
	case strings.HasPrefix(s, "git+"):
		body := strings.TrimPrefix(s, "git+")
		src := Source{Type: SourceGit, URL: body}
		// A revision is the fragment after the last @ that follows the
		// path portion; an @ inside the user-info part ("git@host") is not
		// a rev separator.
		if at := strings.LastIndex(body, "@"); at > strings.LastIndex(body, "/") {
			src.URL, src.Rev = body[:at], body[at+1:]
		}
		if src.URL == "" {
			return Source{}, &MalformedConstraintError{Expr: full, Reason: "git source has no URL"}
		}
		return src, nil
	case strings.HasPrefix(s, "file:"):
		p := strings.TrimPrefix(s, "file:")
		p = strings.TrimPrefix(p, "//")
		if p == "" {
			return Source{}, &MalformedConstraintError{Expr: full, Reason: "file source has no path"}
		}
		return Source{Type: SourcePath, Path: p}, nil
	case strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "/"):
		return Source{Type: SourcePath, Path: s}, nil
	case strings.HasPrefix(s, "path+") || strings.HasPrefix(s, "index+"):
		// Round-trip form produced by Source.String.
		return ParseSource(s)
	}
	return Source{}, &MalformedConstraintError{Expr: full, Reason: fmt.Sprintf("unrecognized direct source %q", s)}
}

// splitNameExtras carves "name[extras]<constraints>" into its parts.
func splitNameExtras(full, s string) (name string, extras []string, constraintExpr string, err error) {
	isNameByte := func(b byte) bool {
		return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' ||
			b >= '0' && b <= '9' || b == '-' || b == '_' || b == '.'
	}

	i := 0
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == 0 {
		return "", nil, "", &MalformedConstraintError{Expr: full, Reason: "requirement has no package name"}
	}
	name, s = s[:i], s[i:]

	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return "", nil, "", &MalformedConstraintError{Expr: full, Reason: "unterminated extras list"}
		}
		for _, e := range strings.Split(s[1:end], ",") {
			e = strings.TrimSpace(e)
			if e == "" {
				return "", nil, "", &MalformedConstraintError{Expr: full, Reason: "empty extra name"}
			}
			extras = append(extras, string(NormalizeName(e)))
		}
		s = s[end+1:]
	}

	return name, extras, strings.TrimSpace(s), nil
}

// String renders the requirement back into the grammar ParseRequirement
// accepts, which the candidate cache relies on for round-tripping.
func (r Requirement) String() string {
	var sb strings.Builder
	sb.WriteString(string(r.Name))
	if len(r.Extras) > 0 {
		sb.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if !r.Source.IsDefault() {
		sb.WriteString(" @ " + r.Source.String())
		return sb.String()
	}
	sb.WriteString(constraintExpr(r.Constraint))
	return sb.String()
}

// constraintExpr renders a constraint as specifier clauses; the unbounded
// constraint renders empty.
func constraintExpr(c Constraint) string {
	switch tc := c.(type) {
	case nil:
		return ""
	case anyConstraint:
		return ""
	case Version:
		return "==" + tc.String()
	default:
		return c.String()
	}
}
