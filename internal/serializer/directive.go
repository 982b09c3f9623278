package serializer

import (
	"sort"
	"strings"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/schema"
)

// ExpandSpec names the relations whose data is embedded. Full relations are
// embedded with every attribute; Partial relations with only the listed
// fields (plus the primary key). A relation is in at most one of the two.
type ExpandSpec struct {
	Full    map[string]bool
	Partial map[string][]string
}

// ParseExpand parses "author,comments.body,comments.id".
func ParseExpand(raw string) (ExpandSpec, error) {
	spec := ExpandSpec{Full: map[string]bool{}, Partial: map[string][]string{}}
	if strings.TrimSpace(raw) == "" {
		return spec, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return ExpandSpec{}, apierr.NewParseError("empty entry in expand %q", raw).WithField("expand")
		}
		rel, field, partial := strings.Cut(part, ".")
		if !partial {
			spec.Full[rel] = true
			continue
		}
		if strings.Contains(field, ".") {
			return ExpandSpec{}, apierr.NewParseError("expand %q nests deeper than one relation", part).WithField("expand")
		}
		spec.Partial[rel] = append(spec.Partial[rel], field)
	}
	for rel := range spec.Full {
		if _, ok := spec.Partial[rel]; ok {
			return ExpandSpec{}, apierr.NewParseError("relation %q is expanded both fully and partially", rel).WithField("expand")
		}
	}
	return spec, nil
}

// Expanded reports whether rel is embedded, and with which field subset
// (nil for all fields).
func (e ExpandSpec) Expanded(rel string) (bool, []string) {
	if e.Full[rel] {
		return true, nil
	}
	if fields, ok := e.Partial[rel]; ok {
		return true, fields
	}
	return false, nil
}

// Relations returns every expanded relation name, sorted.
func (e ExpandSpec) Relations() []string {
	names := make([]string, 0, len(e.Full)+len(e.Partial))
	for rel := range e.Full {
		names = append(names, rel)
	}
	for rel := range e.Partial {
		names = append(names, rel)
	}
	sort.Strings(names)
	return names
}

// String renders the spec in the form accepted by ParseExpand.
func (e ExpandSpec) String() string {
	var parts []string
	for _, rel := range e.Relations() {
		if fields, ok := e.Partial[rel]; ok {
			for _, f := range fields {
				parts = append(parts, rel+"."+f)
			}
			continue
		}
		parts = append(parts, rel)
	}
	return strings.Join(parts, ",")
}

// Directive controls which attributes and relations a document carries.
// Include and Exclude are mutually exclusive.
type Directive struct {
	Include []string
	Exclude []string
	Expand  ExpandSpec
}

// Check validates d against model: include/exclude exclusivity, field names,
// expanded relation names and the field names of partial expansions. Only
// rendered attributes may be named; foreign-key fields are reported as
// unknown since their relationship carries them.
func (d Directive) Check(model *schema.Model) error {
	if len(d.Include) > 0 && len(d.Exclude) > 0 {
		return apierr.NewParseError("fields and exclude cannot be combined").WithField("fields")
	}
	for _, name := range append(append([]string(nil), d.Include...), d.Exclude...) {
		if !rendered(model, name) {
			return apierr.NewUnknownField(model.Name, name)
		}
	}
	for _, name := range d.Expand.Relations() {
		rel, err := model.Relation(name)
		if err != nil {
			return err
		}
		for _, f := range d.Expand.Partial[name] {
			if !rendered(rel.Target, f) {
				return apierr.NewUnknownField(rel.Target.Name, name+"."+f)
			}
		}
	}
	return nil
}

// rendered reports whether name is an attribute of model's documents.
func rendered(model *schema.Model, name string) bool {
	f, err := model.Field(name)
	return err == nil && !f.ForeignKey
}

// fields returns the attribute fields of model selected by d. With an
// include list the primary key is always kept.
func (d Directive) fields(model *schema.Model) []*schema.Field {
	all := model.ScalarFields()
	switch {
	case len(d.Include) > 0:
		keep := setOf(d.Include)
		out := make([]*schema.Field, 0, len(keep))
		for _, f := range all {
			if keep[f.Name] || model.IsPrimaryKey(f.Name) {
				out = append(out, f)
			}
		}
		return out
	case len(d.Exclude) > 0:
		drop := setOf(d.Exclude)
		out := make([]*schema.Field, 0, len(all))
		for _, f := range all {
			if !drop[f.Name] {
				out = append(out, f)
			}
		}
		return out
	}
	return all
}

func setOf(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
