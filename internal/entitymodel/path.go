package entitymodel

import (
	"cellenics/internal/table/core"
	"fmt"
	"strings"
)

// StepKind selects how one path step descends into a value.
type StepKind int

const (
	// StepField selects a named map field.
	StepField StepKind = iota
	// StepEach selects a named list (or set) field and then every element.
	StepEach
	// StepValues selects every value of the current map ("*").
	StepValues
	// StepKeys selects every key of the current map ("#"). Terminal only.
	StepKeys
)

// Step is one segment of a Path.
type Step struct {
	Kind StepKind
	Name string
}

// Path locates identifier values inside a record. Steps are dot separated:
// "name" selects a field, "name[]" every element of a list field, "*" every map
// value and a trailing "#" every map key.
type Path struct {
	raw   string
	steps []Step
}

// ParsePath parses the dotted path grammar.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("empty path")
	}
	parts := strings.Split(raw, ".")
	steps := make([]Step, 0, len(parts))
	for i, part := range parts {
		switch {
		case part == "*":
			steps = append(steps, Step{Kind: StepValues})
		case part == "#":
			if i != len(parts)-1 {
				return Path{}, fmt.Errorf("path %q: # must be the last step", raw)
			}
			if i == 0 {
				return Path{}, fmt.Errorf("path %q: # cannot select record fields", raw)
			}
			steps = append(steps, Step{Kind: StepKeys})
		case strings.HasSuffix(part, "[]"):
			name := strings.TrimSuffix(part, "[]")
			if !validName(name) {
				return Path{}, fmt.Errorf("path %q: bad list step %q", raw, part)
			}
			steps = append(steps, Step{Kind: StepEach, Name: name})
		default:
			if !validName(part) {
				return Path{}, fmt.Errorf("path %q: bad field step %q", raw, part)
			}
			steps = append(steps, Step{Kind: StepField, Name: part})
		}
	}
	return Path{raw: raw, steps: steps}, nil
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "[]*#")
}

// MustParsePath is ParsePath for static paths.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string { return p.raw }

// Steps returns a copy of the parsed steps.
func (p Path) Steps() []Step { return append([]Step(nil), p.steps...) }

// IsField reports whether p is a single top-level field named name.
func (p Path) IsField(name string) bool {
	return len(p.steps) == 1 && p.steps[0].Kind == StepField && p.steps[0].Name == name
}

// Collect returns every non-empty string found at p in rec, in walk order.
// Map values are visited in key order.
func (p Path) Collect(rec core.Record) []string {
	var out []string
	walk(map[string]any(rec), p.steps, func(s string) string {
		out = append(out, s)
		return s
	}, false)
	return out
}

// Apply replaces every non-empty string at p in rec with fn(s), in place.
// Missing fields, nil values and non-string values are left alone.
func (p Path) Apply(rec core.Record, fn func(string) string) {
	walk(map[string]any(rec), p.steps, fn, true)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case core.Record:
		return map[string]any(m), true
	}
	return nil, false
}

// walk visits the values selected by steps under v and returns the value that
// should replace v in its parent. Only a keys step produces a new value.
func walk(v any, steps []Step, fn func(string) string, write bool) any {
	if len(steps) == 0 {
		return leaf(v, fn, write)
	}
	step, rest := steps[0], steps[1:]
	switch step.Kind {
	case StepField:
		m, ok := asMap(v)
		if !ok {
			return v
		}
		child, ok := m[step.Name]
		if !ok || child == nil {
			return v
		}
		next := walk(child, rest, fn, write)
		if write {
			m[step.Name] = next
		}
		return v
	case StepEach:
		m, ok := asMap(v)
		if !ok {
			return v
		}
		child, ok := m[step.Name]
		if !ok || child == nil {
			return v
		}
		next := each(child, rest, fn, write)
		if write {
			m[step.Name] = next
		}
		return v
	case StepValues:
		m, ok := asMap(v)
		if !ok {
			return v
		}
		for _, k := range sortedKeys(m) {
			next := walk(m[k], rest, fn, write)
			if write {
				m[k] = next
			}
		}
		return v
	case StepKeys:
		m, ok := asMap(v)
		if !ok {
			return v
		}
		if !write {
			for _, k := range sortedKeys(m) {
				if k != "" {
					fn(k)
				}
			}
			return v
		}
		out := make(map[string]any, len(m))
		for k, e := range m {
			if k != "" {
				k = fn(k)
			}
			out[k] = e
		}
		if _, isRecord := v.(core.Record); isRecord {
			return core.Record(out)
		}
		return out
	}
	return v
}

func each(v any, rest []Step, fn func(string) string, write bool) any {
	switch list := v.(type) {
	case []any:
		for i, e := range list {
			next := walk(e, rest, fn, write)
			if write {
				list[i] = next
			}
		}
	case []string:
		if len(rest) > 0 {
			return v
		}
		for i, e := range list {
			if e == "" {
				continue
			}
			next := fn(e)
			if write {
				list[i] = next
			}
		}
	case core.StringSet:
		if len(rest) > 0 {
			return v
		}
		for i, e := range list {
			if e == "" {
				continue
			}
			next := fn(e)
			if write {
				list[i] = next
			}
		}
	}
	return v
}

func leaf(v any, fn func(string) string, write bool) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return v
		}
		return fn(t)
	case core.StringSet:
		for i, e := range t {
			if e == "" {
				continue
			}
			next := fn(e)
			if write {
				t[i] = next
			}
		}
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	return core.SortedFields(core.Record(m))
}
