package query

import (
	"slices"
	"sort"
	"strings"

	"github.com/poiesic/tuplerepo/mapping"
)

const (
	derivedPrefix = "FindBy"
	proxySuffix   = "Proxy"
	conjunction   = "And"
)

// operatorWords lists the operator spellings, longest first so that
// GreaterThanEqual is preferred over GreaterThan. The empty word is
// plain equality.
var operatorWords = []struct {
	word string
	op   Operator
}{
	{"GreaterThenEqual", OpGreaterThanEqual},
	{"GreaterThanEqual", OpGreaterThanEqual},
	{"LessThenEqual", OpLessThanEqual},
	{"LessThanEqual", OpLessThanEqual},
	{"GreaterThen", OpGreaterThan},
	{"GreaterThan", OpGreaterThan},
	{"LessThen", OpLessThan},
	{"LessThan", OpLessThan},
	{"Equals", OpEquals},
	{"Not", OpNot},
	{"Is", OpEquals},
	{"", OpEquals},
}

// ParseDerived parses FindBy<Field>[<Op>](And<Field>[<Op>])*[Proxy] against
// the fields of meta. Field names match the Go name, the tuple name or the
// tuple name without underscores, ignoring case. Longer names are tried
// first and the parser backtracks when a longer choice leaves an unparsable
// rest.
func ParseDerived(name string, meta *mapping.EntityMetadata) (Template, bool) {
	body, ok := strings.CutPrefix(name, derivedPrefix)
	if !ok || body == "" {
		return nil, false
	}
	if trimmed, ok := strings.CutSuffix(body, proxySuffix); ok && trimmed != "" {
		if t, ok := parseClauses(trimmed, fieldNames(meta)); ok {
			return number(t), true
		}
	}
	t, ok := parseClauses(body, fieldNames(meta))
	if !ok {
		return nil, false
	}
	return number(t), true
}

type fieldName struct {
	name  string
	field mapping.FieldDescriptor
}

func fieldNames(meta *mapping.EntityMetadata) []fieldName {
	var names []fieldName
	for _, f := range meta.Fields {
		seen := []string{}
		for _, n := range []string{f.GoName, f.Name, strings.ReplaceAll(f.Name, "_", "")} {
			if slices.ContainsFunc(seen, func(s string) bool { return strings.EqualFold(s, n) }) {
				continue
			}
			seen = append(seen, n)
			names = append(names, fieldName{n, f})
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return len(names[i].name) > len(names[j].name)
	})
	return names
}

func parseClauses(s string, names []fieldName) (Template, bool) {
	for _, fn := range names {
		if len(s) < len(fn.name) || !strings.EqualFold(s[:len(fn.name)], fn.name) {
			continue
		}
		rest := s[len(fn.name):]
		for _, ow := range operatorWords {
			after, ok := strings.CutPrefix(rest, ow.word)
			if !ok {
				continue
			}
			clause := Clause{Field: fn.field, Op: ow.op}
			if after == "" {
				return Template{clause}, true
			}
			if next, ok := strings.CutPrefix(after, conjunction); ok {
				if tail, ok := parseClauses(next, names); ok {
					return append(Template{clause}, tail...), true
				}
			}
		}
	}
	return nil, false
}

func number(t Template) Template {
	for i := range t {
		t[i].Param = i
	}
	return t
}
