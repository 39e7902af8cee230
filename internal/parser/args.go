package parser

import (
	"regexp"
	"strings"
)

var (
	namedArgRegex  = regexp.MustCompile(`^([a-zA-Z]+)\s*=\s*(?:"([^"]*)"|"?(.+))`)
	quotedArgRegex = regexp.MustCompile(`^"(.*)"$`)
)

// Arg is one argument of an action. An empty Name marks a positional
// argument, bound by Index against the declared parameter order.
type Arg struct {
	Name  string
	Value string
	Index int
}

// Args is the ordered argument list of an action.
type Args []Arg

// Named builds an argument list from name/value pairs, in order.
func Named(pairs ...string) Args {
	args := make(Args, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		args = append(args, Arg{Name: pairs[i], Value: pairs[i+1], Index: len(args)})
	}
	return args
}

// ParseArguments splits an argument string on top-level commas. Commas
// inside a double-quoted section do not split; a quote with no closing
// partner is kept as a literal character.
func ParseArguments(text string) Args {
	var args Args
	for i, item := range splitTopLevel(text) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		if m := namedArgRegex.FindStringSubmatchIndex(item); m != nil {
			name := item[m[2]:m[3]]
			switch {
			case m[6] >= 0:
				args = append(args, Arg{Name: name, Value: item[m[6]:m[7]], Index: i})
			case m[5] > m[4]:
				args = append(args, Arg{Name: name, Value: item[m[4]:m[5]], Index: i})
			}
			continue
		}

		value := item
		if q := quotedArgRegex.FindStringSubmatch(item); q != nil {
			value = q[1]
		}
		args = append(args, Arg{Value: value, Index: i})
	}
	return args
}

// splitTopLevel breaks text on commas that are not inside a closed quote.
// Empty runs between adjacent commas are dropped and do not take an index.
func splitTopLevel(text string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			if end := strings.IndexByte(text[i+1:], '"'); end >= 0 {
				i += end + 1
			}
		case ',':
			if i > start {
				parts = append(parts, text[start:i])
			}
			start = i + 1
		}
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

// Param declares one parameter of a command and its default value.
type Param struct {
	Name    string
	Default string
}

// Schema is the ordered parameter list of a command. Positional arguments
// bind by their index into this list.
type Schema []Param

// Params holds the resolved argument values of a command, keyed by the
// declared parameter names.
type Params map[string]string

// Assign resolves args against the schema. A named argument matches its
// parameter case-insensitively; a positional argument at index i fills the
// i-th parameter. A named argument always beats a positional one, and among
// several named arguments the last wins.
func (a Args) Assign(schema Schema) Params {
	params := make(Params, len(schema))
	for i, p := range schema {
		value := p.Default
		named := false
		for _, arg := range a {
			switch {
			case arg.Name != "" && strings.EqualFold(arg.Name, p.Name):
				value = arg.Value
				named = true
			case arg.Name == "" && arg.Index == i && !named:
				value = arg.Value
			}
		}
		params[p.Name] = value
	}
	return params
}

// Get returns the raw string value of a parameter.
func (p Params) Get(name string) string {
	return p[name]
}

// Float returns the leading number of a parameter, or 0.
func (p Params) Float(name string) float64 {
	return ParseFloat(p[name])
}

// Int returns the leading integer of a parameter, or 0.
func (p Params) Int(name string) int {
	return ParseInt(p[name])
}

// Bool reports whether a parameter is the literal "true", ignoring case.
func (p Params) Bool(name string) bool {
	return strings.EqualFold(strings.TrimSpace(p[name]), "true")
}
