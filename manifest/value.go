package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/bcap/stepper/chain"
)

// valueFunc computes a value out of the accumulator. It backs both pure step
// functions and effect step inputs
type valueFunc func(chain.Accumulator) (any, error)

var templateFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// fieldTemplate matches templates made of a single field action, such as
// "{{ .org.id }}"
var fieldTemplate = regexp.MustCompile(`^\{\{-?\s*\.([\w]+(?:\.[\w]+)*)\s*-?\}\}$`)

// compileTemplate parses a text/template rendered against the accumulator.
// Referencing a missing field is an error at render time.
//
// A template that is a single field action yields the field value itself, so
// numbers, records and lists keep their type. Any other template renders to a
// string, with whole numbers printed without exponent
func compileTemplate(text string) (valueFunc, error) {
	if !strings.Contains(text, "{{") {
		return func(chain.Accumulator) (any, error) { return text, nil }, nil
	}
	if match := fieldTemplate.FindStringSubmatch(strings.TrimSpace(text)); match != nil {
		return compilePath(match[1])
	}
	tmpl, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", text, err)
	}
	return func(acc chain.Accumulator) (any, error) {
		var buf strings.Builder
		if err := tmpl.Execute(&buf, printable(map[string]any(acc))); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}, nil
}

// printable copies records and lists, replacing whole float64 values (as
// decoded from JSON) by int64 so templates print 1234567 rather than
// 1.234567e+06
func printable(value any) any {
	switch v := value.(type) {
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v)
		}
		return v
	case map[string]any:
		record := make(map[string]any, len(v))
		for key, field := range v {
			record[key] = printable(field)
		}
		return record
	case chain.Accumulator:
		return printable(map[string]any(v))
	case []any:
		list := make([]any, len(v))
		for idx, elem := range v {
			list[idx] = printable(elem)
		}
		return list
	default:
		return v
	}
}

// compilePath selects a value by a dotted path such as "org.id" or "items.0".
// Record fields are looked up by name, list elements by index
func compilePath(path string) (valueFunc, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty path")
	}
	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("invalid path %q", path)
		}
	}
	return func(acc chain.Accumulator) (any, error) {
		return lookup(map[string]any(acc), path, segments)
	}, nil
}

func lookup(value any, path string, segments []string) (any, error) {
	for idx, segment := range segments {
		switch v := value.(type) {
		case map[string]any:
			field, ok := v[segment]
			if !ok {
				return nil, fmt.Errorf("path %q: field %q not found", path, strings.Join(segments[:idx+1], "."))
			}
			value = field
		case chain.Accumulator:
			field, ok := v[segment]
			if !ok {
				return nil, fmt.Errorf("path %q: field %q not found", path, strings.Join(segments[:idx+1], "."))
			}
			value = field
		case []any:
			elemIdx, err := strconv.Atoi(segment)
			if err != nil || elemIdx < 0 || elemIdx >= len(v) {
				return nil, fmt.Errorf("path %q: invalid index %q for list of %d elements", path, segment, len(v))
			}
			value = v[elemIdx]
		default:
			return nil, fmt.Errorf("path %q: cannot select %q from a %T", path, segment, value)
		}
	}
	return value, nil
}

// compileTree compiles a value tree: string leaves are templates, records and
// lists are walked recursively and any other leaf is a constant
func compileTree(tree any) (valueFunc, error) {
	switch v := tree.(type) {
	case string:
		return compileTemplate(v)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fields := make([]valueFunc, len(keys))
		for idx, key := range keys {
			field, err := compileTree(v[key])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			fields[idx] = field
		}
		return func(acc chain.Accumulator) (any, error) {
			record := make(map[string]any, len(keys))
			for idx, key := range keys {
				value, err := fields[idx](acc)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				record[key] = value
			}
			return record, nil
		}, nil
	case []any:
		elems := make([]valueFunc, len(v))
		for idx, elem := range v {
			compiled, err := compileTree(elem)
			if err != nil {
				return nil, fmt.Errorf("%d: %w", idx, err)
			}
			elems[idx] = compiled
		}
		return func(acc chain.Accumulator) (any, error) {
			list := make([]any, len(elems))
			for idx, elem := range elems {
				value, err := elem(acc)
				if err != nil {
					return nil, fmt.Errorf("%d: %w", idx, err)
				}
				list[idx] = value
			}
			return list, nil
		}, nil
	default:
		return func(chain.Accumulator) (any, error) { return v, nil }, nil
	}
}
