package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Un filtro es una conjunción de comparaciones unidas por "&&":
//
//	data.totalAmount >= 100 && source == "checkout"
//
// Las rutas son accesos con puntos dentro del evento. Los literales son strings
// entre comillas, números, true, false o null.

var (
	errEmptyClause = errors.New("empty clause")
	pathPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)
	filterOps      = []string{"==", "!=", ">=", "<=", ">", "<"}
)

type Condition struct {
	Path  []string
	Op    string
	Value interface{} // string, float64, bool or nil
}

type Filter struct {
	Conditions []Condition
}

// ParseFilter compila expr. Una expresión vacía lo acepta todo.
func ParseFilter(expr string) (Filter, error) {
	var f Filter
	if strings.TrimSpace(expr) == "" {
		return f, nil
	}
	for _, clause := range splitOutsideQuotes(expr, "&&") {
		c, err := parseClause(strings.TrimSpace(clause))
		if err != nil {
			return Filter{}, fmt.Errorf("invalid filter %q: %w", expr, err)
		}
		f.Conditions = append(f.Conditions, c)
	}
	return f, nil
}

// Match indica si msg cumple todas las condiciones.
func (f Filter) Match(msg EventMessage) bool {
	if len(f.Conditions) == 0 {
		return true
	}
	tree := msg.fields()
	for _, c := range f.Conditions {
		if !c.holds(lookup(tree, c.Path)) {
			return false
		}
	}
	return true
}

func parseClause(clause string) (Condition, error) {
	if clause == "" {
		return Condition{}, errEmptyClause
	}
	idx, op := findOperator(clause)
	if idx < 0 {
		return Condition{}, fmt.Errorf("no comparison operator in %q", clause)
	}
	path := strings.TrimSpace(clause[:idx])
	if !pathPattern.MatchString(path) {
		return Condition{}, fmt.Errorf("invalid path %q", path)
	}
	value, err := parseLiteral(strings.TrimSpace(clause[idx+len(op):]))
	if err != nil {
		return Condition{}, err
	}
	if !orderable(value) && op != "==" && op != "!=" {
		return Condition{}, fmt.Errorf("operator %s needs a number or string", op)
	}
	return Condition{Path: strings.Split(path, "."), Op: op, Value: value}, nil
}

func findOperator(clause string) (int, string) {
	inQuote := rune(0)
	for i, r := range clause {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '"' || r == '\'':
			inQuote = r
		default:
			for _, op := range filterOps {
				if strings.HasPrefix(clause[i:], op) {
					return i, op
				}
			}
		}
	}
	return -1, ""
}

func parseLiteral(raw string) (interface{}, error) {
	switch {
	case raw == "":
		return nil, errors.New("missing literal")
	case raw == "null":
		return nil, nil
	case raw == "true":
		return true, nil
	case raw == "false":
		return false, nil
	case len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'':
		return raw[1 : len(raw)-1], nil
	case raw[0] == '"':
		s, err := strconv.Unquote(raw)
		if err != nil {
			return nil, fmt.Errorf("bad string literal %s", raw)
		}
		return s, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("bad literal %s", raw)
	}
	return n, nil
}

func splitOutsideQuotes(s, sep string) []string {
	var parts []string
	inQuote := rune(0)
	start := 0
	for i, r := range s {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			}
		case r == '"' || r == '\'':
			inQuote = r
		case strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			start = i + len(sep)
		}
	}
	return append(parts, s[start:])
}

func lookup(tree map[string]interface{}, path []string) interface{} {
	var cur interface{} = tree
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func (c Condition) holds(actual interface{}) bool {
	switch c.Op {
	case "==":
		return equal(actual, c.Value)
	case "!=":
		return !equal(actual, c.Value)
	}

	if want, ok := c.Value.(float64); ok {
		got, ok := toFloat(actual)
		if !ok {
			return false
		}
		return compare(c.Op, cmpFloat(got, want))
	}
	want := c.Value.(string)
	got, ok := actual.(string)
	if !ok {
		return false
	}
	return compare(c.Op, strings.Compare(got, want))
}

func equal(actual, want interface{}) bool {
	if want == nil {
		return actual == nil
	}
	if w, ok := want.(float64); ok {
		got, ok := toFloat(actual)
		return ok && got == w
	}
	return actual == want
}

func compare(op string, cmp int) bool {
	switch op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func orderable(v interface{}) bool {
	switch v.(type) {
	case float64, string:
		return true
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
