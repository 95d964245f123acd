package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Path is a parsed patch path. Pattern is the normalized form with every
// index replaced by "#", and Indices holds those indices in order.
type Path struct {
	Raw     string
	Pattern string
	Indices []int
}

// ParsePath accepts dot and bracket notation interchangeably, so
// "settings.0.value" and "settings[0].value" parse to the same Path.
func ParsePath(raw string) (Path, error) {
	p := Path{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return p, fmt.Errorf("%w: empty path", ErrInvalidPatch)
	}

	var b strings.Builder
	for _, part := range strings.Split(s, ".") {
		name, idx, err := splitIndices(part)
		if err != nil {
			return p, fmt.Errorf("%w: path %q: %v", ErrInvalidPatch, raw, err)
		}
		if name != "" {
			if isDigits(name) {
				n, _ := strconv.Atoi(name)
				idx = append([]int{n}, idx...)
				name = ""
			} else {
				if b.Len() > 0 {
					b.WriteByte('.')
				}
				b.WriteString(name)
			}
		}
		if name == "" && b.Len() == 0 {
			return p, fmt.Errorf("%w: path %q starts with an index", ErrInvalidPatch, raw)
		}
		for _, n := range idx {
			b.WriteString("[#]")
			p.Indices = append(p.Indices, n)
		}
	}
	p.Pattern = b.String()
	return p, nil
}

// splitIndices splits "name[1][2]" into "name" and [1 2].
func splitIndices(part string) (string, []int, error) {
	if part == "" {
		return "", nil, fmt.Errorf("empty segment")
	}
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.IndexByte(part, ']') >= 0 {
			return "", nil, fmt.Errorf("unbalanced bracket in %q", part)
		}
		return part, nil, nil
	}
	name := part[:open]
	rest := part[open:]
	var idx []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("unexpected %q", rest)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, fmt.Errorf("unbalanced bracket in %q", part)
		}
		digits := rest[1:end]
		if !isDigits(digits) {
			return "", nil, fmt.Errorf("bad index %q", digits)
		}
		n, _ := strconv.Atoi(digits)
		idx = append(idx, n)
		rest = rest[end+1:]
	}
	return name, idx, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
