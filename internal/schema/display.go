package schema

import (
	"sort"
	"strings"

	"mds-backend/internal/metadata"
)

// ApplyFilterable marks exactly the named fields filterable.
func ApplyFilterable(s *metadata.Schema, names []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	for _, f := range s.Fields {
		f.UIFilterable = set[strings.ToLower(f.Name)]
	}
}

// ApplyDisplayPositions sets the displayable flag and position of every
// field. An empty map makes all fields displayable in their current order;
// otherwise only mapped fields are displayable and the rest lose their position.
func ApplyDisplayPositions(s *metadata.Schema, positions map[string]int64) {
	if len(positions) == 0 {
		for i, f := range s.Fields {
			p := int64(i)
			f.UIDisplayable = true
			f.UIDisplayPosition = &p
		}
		return
	}

	lower := make(map[string]int64, len(positions))
	for name, pos := range positions {
		lower[strings.ToLower(name)] = pos
	}
	for _, f := range s.Fields {
		pos, ok := lower[strings.ToLower(f.Name)]
		if !ok {
			f.UIDisplayable = false
			f.UIDisplayPosition = nil
			continue
		}
		f.UIDisplayable = true
		f.UIDisplayPosition = &pos
	}
}

// SortByDisplayPosition orders fields by display position. Fields without a
// position come first and ties keep their relative order.
func SortByDisplayPosition(fields []*metadata.Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i].UIDisplayPosition, fields[j].UIDisplayPosition
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return *a < *b
		}
	})
}

// DisplayableFields returns the fields flagged displayable, in display order.
func DisplayableFields(fields []*metadata.Field) []*metadata.Field {
	var out []*metadata.Field
	for _, f := range fields {
		if f.UIDisplayable {
			out = append(out, f)
		}
	}
	SortByDisplayPosition(out)
	return out
}
