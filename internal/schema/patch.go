package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mds-backend/internal/metadata"
)

// patchTarget is what a patch handler works on. Field and Type are only
// set for field patches; Type may be nil when the field's type is unknown.
type patchTarget struct {
	schema *metadata.Schema
	field  *metadata.Field
	typ    *metadata.Type
	idx    []int
}

type patchFunc func(t patchTarget, value []any) error

var fieldPatches = map[string]patchFunc{
	"basic.displayName": func(t patchTarget, v []any) error {
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		t.field.DisplayName = s
		return nil
	},
	"basic.name": func(t patchTarget, v []any) error {
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("%w: field name cannot be empty", ErrInvalidPatch)
		}
		if other := t.schema.GetField(s); other != nil && other.ID != t.field.ID {
			return fmt.Errorf("%w: field %s already exists", ErrInvalidPatch, s)
		}
		t.field.Name = s
		return nil
	},
	"basic.required": func(t patchTarget, v []any) error {
		b, err := boolArg(v)
		if err != nil {
			return err
		}
		t.field.Required = b
		return nil
	},
	"basic.defaultValue": func(t patchTarget, v []any) error {
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		t.field.DefaultValue = s
		return nil
	},
	"basic.tooltip": func(t patchTarget, v []any) error {
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		t.field.Tooltip = s
		return nil
	},
	"settings[#].value": func(t patchTarget, v []any) error {
		i := t.idx[0]
		if i >= len(t.field.Settings) {
			return indexError("settings", i)
		}
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		if t.typ != nil {
			if tmpl := t.typ.Setting(t.field.Settings[i].Name); tmpl != nil {
				if err := tmpl.Check(s); err != nil {
					return err
				}
			}
		}
		t.field.Settings[i].Value = s
		return nil
	},
	"validation.criteria[#].enabled": func(t patchTarget, v []any) error {
		i := t.idx[0]
		if i >= len(t.field.Validations) {
			return indexError("validation.criteria", i)
		}
		b, err := boolArg(v)
		if err != nil {
			return err
		}
		t.field.Validations[i].Enabled = b
		return nil
	},
	"validation.criteria[#].value": func(t patchTarget, v []any) error {
		i := t.idx[0]
		if i >= len(t.field.Validations) {
			return indexError("validation.criteria", i)
		}
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		t.field.Validations[i].Value = s
		return nil
	},
	"metadata[#].key": func(t patchTarget, v []any) error {
		m, err := metadataAt(t.field, t.idx[0])
		if err != nil {
			return err
		}
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		m.Key = s
		return nil
	},
	"metadata[#].value": func(t patchTarget, v []any) error {
		m, err := metadataAt(t.field, t.idx[0])
		if err != nil {
			return err
		}
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		m.Value = s
		return nil
	},
	"uiFilterable": func(t patchTarget, v []any) error {
		b, err := boolArg(v)
		if err != nil {
			return err
		}
		t.field.UIFilterable = b
		return nil
	},
	"uiDisplayable": func(t patchTarget, v []any) error {
		b, err := boolArg(v)
		if err != nil {
			return err
		}
		t.field.UIDisplayable = b
		if !b {
			t.field.UIDisplayPosition = nil
		}
		return nil
	},
}

var advancedPatches = map[string]patchFunc{
	"tracking.allowCreate": boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.Tracking.AllowCreate }),
	"tracking.allowRead":   boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.Tracking.AllowRead }),
	"tracking.allowUpdate": boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.Tracking.AllowUpdate }),
	"tracking.allowDelete": boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.Tracking.AllowDelete }),
	"tracking.auditing":    boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.Tracking.Auditing }),
	"restOptions.create":   boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.RestOptions.Create }),
	"restOptions.read":     boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.RestOptions.Read }),
	"restOptions.update":   boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.RestOptions.Update }),
	"restOptions.delete":   boolPatch(func(a *metadata.AdvancedSettings) *bool { return &a.RestOptions.Delete }),
	"restOptions.fieldNames": func(t patchTarget, v []any) error {
		names, err := listArg(v)
		if err != nil {
			return err
		}
		if _, err := fieldIDs(t.schema.Fields, names); err != nil {
			return err
		}
		t.schema.Advanced.RestOptions.FieldNames = names
		return nil
	},
	"browsing.filterableFields": func(t patchTarget, v []any) error {
		names, err := listArg(v)
		if err != nil {
			return err
		}
		if _, err := fieldIDs(t.schema.Fields, names); err != nil {
			return err
		}
		ApplyFilterable(t.schema, names)
		return nil
	},
	"browsing.displayedFields": func(t patchTarget, v []any) error {
		names, err := listArg(v)
		if err != nil {
			return err
		}
		if _, err := fieldIDs(t.schema.Fields, names); err != nil {
			return err
		}
		if len(names) == 0 {
			for _, f := range t.schema.Fields {
				f.UIDisplayable = false
				f.UIDisplayPosition = nil
			}
			return nil
		}
		positions := make(map[string]int64, len(names))
		for i, n := range names {
			positions[n] = int64(i)
		}
		ApplyDisplayPositions(t.schema, positions)
		return nil
	},
	"indexes": func(t patchTarget, v []any) error {
		var desired []metadata.LookupDTO
		if err := decodeArg(v, &desired); err != nil {
			return err
		}
		// Only lookups named in the new list survive, keeping their ids.
		var kept []*metadata.Lookup
		for _, d := range desired {
			prev := findLookup(t.schema.Lookups, d.ID, d.LookupName)
			if prev != nil && findLookup(kept, prev.ID, "") == nil {
				kept = append(kept, prev)
			}
		}
		lookups, err := ReconcileLookups(kept, desired, t.schema.Fields, t.schema.AllocLookupID)
		if errors.Is(err, ErrInvalidEntity) {
			return fmt.Errorf("%w: %w", ErrInvalidPatch, err)
		}
		if err != nil {
			return err
		}
		t.schema.SetLookups(lookups)
		return nil
	},
	"indexes[#].lookupName": func(t patchTarget, v []any) error {
		s, err := stringArg(v)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("%w: lookup name cannot be empty", ErrInvalidPatch)
		}
		i := t.idx[0]
		if other := t.schema.GetLookupByName(s); other != nil && (i >= len(t.schema.Lookups) || other != t.schema.Lookups[i]) {
			return fmt.Errorf("%w: lookup %s already exists", ErrInvalidPatch, s)
		}
		if i == len(t.schema.Lookups) {
			t.schema.Lookups = append(t.schema.Lookups, &metadata.Lookup{ID: t.schema.AllocLookupID(), Name: s})
			return nil
		}
		l, err := lookupAt(t.schema, i)
		if err != nil {
			return err
		}
		l.Name = s
		return nil
	},
	"indexes[#].singleObjectReturn": func(t patchTarget, v []any) error {
		l, err := lookupAt(t.schema, t.idx[0])
		if err != nil {
			return err
		}
		b, err := boolArg(v)
		if err != nil {
			return err
		}
		l.SingleObjectReturn = b
		return nil
	},
	"indexes[#].exposedViaRest": func(t patchTarget, v []any) error {
		l, err := lookupAt(t.schema, t.idx[0])
		if err != nil {
			return err
		}
		b, err := boolArg(v)
		if err != nil {
			return err
		}
		l.ExposedViaREST = b
		return nil
	},
	"indexes[#].fieldNames": func(t patchTarget, v []any) error {
		l, err := lookupAt(t.schema, t.idx[0])
		if err != nil {
			return err
		}
		names, err := listArg(v)
		if err != nil {
			return err
		}
		ids, err := fieldIDs(t.schema.Fields, names)
		if err != nil {
			return err
		}
		l.FieldIDs = ids
		return nil
	},
}

// ApplyFieldPatch sets the attribute of f addressed by path.
func ApplyFieldPatch(s *metadata.Schema, f *metadata.Field, typ *metadata.Type, path string, value []any) error {
	return dispatch(fieldPatches, patchTarget{schema: s, field: f, typ: typ}, path, value)
}

// ApplyAdvancedPatch sets the advanced setting addressed by path.
func ApplyAdvancedPatch(s *metadata.Schema, path string, value []any) error {
	return dispatch(advancedPatches, patchTarget{schema: s}, path, value)
}

// ApplySecurityPatch sets the security mode from value[0] and, when present,
// the member list from value[1].
func ApplySecurityPatch(s *metadata.Schema, value []any) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: security mode missing", ErrInvalidPatch)
	}
	name, ok := value[0].(string)
	if !ok {
		return fmt.Errorf("%w: security mode must be a string", ErrInvalidPatch)
	}
	mode, err := metadata.ParseSecurityMode(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	var members []string
	if len(value) > 1 {
		members, err = listArg(value[1:])
		if err != nil {
			return err
		}
	}
	s.Security = metadata.Security{Mode: mode, Members: members}
	return nil
}

func dispatch(table map[string]patchFunc, t patchTarget, path string, value []any) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	fn, ok := table[p.Pattern]
	if !ok {
		return fmt.Errorf("%w: unknown path %s", ErrInvalidPatch, path)
	}
	t.idx = p.Indices
	return fn(t, value)
}

func boolPatch(field func(*metadata.AdvancedSettings) *bool) patchFunc {
	return func(t patchTarget, v []any) error {
		b, err := boolArg(v)
		if err != nil {
			return err
		}
		*field(&t.schema.Advanced) = b
		return nil
	}
}

func indexError(what string, i int) error {
	return fmt.Errorf("%w: %s index %d out of range", ErrInvalidPatch, what, i)
}

func metadataAt(f *metadata.Field, i int) (*metadata.FieldMetadata, error) {
	switch {
	case i < len(f.Metadata):
		return &f.Metadata[i], nil
	case i == len(f.Metadata):
		f.Metadata = append(f.Metadata, metadata.FieldMetadata{})
		return &f.Metadata[i], nil
	default:
		return nil, indexError("metadata", i)
	}
}

func lookupAt(s *metadata.Schema, i int) (*metadata.Lookup, error) {
	if i >= len(s.Lookups) {
		return nil, indexError("indexes", i)
	}
	return s.Lookups[i], nil
}

func scalarArg(v []any) (any, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: value missing", ErrInvalidPatch)
	}
	return v[0], nil
}

func stringArg(v []any) (string, error) {
	x, err := scalarArg(v)
	if err != nil {
		return "", err
	}
	switch x.(type) {
	case []any, map[string]any:
		return "", fmt.Errorf("%w: expected a scalar value", ErrInvalidPatch)
	}
	return metadata.StringValue(x), nil
}

func boolArg(v []any) (bool, error) {
	x, err := scalarArg(v)
	if err != nil {
		return false, err
	}
	switch b := x.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("%w: expected a boolean, got %q", ErrInvalidPatch, b)
		}
		return parsed, nil
	default:
		return false, fmt.Errorf("%w: expected a boolean, got %T", ErrInvalidPatch, x)
	}
}

// listArg accepts both [[a, b]] and [a, b].
func listArg(v []any) ([]string, error) {
	items := v
	if len(v) == 1 {
		switch x := v[0].(type) {
		case []any:
			items = x
		case []string:
			return append([]string{}, x...), nil
		case nil:
			return []string{}, nil
		}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case string:
			out = append(out, x)
		case []any, map[string]any, nil:
			return nil, fmt.Errorf("%w: expected a list of names", ErrInvalidPatch)
		default:
			out = append(out, metadata.StringValue(x))
		}
	}
	return out, nil
}

// decodeArg decodes either [[obj, ...]] or [obj, ...] into out.
func decodeArg(v []any, out any) error {
	var raw any = v
	if len(v) == 1 {
		if list, ok := v[0].([]any); ok {
			raw = list
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return nil
}
