package schema

import (
	"fmt"
	"strings"

	"mds-backend/internal/metadata"
)

// ReconcileFields returns the field list that results from making current
// match desired. Read-only fields missing from desired are pruned, other
// missing fields are kept. Fields are matched by case-insensitive name.
// alloc hands out ids for new fields. Neither input is modified.
func ReconcileFields(current []*metadata.Field, desired []metadata.FieldDTO, types *metadata.TypeRegistry, alloc func() int64) ([]*metadata.Field, error) {
	wanted := make(map[string]bool, len(desired))
	for _, d := range desired {
		wanted[strings.ToLower(d.Basic.Name)] = true
	}

	out := make([]*metadata.Field, 0, len(current)+len(desired))
	for _, f := range current {
		if f.ReadOnly && !wanted[strings.ToLower(f.Name)] {
			continue
		}
		out = append(out, f.Clone())
	}

	for _, d := range desired {
		if strings.TrimSpace(d.Basic.Name) == "" {
			return nil, fmt.Errorf("%w: field without name", ErrInvalidEntity)
		}
		if existing := findField(out, d.Basic.Name); existing != nil {
			existing.Update(d)
			if err := checkSettings(existing, types); err != nil {
				return nil, err
			}
			continue
		}

		f, err := buildField(d, types)
		if err != nil {
			return nil, err
		}
		f.ID = alloc()
		out = append(out, f)
	}
	return out, nil
}

// buildField constructs a new field from dto, one setting and validation per
// type template.
func buildField(d metadata.FieldDTO, types *metadata.TypeRegistry) (*metadata.Field, error) {
	t, ok := types.Resolve(d.Type.TypeClass)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchType, d.Type.TypeClass)
	}
	f := metadata.NewField(t, d.Basic.DisplayName, d.Basic.Name)
	f.ReadOnly = d.ReadOnly
	f.Update(d)
	if err := checkSettings(f, types); err != nil {
		return nil, err
	}
	return f, nil
}

func checkSettings(f *metadata.Field, types *metadata.TypeRegistry) error {
	t, ok := types.Resolve(f.TypeClass)
	if !ok {
		return nil
	}
	for _, s := range f.Settings {
		tmpl := t.Setting(s.Name)
		if tmpl == nil {
			continue
		}
		if err := tmpl.Check(s.Value); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

func findField(fields []*metadata.Field, name string) *metadata.Field {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// ReconcileLookups returns the lookup list that results from making current
// match desired. Read-only lookups missing from desired are pruned. Lookups
// are matched by id, then by case-insensitive name; renaming a lookup onto
// another lookup's name is ErrInvalidEntity. Field names resolve
// against fields and an unknown name is ErrFieldNotFound.
func ReconcileLookups(current []*metadata.Lookup, desired []metadata.LookupDTO, fields []*metadata.Field, alloc func() int64) ([]*metadata.Lookup, error) {
	wanted := make(map[string]bool, len(desired))
	for _, d := range desired {
		wanted[strings.ToLower(d.LookupName)] = true
	}

	out := make([]*metadata.Lookup, 0, len(current)+len(desired))
	for _, l := range current {
		if l.ReadOnly && !wanted[strings.ToLower(l.Name)] {
			continue
		}
		out = append(out, l.Clone())
	}

	for _, d := range desired {
		if strings.TrimSpace(d.LookupName) == "" {
			return nil, fmt.Errorf("%w: lookup without name", ErrInvalidEntity)
		}
		ids, err := fieldIDs(fields, d.FieldNames)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", d.LookupName, err)
		}

		l := findLookup(out, d.ID, d.LookupName)
		if other := findLookup(out, 0, d.LookupName); other != nil && other != l {
			return nil, fmt.Errorf("%w: lookup %s already exists", ErrInvalidEntity, d.LookupName)
		}
		if l == nil {
			l = &metadata.Lookup{ID: alloc(), ReadOnly: d.ReadOnly}
			out = append(out, l)
		}
		l.Name = d.LookupName
		l.SingleObjectReturn = d.SingleObjectReturn
		l.ExposedViaREST = d.ExposedViaREST
		l.FieldIDs = ids
	}
	return out, nil
}

func findLookup(lookups []*metadata.Lookup, id int64, name string) *metadata.Lookup {
	if id != 0 {
		for _, l := range lookups {
			if l.ID == id {
				return l
			}
		}
	}
	for _, l := range lookups {
		if strings.EqualFold(l.Name, name) {
			return l
		}
	}
	return nil
}

func fieldIDs(fields []*metadata.Field, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		f := findField(fields, n)
		if f == nil {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, n)
		}
		ids = append(ids, f.ID)
	}
	return ids, nil
}
