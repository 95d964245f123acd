package metadata

import "strings"

// Schema is the editable body shared by committed entities and drafts.
// Reconciliation, patching and display operations only ever work on a *Schema.
type Schema struct {
	Fields       []*Field         `json:"fields"`
	Lookups      []*Lookup        `json:"lookups"`
	Advanced     AdvancedSettings `json:"advanced"`
	Security     Security         `json:"security"`
	NextFieldID  int64            `json:"next_field_id"`
	NextLookupID int64            `json:"next_lookup_id"`
}

// Entity is a committed schema definition.
type Entity struct {
	ID        int64  `json:"id"`
	ClassName string `json:"class_name"`
	Name      string `json:"name"`
	Module    string `json:"module,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	// DDE entities originate outside the editor and cannot be changed here.
	DDE      bool   `json:"dde"`
	Revision string `json:"revision"`
	Schema
}

// Draft is one actor's private working copy of a committed entity.
type Draft struct {
	ID             int64  `json:"id"`
	ParentID       int64  `json:"parent_id"`
	Owner          string `json:"owner"`
	ParentRevision string `json:"parent_revision"`
	ChangesMade    bool   `json:"changes_made"`
	Schema
}

// NewEntity returns an empty entity with the default security mode.
func NewEntity(className, name, module, namespace string) *Entity {
	if name == "" {
		name = SimpleName(className)
	}
	return &Entity{
		ClassName: className,
		Name:      name,
		Module:    module,
		Namespace: namespace,
		Schema: Schema{
			Security: Security{Mode: SecurityEveryone},
		},
	}
}

// NewDraft snapshots the entity's current state for owner.
func NewDraft(e *Entity, owner string) *Draft {
	d := &Draft{ParentID: e.ID, Owner: owner}
	d.Refresh(e)
	return d
}

// Refresh replaces the draft's body with a fresh copy of its parent and
// records the parent's revision as the new snapshot token.
func (d *Draft) Refresh(parent *Entity) {
	d.Schema = parent.Schema.Clone()
	d.ParentRevision = parent.Revision
	d.ChangesMade = false
}

// Outdated reports whether the parent changed since the draft's snapshot.
func (d *Draft) Outdated(parent *Entity) bool {
	return parent == nil || d.ParentRevision != parent.Revision
}

// ApplyDraft copies the draft's body onto the entity.
func (e *Entity) ApplyDraft(d *Draft) {
	e.Schema = d.Schema.Clone()
}

// TableName is the physical table the compiler generates for the entity.
func (e *Entity) TableName() string {
	return strings.ToLower(strings.ReplaceAll(e.ClassName, ".", "_"))
}

// PackageOf returns the namespace portion of a dotted class name, or "".
func PackageOf(className string) string {
	i := strings.LastIndex(className, ".")
	if i < 0 {
		return ""
	}
	return className[:i]
}

// SimpleName returns the last segment of a dotted class name.
func SimpleName(className string) string {
	return className[strings.LastIndex(className, ".")+1:]
}

// GetField returns the field with the given name (case-insensitive), or nil.
func (s *Schema) GetField(name string) *Field {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// GetFieldByID returns the field with the given id, or nil.
func (s *Schema) GetFieldByID(id int64) *Field {
	for _, f := range s.Fields {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// AllocFieldID reserves the next field id of this schema.
func (s *Schema) AllocFieldID() int64 {
	s.NextFieldID++
	return s.NextFieldID
}

// AllocLookupID reserves the next lookup id of this schema.
func (s *Schema) AllocLookupID() int64 {
	s.NextLookupID++
	return s.NextLookupID
}

// AddField attaches f, assigning it an id when it has none.
func (s *Schema) AddField(f *Field) {
	if f.ID == 0 {
		f.ID = s.AllocFieldID()
	} else if f.ID > s.NextFieldID {
		s.NextFieldID = f.ID
	}
	s.Fields = append(s.Fields, f)
}

// RemoveField detaches the field with the given id and drops it from every
// lookup. It reports whether a field was removed.
func (s *Schema) RemoveField(id int64) bool {
	for i, f := range s.Fields {
		if f.ID == id {
			s.Fields = append(s.Fields[:i], s.Fields[i+1:]...)
			s.pruneLookupFields()
			return true
		}
	}
	return false
}

// SetFields replaces the field list and drops dangling lookup references.
func (s *Schema) SetFields(fields []*Field) {
	s.Fields = fields
	for _, f := range fields {
		if f.ID > s.NextFieldID {
			s.NextFieldID = f.ID
		}
	}
	s.pruneLookupFields()
}

func (s *Schema) pruneLookupFields() {
	for _, l := range s.Lookups {
		kept := l.FieldIDs[:0]
		for _, id := range l.FieldIDs {
			if s.GetFieldByID(id) != nil {
				kept = append(kept, id)
			}
		}
		l.FieldIDs = kept
	}
}

// GetLookupByName returns the lookup with the given name (case-insensitive), or nil.
func (s *Schema) GetLookupByName(name string) *Lookup {
	for _, l := range s.Lookups {
		if strings.EqualFold(l.Name, name) {
			return l
		}
	}
	return nil
}

// GetLookupByID returns the lookup with the given id, or nil.
func (s *Schema) GetLookupByID(id int64) *Lookup {
	for _, l := range s.Lookups {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// SetLookups replaces the lookup list.
func (s *Schema) SetLookups(lookups []*Lookup) {
	s.Lookups = lookups
	for _, l := range lookups {
		if l.ID > s.NextLookupID {
			s.NextLookupID = l.ID
		}
	}
}

// LookupsForField returns the names of the lookups that reference the field.
func (s *Schema) LookupsForField(id int64) []string {
	var names []string
	for _, l := range s.Lookups {
		for _, fid := range l.FieldIDs {
			if fid == id {
				names = append(names, l.Name)
				break
			}
		}
	}
	return names
}

// FieldNames resolves a list of field ids to names, skipping unknown ids.
func (s *Schema) FieldNames(ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if f := s.GetFieldByID(id); f != nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// Clone returns a deep copy of the schema body.
func (s Schema) Clone() Schema {
	out := s
	out.Fields = make([]*Field, len(s.Fields))
	for i, f := range s.Fields {
		out.Fields[i] = f.Clone()
	}
	out.Lookups = make([]*Lookup, len(s.Lookups))
	for i, l := range s.Lookups {
		out.Lookups[i] = l.Clone()
	}
	out.Advanced = s.Advanced.Clone()
	out.Security = s.Security.Clone()
	return out
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Schema = e.Schema.Clone()
	return &out
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	out := *d
	out.Schema = d.Schema.Clone()
	return &out
}
