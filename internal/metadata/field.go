package metadata

import "strings"

type Field struct {
	ID                int64             `json:"id"`
	DisplayName       string            `json:"display_name"`
	Name              string            `json:"name"`
	TypeClass         string            `json:"type"`
	Required          bool              `json:"required,omitempty"`
	ReadOnly          bool              `json:"read_only,omitempty"`
	DefaultValue      string            `json:"default_value,omitempty"`
	Tooltip           string            `json:"tooltip,omitempty"`
	UIDisplayable     bool              `json:"ui_displayable,omitempty"`
	UIDisplayPosition *int64            `json:"ui_display_position,omitempty"`
	UIFilterable      bool              `json:"ui_filterable,omitempty"`
	Settings          []FieldSetting    `json:"settings,omitempty"`
	Validations       []FieldValidation `json:"validations,omitempty"`
	Metadata          []FieldMetadata   `json:"metadata,omitempty"`
}

// FieldSetting holds the value of one type setting template.
type FieldSetting struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FieldValidation holds the state of one type validation template.
type FieldValidation struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type FieldMetadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetaAutoGenerated marks fields whose values the storage layer produces.
const MetaAutoGenerated = "autoGenerated"

// NewField builds a field of type t with one setting and one validation per
// template, each holding the template default.
func NewField(t *Type, displayName, name string) *Field {
	f := &Field{
		DisplayName: displayName,
		Name:        name,
		TypeClass:   t.ClassName,
	}
	for _, s := range t.Settings {
		f.Settings = append(f.Settings, FieldSetting{Name: s.Name, Value: s.DefaultValue})
	}
	for _, v := range t.Validations {
		f.Validations = append(f.Validations, FieldValidation{Name: v.Name, Value: v.DefaultValue})
	}
	return f
}

// Setting returns the setting with the given name, or nil.
func (f *Field) Setting(name string) *FieldSetting {
	for i := range f.Settings {
		if strings.EqualFold(f.Settings[i].Name, name) {
			return &f.Settings[i]
		}
	}
	return nil
}

// Validation returns the validation with the given name, or nil.
func (f *Field) Validation(name string) *FieldValidation {
	for i := range f.Validations {
		if strings.EqualFold(f.Validations[i].Name, name) {
			return &f.Validations[i]
		}
	}
	return nil
}

// Meta returns the metadata value for key and whether it was present.
func (f *Field) Meta(key string) (string, bool) {
	for _, m := range f.Metadata {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

// SetMeta adds or replaces a metadata entry.
func (f *Field) SetMeta(key, value string) {
	for i := range f.Metadata {
		if f.Metadata[i].Key == key {
			f.Metadata[i].Value = value
			return
		}
	}
	f.Metadata = append(f.Metadata, FieldMetadata{Key: key, Value: value})
}

// IsAuto returns true if the field value is generated by storage.
func (f *Field) IsAuto() bool {
	v, ok := f.Meta(MetaAutoGenerated)
	return ok && v == "true"
}

// Update overwrites the field's editable state from dto. The basic section
// and the display flags are replaced as a whole, so a missing display
// position clears it. Settings and validation criteria are matched by name
// and only the ones present change. The type class and the read-only flag
// never change through an update.
func (f *Field) Update(dto FieldDTO) {
	f.DisplayName = dto.Basic.DisplayName
	f.Name = dto.Basic.Name
	f.Required = dto.Basic.Required
	f.DefaultValue = StringValue(dto.Basic.DefaultValue)
	f.Tooltip = dto.Basic.Tooltip
	f.UIFilterable = dto.UIFilterable
	f.UIDisplayable = dto.UIDisplayable
	f.UIDisplayPosition = nil
	if dto.UIDisplayPosition != nil {
		p := *dto.UIDisplayPosition
		f.UIDisplayPosition = &p
	}
	for _, s := range dto.Settings {
		if cur := f.Setting(s.Name); cur != nil {
			cur.Value = StringValue(s.Value)
		}
	}
	if dto.Validation != nil {
		for _, c := range dto.Validation.Criteria {
			if cur := f.Validation(c.Name); cur != nil {
				cur.Enabled = c.Enabled
				cur.Value = StringValue(c.Value)
			}
		}
	}
	if dto.Metadata != nil {
		f.Metadata = make([]FieldMetadata, 0, len(dto.Metadata))
		for _, m := range dto.Metadata {
			f.Metadata = append(f.Metadata, FieldMetadata{Key: m.Key, Value: m.Value})
		}
	}
}

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	out := *f
	if f.UIDisplayPosition != nil {
		p := *f.UIDisplayPosition
		out.UIDisplayPosition = &p
	}
	out.Settings = append([]FieldSetting(nil), f.Settings...)
	out.Validations = append([]FieldValidation(nil), f.Validations...)
	out.Metadata = append([]FieldMetadata(nil), f.Metadata...)
	return &out
}

// IDFieldName and IDFieldType describe the identity field every UI-created
// entity receives.
const (
	IDFieldName = "id"
	IDFieldType = "long"
)

// NewIDField builds the read-only, auto-generated identity field.
func NewIDField(t *Type) *Field {
	f := NewField(t, "Id", IDFieldName)
	f.Required = true
	f.ReadOnly = true
	f.SetMeta(MetaAutoGenerated, "true")
	return f
}
