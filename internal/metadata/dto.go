package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EntityDTO is the API shape of an entity or of a draft seen as an entity.
type EntityDTO struct {
	ID              int64        `json:"id,omitempty"`
	ClassName       string       `json:"className"`
	Name            string       `json:"name,omitempty"`
	Module          string       `json:"module,omitempty"`
	Namespace       string       `json:"namespace,omitempty"`
	ReadOnly        bool         `json:"readOnly"`
	Revision        string       `json:"revision,omitempty"`
	SecurityMode    SecurityMode `json:"securityMode,omitempty"`
	SecurityMembers []string     `json:"securityMembers,omitempty"`

	Draft       bool   `json:"draft,omitempty"`
	ParentID    int64  `json:"parentId,omitempty"`
	Owner       string `json:"owner,omitempty"`
	ChangesMade bool   `json:"changesMade,omitempty"`
	Outdated    bool   `json:"outdated,omitempty"`
}

type FieldDTO struct {
	ID                int64               `json:"id,omitempty"`
	EntityID          int64               `json:"entityId,omitempty"`
	Type              TypeDTO             `json:"type"`
	Basic             FieldBasicDTO       `json:"basic"`
	ReadOnly          bool                `json:"readOnly"`
	Metadata          []MetadataDTO       `json:"metadata,omitempty"`
	Validation        *FieldValidationDTO `json:"validation,omitempty"`
	Settings          []SettingDTO        `json:"settings,omitempty"`
	Lookups           []string            `json:"lookups,omitempty"`
	UIFilterable      bool                `json:"uiFilterable"`
	UIDisplayable     bool                `json:"uiDisplayable"`
	UIDisplayPosition *int64              `json:"uiDisplayPosition,omitempty"`
}

type TypeDTO struct {
	TypeClass   string `json:"typeClass"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

type FieldBasicDTO struct {
	DisplayName  string `json:"displayName"`
	Name         string `json:"name"`
	Required     bool   `json:"required"`
	DefaultValue any    `json:"defaultValue,omitempty"`
	Tooltip      string `json:"tooltip,omitempty"`
}

type SettingDTO struct {
	Name      string `json:"name"`
	Value     any    `json:"value"`
	ValueType string `json:"valueType,omitempty"`
}

type FieldValidationDTO struct {
	Criteria []ValidationCriterionDTO `json:"criteria"`
}

type ValidationCriterionDTO struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Value       any    `json:"value"`
	Enabled     bool   `json:"enabled"`
	ValueType   string `json:"valueType,omitempty"`
}

type MetadataDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type LookupDTO struct {
	ID                 int64    `json:"id,omitempty"`
	LookupName         string   `json:"lookupName"`
	SingleObjectReturn bool     `json:"singleObjectReturn"`
	ExposedViaREST     bool     `json:"exposedViaRest"`
	ReadOnly           bool     `json:"readOnly"`
	FieldNames         []string `json:"fieldNames"`
}

type AdvancedSettingsDTO struct {
	EntityID    int64          `json:"entityId"`
	Tracking    TrackingDTO    `json:"tracking"`
	Indexes     []LookupDTO    `json:"indexes"`
	RestOptions RestOptionsDTO `json:"restOptions"`
	Browsing    BrowsingDTO    `json:"browsing"`
}

type TrackingDTO struct {
	AllowCreate bool `json:"allowCreate"`
	AllowRead   bool `json:"allowRead"`
	AllowUpdate bool `json:"allowUpdate"`
	AllowDelete bool `json:"allowDelete"`
	Auditing    bool `json:"auditing"`
}

type RestOptionsDTO struct {
	Create     bool     `json:"create"`
	Read       bool     `json:"read"`
	Update     bool     `json:"update"`
	Delete     bool     `json:"delete"`
	FieldNames []string `json:"fieldNames"`
}

type BrowsingDTO struct {
	FilterableFields []string `json:"filterableFields"`
	DisplayedFields  []string `json:"displayedFields"`
}

// DraftResult reports the draft state after a save-draft-change request.
type DraftResult struct {
	ChangesMade bool `json:"changesMade"`
	Outdated    bool `json:"outdated"`
}

// DraftAction names one save-draft-change request kind.
type DraftAction string

const (
	ActionCreateField  DraftAction = "create_field"
	ActionEditField    DraftAction = "edit_field"
	ActionEditAdvanced DraftAction = "edit_advanced"
	ActionEditSecurity DraftAction = "edit_security"
	ActionRemoveField  DraftAction = "remove_field"
)

// DraftChange is one edit applied to an actor's draft.
type DraftChange struct {
	Action      DraftAction `json:"action" jsonschema:"enum=create_field,enum=edit_field,enum=edit_advanced,enum=edit_security,enum=remove_field"`
	FieldID     FieldRef    `json:"fieldId,omitempty"`
	Path        string      `json:"path,omitempty"`
	Value       []any       `json:"value,omitempty"`
	TypeClass   string      `json:"typeClass,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
	Name        string      `json:"name,omitempty"`
}

// FieldRef is a field id as sent by clients, either a JSON number or a string.
type FieldRef string

func (r *FieldRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = FieldRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("field id: %w", err)
	}
	*r = FieldRef(n.String())
	return nil
}

// Int returns the numeric id, or false when the reference is blank or not a number.
func (r FieldRef) Int() (int64, bool) {
	if r == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(string(r), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// StringValue renders a loosely-typed JSON value as the string form used for
// settings, validations and defaults.
func StringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// ToDTO renders the committed entity.
func (e *Entity) ToDTO() EntityDTO {
	return EntityDTO{
		ID:              e.ID,
		ClassName:       e.ClassName,
		Name:            e.Name,
		Module:          e.Module,
		Namespace:       e.Namespace,
		ReadOnly:        e.DDE,
		Revision:        e.Revision,
		SecurityMode:    e.Security.Mode,
		SecurityMembers: append([]string(nil), e.Security.Members...),
	}
}

// ToDTO renders the draft as an entity, with identity fields from parent.
func (d *Draft) ToDTO(parent *Entity) EntityDTO {
	dto := parent.ToDTO()
	dto.ID = d.ID
	dto.Revision = ""
	dto.SecurityMode = d.Security.Mode
	dto.SecurityMembers = append([]string(nil), d.Security.Members...)
	dto.Draft = true
	dto.ParentID = d.ParentID
	dto.Owner = d.Owner
	dto.ChangesMade = d.ChangesMade
	dto.Outdated = d.Outdated(parent)
	return dto
}

// FieldToDTO renders f. The type is optional; without it settings and
// validations carry no value types.
func (s *Schema) FieldToDTO(entityID int64, f *Field, t *Type) FieldDTO {
	dto := FieldDTO{
		ID:       f.ID,
		EntityID: entityID,
		Type:     TypeDTO{TypeClass: f.TypeClass},
		Basic: FieldBasicDTO{
			DisplayName:  f.DisplayName,
			Name:         f.Name,
			Required:     f.Required,
			DefaultValue: f.DefaultValue,
			Tooltip:      f.Tooltip,
		},
		ReadOnly:      f.ReadOnly,
		Lookups:       s.LookupsForField(f.ID),
		UIFilterable:  f.UIFilterable,
		UIDisplayable: f.UIDisplayable,
	}
	if f.DefaultValue == "" {
		dto.Basic.DefaultValue = nil
	}
	if f.UIDisplayPosition != nil {
		p := *f.UIDisplayPosition
		dto.UIDisplayPosition = &p
	}
	if t != nil {
		dto.Type.DisplayName = t.DisplayName
		dto.Type.Description = t.Description
	}
	for _, st := range f.Settings {
		sd := SettingDTO{Name: st.Name, Value: st.Value}
		if t != nil {
			if tmpl := t.Setting(st.Name); tmpl != nil {
				sd.ValueType = tmpl.ValueType
			}
		}
		dto.Settings = append(dto.Settings, sd)
	}
	if len(f.Validations) > 0 {
		dto.Validation = &FieldValidationDTO{}
		for _, v := range f.Validations {
			c := ValidationCriterionDTO{Name: v.Name, Value: v.Value, Enabled: v.Enabled}
			if t != nil {
				for _, tv := range t.Validations {
					if tv.Name == v.Name {
						c.DisplayName = tv.DisplayName
						c.ValueType = tv.ValueType
					}
				}
			}
			dto.Validation.Criteria = append(dto.Validation.Criteria, c)
		}
	}
	for _, m := range f.Metadata {
		dto.Metadata = append(dto.Metadata, MetadataDTO{Key: m.Key, Value: m.Value})
	}
	return dto
}

// LookupToDTO renders l with field ids resolved to names.
func (s *Schema) LookupToDTO(l *Lookup) LookupDTO {
	return LookupDTO{
		ID:                 l.ID,
		LookupName:         l.Name,
		SingleObjectReturn: l.SingleObjectReturn,
		ExposedViaREST:     l.ExposedViaREST,
		ReadOnly:           l.ReadOnly,
		FieldNames:         s.FieldNames(l.FieldIDs),
	}
}

// AdvancedToDTO renders the advanced settings with indexes and browsing
// derived from the schema body.
func (s *Schema) AdvancedToDTO(entityID int64) AdvancedSettingsDTO {
	a := s.Advanced
	dto := AdvancedSettingsDTO{
		EntityID: entityID,
		Tracking: TrackingDTO{
			AllowCreate: a.Tracking.AllowCreate,
			AllowRead:   a.Tracking.AllowRead,
			AllowUpdate: a.Tracking.AllowUpdate,
			AllowDelete: a.Tracking.AllowDelete,
			Auditing:    a.Tracking.Auditing,
		},
		Indexes: make([]LookupDTO, 0, len(s.Lookups)),
		RestOptions: RestOptionsDTO{
			Create:     a.RestOptions.Create,
			Read:       a.RestOptions.Read,
			Update:     a.RestOptions.Update,
			Delete:     a.RestOptions.Delete,
			FieldNames: append([]string{}, a.RestOptions.FieldNames...),
		},
		Browsing: BrowsingDTO{
			FilterableFields: []string{},
			DisplayedFields:  []string{},
		},
	}
	for _, l := range s.Lookups {
		dto.Indexes = append(dto.Indexes, s.LookupToDTO(l))
	}
	for _, f := range s.Fields {
		if f.UIFilterable {
			dto.Browsing.FilterableFields = append(dto.Browsing.FilterableFields, f.Name)
		}
		if f.UIDisplayable {
			dto.Browsing.DisplayedFields = append(dto.Browsing.DisplayedFields, f.Name)
		}
	}
	return dto
}
