package metadata

// Lookup is a named query over an ordered list of fields. The compiler turns
// each lookup into a storage index.
type Lookup struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	SingleObjectReturn bool    `json:"single_object_return"`
	ExposedViaREST     bool    `json:"exposed_via_rest"`
	ReadOnly           bool    `json:"read_only,omitempty"`
	FieldIDs           []int64 `json:"field_ids"`
}

func (l *Lookup) Clone() *Lookup {
	out := *l
	out.FieldIDs = append([]int64(nil), l.FieldIDs...)
	return &out
}

// HasField reports whether the lookup references the field id.
func (l *Lookup) HasField(id int64) bool {
	for _, fid := range l.FieldIDs {
		if fid == id {
			return true
		}
	}
	return false
}
