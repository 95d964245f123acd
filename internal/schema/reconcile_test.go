package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mds-backend/internal/metadata"
)

func counter(start int64) func() int64 {
	n := start
	return func() int64 {
		n++
		return n
	}
}

func fieldDTO(typeClass, name string) metadata.FieldDTO {
	return metadata.FieldDTO{
		Type:  metadata.TypeDTO{TypeClass: typeClass},
		Basic: metadata.FieldBasicDTO{DisplayName: name, Name: name},
	}
}

func existingFields(t *testing.T) []*metadata.Field {
	t.Helper()
	types := metadata.DefaultTypes()
	long, _ := types.Resolve("long")
	str, _ := types.Resolve("string")
	id := metadata.NewIDField(long)
	id.ID = 1
	sys := metadata.NewField(str, "System", "system")
	sys.ID = 2
	sys.ReadOnly = true
	user := metadata.NewField(str, "Note", "note")
	user.ID = 3
	return []*metadata.Field{id, sys, user}
}

func TestReconcileFields_RemovesOnlyMissingReadOnly(t *testing.T) {
	current := existingFields(t)
	out, err := ReconcileFields(current, []metadata.FieldDTO{fieldDTO("long", "ID")}, metadata.DefaultTypes(), counter(3))
	require.NoError(t, err)

	var names []string
	for _, f := range out {
		names = append(names, f.Name)
	}
	// "system" is read-only and not desired; "note" is user-created and survives.
	// The matched identity field takes the desired spelling.
	assert.Equal(t, []string{"ID", "note"}, names)
	assert.Len(t, current, 3, "input must not be modified")
}

func TestReconcileFields_UpdatesCaseInsensitively(t *testing.T) {
	current := existingFields(t)
	d := fieldDTO("string", "NOTE")
	d.Basic.DisplayName = "Remark"
	d.Basic.Required = true
	d.Settings = []metadata.SettingDTO{{Name: "maxTextLength", Value: float64(80)}}

	out, err := ReconcileFields(current, []metadata.FieldDTO{d}, metadata.DefaultTypes(), counter(3))
	require.NoError(t, err)

	note := findField(out, "note")
	require.NotNil(t, note)
	assert.Equal(t, int64(3), note.ID, "existing field keeps its id")
	assert.Equal(t, "Remark", note.DisplayName)
	assert.True(t, note.Required)
	assert.Equal(t, "80", note.Setting("maxTextLength").Value)
	assert.Equal(t, "Note", current[2].DisplayName, "input must not be modified")
}

func TestReconcileFields_BuildsNewFromTemplates(t *testing.T) {
	d := fieldDTO("string", "title")
	d.Settings = []metadata.SettingDTO{{Name: "maxTextLength", Value: "40"}}
	d.Validation = &metadata.FieldValidationDTO{Criteria: []metadata.ValidationCriterionDTO{
		{Name: "minLength", Value: float64(3), Enabled: true},
	}}

	out, err := ReconcileFields(nil, []metadata.FieldDTO{d}, metadata.DefaultTypes(), counter(10))
	require.NoError(t, err)
	require.Len(t, out, 1)

	f := out[0]
	assert.Equal(t, int64(11), f.ID)
	assert.Equal(t, "string", f.TypeClass)
	assert.Len(t, f.Settings, 2)
	assert.Equal(t, "40", f.Setting("maxTextLength").Value)
	assert.Equal(t, "false", f.Setting("textarea").Value)
	require.Len(t, f.Validations, 3)
	assert.True(t, f.Validation("minLength").Enabled)
	assert.Equal(t, "3", f.Validation("minLength").Value)
	assert.False(t, f.Validation("regex").Enabled)
}

func TestReconcileFields_Errors(t *testing.T) {
	types := metadata.DefaultTypes()

	_, err := ReconcileFields(nil, []metadata.FieldDTO{fieldDTO("blob", "data")}, types, counter(0))
	assert.True(t, errors.Is(err, ErrNoSuchType), "got %v", err)

	bad := fieldDTO("string", "title")
	bad.Settings = []metadata.SettingDTO{{Name: "maxTextLength", Value: float64(0)}}
	_, err = ReconcileFields(nil, []metadata.FieldDTO{bad}, types, counter(0))
	assert.True(t, errors.Is(err, ErrInvalidSettingValue), "got %v", err)

	_, err = ReconcileFields(nil, []metadata.FieldDTO{fieldDTO("string", " ")}, types, counter(0))
	assert.True(t, errors.Is(err, ErrInvalidEntity), "got %v", err)
}

func TestReconcileLookups(t *testing.T) {
	fields := existingFields(t)
	current := []*metadata.Lookup{
		{ID: 1, Name: "auto", ReadOnly: true, FieldIDs: []int64{1}},
		{ID: 2, Name: "byNote", FieldIDs: []int64{3}},
		{ID: 3, Name: "kept", FieldIDs: []int64{2}},
	}
	desired := []metadata.LookupDTO{
		{ID: 2, LookupName: "byNoteAndId", SingleObjectReturn: true, FieldNames: []string{"note", "ID"}},
		{LookupName: "KEPT", FieldNames: []string{"system"}, ExposedViaREST: true},
		{LookupName: "fresh", FieldNames: []string{"note"}},
	}

	out, err := ReconcileLookups(current, desired, fields, counter(3))
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, "byNoteAndId", out[0].Name)
	assert.True(t, out[0].SingleObjectReturn)
	assert.Equal(t, []int64{3, 1}, out[0].FieldIDs)

	assert.Equal(t, int64(3), out[1].ID, "name match keeps the id")
	assert.Equal(t, "KEPT", out[1].Name)
	assert.True(t, out[1].ExposedViaREST)

	assert.Equal(t, int64(4), out[2].ID)
	assert.Equal(t, "fresh", out[2].Name)

	assert.Equal(t, "byNote", current[1].Name, "input must not be modified")
}

func TestReconcileLookups_RejectsNameCollision(t *testing.T) {
	fields := existingFields(t)
	current := []*metadata.Lookup{
		{ID: 1, Name: "byEmail", FieldIDs: []int64{3}},
		{ID: 2, Name: "other", FieldIDs: []int64{2}},
	}

	_, err := ReconcileLookups(current, []metadata.LookupDTO{{ID: 1, LookupName: "OTHER", FieldNames: []string{"note"}}}, fields, counter(2))
	assert.True(t, errors.Is(err, ErrInvalidEntity), "got %v", err)
	assert.Equal(t, "byEmail", current[0].Name, "input must not be modified")

	merged, err := ReconcileLookups(nil, []metadata.LookupDTO{
		{ID: 7, LookupName: "B"},
		{ID: 8, LookupName: "b"},
	}, fields, counter(0))
	require.NoError(t, err, "ids unknown to current fall back to the name match")
	assert.Len(t, merged, 1)

	out, err := ReconcileLookups(current, []metadata.LookupDTO{{ID: 1, LookupName: "BYEMAIL", FieldNames: []string{"note"}}}, fields, counter(2))
	require.NoError(t, err, "changing the case of a lookup's own name is allowed")
	assert.Equal(t, "BYEMAIL", out[0].Name)
}

func TestReconcileLookups_UnknownField(t *testing.T) {
	_, err := ReconcileLookups(nil, []metadata.LookupDTO{{LookupName: "x", FieldNames: []string{"nope"}}}, existingFields(t), counter(0))
	assert.True(t, errors.Is(err, ErrFieldNotFound), "got %v", err)
}
